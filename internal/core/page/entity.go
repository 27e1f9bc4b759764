// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package page

import "time"

// SceneType steers how literally a page's text maps to its illustration.
type SceneType string

const (
	// SceneReal depicts the story action as written.
	SceneReal SceneType = "real_scene"

	// SceneKnowledge renders an explanatory, diagram-like spread.
	SceneKnowledge SceneType = "knowledge"

	// SceneAbstract renders mood over literal content.
	SceneAbstract SceneType = "abstract"
)

// SceneTypes lists every valid scene type.
var SceneTypes = []SceneType{SceneReal, SceneKnowledge, SceneAbstract}

// Reference assignment limits per page.
const (
	MaxCharacterRefs = 3
	MaxPropRefs      = 2
	MaxSceneRefs     = 1
)

// Page is one planned book page: a text segment, its scene treatment,
// the reference slots appearing on it, and eventually its illustration
// prompt.
type Page struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	// PageNumber is the label from the manuscript, e.g. "P1".
	PageNumber string `json:"page_number"`

	// PageIndex is the 1-based reading order.
	PageIndex int `json:"page_index"`

	Content   string    `json:"content"`
	SceneType SceneType `json:"scene_type"`

	// Prompt is the assembled illustration prompt, empty until the
	// prompt workflow has run.
	Prompt string `json:"prompt"`

	// Skipped pages keep their text but get no illustration.
	Skipped bool `json:"skipped"`

	// ReferenceIDs are the reference slots assigned to this page.
	ReferenceIDs []string `json:"reference_ids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
