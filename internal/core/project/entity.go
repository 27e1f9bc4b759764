// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package project

import (
	"time"

	"github.com/fablemint/storyforge/internal/stage"
)

// Supported image aspect ratios.
var ValidSizes = []string{"1:1", "4:3", "3:4", "16:9", "9:16"}

// Supported output resolutions.
var ValidResolutions = []string{"1K", "2K", "4K"}

// DefaultTargetAge is the reader age band used when the client omits one.
const DefaultTargetAge = "7-9"

// Project is the root aggregate of a picture book production.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Platform is the image provider every candidate of this project is
	// routed to (jimeng, volcano, mj).
	Platform string `json:"platform"`

	// StyleAsset is the stored style reference image, if uploaded.
	StyleAsset string `json:"style_asset,omitempty"`

	// StylePrompt is the style description applied to every generation,
	// set directly or reverse-derived from the style asset.
	StylePrompt string `json:"style_prompt,omitempty"`

	TargetAge       string `json:"target_age"`
	ImageSize       string `json:"image_size"`       // aspect ratio
	ImageResolution string `json:"image_resolution"` // e.g. "2K"

	// Content is the full book text, segmented into numbered pages
	// ("P1", "P2", ...). See [ParseContent].
	Content string `json:"content,omitempty"`

	Stage stage.Stage `json:"stage"`

	// PlanningComplete is the explicit user signal that page planning is
	// finished; part of the pages_planned exit predicate.
	PlanningComplete bool `json:"planning_complete"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
