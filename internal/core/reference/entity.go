// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package reference

import "time"

// Type categorises a reference image slot.
type Type string

const (
	// TypeCharacter is a recurring character whose look must stay
	// consistent across pages.
	TypeCharacter Type = "character"

	// TypeProp is a recurring object or creature that is not a
	// character.
	TypeProp Type = "prop"

	// TypeScene is the book's overall setting.
	TypeScene Type = "scene"
)

// Types lists every valid reference type.
var Types = []Type{TypeCharacter, TypeProp, TypeScene}

// Reference is one reference image slot: a named subject with a prompt
// that renders into a canonical image reused on every page featuring it.
type Reference struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	Type Type   `json:"ref_type"`
	Name string `json:"name"`

	// RefIndex is the 1-based position within the slot's type.
	RefIndex int `json:"ref_index"`

	Prompt string `json:"prompt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
