// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package image

import (
	"time"

	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/selection"
)

// Status is the lifecycle state of one candidate image.
type Status string

const (
	// StatusGenerating means the rendering job is still in flight.
	StatusGenerating Status = "generating"

	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusSuperseded marks candidates of a previous generation round.
	// They keep their files but are invisible to selection.
	StatusSuperseded Status = "superseded"
)

// Terminal reports whether the candidate will not change state on its own.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Candidate is one generated image competing for selection on its owner
// (a reference image slot or a book page).
type Candidate struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"project_id"`
	OwnerKind job.OwnerKind `json:"owner_kind"`
	OwnerID   string        `json:"owner_id"`

	// JobID is the rendering job backing this candidate.
	JobID    string `json:"job_id"`
	Provider string `json:"provider"`

	Status Status `json:"status"`

	// AssetRef is the provider-hosted image location.
	AssetRef string `json:"asset_ref,omitempty"`

	// LocalPath is the downloaded copy, relative to the asset root.
	// Empty until the download completes.
	LocalPath string `json:"local_path,omitempty"`

	Score     float64        `json:"score"`
	Selection selection.Mode `json:"selection_mode"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
