// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package reference

import "context"

// # Repository Contract

// Repository defines the persistence surface for reference image slots.
type Repository interface {
	// ReplaceForProject swaps a project's whole slot set in one
	// transaction. Prompt extraction always produces the full set, so
	// a re-run replaces rather than appends.
	ReplaceForProject(context context.Context, projectID string, references []*Reference) error

	// FindByID returns one reference slot.
	FindByID(context context.Context, id string) (*Reference, error)

	// ListByProject returns a project's slots ordered by type then
	// index. An empty refType returns every type.
	ListByProject(context context.Context, projectID string, refType Type) ([]*Reference, error)

	// UpdatePrompt stores a hand-edited prompt.
	UpdatePrompt(context context.Context, id, prompt string) error

	// Delete removes a slot; candidates cascade in the database.
	Delete(context context.Context, id string) error
}
