// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package page

import "context"

// # Repository Contract

// Repository defines the persistence surface for book pages.
type Repository interface {
	// ReplaceForProject swaps a project's whole page set in one
	// transaction, junction rows included. Planning always produces
	// the full set.
	ReplaceForProject(context context.Context, projectID string, pages []*Page) error

	// FindByID returns one page with its reference assignments.
	FindByID(context context.Context, id string) (*Page, error)

	// ListByProject returns a project's pages in reading order, with
	// reference assignments hydrated.
	ListByProject(context context.Context, projectID string) ([]*Page, error)

	// Update stores content, scene type and skipped flag, and replaces
	// the page's reference assignments.
	Update(context context.Context, page *Page) error

	// UpdatePrompt stores an assembled or hand-edited prompt.
	UpdatePrompt(context context.Context, id, prompt string) error

	// Delete removes a page; junction rows and candidates cascade.
	Delete(context context.Context, id string) error
}
