// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package job

import "context"

// Store abstracts job persistence so that the [Ledger] stays storage-agnostic.
//
// # Concurrency Contract
//
// Update must be conditional on the previously-read status (compare-and-set):
// two racing transitions for the same job must serialize, with the loser
// seeing ErrStale and re-reading. Implementations: PostgreSQL (production),
// in-memory (tests).
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)

	// Update persists j only if the stored status still equals fromStatus.
	// It returns dberr-wrapped ErrStale when the guard fails.
	Update(ctx context.Context, j *Job, fromStatus Status) error

	// ListByOwner returns all jobs for one owning entity, oldest first.
	ListByOwner(ctx context.Context, kind OwnerKind, ownerID string) ([]*Job, error)

	// ListByProject returns all jobs under a project, newest first.
	ListByProject(ctx context.Context, projectID string) ([]*Job, error)

	// ListPending returns jobs in a non-terminal status, oldest first.
	ListPending(ctx context.Context) ([]*Job, error)

	// FindActive returns the newest non-terminal job for (owner, kind),
	// or nil when none exists. Used for duplicate-submission suppression.
	FindActive(ctx context.Context, kind OwnerKind, ownerID string, jobKind Kind) (*Job, error)
}
