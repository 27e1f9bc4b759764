// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablemint/storyforge/pkg/uuid"
)

// ErrStale is returned by [Store.Update] when the compare-and-set guard
// fails because another transition won the race. The ledger re-reads and
// re-validates; callers never see this error.
var ErrStale = errors.New("job: stale update")

// maxTransitionRetries bounds the compare-and-set retry loop. Contention on
// a single job is rare (per-job serialization), so two retries is generous.
const maxTransitionRetries = 3

// # Ledger

// Ledger validates and serializes all job status transitions.
type Ledger struct {
	store Store
	log   *slog.Logger
}

// NewLedger constructs a [Ledger] over the given store.
func NewLedger(store Store, log *slog.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// NewJobParams holds the data required to open a ledger entry.
type NewJobParams struct {
	ProjectID   string
	OwnerKind   OwnerKind
	OwnerID     string
	Kind        Kind
	Provider    string
	MaxAttempts int
	Input       json.RawMessage
}

// Create opens a new ledger entry in status queued.
func (l *Ledger) Create(ctx context.Context, p NewJobParams) (*Job, error) {
	now := time.Now()
	j := &Job{
		ID:          uuid.New(),
		ProjectID:   p.ProjectID,
		OwnerKind:   p.OwnerKind,
		OwnerID:     p.OwnerID,
		Kind:        p.Kind,
		Provider:    p.Provider,
		Status:      StatusQueued,
		MaxAttempts: p.MaxAttempts,
		Input:       p.Input,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := l.store.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("job_ledger_create_failed: %w", err)
	}

	l.log.Info("job_created",
		slog.String("job_id", j.ID),
		slog.String("kind", string(j.Kind)),
		slog.String("owner_kind", string(j.OwnerKind)),
		slog.String("owner_id", j.OwnerID),
		slog.String("provider", j.Provider),
	)

	return j, nil
}

// TransitionOpts carries optional mutations applied atomically with a
// status change.
type TransitionOpts struct {
	// ExternalHandle records the provider task ID (set on submission).
	ExternalHandle string

	// Output stores the provider result payload (set on success).
	Output json.RawMessage

	// Reason preserves the provider failure reason verbatim (set on failure).
	Reason string

	// IncrementAttempt marks one more submission (queued → submitted).
	IncrementAttempt bool

	// IncrementPoll marks one more status check (polling → polling).
	IncrementPoll bool

	// ResetPolls restarts the poll backoff sequence (retry requeue).
	ResetPolls bool
}

/*
Transition moves a job to a new status after validating the edge against the
job state machine.

Description: The single write path for job status. Re-applying the current
status is an idempotent no-op — the returned applied flag is false and no
side effects occur, so observers may re-report provider state freely.

Parameters:
  - ctx: context.Context
  - id: Job ID
  - to: Target status
  - opts: Optional mutations applied with the status change

Returns:
  - *Job: The job after the transition
  - bool: Whether the transition was actually applied (false for no-op re-application)
  - error: apperr.InvalidTransition for illegal edges, apperr.NotFound for unknown IDs
*/
func (l *Ledger) Transition(ctx context.Context, id string, to Status, opts TransitionOpts) (*Job, bool, error) {
	for try := 0; try < maxTransitionRetries; try++ {
		j, err := l.store.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}

		// Idempotent re-application: observed state unchanged, nothing to do.
		// polling → polling with IncrementPoll is a real edge (backoff
		// bookkeeping), so it falls through.
		if j.Status == to && !(to == StatusPolling && opts.IncrementPoll) {
			return j, false, nil
		}

		if err := ValidateTransition(j, to); err != nil {
			return nil, false, err
		}

		from := j.Status
		j.Status = to
		j.UpdatedAt = time.Now()

		if opts.ExternalHandle != "" {
			j.ExternalHandle = opts.ExternalHandle
		}
		if opts.Output != nil {
			j.Output = opts.Output
		}
		if opts.Reason != "" {
			j.LastError = opts.Reason
		}
		if opts.IncrementAttempt {
			j.Attempts++
		}
		if opts.IncrementPoll {
			j.Polls++
		}
		if opts.ResetPolls {
			j.Polls = 0
		}

		err = l.store.Update(ctx, j, from)
		if errors.Is(err, ErrStale) {
			continue // somebody else transitioned first; re-read and re-validate
		}
		if err != nil {
			return nil, false, fmt.Errorf("job_ledger_transition_failed: %w", err)
		}

		l.log.Info("job_transitioned",
			slog.String("job_id", j.ID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
			slog.Int("attempts", j.Attempts),
		)

		return j, true, nil
	}

	return nil, false, fmt.Errorf("job_ledger_transition_contended: job %s", id)
}

// RaiseAttemptCeiling lifts MaxAttempts to the given ceiling, opening a new
// retry window for an explicitly retried job. The ceiling never lowers.
func (l *Ledger) RaiseAttemptCeiling(ctx context.Context, id string, ceiling int) error {
	for try := 0; try < maxTransitionRetries; try++ {
		j, err := l.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if j.MaxAttempts >= ceiling {
			return nil
		}

		j.MaxAttempts = ceiling
		j.UpdatedAt = time.Now()

		err = l.store.Update(ctx, j, j.Status)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			return fmt.Errorf("job_ledger_raise_ceiling_failed: %w", err)
		}
		return nil
	}

	return fmt.Errorf("job_ledger_raise_ceiling_contended: job %s", id)
}

// Get returns one ledger entry.
func (l *Ledger) Get(ctx context.Context, id string) (*Job, error) {
	return l.store.Get(ctx, id)
}

// ListByOwner returns all jobs for one owning entity, oldest first.
func (l *Ledger) ListByOwner(ctx context.Context, kind OwnerKind, ownerID string) ([]*Job, error) {
	return l.store.ListByOwner(ctx, kind, ownerID)
}

// ListByProject returns every job under a project.
func (l *Ledger) ListByProject(ctx context.Context, projectID string) ([]*Job, error) {
	return l.store.ListByProject(ctx, projectID)
}

// ListPending returns all non-terminal jobs.
func (l *Ledger) ListPending(ctx context.Context) ([]*Job, error) {
	return l.store.ListPending(ctx)
}

// FindActive returns the newest non-terminal job for (owner, kind), or nil.
func (l *Ledger) FindActive(ctx context.Context, kind OwnerKind, ownerID string, jobKind Kind) (*Job, error) {
	return l.store.FindActive(ctx, kind, ownerID, jobKind)
}

// CancelByProject moves every non-terminal job under a project to
// cancelled. Invoked from project deletion.
func (l *Ledger) CancelByProject(ctx context.Context, projectID string) ([]*Job, error) {
	jobs, err := l.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return l.cancelAll(ctx, jobs)
}

// CancelByOwner moves every non-terminal job of an owning entity to
// cancelled, retryable failures included.
// Invoked from entity deletion; best-effort against in-flight
// external calls — a result arriving for a cancelled job is discarded
// because the terminal status rejects further transitions.
func (l *Ledger) CancelByOwner(ctx context.Context, kind OwnerKind, ownerID string) ([]*Job, error) {
	jobs, err := l.store.ListByOwner(ctx, kind, ownerID)
	if err != nil {
		return nil, err
	}
	return l.cancelAll(ctx, jobs)
}

func (l *Ledger) cancelAll(ctx context.Context, jobs []*Job) ([]*Job, error) {
	cancelled := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		// an exhausted failure stays failed; a retryable one is cancelled
		// so it can never be requeued against the vanished owner
		if j.Status.Terminal() && !j.CanRetry() {
			continue
		}
		updated, applied, err := l.Transition(ctx, j.ID, StatusCancelled, TransitionOpts{})
		if err != nil {
			return cancelled, err
		}
		if applied {
			cancelled = append(cancelled, updated)
		}
	}

	return cancelled, nil
}
