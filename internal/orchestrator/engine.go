// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package orchestrator fans generation work out to external providers and
fans completions back into the pipeline.

Architecture:

  - Engine: the submission front door. Deduplicates per (owner, kind),
    opens ledger entries, and dispatches them to the Redis queue.
  - Worker: the background half. Drains the queue, calls providers under
    per-provider rate and concurrency limits, drives poll backoff, applies
    the retry policy, and hands terminal jobs to registered handlers.

The ledger stays the single source of truth; the orchestrator only moves
jobs along their state machine and never mutates owner entities itself.
That is what handlers are for.
*/
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/provider"
)

// ResultPayload is the normalized provider outcome stored on a succeeded
// job. Handlers decode it to apply domain effects.
type ResultPayload struct {
	AssetRef string          `json:"asset_ref,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
}

// EncodeResult serializes a provider result for the job ledger.
func EncodeResult(res provider.Result) json.RawMessage {
	raw, _ := json.Marshal(ResultPayload{AssetRef: res.AssetRef, Output: res.Output})
	return raw
}

// DecodeResult deserializes a succeeded job's output payload.
func DecodeResult(raw json.RawMessage) (ResultPayload, error) {
	var p ResultPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ResultPayload{}, fmt.Errorf("orchestrator: decode result payload: %w", err)
	}
	return p, nil
}

// Dispatcher is the scheduling transport between engine and worker.
// Production uses the Redis-backed [job.Queue]; tests use an in-memory one.
type Dispatcher interface {
	Push(ctx context.Context, jobID string) error
	PopBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Schedule(ctx context.Context, jobID string, due time.Time) error
	Due(ctx context.Context, now time.Time) ([]string, error)
	MarkCancelled(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) bool
}

// Engine is the submission front door of the pipeline.
type Engine struct {
	ledger      *job.Ledger
	queue       Dispatcher
	maxAttempts int
	log         *slog.Logger
}

// NewEngine constructs an [Engine].
func NewEngine(ledger *job.Ledger, queue Dispatcher, maxAttempts int, log *slog.Logger) *Engine {
	return &Engine{
		ledger:      ledger,
		queue:       queue,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// EnqueueParams describes one unit of provider work to dispatch.
type EnqueueParams struct {
	ProjectID string
	OwnerKind job.OwnerKind
	OwnerID   string
	Kind      job.Kind
	Provider  string
	Request   provider.Request
}

/*
Enqueue opens a ledger entry and dispatches it for submission.

Description: The only way work enters the pipeline. If a non-terminal job
already exists for the same (owner, kind) pair, that job is returned
unchanged and nothing is submitted; re-invoking "generate" on a
still-pending target is a no-op by contract.

Returns:
  - *job.Job: the created or pre-existing job
  - bool: true when a new job was created
  - error
*/
func (e *Engine) Enqueue(ctx context.Context, p EnqueueParams) (*job.Job, bool, error) {
	existing, err := e.ledger.FindActive(ctx, p.OwnerKind, p.OwnerID, p.Kind)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		e.log.Debug("job_enqueue_deduplicated",
			slog.String("job_id", existing.ID),
			slog.String("kind", string(p.Kind)),
			slog.String("owner_id", p.OwnerID),
		)
		return existing, false, nil
	}

	input, err := json.Marshal(p.Request)
	if err != nil {
		return nil, false, fmt.Errorf("orchestrator: encode request: %w", err)
	}

	created, err := e.ledger.Create(ctx, job.NewJobParams{
		ProjectID:   p.ProjectID,
		OwnerKind:   p.OwnerKind,
		OwnerID:     p.OwnerID,
		Kind:        p.Kind,
		Provider:    p.Provider,
		MaxAttempts: e.maxAttempts,
		Input:       input,
	})
	if err != nil {
		return nil, false, err
	}

	if err := e.queue.Push(ctx, created.ID); err != nil {
		return nil, false, err
	}

	return created, true, nil
}

// Retry requeues a terminally failed job after manual intervention. Unlike
// the automatic retry path it does not require remaining attempts below the
// ceiling to have been unexhausted at failure time: the user explicitly
// asked, so one more attempt window opens by raising the ceiling.
func (e *Engine) Retry(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := e.ledger.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status != job.StatusFailed {
		return nil, apperr.InvalidTransition("job", string(j.Status), string(job.StatusQueued))
	}

	if !j.CanRetry() {
		if err := e.ledger.RaiseAttemptCeiling(ctx, jobID, j.Attempts+1); err != nil {
			return nil, err
		}
	}

	requeued, _, err := e.ledger.Transition(ctx, jobID, job.StatusQueued, job.TransitionOpts{ResetPolls: true})
	if err != nil {
		return nil, err
	}

	if err := e.queue.Push(ctx, requeued.ID); err != nil {
		return nil, err
	}

	return requeued, nil
}

// Cancel cancels one job and flags it so an in-flight provider result is
// discarded on arrival. Cancelling a terminal job is rejected.
func (e *Engine) Cancel(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := e.ledger.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status.Terminal() {
		return nil, apperr.InvalidTransition("job", string(j.Status), string(job.StatusCancelled))
	}

	cancelled, _, err := e.ledger.Transition(ctx, jobID, job.StatusCancelled, job.TransitionOpts{})
	if err != nil {
		return nil, err
	}

	if err := e.queue.MarkCancelled(ctx, jobID); err != nil {
		e.log.Warn("job_cancel_flag_failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	return cancelled, nil
}

// Jobs returns every job under a project, newest first.
func (e *Engine) Jobs(ctx context.Context, projectID string) ([]*job.Job, error) {
	return e.ledger.ListByProject(ctx, projectID)
}

// Job returns one ledger entry.
func (e *Engine) Job(ctx context.Context, jobID string) (*job.Job, error) {
	return e.ledger.Get(ctx, jobID)
}

// CancelOwner cancels every non-terminal job of an owning entity and flags
// them so in-flight provider results are discarded on arrival.
func (e *Engine) CancelOwner(ctx context.Context, kind job.OwnerKind, ownerID string) error {
	cancelled, err := e.ledger.CancelByOwner(ctx, kind, ownerID)
	if err != nil {
		return err
	}

	for _, j := range cancelled {
		if err := e.queue.MarkCancelled(ctx, j.ID); err != nil {
			e.log.Warn("job_cancel_flag_failed",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// CancelProject cancels every non-terminal job under a project.
func (e *Engine) CancelProject(ctx context.Context, projectID string) error {
	cancelled, err := e.ledger.CancelByProject(ctx, projectID)
	if err != nil {
		return err
	}

	for _, j := range cancelled {
		if err := e.queue.MarkCancelled(ctx, j.ID); err != nil {
			e.log.Warn("job_cancel_flag_failed",
				slog.String("job_id", j.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Schedule registers a job for deferred processing at the given time.
func (e *Engine) Schedule(ctx context.Context, jobID string, due time.Time) error {
	return e.queue.Schedule(ctx, jobID, due)
}
