// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package job implements the Job Ledger — the durable record of every
asynchronous generation task and the single source of truth for its status.

Architecture:

  - Job: one unit of external work (prompt extraction, image render, judging).
  - Ledger: validated, serialized status transitions backed by PostgreSQL.
  - Queue: Redis-backed dispatch (submit queue + delayed poll/retry schedule).

Every other pipeline component reads and writes job state exclusively through
the [Ledger]; no component mutates job rows directly.
*/
package job

import (
	"encoding/json"
	"time"

	"github.com/fablemint/storyforge/internal/platform/apperr"
)

// # Enumerations

// OwnerKind identifies which entity type a job belongs to.
type OwnerKind string

const (
	OwnerProject   OwnerKind = "project"
	OwnerReference OwnerKind = "reference"
	OwnerPage      OwnerKind = "page"
	OwnerCandidate OwnerKind = "candidate"
)

// Kind identifies the purpose of a job. The orchestrator worker dispatches
// completion handling by Kind.
type Kind string

const (
	// KindReferencePrompts extracts character/prop/scene reference prompts
	// from the project's full content (owner: project).
	KindReferencePrompts Kind = "reference_prompts"

	// KindStyleReverse derives a style prompt from an uploaded style
	// reference image (owner: project).
	KindStyleReverse Kind = "style_reverse"

	// KindPagePrompt assembles the full illustration prompt for one page
	// (owner: page).
	KindPagePrompt Kind = "page_prompt"

	// KindImage renders one candidate image (owner: candidate).
	KindImage Kind = "image"

	// KindJudge scores a completed candidate set (owner: page or reference).
	KindJudge Kind = "judge"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSubmitted Status = "submitted"
	StatusPolling   Status = "polling"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are accepted from s,
// with the single exception of failed → queued (bounded retry).
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// # Entity

// Job is one asynchronous unit of work tracked to a terminal outcome.
type Job struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	OwnerKind OwnerKind `json:"owner_kind"`
	OwnerID   string    `json:"owner_id"`
	Kind      Kind      `json:"kind"`

	// Provider is the external service name this job is routed to.
	Provider string `json:"provider"`

	// ExternalHandle is the provider-side task identifier, set on submission.
	ExternalHandle string `json:"external_handle,omitempty"`

	Status Status `json:"status"`

	// Attempts counts submissions. Monotonic non-decreasing, bounded by
	// MaxAttempts. A job whose attempts are exhausted stays failed forever.
	Attempts    int `json:"attempts"`
	MaxAttempts int `json:"max_attempts"`

	// Polls counts status checks since the last submission; drives the
	// exponential poll backoff.
	Polls int `json:"polls"`

	// LastError preserves the most recent provider failure reason verbatim.
	LastError string `json:"last_error,omitempty"`

	// Input carries the provider request payload (prompt, size, workflow
	// inputs). Opaque to the ledger.
	Input json.RawMessage `json:"input,omitempty"`

	// Output carries the provider result payload once succeeded.
	Output json.RawMessage `json:"output,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanRetry reports whether a failed job may be requeued.
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed && j.Attempts < j.MaxAttempts
}

// # State Machine

// validNext enumerates the legal transitions of the job state machine.
//
//	queued → submitted → polling ⇄ polling → {succeeded | failed}
//	queued → failed                    (rejected before submission)
//	submitted → {succeeded | failed}   (synchronous providers)
//	failed → queued                    (retry while attempts < max)
//	failed → cancelled                 (only while retryable)
//	any non-terminal → cancelled
var validNext = map[Status][]Status{
	StatusQueued:    {StatusSubmitted, StatusFailed, StatusCancelled},
	StatusSubmitted: {StatusPolling, StatusSucceeded, StatusFailed, StatusCancelled},
	StatusPolling:   {StatusPolling, StatusSucceeded, StatusFailed, StatusCancelled},
	StatusFailed:    {StatusQueued},
	StatusSucceeded: {},
	StatusCancelled: {},
}

// ValidateTransition checks whether j may move to the target status.
//
// Re-applying the job's current status is always legal and treated as a
// no-op by the [Ledger] — polling a provider twice and observing the same
// state must never error.
func ValidateTransition(j *Job, to Status) error {
	if j.Status == to {
		return nil
	}

	// failed → queued is the retry edge; it is additionally bounded by the
	// attempt ceiling.
	if j.Status == StatusFailed && to == StatusQueued && !j.CanRetry() {
		return apperr.InvalidTransition("job", string(j.Status), string(to)).
			WithCausef("attempts exhausted (%d/%d)", j.Attempts, j.MaxAttempts)
	}

	// A retryable failure is not settled yet: cancelling it closes the
	// retry window, so a deleted owner cannot have its job requeued.
	if j.Status == StatusFailed && to == StatusCancelled && j.CanRetry() {
		return nil
	}

	for _, next := range validNext[j.Status] {
		if next == to {
			return nil
		}
	}

	return apperr.InvalidTransition("job", string(j.Status), string(to))
}
