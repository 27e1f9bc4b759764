// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package job

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablemint/storyforge/internal/platform/apperr"
)

func newTestLedger() (*Ledger, *MemoryStore) {
	store := NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedger(store, log), store
}

func createJob(t *testing.T, ledger *Ledger) *Job {
	t.Helper()

	j, err := ledger.Create(context.Background(), NewJobParams{
		ProjectID:   "proj-1",
		OwnerKind:   OwnerPage,
		OwnerID:     "page-1",
		Kind:        KindImage,
		Provider:    "jimeng",
		MaxAttempts: 3,
		Input:       json.RawMessage(`{"prompt":"a fox"}`),
	})
	require.NoError(t, err)
	return j
}

// advance walks a job through the given statuses, failing the test on any
// rejected edge.
func advance(t *testing.T, ledger *Ledger, id string, statuses ...Status) *Job {
	t.Helper()

	var j *Job
	for _, s := range statuses {
		var err error
		j, _, err = ledger.Transition(context.Background(), id, s, TransitionOpts{})
		require.NoError(t, err)
	}
	return j
}

// # State Machine

func TestValidateTransition_Table(t *testing.T) {
	tests := []struct {
		name     string
		from     Status
		attempts int
		to       Status
		wantErr  bool
	}{
		{name: "queued to submitted", from: StatusQueued, to: StatusSubmitted},
		{name: "queued to cancelled", from: StatusQueued, to: StatusCancelled},
		{name: "queued rejected before submission", from: StatusQueued, to: StatusFailed},
		{name: "queued skips submission", from: StatusQueued, to: StatusSucceeded, wantErr: true},
		{name: "submitted to polling", from: StatusSubmitted, to: StatusPolling},
		{name: "submitted direct success", from: StatusSubmitted, to: StatusSucceeded},
		{name: "polling stays polling", from: StatusPolling, to: StatusPolling},
		{name: "polling to failed", from: StatusPolling, to: StatusFailed},
		{name: "failed retry within budget", from: StatusFailed, attempts: 1, to: StatusQueued},
		{name: "failed retry exhausted", from: StatusFailed, attempts: 3, to: StatusQueued, wantErr: true},
		{name: "failed retryable can cancel", from: StatusFailed, attempts: 1, to: StatusCancelled},
		{name: "failed exhausted cannot cancel", from: StatusFailed, attempts: 3, to: StatusCancelled, wantErr: true},
		{name: "succeeded is terminal", from: StatusSucceeded, to: StatusQueued, wantErr: true},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusSubmitted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{Status: tt.from, Attempts: tt.attempts, MaxAttempts: 3}

			err := ValidateTransition(j, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, "INVALID_TRANSITION", apperr.As(err).Code)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateTransition_ReapplyIsAlwaysLegal(t *testing.T) {
	for _, s := range []Status{StatusQueued, StatusSubmitted, StatusPolling, StatusSucceeded, StatusFailed, StatusCancelled} {
		j := &Job{Status: s, MaxAttempts: 3}
		assert.NoError(t, ValidateTransition(j, s), "re-applying %s", s)
	}
}

// # Ledger

func TestLedger_Create_OpensQueuedEntry(t *testing.T) {
	ledger, _ := newTestLedger()

	j := createJob(t, ledger)

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, 0, j.Attempts)
	assert.Equal(t, 3, j.MaxAttempts)
}

func TestLedger_Transition_AppliesOptions(t *testing.T) {
	ledger, _ := newTestLedger()
	j := createJob(t, ledger)

	j, applied, err := ledger.Transition(context.Background(), j.ID, StatusSubmitted, TransitionOpts{
		ExternalHandle:   "task-42",
		IncrementAttempt: true,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, "task-42", j.ExternalHandle)
	assert.Equal(t, 1, j.Attempts)

	j, applied, err = ledger.Transition(context.Background(), j.ID, StatusSucceeded, TransitionOpts{
		Output: json.RawMessage(`{"url":"https://cdn/img.png"}`),
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.JSONEq(t, `{"url":"https://cdn/img.png"}`, string(j.Output))
}

func TestLedger_Transition_ReapplyIsNoOp(t *testing.T) {
	ledger, _ := newTestLedger()
	j := createJob(t, ledger)
	advance(t, ledger, j.ID, StatusSubmitted, StatusSucceeded)

	updated, applied, err := ledger.Transition(context.Background(), j.ID, StatusSucceeded, TransitionOpts{})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, StatusSucceeded, updated.Status)
}

func TestLedger_Transition_PollingIncrementsCounter(t *testing.T) {
	ledger, _ := newTestLedger()
	j := createJob(t, ledger)
	advance(t, ledger, j.ID, StatusSubmitted, StatusPolling)

	// polling -> polling with IncrementPoll is the backoff bookkeeping
	// edge, not a no-op.
	j, applied, err := ledger.Transition(context.Background(), j.ID, StatusPolling, TransitionOpts{IncrementPoll: true})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, j.Polls)
}

func TestLedger_Transition_RejectsIllegalEdge(t *testing.T) {
	ledger, _ := newTestLedger()
	j := createJob(t, ledger)

	_, _, err := ledger.Transition(context.Background(), j.ID, StatusPolling, TransitionOpts{})
	require.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", apperr.As(err).Code)
}

func TestLedger_RetryEdge_BoundedByAttemptCeiling(t *testing.T) {
	ledger, _ := newTestLedger()
	j := createJob(t, ledger)

	// Burn all three attempts.
	for i := 0; i < 3; i++ {
		_, _, err := ledger.Transition(context.Background(), j.ID, StatusSubmitted, TransitionOpts{IncrementAttempt: true})
		require.NoError(t, err)
		_, _, err = ledger.Transition(context.Background(), j.ID, StatusFailed, TransitionOpts{Reason: "provider timeout"})
		require.NoError(t, err)
		if i < 2 {
			_, _, err = ledger.Transition(context.Background(), j.ID, StatusQueued, TransitionOpts{})
			require.NoError(t, err)
		}
	}

	_, _, err := ledger.Transition(context.Background(), j.ID, StatusQueued, TransitionOpts{})
	require.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", apperr.As(err).Code)

	// An explicit retry lifts the ceiling and reopens the edge.
	require.NoError(t, ledger.RaiseAttemptCeiling(context.Background(), j.ID, 4))

	j, applied, err := ledger.Transition(context.Background(), j.ID, StatusQueued, TransitionOpts{ResetPolls: true})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 4, j.MaxAttempts)
}

func TestLedger_RaiseAttemptCeiling_NeverLowers(t *testing.T) {
	ledger, _ := newTestLedger()
	j := createJob(t, ledger)

	require.NoError(t, ledger.RaiseAttemptCeiling(context.Background(), j.ID, 1))

	got, err := ledger.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxAttempts)
}

func TestLedger_CancelByOwner_SkipsTerminalJobs(t *testing.T) {
	ledger, store := newTestLedger()

	running := createJob(t, ledger)
	advance(t, ledger, running.ID, StatusSubmitted, StatusPolling)

	done := createJob(t, ledger)
	advance(t, ledger, done.ID, StatusSubmitted, StatusSucceeded)

	cancelled, err := ledger.CancelByOwner(context.Background(), OwnerPage, "page-1")
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, running.ID, cancelled[0].ID)

	kept, err := store.Get(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, kept.Status)
}

func TestLedger_CancelByOwner_ClosesRetryableFailures(t *testing.T) {
	ledger, store := newTestLedger()

	retryable := createJob(t, ledger)
	advance(t, ledger, retryable.ID, StatusSubmitted, StatusFailed)

	cancelled, err := ledger.CancelByOwner(context.Background(), OwnerPage, "page-1")
	require.NoError(t, err)
	require.Len(t, cancelled, 1)

	// the retry window is closed; a requeue against the deleted owner
	// must be rejected
	closed, err := store.Get(context.Background(), retryable.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, closed.Status)

	_, _, err = ledger.Transition(context.Background(), retryable.ID, StatusQueued, TransitionOpts{})
	require.Error(t, err)
	assert.Equal(t, "INVALID_TRANSITION", apperr.As(err).Code)
}

func TestLedger_FindActive_ReturnsNewestNonTerminal(t *testing.T) {
	ledger, store := newTestLedger()

	old := createJob(t, ledger)
	advance(t, ledger, old.ID, StatusSubmitted, StatusFailed)

	// Force distinct creation times so ordering is deterministic.
	j, err := store.Get(context.Background(), old.ID)
	require.NoError(t, err)
	j.CreatedAt = j.CreatedAt.Add(-time.Minute)
	require.NoError(t, store.Update(context.Background(), j, j.Status))

	active := createJob(t, ledger)

	found, err := ledger.FindActive(context.Background(), OwnerPage, "page-1", KindImage)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, active.ID, found.ID)

	advance(t, ledger, active.ID, StatusCancelled)

	found, err = ledger.FindActive(context.Background(), OwnerPage, "page-1", KindImage)
	require.NoError(t, err)
	assert.Nil(t, found)
}
