// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/provider"
)

// CompletionHandler reacts to a job reaching a terminal status. Handlers
// apply domain effects: persisting extracted prompts, recording candidate assets,
// triggering auto-judging when a candidate set settles.
//
// Handlers must be idempotent; the worker may deliver a terminal job more
// than once after a crash-recovery replay.
type CompletionHandler func(ctx context.Context, j *job.Job) error

// WorkerConfig tunes the background processing loops.
type WorkerConfig struct {
	// Concurrency caps in-flight provider calls per provider.
	Concurrency int64

	// RPS caps the sustained submission rate per provider.
	RPS float64

	// PollBase and PollMax bound the exponential poll backoff.
	PollBase time.Duration
	PollMax  time.Duration
}

// providerGate enforces one provider's rate and concurrency limits. Excess
// submissions queue behind the gate rather than being rejected.
type providerGate struct {
	limiter *rate.Limiter
	slots   *semaphore.Weighted
}

// Worker drains the submission queue and the delayed schedule, executes
// provider calls, and moves jobs along their state machine.
type Worker struct {
	ledger   *job.Ledger
	queue    Dispatcher
	registry *provider.Registry
	cfg      WorkerConfig
	log      *slog.Logger

	mu       sync.Mutex
	gates    map[string]*providerGate
	handlers map[job.Kind]CompletionHandler

	wg sync.WaitGroup
}

// NewWorker constructs a [Worker]. Handlers are registered before Run.
func NewWorker(ledger *job.Ledger, queue Dispatcher, registry *provider.Registry, cfg WorkerConfig, log *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 2
	}
	if cfg.PollBase <= 0 {
		cfg.PollBase = 2 * time.Second
	}
	if cfg.PollMax <= 0 {
		cfg.PollMax = time.Minute
	}

	return &Worker{
		ledger:   ledger,
		queue:    queue,
		registry: registry,
		cfg:      cfg,
		log:      log,
		gates:    make(map[string]*providerGate),
		handlers: make(map[job.Kind]CompletionHandler),
	}
}

// Register installs the terminal-status handler for a job kind.
func (w *Worker) Register(kind job.Kind, h CompletionHandler) {
	w.handlers[kind] = h
}

func (w *Worker) gate(providerName string) *providerGate {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.gates[providerName]
	if !ok {
		g = &providerGate{
			limiter: rate.NewLimiter(rate.Limit(w.cfg.RPS), 1),
			slots:   semaphore.NewWeighted(w.cfg.Concurrency),
		}
		w.gates[providerName] = g
	}
	return g
}

// Run starts the submit and schedule loops. It returns immediately; loops
// stop when ctx is cancelled and Wait blocks until they drain.
func (w *Worker) Run(ctx context.Context, submitLoops int) {
	if submitLoops <= 0 {
		submitLoops = int(w.cfg.Concurrency)
	}

	w.recoverPending(ctx)

	for i := 0; i < submitLoops; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.submitLoop(ctx)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.scheduleLoop(ctx)
	}()
}

// Wait blocks until all loops have stopped.
func (w *Worker) Wait() { w.wg.Wait() }

// recoverPending re-dispatches jobs stranded by a previous process. Redis
// only carries scheduling hints, so a lost entry is rebuilt from the ledger.
func (w *Worker) recoverPending(ctx context.Context) {
	pending, err := w.ledger.ListPending(ctx)
	if err != nil {
		w.log.Error("worker_recover_failed", slog.String("error", err.Error()))
		return
	}

	for _, j := range pending {
		switch j.Status {
		case job.StatusQueued:
			if err := w.queue.Push(ctx, j.ID); err != nil {
				w.log.Warn("worker_recover_push_failed", slog.String("job_id", j.ID))
			}
		case job.StatusSubmitted, job.StatusPolling:
			if j.ExternalHandle == "" {
				// lost between submit call and handle persistence; the
				// provider-side task is unreachable, fail and let the retry
				// policy decide.
				w.failJob(ctx, j, "lost during submission", true)
				continue
			}
			if j.Status == job.StatusSubmitted {
				if _, _, err := w.ledger.Transition(ctx, j.ID, job.StatusPolling, job.TransitionOpts{}); err != nil {
					w.log.Warn("worker_recover_transition_failed", slog.String("job_id", j.ID))
					continue
				}
			}
			if err := w.queue.Schedule(ctx, j.ID, time.Now()); err != nil {
				w.log.Warn("worker_recover_schedule_failed", slog.String("job_id", j.ID))
			}
		}
	}

	if len(pending) > 0 {
		w.log.Info("worker_recovered_pending", slog.Int("count", len(pending)))
	}
}

func (w *Worker) submitLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		id, err := w.queue.PopBlocking(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("worker_pop_failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		if id == "" {
			continue
		}

		w.Submit(ctx, id)
	}
}

// scheduleLoop drains the delayed schedule and routes due jobs by status:
// queued jobs go back to the submit queue (delayed retry), polling jobs get
// a status check.
func (w *Worker) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ids, err := w.queue.Due(ctx, now)
			if err != nil {
				w.log.Error("worker_due_failed", slog.String("error", err.Error()))
				continue
			}

			for _, id := range ids {
				j, err := w.ledger.Get(ctx, id)
				if err != nil {
					w.log.Warn("worker_due_lookup_failed", slog.String("job_id", id))
					continue
				}

				switch j.Status {
				case job.StatusQueued:
					if err := w.queue.Push(ctx, id); err != nil {
						w.log.Warn("worker_requeue_failed", slog.String("job_id", id))
					}
				case job.StatusPolling:
					w.Poll(ctx, id)
				}
			}
		}
	}
}

// Submit performs the provider submission for a queued job.
func (w *Worker) Submit(ctx context.Context, jobID string) {
	if w.discardIfCancelled(ctx, jobID) {
		return
	}

	j, err := w.ledger.Get(ctx, jobID)
	if err != nil {
		w.log.Warn("worker_submit_lookup_failed", slog.String("job_id", jobID))
		return
	}
	if j.Status != job.StatusQueued {
		return
	}

	adapter, err := w.registry.Get(j.Provider)
	if err != nil {
		w.failJob(ctx, j, err.Error(), false)
		return
	}

	var req provider.Request
	if err := json.Unmarshal(j.Input, &req); err != nil {
		w.failJob(ctx, j, "malformed job input: "+err.Error(), false)
		return
	}

	g := w.gate(j.Provider)
	if err := g.limiter.Wait(ctx); err != nil {
		return
	}
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return
	}
	defer g.slots.Release(1)

	j, applied, err := w.ledger.Transition(ctx, jobID, job.StatusSubmitted, job.TransitionOpts{IncrementAttempt: true})
	if err != nil || !applied {
		return
	}

	sub, err := adapter.Submit(ctx, req)
	if err != nil {
		w.failJob(ctx, j, err.Error(), provider.IsTransient(err))
		return
	}

	if sub.Result != nil {
		// synchronous provider: terminal at submission, never polled
		w.applyResult(ctx, j, sub.Handle, *sub.Result)
		return
	}

	j, _, err = w.ledger.Transition(ctx, jobID, job.StatusPolling, job.TransitionOpts{ExternalHandle: sub.Handle})
	if err != nil {
		w.log.Error("worker_submit_transition_failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}

	if err := w.queue.Schedule(ctx, jobID, time.Now().Add(w.cfg.PollBase)); err != nil {
		w.log.Error("worker_schedule_failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

// Poll performs one status check for a polling job. It is idempotent: an
// unchanged provider state reschedules the next check and nothing else.
func (w *Worker) Poll(ctx context.Context, jobID string) {
	if w.discardIfCancelled(ctx, jobID) {
		return
	}

	j, err := w.ledger.Get(ctx, jobID)
	if err != nil {
		w.log.Warn("worker_poll_lookup_failed", slog.String("job_id", jobID))
		return
	}
	if j.Status != job.StatusPolling {
		return
	}

	adapter, err := w.registry.Get(j.Provider)
	if err != nil {
		w.failJob(ctx, j, err.Error(), false)
		return
	}

	res, err := adapter.Poll(ctx, j.ExternalHandle)
	if err != nil {
		if provider.IsTransient(err) {
			w.reschedulePoll(ctx, j)
			return
		}
		w.failJob(ctx, j, err.Error(), false)
		return
	}

	switch res.State {
	case provider.StatePending:
		w.reschedulePoll(ctx, j)
	default:
		w.applyResult(ctx, j, j.ExternalHandle, res)
	}
}

// PollNow forces an immediate status check regardless of the backoff
// schedule and returns the refreshed job. Serves on-demand check-status
// endpoints.
func (w *Worker) PollNow(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := w.ledger.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if j.Status == job.StatusPolling {
		w.Poll(ctx, jobID)
		return w.ledger.Get(ctx, jobID)
	}

	return j, nil
}

func (w *Worker) reschedulePoll(ctx context.Context, j *job.Job) {
	updated, _, err := w.ledger.Transition(ctx, j.ID, job.StatusPolling, job.TransitionOpts{IncrementPoll: true})
	if err != nil {
		w.log.Error("worker_poll_transition_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		return
	}

	delay := pollDelay(updated.Polls, w.cfg.PollBase, w.cfg.PollMax)
	if err := w.queue.Schedule(ctx, j.ID, time.Now().Add(delay)); err != nil {
		w.log.Error("worker_schedule_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
	}
}

// applyResult moves a job to its terminal status from a provider result and
// notifies the kind handler.
func (w *Worker) applyResult(ctx context.Context, j *job.Job, handle string, res provider.Result) {
	switch res.State {
	case provider.StateDone:
		updated, applied, err := w.ledger.Transition(ctx, j.ID, job.StatusSucceeded, job.TransitionOpts{
			ExternalHandle: handle,
			Output:         EncodeResult(res),
		})
		if err != nil {
			w.log.Error("worker_succeed_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
			return
		}
		if applied {
			w.notify(ctx, updated)
		}

	case provider.StateFailed:
		// provider-reported failure (content policy, bad prompt) is
		// permanent; only transport-level failures retry automatically
		w.failJob(ctx, j, res.Reason, false)
	}
}

// failJob records a failure and applies the retry policy: transient
// failures requeue with a delay while attempts remain, everything else is
// terminal and notifies the handler.
func (w *Worker) failJob(ctx context.Context, j *job.Job, reason string, transient bool) {
	failed, applied, err := w.ledger.Transition(ctx, j.ID, job.StatusFailed, job.TransitionOpts{Reason: reason})
	if err != nil {
		w.log.Error("worker_fail_transition_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		return
	}
	if !applied {
		return
	}

	if transient && failed.CanRetry() {
		if _, _, err := w.ledger.Transition(ctx, j.ID, job.StatusQueued, job.TransitionOpts{ResetPolls: true}); err != nil {
			w.log.Error("worker_retry_transition_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
			return
		}

		delay := retryDelay(failed.Attempts, w.cfg.PollBase, w.cfg.PollMax)
		if err := w.queue.Schedule(ctx, j.ID, time.Now().Add(delay)); err != nil {
			w.log.Error("worker_schedule_failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
		}

		w.log.Info("job_auto_retry",
			slog.String("job_id", j.ID),
			slog.Int("attempts", failed.Attempts),
			slog.String("reason", reason),
		)
		return
	}

	w.log.Warn("job_failed_terminal",
		slog.String("job_id", j.ID),
		slog.String("kind", string(failed.Kind)),
		slog.String("reason", reason),
	)
	w.notify(ctx, failed)
}

func (w *Worker) discardIfCancelled(ctx context.Context, jobID string) bool {
	if !w.queue.IsCancelled(ctx, jobID) {
		return false
	}

	if _, _, err := w.ledger.Transition(ctx, jobID, job.StatusCancelled, job.TransitionOpts{}); err != nil {
		// already terminal; the flag outlived the job
		w.log.Debug("worker_cancel_flag_stale", slog.String("job_id", jobID))
	}
	return true
}

func (w *Worker) notify(ctx context.Context, j *job.Job) {
	h, ok := w.handlers[j.Kind]
	if !ok {
		return
	}

	if err := h(ctx, j); err != nil {
		w.log.Error("job_handler_failed",
			slog.String("job_id", j.ID),
			slog.String("kind", string(j.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
