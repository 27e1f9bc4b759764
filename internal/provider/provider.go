// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package provider adapts heterogeneous external generation and judging
services behind one uniform capability set: submit and poll.

Architecture:

  - Adapter: one implementation per external platform (jimeng, volcano,
    midjourney, dify). New platforms are added here only — orchestration
    logic never branches on a provider name.
  - Result: the normalized outcome of a poll (pending / done / failed).
  - Classification: every transport or provider error is classified as
    transient (retried automatically) or permanent (terminal job failure).

Adapters are plain JSON-over-HTTP clients; none of the upstream platforms
ship a Go SDK.
*/
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// # Contracts

// State is the normalized provider-side task state.
type State string

const (
	StatePending State = "pending"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Task selects what an adapter is asked to do. Image platforms only accept
// TaskImage; the dify workflow adapter handles the prompt and judging tasks.
type Task string

const (
	TaskImage            Task = "image"
	TaskReferencePrompts Task = "reference_prompts"
	TaskPagePrompt       Task = "page_prompt"
	TaskStyleReverse     Task = "style_reverse"
	TaskJudge            Task = "judge"
)

// Request is the abstract job payload handed to an adapter.
type Request struct {
	Task       Task           `json:"task"`
	Prompt     string         `json:"prompt,omitempty"`
	Size       string         `json:"size,omitempty"`       // aspect ratio, e.g. "16:9"
	Resolution string         `json:"resolution,omitempty"` // e.g. "2K"
	Inputs     map[string]any `json:"inputs,omitempty"`     // workflow inputs (dify tasks)
}

// Result is the normalized outcome of a submit or poll.
type Result struct {
	State State

	// AssetRef is the generated asset location (image URL) once done.
	AssetRef string

	// Output carries the raw provider payload for structured tasks
	// (reference prompt sets, judge verdicts).
	Output json.RawMessage

	// Reason is the provider failure description, preserved verbatim.
	Reason string
}

// Submission is the outcome of a submit call. Synchronous providers return
// a terminal Result immediately; asynchronous ones return only the handle
// and are polled until terminal.
type Submission struct {
	Handle string
	Result *Result
}

// Adapter is the uniform interface over every external service.
type Adapter interface {
	// Name returns the stable provider identifier used in job rows.
	Name() string

	// Submit translates the abstract request into a provider call.
	Submit(ctx context.Context, req Request) (Submission, error)

	// Poll translates a provider status check into a normalized [Result].
	// It is idempotent: polling an unchanged task returns the same Result.
	Poll(ctx context.Context, handle string) (Result, error)
}

// # Error Classification

// Error is a classified failure from an external provider.
type Error struct {
	Provider   string
	StatusCode int
	Reason     string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s (status %d)", e.Provider, e.Reason, e.StatusCode)
}

// Transient reports whether the failure is worth an automatic retry.
// Rate limits, timeouts, and server-side errors are transient; everything
// else (content policy, malformed input, auth) is permanent.
func (e *Error) Transient() bool {
	switch e.StatusCode {
	case 408, 429:
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient classifies any error from an adapter call.
//
// Unknown transport failures (connection reset, DNS) classify as transient:
// retrying a network blip is cheap, while wrongly failing a job permanently
// forces manual intervention.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient()
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Cancellation is not retryable — the caller is gone.
	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}
