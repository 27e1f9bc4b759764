// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package provider

import (
	"context"
	"fmt"
	"net/http"
)

// sizePixels maps aspect ratios onto the concrete pixel dimensions the
// jimeng API expects.
var sizePixels = map[string]string{
	"16:9": "1920x1080",
	"9:16": "1080x1920",
	"1:1":  "1024x1024",
	"4:3":  "1024x768",
}

// Jimeng is the adapter for the jimeng text-to-image platform.
// It is fully asynchronous: submission yields a task ID that is polled
// until the render completes.
type Jimeng struct {
	baseURL string
	apiKey  string
	submit  *http.Client
	poll    *http.Client
}

// NewJimeng constructs the jimeng adapter.
func NewJimeng(baseURL, apiKey string) *Jimeng {
	return &Jimeng{
		baseURL: baseURL,
		apiKey:  apiKey,
		submit:  newHTTPClient(submitTimeout),
		poll:    newHTTPClient(pollTimeout),
	}
}

// Name implements [Adapter].
func (p *Jimeng) Name() string { return "jimeng" }

// Submit starts a render task.
func (p *Jimeng) Submit(ctx context.Context, req Request) (Submission, error) {
	if req.Task != TaskImage {
		return Submission{}, fmt.Errorf("jimeng: unsupported task %q", req.Task)
	}

	size, ok := sizePixels[req.Size]
	if !ok {
		size = sizePixels["16:9"]
	}

	body := map[string]any{
		"prompt":  req.Prompt,
		"size":    size,
		"quality": req.Resolution,
	}

	var out struct {
		TaskID string `json:"task_id"`
		ID     string `json:"id"`
	}
	url := p.baseURL + "/v1/images/generate"
	if err := doJSON(ctx, p.submit, p.Name(), http.MethodPost, url, p.apiKey, body, &out); err != nil {
		return Submission{}, err
	}

	handle := out.TaskID
	if handle == "" {
		handle = out.ID
	}

	return Submission{Handle: handle}, nil
}

// Poll checks a render task.
func (p *Jimeng) Poll(ctx context.Context, handle string) (Result, error) {
	var out struct {
		Status       string `json:"status"`
		ImageURL     string `json:"image_url"`
		ErrorMessage string `json:"error_message"`
	}

	url := p.baseURL + "/v1/task/" + handle
	if err := doJSON(ctx, p.poll, p.Name(), http.MethodGet, url, p.apiKey, nil, &out); err != nil {
		return Result{}, err
	}

	switch out.Status {
	case "completed":
		return Result{State: StateDone, AssetRef: out.ImageURL}, nil
	case "failed":
		return Result{State: StateFailed, Reason: out.ErrorMessage}, nil
	default:
		return Result{State: StatePending}, nil
	}
}
