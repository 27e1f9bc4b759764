// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// aspectFlags maps logical image sizes to the aspect-ratio suffix the
// proxy expects on the prompt text.
var aspectFlags = map[string]string{
	"1:1":  "--ar 1:1",
	"4:3":  "--ar 4:3",
	"3:4":  "--ar 3:4",
	"16:9": "--ar 16:9",
	"9:16": "--ar 9:16",
}

// Midjourney is the adapter for a Midjourney proxy API. Jobs are
// asynchronous: Submit returns a task handle and the orchestrator polls
// until the task settles.
type Midjourney struct {
	baseURL string
	apiKey  string
	submit  *http.Client
	poll    *http.Client
}

// NewMidjourney constructs the Midjourney proxy adapter.
func NewMidjourney(baseURL, apiKey string) *Midjourney {
	return &Midjourney{
		baseURL: baseURL,
		apiKey:  apiKey,
		submit:  newHTTPClient(submitTimeout),
		poll:    newHTTPClient(pollTimeout),
	}
}

// Name implements [Adapter].
func (p *Midjourney) Name() string { return "mj" }

// Submit queues an imagine task on the proxy.
func (p *Midjourney) Submit(ctx context.Context, req Request) (Submission, error) {
	if req.Task != TaskImage {
		return Submission{}, fmt.Errorf("mj: unsupported task %q", req.Task)
	}

	prompt := req.Prompt
	if flag, ok := aspectFlags[req.Size]; ok && !strings.Contains(prompt, "--ar") {
		prompt = prompt + " " + flag
	}

	body := map[string]any{"prompt": prompt}

	var out struct {
		Code   int    `json:"code"`
		Result string `json:"result"`
		Desc   string `json:"description"`
	}

	url := p.baseURL + "/mj/submit/imagine"
	if err := doJSON(ctx, p.submit, p.Name(), http.MethodPost, url, p.apiKey, body, &out); err != nil {
		return Submission{}, err
	}

	// the proxy signals queue rejection in-band with a non-1 code
	if out.Code != 1 && out.Code != 22 {
		return Submission{}, &Error{
			Provider:   p.Name(),
			StatusCode: http.StatusBadGateway,
			Reason:     fmt.Sprintf("imagine rejected: code=%d %s", out.Code, out.Desc),
		}
	}
	if out.Result == "" {
		return Submission{}, &Error{
			Provider:   p.Name(),
			StatusCode: http.StatusBadGateway,
			Reason:     "imagine accepted without a task id",
		}
	}

	return Submission{Handle: out.Result}, nil
}

// Poll fetches the task state from the proxy.
func (p *Midjourney) Poll(ctx context.Context, handle string) (Result, error) {
	var out struct {
		Status     string `json:"status"`
		Progress   string `json:"progress"`
		ImageURL   string `json:"imageUrl"`
		FailReason string `json:"failReason"`
	}

	url := p.baseURL + "/mj/task/" + handle + "/fetch"
	if err := doJSON(ctx, p.poll, p.Name(), http.MethodGet, url, p.apiKey, nil, &out); err != nil {
		return Result{}, err
	}

	switch out.Status {
	case "SUCCESS":
		if out.ImageURL == "" {
			return Result{State: StateFailed, Reason: "task succeeded without an image url"}, nil
		}
		return Result{State: StateDone, AssetRef: out.ImageURL}, nil
	case "FAILURE":
		reason := out.FailReason
		if reason == "" {
			reason = "task failed"
		}
		return Result{State: StateFailed, Reason: reason}, nil
	default:
		// NOT_START, SUBMITTED, IN_PROGRESS
		return Result{State: StatePending}, nil
	}
}
