// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fablemint/storyforge/pkg/uuid"
)

// volcanoModel is the seedream text-to-image model served by the platform.
const volcanoModel = "doubao-seedream-4-0-250828"

// Volcano is the adapter for the Volcano Engine image API.
//
// The seedream model responds synchronously: [Submit] returns a terminal
// [Result] and the orchestrator never needs to poll. Poll exists to satisfy
// [Adapter] and reports done for compatibility with on-demand status checks.
type Volcano struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewVolcano constructs the Volcano Engine adapter.
func NewVolcano(baseURL, apiKey string) *Volcano {
	return &Volcano{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(submitTimeout),
	}
}

// Name implements [Adapter].
func (p *Volcano) Name() string { return "volcano" }

// Submit renders an image synchronously.
func (p *Volcano) Submit(ctx context.Context, req Request) (Submission, error) {
	if req.Task != TaskImage {
		return Submission{}, fmt.Errorf("volcano: unsupported task %q", req.Task)
	}

	body := map[string]any{
		"model":           volcanoModel,
		"prompt":          req.Prompt,
		"size":            req.Resolution,
		"response_format": "url",
		"stream":          false,
		"watermark":       false,
	}

	var out struct {
		RequestID string `json:"request_id"`
		Data      []struct {
			URL string `json:"url"`
		} `json:"data"`
	}

	url := p.baseURL + "/api/v3/images/generations"
	if err := doJSON(ctx, p.client, p.Name(), http.MethodPost, url, p.apiKey, body, &out); err != nil {
		return Submission{}, err
	}

	handle := out.RequestID
	if handle == "" {
		handle = uuid.New()
	}

	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return Submission{
			Handle: handle,
			Result: &Result{State: StateFailed, Reason: "volcano returned no image data"},
		}, nil
	}

	return Submission{
		Handle: handle,
		Result: &Result{State: StateDone, AssetRef: out.Data[0].URL},
	}, nil
}

// Poll is a compatibility stub; seedream tasks complete at submission.
func (p *Volcano) Poll(ctx context.Context, handle string) (Result, error) {
	return Result{State: StateDone}, nil
}
