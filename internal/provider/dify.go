// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DifyWorkflows maps abstract tasks onto published workflow IDs. The IDs
// are deployment configuration, not code: each environment publishes its
// own workflow versions.
type DifyWorkflows struct {
	ReferencePrompts string
	PagePrompt       string
	StyleReverse     string
	Judge            string
}

// Dify runs published workflows in blocking mode: the run response carries
// the workflow outputs, so Submit always returns a terminal [Result].
type Dify struct {
	baseURL   string
	apiKey    string
	workflows DifyWorkflows
	client    *http.Client
}

// NewDify constructs the workflow adapter.
func NewDify(baseURL, apiKey string, workflows DifyWorkflows) *Dify {
	return &Dify{
		baseURL:   baseURL,
		apiKey:    apiKey,
		workflows: workflows,
		client:    newHTTPClient(workflowTimeout),
	}
}

// Name implements [Adapter].
func (p *Dify) Name() string { return "dify" }

func (p *Dify) workflowFor(task Task) (string, error) {
	var id string
	switch task {
	case TaskReferencePrompts:
		id = p.workflows.ReferencePrompts
	case TaskPagePrompt:
		id = p.workflows.PagePrompt
	case TaskStyleReverse:
		id = p.workflows.StyleReverse
	case TaskJudge:
		id = p.workflows.Judge
	default:
		return "", fmt.Errorf("dify: unsupported task %q", task)
	}
	if id == "" {
		return "", fmt.Errorf("dify: no workflow configured for task %q", task)
	}
	return id, nil
}

// Submit runs the workflow for the requested task and returns its outputs.
func (p *Dify) Submit(ctx context.Context, req Request) (Submission, error) {
	workflowID, err := p.workflowFor(req.Task)
	if err != nil {
		return Submission{}, err
	}

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}

	body := map[string]any{
		"inputs":        inputs,
		"response_mode": "blocking",
		"user":          "storyforge",
	}

	var out struct {
		WorkflowRunID string `json:"workflow_run_id"`
		Data          struct {
			ID      string          `json:"id"`
			Status  string          `json:"status"`
			Outputs json.RawMessage `json:"outputs"`
			Error   string          `json:"error"`
		} `json:"data"`
	}

	hreq, err := newWorkflowRequest(ctx, p.baseURL+"/v1/workflows/run", p.apiKey, workflowID, body)
	if err != nil {
		return Submission{}, err
	}
	if err := doRequest(p.client, p.Name(), hreq, &out); err != nil {
		return Submission{}, err
	}

	handle := out.WorkflowRunID
	if handle == "" {
		handle = out.Data.ID
	}

	if out.Data.Status != "succeeded" {
		reason := out.Data.Error
		if reason == "" {
			reason = "workflow run " + out.Data.Status
		}
		return Submission{
			Handle: handle,
			Result: &Result{State: StateFailed, Reason: reason},
		}, nil
	}

	return Submission{
		Handle: handle,
		Result: &Result{State: StateDone, Output: out.Data.Outputs},
	}, nil
}

// Poll is a compatibility stub; blocking runs settle at submission.
func (p *Dify) Poll(ctx context.Context, handle string) (Result, error) {
	return Result{State: StateDone}, nil
}
