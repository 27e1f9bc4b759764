// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// submitTimeout bounds generation submissions; judging workflows run
// blocking on the provider side and need more headroom.
const (
	submitTimeout   = 60 * time.Second
	pollTimeout     = 10 * time.Second
	workflowTimeout = 120 * time.Second
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newJSONRequest(ctx context.Context, providerName, method, url, apiKey string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", providerName, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", providerName, err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// newWorkflowRequest builds a workflow run request. The target workflow is
// selected per request via header rather than path.
func newWorkflowRequest(ctx context.Context, url, apiKey, workflowID string, body any) (*http.Request, error) {
	req, err := newJSONRequest(ctx, "dify", http.MethodPost, url, apiKey, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Workflow-Id", workflowID)
	return req, nil
}

// doRequest executes the request and decodes the JSON response into out.
//
// Non-2xx responses become a classified [*Error] carrying the response body
// as the failure reason, truncated because provider error pages can be huge.
func doRequest(client *http.Client, providerName string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", providerName, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", providerName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Reason:     truncate(string(payload), 500),
		}
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", providerName, err)
		}
	}

	return nil
}

// doJSON performs a JSON request/response round trip with bearer auth.
func doJSON(ctx context.Context, client *http.Client, providerName, method, url, apiKey string, body any, out any) error {
	req, err := newJSONRequest(ctx, providerName, method, url, apiKey, body)
	if err != nil {
		return err
	}
	return doRequest(client, providerName, req, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
