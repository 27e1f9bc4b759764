// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablemint/storyforge/internal/provider"
)

/*
TestError_Transient verifies retry classification by HTTP status.
*/
func TestError_Transient(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate_limited", 429, true},
		{"request_timeout", 408, true},
		{"server_error", 500, true},
		{"bad_gateway", 502, true},
		{"bad_request", 400, false},
		{"unauthorized", 401, false},
		{"content_policy", 422, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &provider.Error{Provider: "jimeng", StatusCode: tt.status, Reason: "x"}
			assert.Equal(t, tt.transient, err.Transient())
			assert.Equal(t, tt.transient, provider.IsTransient(err))
		})
	}
}

func TestIsTransient_TransportErrors(t *testing.T) {
	assert.True(t, provider.IsTransient(context.DeadlineExceeded))
	assert.False(t, provider.IsTransient(context.Canceled))
	assert.True(t, provider.IsTransient(&timeoutError{}))
	assert.True(t, provider.IsTransient(errors.New("connection reset by peer")))
}

type timeoutError struct{}

func (*timeoutError) Error() string   { return "i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

/*
TestParseReferencePrompts covers both plain and string-encoded workflow
output shapes.
*/
func TestParseReferencePrompts(t *testing.T) {
	plain := json.RawMessage(`{"result":{"characters":[{"name":"Mira","prompt":"a small fox"}],"props":[],"scenes":[{"name":"Forest","prompt":"misty pines"}]}}`)

	set, err := provider.ParseReferencePrompts(plain)
	require.NoError(t, err)
	require.Len(t, set.Characters, 1)
	assert.Equal(t, "Mira", set.Characters[0].Name)
	require.Len(t, set.Scenes, 1)
	assert.Equal(t, "misty pines", set.Scenes[0].Prompt)

	// workflow nodes often emit their JSON as a string
	encoded := json.RawMessage(`{"result":"{\"characters\":[{\"name\":\"Mira\",\"prompt\":\"a small fox\"}],\"props\":[],\"scenes\":[]}"}`)

	set, err = provider.ParseReferencePrompts(encoded)
	require.NoError(t, err)
	require.Len(t, set.Characters, 1)
	assert.Equal(t, "a small fox", set.Characters[0].Prompt)
}

func TestParseReferencePrompts_Errors(t *testing.T) {
	_, err := provider.ParseReferencePrompts(json.RawMessage(`{"other":{}}`))
	assert.Error(t, err)

	_, err = provider.ParseReferencePrompts(json.RawMessage(`{"result":{"characters":[],"props":[],"scenes":[]}}`))
	assert.Error(t, err)
}

func TestParsePagePrompt(t *testing.T) {
	prompt, err := provider.ParsePagePrompt(json.RawMessage(`{"prompt":"  a fox leaps over a brook  "}`))
	require.NoError(t, err)
	assert.Equal(t, "a fox leaps over a brook", prompt)

	_, err = provider.ParsePagePrompt(json.RawMessage(`{"prompt":"   "}`))
	assert.Error(t, err)
}

func TestParseStylePrompt(t *testing.T) {
	prompt, err := provider.ParseStylePrompt(json.RawMessage(`{"style_prompt":"soft watercolor, pastel palette"}`))
	require.NoError(t, err)
	assert.Equal(t, "soft watercolor, pastel palette", prompt)
}

/*
TestParseJudgeVerdict validates index bounds against the candidate count.
*/
func TestParseJudgeVerdict(t *testing.T) {
	outputs := json.RawMessage(`{"verdict":{"selected_index":1,"scores":[6.5,9.0,7.2]}}`)

	verdict, err := provider.ParseJudgeVerdict(outputs, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, verdict.SelectedIndex)
	assert.Equal(t, []float64{6.5, 9.0, 7.2}, verdict.Scores)

	_, err = provider.ParseJudgeVerdict(outputs, 1)
	assert.Error(t, err)

	outputs = json.RawMessage(`{"verdict":{"selected_index":-1,"scores":[]}}`)
	_, err = provider.ParseJudgeVerdict(outputs, 3)
	assert.Error(t, err)
}

/*
TestRegistry ensures adapters resolve by their stable names.
*/
func TestRegistry(t *testing.T) {
	mj := provider.NewMidjourney("http://localhost:9", "key")
	volcano := provider.NewVolcano("http://localhost:9", "key")

	reg := provider.NewRegistry(mj, volcano)

	got, err := reg.Get("mj")
	require.NoError(t, err)
	assert.Equal(t, "mj", got.Name())

	_, err = reg.Get("unknown")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"mj", "volcano"}, reg.Names())
}

func TestVolcano_PollAlwaysDone(t *testing.T) {
	p := provider.NewVolcano("http://localhost:9", "key")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := p.Poll(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, provider.StateDone, res.State)
}
