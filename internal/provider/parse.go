// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// # Workflow Output Parsing
//
// Workflow outputs are JSON objects whose payload fields sometimes arrive
// as JSON strings (the workflow serializes its own structured node output).
// The helpers below accept both shapes.

// NamedPrompt is one named generation prompt produced by a workflow.
type NamedPrompt struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// ReferencePromptSet is the full reference breakdown for a story.
type ReferencePromptSet struct {
	Characters []NamedPrompt `json:"characters"`
	Props      []NamedPrompt `json:"props"`
	Scenes     []NamedPrompt `json:"scenes"`
}

// JudgeVerdict is the structured outcome of a candidate judging run.
type JudgeVerdict struct {
	SelectedIndex int       `json:"selected_index"`
	Scores        []float64 `json:"scores"`
	Reasons       []string  `json:"reasons,omitempty"`
}

// unwrapField extracts a raw JSON value from a workflow outputs object,
// tolerating string-encoded JSON payloads.
func unwrapField(outputs json.RawMessage, field string) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(outputs, &envelope); err != nil {
		return nil, fmt.Errorf("parse outputs: %w", err)
	}

	raw, ok := envelope[field]
	if !ok {
		return nil, fmt.Errorf("parse outputs: missing field %q", field)
	}

	// string-encoded payload: decode once to get the inner JSON
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("parse outputs: field %q: %w", field, err)
		}
		return json.RawMessage(inner), nil
	}

	return raw, nil
}

// ParseReferencePrompts decodes the stage-one workflow outputs.
func ParseReferencePrompts(outputs json.RawMessage) (ReferencePromptSet, error) {
	raw, err := unwrapField(outputs, "result")
	if err != nil {
		return ReferencePromptSet{}, err
	}

	var set ReferencePromptSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return ReferencePromptSet{}, fmt.Errorf("parse reference prompts: %w", err)
	}

	if len(set.Characters)+len(set.Props)+len(set.Scenes) == 0 {
		return ReferencePromptSet{}, fmt.Errorf("parse reference prompts: empty result")
	}

	return set, nil
}

// ParsePagePrompt decodes a stage-two workflow output into the page prompt.
func ParsePagePrompt(outputs json.RawMessage) (string, error) {
	raw, err := unwrapField(outputs, "prompt")
	if err != nil {
		return "", err
	}

	prompt := strings.TrimSpace(asString(raw))
	if prompt == "" {
		return "", fmt.Errorf("parse page prompt: empty prompt")
	}
	return prompt, nil
}

// ParseStylePrompt decodes a style-reversal workflow output.
func ParseStylePrompt(outputs json.RawMessage) (string, error) {
	raw, err := unwrapField(outputs, "style_prompt")
	if err != nil {
		return "", err
	}

	prompt := strings.TrimSpace(asString(raw))
	if prompt == "" {
		return "", fmt.Errorf("parse style prompt: empty prompt")
	}
	return prompt, nil
}

// ParseJudgeVerdict decodes a judging workflow output. The selected index
// must address one of n candidates.
func ParseJudgeVerdict(outputs json.RawMessage, n int) (JudgeVerdict, error) {
	raw, err := unwrapField(outputs, "verdict")
	if err != nil {
		return JudgeVerdict{}, err
	}

	var verdict JudgeVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return JudgeVerdict{}, fmt.Errorf("parse judge verdict: %w", err)
	}

	if verdict.SelectedIndex < 0 || verdict.SelectedIndex >= n {
		return JudgeVerdict{}, fmt.Errorf("parse judge verdict: selected index %d out of range [0,%d)", verdict.SelectedIndex, n)
	}

	return verdict, nil
}

// asString renders a raw JSON value as text, unquoting JSON strings.
func asString(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	return string(raw)
}
