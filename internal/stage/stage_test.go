// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package stage_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/stage"
)

/*
TestAdvance_FullLifecycle walks a project through every stage with a
progressively filled snapshot.
*/
func TestAdvance_FullLifecycle(t *testing.T) {
	snap := stage.Snapshot{
		HasContent:        true,
		PlatformSet:       true,
		HasStyle:          true,
		ReferenceTotal:    3,
		ReferenceResolved: 3,
		PlanningComplete:  true,
		PageTotal:         5,
		PagesWithPrompt:   5,
		PagesResolved:     5,
	}

	current := stage.ContentUploaded
	for _, want := range []stage.Stage{
		stage.ReferencesGenerating,
		stage.PagesPlanned,
		stage.PromptsGenerated,
		stage.ImagesGenerating,
		stage.Exported,
	} {
		next, err := stage.Advance(current, snap)
		require.NoError(t, err, "advancing out of %s", current)
		assert.Equal(t, want, next)
		current = next
	}

	// terminal stage never advances
	_, err := stage.Advance(stage.Exported, snap)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "INVALID_TRANSITION", ae.Code)
}

/*
TestExitSatisfied_UnmetPredicates verifies each stage blocks on its own
predicate and the error names it.
*/
func TestExitSatisfied_UnmetPredicates(t *testing.T) {
	tests := []struct {
		name  string
		stage stage.Stage
		snap  stage.Snapshot
	}{
		{"missing_style", stage.ContentUploaded, stage.Snapshot{HasContent: true, PlatformSet: true}},
		{"missing_platform", stage.ContentUploaded, stage.Snapshot{HasContent: true, HasStyle: true}},
		{"no_references", stage.ReferencesGenerating, stage.Snapshot{}},
		{"unresolved_reference", stage.ReferencesGenerating, stage.Snapshot{ReferenceTotal: 3, ReferenceResolved: 2}},
		{"planning_open", stage.PagesPlanned, stage.Snapshot{PageTotal: 4}},
		{"no_pages", stage.PagesPlanned, stage.Snapshot{PlanningComplete: true}},
		{"missing_prompt", stage.PromptsGenerated, stage.Snapshot{PageTotal: 4, PagesWithPrompt: 3}},
		{"unresolved_page", stage.ImagesGenerating, stage.Snapshot{PageTotal: 4, PagesResolved: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := stage.ExitSatisfied(tt.stage, tt.snap)
			ae := apperr.As(err)
			require.NotNil(t, ae)
			assert.Equal(t, "STAGE_PRECONDITION_UNMET", ae.Code)
		})
	}
}

/*
TestExitSatisfied_Idempotent evaluates the same predicate twice with the
same snapshot; both evaluations agree and neither mutates anything.
*/
func TestExitSatisfied_Idempotent(t *testing.T) {
	snap := stage.Snapshot{ReferenceTotal: 2, ReferenceResolved: 2}

	require.NoError(t, stage.ExitSatisfied(stage.ReferencesGenerating, snap))
	require.NoError(t, stage.ExitSatisfied(stage.ReferencesGenerating, snap))
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, stage.ValidateTransition(stage.ContentUploaded, stage.ReferencesGenerating))

	// skipping a stage
	err := stage.ValidateTransition(stage.ContentUploaded, stage.PagesPlanned)
	require.NotNil(t, apperr.As(err))

	// regression
	err = stage.ValidateTransition(stage.PagesPlanned, stage.ReferencesGenerating)
	require.NotNil(t, apperr.As(err))

	err = stage.ValidateTransition("bogus", stage.Exported)
	require.NotNil(t, apperr.As(err))
}

func TestLogReadiness_EmitsOnlyWhenSatisfied(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	stage.LogReadiness(log, "proj-1", stage.ContentUploaded, stage.Snapshot{})
	assert.Empty(t, buf.String())

	stage.LogReadiness(log, "proj-1", stage.ContentUploaded, stage.Snapshot{PlatformSet: true, HasStyle: true})
	assert.Contains(t, buf.String(), "stage_advance_ready")
}

func TestStage_NextAndTerminal(t *testing.T) {
	next, ok := stage.ImagesGenerating.Next()
	require.True(t, ok)
	assert.Equal(t, stage.Exported, next)

	_, ok = stage.Exported.Next()
	assert.False(t, ok)
	assert.True(t, stage.Exported.Terminal())
	assert.False(t, stage.ContentUploaded.Terminal())
}
