// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package stage implements the project lifecycle as an explicit finite-state
machine.

A project holds a single current stage. Each stage has an exit predicate,
a pure function over a [Snapshot] of entity and job counts. Predicates are
re-evaluated on events (job completion, user signals), never on a timer,
and evaluating one twice with unchanged inputs has no side effect.
*/
package stage

import (
	"log/slog"

	"github.com/fablemint/storyforge/internal/platform/apperr"
)

// Stage is one ordered phase of the project lifecycle.
type Stage string

const (
	ContentUploaded      Stage = "content_uploaded"
	ReferencesGenerating Stage = "references_generating"
	PagesPlanned         Stage = "pages_planned"
	PromptsGenerated     Stage = "prompts_generated"
	ImagesGenerating     Stage = "images_generating"
	Exported             Stage = "exported"
)

// order fixes the strict progression. Regression is never allowed;
// regeneration happens within a stage.
var order = []Stage{
	ContentUploaded,
	ReferencesGenerating,
	PagesPlanned,
	PromptsGenerated,
	ImagesGenerating,
	Exported,
}

var rank = func() map[Stage]int {
	m := make(map[Stage]int, len(order))
	for i, s := range order {
		m[s] = i
	}
	return m
}()

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := rank[s]
	return ok
}

// Terminal reports whether no further generation occurs at s.
func (s Stage) Terminal() bool { return s == Exported }

// Next returns the stage following s, or false at the terminal stage.
func (s Stage) Next() (Stage, bool) {
	i, ok := rank[s]
	if !ok || i == len(order)-1 {
		return "", false
	}
	return order[i+1], true
}

// Snapshot is the aggregate entity/job state an exit predicate reads.
// Stores recompute it from persisted rows; the machine itself holds no
// mutable state.
type Snapshot struct {
	HasContent  bool
	PlatformSet bool
	HasStyle    bool

	ReferenceTotal    int
	ReferenceResolved int // references with a selected candidate

	PlanningComplete bool

	PageTotal int

	// PagesWithPrompt counts pages with a non-empty assembled prompt;
	// skipped pages count as satisfied.
	PagesWithPrompt int

	// PagesResolved counts pages with a selected candidate or an explicit
	// skip flag.
	PagesResolved int
}

// predicate names surface verbatim in STAGE_PRECONDITION_UNMET errors.
const (
	predStyleConfigured = "style_and_platform_configured"
	predRefsResolved    = "all_references_resolved"
	predPlanningDone    = "planning_complete"
	predPromptsReady    = "all_pages_have_prompts"
	predPagesResolved   = "all_pages_resolved"
)

// ExitSatisfied evaluates the exit predicate of s against the snapshot.
// A nil error means the project may advance out of s.
func ExitSatisfied(s Stage, snap Snapshot) error {
	switch s {
	case ContentUploaded:
		if !snap.PlatformSet || !snap.HasStyle {
			return apperr.StagePreconditionUnmet(string(s), predStyleConfigured)
		}
	case ReferencesGenerating:
		if snap.ReferenceTotal == 0 || snap.ReferenceResolved < snap.ReferenceTotal {
			return apperr.StagePreconditionUnmet(string(s), predRefsResolved)
		}
	case PagesPlanned:
		if snap.PageTotal == 0 || !snap.PlanningComplete {
			return apperr.StagePreconditionUnmet(string(s), predPlanningDone)
		}
	case PromptsGenerated:
		if snap.PagesWithPrompt < snap.PageTotal {
			return apperr.StagePreconditionUnmet(string(s), predPromptsReady)
		}
	case ImagesGenerating:
		if snap.PagesResolved < snap.PageTotal {
			return apperr.StagePreconditionUnmet(string(s), predPagesResolved)
		}
	case Exported:
		return apperr.InvalidTransition("project", string(s), "")
	default:
		return apperr.ValidationError("unknown stage " + string(s))
	}
	return nil
}

// LogReadiness records whether the current stage may advance. Terminal job
// handlers call it with a fresh snapshot so operators can see the moment a
// stage becomes advanceable without polling the stage endpoint.
func LogReadiness(log *slog.Logger, projectID string, current Stage, snap Snapshot) {
	if err := ExitSatisfied(current, snap); err == nil {
		log.Info("stage_advance_ready",
			slog.String("project_id", projectID),
			slog.String("stage", string(current)),
		)
	}
}

// Advance returns the next stage if the current exit predicate holds.
func Advance(current Stage, snap Snapshot) (Stage, error) {
	next, ok := current.Next()
	if !ok {
		return "", apperr.InvalidTransition("project", string(current), "")
	}
	if err := ExitSatisfied(current, snap); err != nil {
		return "", err
	}
	return next, nil
}

// ValidateTransition checks an explicit from/to pair. Only single forward
// steps are legal.
func ValidateTransition(from, to Stage) error {
	if !from.Valid() || !to.Valid() {
		return apperr.ValidationError("unknown stage")
	}
	next, ok := from.Next()
	if !ok || next != to {
		return apperr.InvalidTransition("project", string(from), string(to))
	}
	return nil
}
