// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package selection resolves a set of generated candidates down to exactly one
selected image per owning entity.

Auto-selection runs once the full candidate set of an owner is terminal:
a judging job scores every succeeded candidate and the highest score wins,
ties broken by earliest submission. A manual selection always overrides and
pins; no later auto-select result moves it. Regeneration clears the
selection and re-arms auto-selection.
*/
package selection

import (
	"context"
	"time"

	"github.com/fablemint/storyforge/internal/job"
)

// Mode records how a candidate came to be selected.
type Mode string

const (
	ModeNone Mode = "none"
	ModeAuto Mode = "auto"
	ModeUser Mode = "user"
)

// Candidate is the selection-relevant view of one generated image.
type Candidate struct {
	ID        string
	AssetRef  string
	Terminal  bool
	Succeeded bool
	Selection Mode
	Score     float64
	CreatedAt time.Time
}

// Store is the candidate persistence surface the engine needs. The image
// package provides the production implementation.
type Store interface {
	// ListCandidates returns every candidate of an owner, oldest first.
	ListCandidates(ctx context.Context, kind job.OwnerKind, ownerID string) ([]Candidate, error)

	// ApplySelection atomically clears any previous selection of the
	// owner, stores the given scores, and marks one candidate selected.
	// It is a no-op for scores of candidates that no longer exist.
	ApplySelection(ctx context.Context, kind job.OwnerKind, ownerID, candidateID string, mode Mode, scores map[string]float64) error
}

// winner picks the highest-scored candidate; ties break on earliest
// CreatedAt, which is deterministic because candidates list oldest first.
func winner(candidates []Candidate, scores map[string]float64) (Candidate, bool) {
	var best Candidate
	bestScore := -1.0
	found := false

	for _, c := range candidates {
		if !c.Succeeded {
			continue
		}
		s, ok := scores[c.ID]
		if !ok {
			continue
		}
		if s > bestScore {
			best, bestScore, found = c, s, true
		}
	}

	return best, found
}
