// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package image

import (
	"context"

	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/selection"
)

// # Repository Contract

/*
Repository defines the persistence surface for candidate images.

It also carries the [selection.Store] methods so the same implementation
backs both the HTTP layer and the selection engine.
*/
type Repository interface {
	// Create persists a fresh candidate.
	Create(context context.Context, candidate *Candidate) error

	// FindByID returns one candidate.
	FindByID(context context.Context, id string) (*Candidate, error)

	// ListByOwner returns an owner's current candidate set, oldest
	// first. Superseded candidates are excluded.
	ListByOwner(context context.Context, kind job.OwnerKind, ownerID string) ([]*Candidate, error)

	// SetJob records the rendering job backing a candidate.
	SetJob(context context.Context, id, jobID string) error

	// MarkResult moves a candidate to a terminal status and stores the
	// asset locations when it succeeded.
	MarkResult(context context.Context, id string, status Status, assetRef, localPath string) error

	// Delete removes one candidate row.
	Delete(context context.Context, id string) error

	// DeleteByOwner removes every candidate row of an owner, superseded
	// rounds included. Used when the owner itself is deleted.
	DeleteByOwner(context context.Context, kind job.OwnerKind, ownerID string) error

	// Supersede retires an owner's whole current candidate set and
	// clears any selection, re-arming auto-selection for the next round.
	Supersede(context context.Context, kind job.OwnerKind, ownerID string) error

	// ListCandidates implements [selection.Store].
	ListCandidates(context context.Context, kind job.OwnerKind, ownerID string) ([]selection.Candidate, error)

	// ApplySelection implements [selection.Store].
	ApplySelection(context context.Context, kind job.OwnerKind, ownerID, candidateID string, mode selection.Mode, scores map[string]float64) error
}
