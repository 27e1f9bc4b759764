// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/platform/database/schema"
	"github.com/fablemint/storyforge/internal/selection"
)

// # PostgreSQL Repository

// repository implements the [Repository] interface using pgx.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed candidate store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// jobIDParam maps an unattached candidate to SQL NULL; job_id is a UUID
// column and cannot hold an empty string.
func jobIDParam(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// Create persists a new candidate row.
func (repository *repository) Create(context context.Context, candidate *Candidate) error {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.Table,
		t.ID, t.ProjectID, t.OwnerKind, t.OwnerID, t.JobID, t.Provider,
		t.Status, t.AssetRef, t.LocalPath, t.Score, t.SelectionMode,
		t.CreatedAt, t.UpdatedAt,
	)

	_, err := repository.pool.Exec(context, query,
		candidate.ID, candidate.ProjectID, candidate.OwnerKind,
		candidate.OwnerID, jobIDParam(candidate.JobID), candidate.Provider,
		candidate.Status, candidate.AssetRef, candidate.LocalPath,
		candidate.Score, candidate.Selection,
		candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create candidate: %w", err)
	}

	return nil
}

// FindByID returns one hydrated candidate.
func (repository *repository) FindByID(context context.Context, id string) (*Candidate, error) {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s WHERE %s = $1`,
		t.ID, t.ProjectID, t.OwnerKind, t.OwnerID, t.JobID, t.Provider,
		t.Status, t.AssetRef, t.LocalPath, t.Score, t.SelectionMode,
		t.CreatedAt, t.UpdatedAt,
		t.Table, t.ID,
	)

	candidate := &Candidate{}
	var jobID *string
	err := repository.pool.QueryRow(context, query, id).Scan(
		&candidate.ID, &candidate.ProjectID, &candidate.OwnerKind,
		&candidate.OwnerID, &jobID, &candidate.Provider,
		&candidate.Status, &candidate.AssetRef, &candidate.LocalPath,
		&candidate.Score, &candidate.Selection,
		&candidate.CreatedAt, &candidate.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Candidate")
		}
		return nil, fmt.Errorf("postgres: failed to find candidate: %w", err)
	}
	if jobID != nil {
		candidate.JobID = *jobID
	}

	return candidate, nil
}

// ListByOwner returns the owner's live candidate set, oldest first.
func (repository *repository) ListByOwner(context context.Context, kind job.OwnerKind, ownerID string) ([]*Candidate, error) {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = $1 AND %s = $2 AND %s <> $3
		ORDER BY %s ASC`,
		t.ID, t.ProjectID, t.OwnerKind, t.OwnerID, t.JobID, t.Provider,
		t.Status, t.AssetRef, t.LocalPath, t.Score, t.SelectionMode,
		t.CreatedAt, t.UpdatedAt,
		t.Table,
		t.OwnerKind, t.OwnerID, t.Status,
		t.CreatedAt,
	)

	rows, err := repository.pool.Query(context, query, kind, ownerID, StatusSuperseded)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*Candidate
	for rows.Next() {
		candidate := &Candidate{}
		var jobID *string
		err := rows.Scan(
			&candidate.ID, &candidate.ProjectID, &candidate.OwnerKind,
			&candidate.OwnerID, &jobID, &candidate.Provider,
			&candidate.Status, &candidate.AssetRef, &candidate.LocalPath,
			&candidate.Score, &candidate.Selection,
			&candidate.CreatedAt, &candidate.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan candidate: %w", err)
		}
		if jobID != nil {
			candidate.JobID = *jobID
		}
		candidates = append(candidates, candidate)
	}

	return candidates, rows.Err()
}

// SetJob records the rendering job id on a candidate.
func (repository *repository) SetJob(context context.Context, id, jobID string) error {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2 WHERE %s = $3`,
		t.Table, t.JobID, t.UpdatedAt, t.ID,
	)

	tag, err := repository.pool.Exec(context, query, jobID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to set candidate job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Candidate")
	}

	return nil
}

// MarkResult finalises a candidate.
func (repository *repository) MarkResult(context context.Context, id string, status Status, assetRef, localPath string) error {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = $4 WHERE %s = $5`,
		t.Table, t.Status, t.AssetRef, t.LocalPath, t.UpdatedAt, t.ID,
	)

	tag, err := repository.pool.Exec(context, query, status, assetRef, localPath, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark candidate result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Candidate")
	}

	return nil
}

// Delete removes one candidate row.
func (repository *repository) Delete(context context.Context, id string) error {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.Table, t.ID)

	tag, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Candidate")
	}

	return nil
}

// DeleteByOwner removes all of an owner's candidate rows.
func (repository *repository) DeleteByOwner(context context.Context, kind job.OwnerKind, ownerID string) error {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`,
		t.Table, t.OwnerKind, t.OwnerID,
	)

	_, err := repository.pool.Exec(context, query, kind, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete owner candidates: %w", err)
	}

	return nil
}

// Supersede retires the owner's live candidates and clears the selection.
func (repository *repository) Supersede(context context.Context, kind job.OwnerKind, ownerID string) error {
	t := schema.StoryCandidate
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = $3
		WHERE %s = $4 AND %s = $5 AND %s <> $1`,
		t.Table, t.Status, t.SelectionMode, t.UpdatedAt,
		t.OwnerKind, t.OwnerID, t.Status,
	)

	_, err := repository.pool.Exec(context, query,
		StatusSuperseded, selection.ModeNone, time.Now(), kind, ownerID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to supersede candidates: %w", err)
	}

	return nil
}

// # Selection Store

// ListCandidates projects the owner's live set into the selection view.
func (repository *repository) ListCandidates(context context.Context, kind job.OwnerKind, ownerID string) ([]selection.Candidate, error) {
	candidates, err := repository.ListByOwner(context, kind, ownerID)
	if err != nil {
		return nil, err
	}

	view := make([]selection.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		view = append(view, selection.Candidate{
			ID:        candidate.ID,
			AssetRef:  candidate.AssetRef,
			Terminal:  candidate.Status.Terminal(),
			Succeeded: candidate.Status == StatusSucceeded,
			Selection: candidate.Selection,
			Score:     candidate.Score,
			CreatedAt: candidate.CreatedAt,
		})
	}

	return view, nil
}

/*
ApplySelection atomically installs a selection for an owner.

Description: Runs in one transaction: the owner's previous selection is
cleared, judge scores are written where their candidate still exists, and
exactly one candidate is marked selected. The selected candidate must still
be live; selecting a superseded or vanished candidate affects zero rows and
returns NotFound.
*/
func (repository *repository) ApplySelection(context context.Context, kind job.OwnerKind, ownerID, candidateID string, mode selection.Mode, scores map[string]float64) error {
	t := schema.StoryCandidate

	tx, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin selection: %w", err)
	}
	defer tx.Rollback(context)

	clearQuery := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2
		WHERE %s = $3 AND %s = $4 AND %s <> $1`,
		t.Table, t.SelectionMode, t.UpdatedAt,
		t.OwnerKind, t.OwnerID, t.SelectionMode,
	)
	if _, err := tx.Exec(context, clearQuery, selection.ModeNone, time.Now(), kind, ownerID); err != nil {
		return fmt.Errorf("postgres: failed to clear selection: %w", err)
	}

	scoreQuery := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2 WHERE %s = $3`,
		t.Table, t.Score, t.UpdatedAt, t.ID,
	)
	for candidate, score := range scores {
		if _, err := tx.Exec(context, scoreQuery, score, time.Now(), candidate); err != nil {
			return fmt.Errorf("postgres: failed to store score: %w", err)
		}
	}

	selectQuery := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2
		WHERE %s = $3 AND %s = $4 AND %s = $5 AND %s <> $6`,
		t.Table, t.SelectionMode, t.UpdatedAt,
		t.ID, t.OwnerKind, t.OwnerID, t.Status,
	)
	tag, err := tx.Exec(context, selectQuery,
		mode, time.Now(), candidateID, kind, ownerID, StatusSuperseded,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark selection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Candidate")
	}

	return tx.Commit(context)
}
