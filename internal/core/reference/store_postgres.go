// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/platform/database/schema"
	"github.com/fablemint/storyforge/internal/platform/dberr"
)

// # PostgreSQL Repository

// repository implements the [Repository] interface using pgx.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed reference store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ReplaceForProject swaps the project's slot set transactionally.
func (repository *repository) ReplaceForProject(context context.Context, projectID string, references []*Reference) error {
	t := schema.StoryReferenceImage

	tx, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin slot replacement: %w", err)
	}
	defer tx.Rollback(context)

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.Table, t.ProjectID)
	if _, err := tx.Exec(context, deleteQuery, projectID); err != nil {
		return fmt.Errorf("postgres: failed to clear reference slots: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.Table,
		t.ID, t.ProjectID, t.RefType, t.Name, t.RefIndex, t.Prompt,
		t.CreatedAt, t.UpdatedAt,
	)
	for _, reference := range references {
		_, err := tx.Exec(context, insertQuery,
			reference.ID, reference.ProjectID, reference.Type,
			reference.Name, reference.RefIndex, reference.Prompt,
			reference.CreatedAt, reference.UpdatedAt,
		)
		if err != nil {
			return dberr.Wrap(err, "insert_reference_slot")
		}
	}

	return tx.Commit(context)
}

// FindByID returns one hydrated reference slot.
func (repository *repository) FindByID(context context.Context, id string) (*Reference, error) {
	t := schema.StoryReferenceImage
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s WHERE %s = $1`,
		t.ID, t.ProjectID, t.RefType, t.Name, t.RefIndex, t.Prompt,
		t.CreatedAt, t.UpdatedAt,
		t.Table, t.ID,
	)

	reference := &Reference{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&reference.ID, &reference.ProjectID, &reference.Type,
		&reference.Name, &reference.RefIndex, &reference.Prompt,
		&reference.CreatedAt, &reference.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Reference")
		}
		return nil, fmt.Errorf("postgres: failed to find reference: %w", err)
	}

	return reference, nil
}

// ListByProject returns the project's slots, characters first.
func (repository *repository) ListByProject(context context.Context, projectID string, refType Type) ([]*Reference, error) {
	t := schema.StoryReferenceImage

	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s WHERE %s = $1`,
		t.ID, t.ProjectID, t.RefType, t.Name, t.RefIndex, t.Prompt,
		t.CreatedAt, t.UpdatedAt,
		t.Table, t.ProjectID,
	)
	args := []any{projectID}

	if refType != "" {
		query += fmt.Sprintf(` AND %s = $2`, t.RefType)
		args = append(args, refType)
	}
	query += fmt.Sprintf(` ORDER BY %s ASC, %s ASC`, t.RefType, t.RefIndex)

	rows, err := repository.pool.Query(context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list references: %w", err)
	}
	defer rows.Close()

	var references []*Reference
	for rows.Next() {
		reference := &Reference{}
		err := rows.Scan(
			&reference.ID, &reference.ProjectID, &reference.Type,
			&reference.Name, &reference.RefIndex, &reference.Prompt,
			&reference.CreatedAt, &reference.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan reference: %w", err)
		}
		references = append(references, reference)
	}

	return references, rows.Err()
}

// UpdatePrompt stores an edited prompt.
func (repository *repository) UpdatePrompt(context context.Context, id, prompt string) error {
	t := schema.StoryReferenceImage
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2 WHERE %s = $3`,
		t.Table, t.Prompt, t.UpdatedAt, t.ID,
	)

	tag, err := repository.pool.Exec(context, query, prompt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update reference prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Reference")
	}

	return nil
}

// Delete removes a reference slot.
func (repository *repository) Delete(context context.Context, id string) error {
	t := schema.StoryReferenceImage
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.Table, t.ID)

	tag, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Reference")
	}

	return nil
}
