// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fablemint/storyforge/internal/platform/apperr"
)

// PostgresStore implements [Store] on top of pgxpool.
//
// # Concurrency
//
// Update carries a `WHERE status = $from` guard; a zero-row update surfaces
// as [ErrStale], which the ledger handles by re-reading. This serializes
// transitions per job without advisory locks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the production job store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const jobColumns = `
	id, project_id, owner_kind, owner_id, kind, provider, external_handle,
	status, attempts, max_attempts, polls, last_error, input, output,
	created_at, updated_at`

// Create persists a new ledger entry.
func (store *PostgresStore) Create(ctx context.Context, j *Job) error {
	const query = `
		INSERT INTO story.generation_job (
			id, project_id, owner_kind, owner_id, kind, provider, external_handle,
			status, attempts, max_attempts, polls, last_error, input, output,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := store.pool.Exec(ctx, query,
		j.ID, j.ProjectID, j.OwnerKind, j.OwnerID, j.Kind, j.Provider, j.ExternalHandle,
		j.Status, j.Attempts, j.MaxAttempts, j.Polls, j.LastError, j.Input, j.Output,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_job_create_failed: %w", err)
	}

	return nil
}

// Get retrieves one ledger entry by ID.
func (store *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM story.generation_job WHERE id = $1`

	j, err := scanJob(store.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Job")
		}
		return nil, fmt.Errorf("postgres_job_get_failed: %w", err)
	}

	return j, nil
}

// Update persists j guarded by the previously-read status.
func (store *PostgresStore) Update(ctx context.Context, j *Job, fromStatus Status) error {
	const query = `
		UPDATE story.generation_job
		SET status = $1, external_handle = $2, attempts = $3, polls = $4,
		    last_error = $5, input = $6, output = $7, updated_at = $8
		WHERE id = $9 AND status = $10`

	tag, err := store.pool.Exec(ctx, query,
		j.Status, j.ExternalHandle, j.Attempts, j.Polls,
		j.LastError, j.Input, j.Output, j.UpdatedAt,
		j.ID, fromStatus,
	)
	if err != nil {
		return fmt.Errorf("postgres_job_update_failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrStale
	}

	return nil
}

// ListByOwner returns all jobs for one owning entity, oldest first.
func (store *PostgresStore) ListByOwner(ctx context.Context, kind OwnerKind, ownerID string) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM story.generation_job
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY created_at ASC`

	return store.queryJobs(ctx, query, kind, ownerID)
}

// ListByProject returns all jobs under a project, newest first.
func (store *PostgresStore) ListByProject(ctx context.Context, projectID string) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM story.generation_job
		WHERE project_id = $1
		ORDER BY created_at DESC`

	return store.queryJobs(ctx, query, projectID)
}

// ListPending returns every non-terminal job, oldest first. Used by the
// worker to recover scheduled polls after a restart.
func (store *PostgresStore) ListPending(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM story.generation_job
		WHERE status IN ('queued', 'submitted', 'polling')
		ORDER BY created_at ASC`

	return store.queryJobs(ctx, query)
}

// FindActive returns the newest non-terminal (owner, kind) job, or nil.
func (store *PostgresStore) FindActive(ctx context.Context, kind OwnerKind, ownerID string, jobKind Kind) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM story.generation_job
		WHERE owner_kind = $1 AND owner_id = $2 AND kind = $3
		  AND status IN ('queued', 'submitted', 'polling')
		ORDER BY created_at DESC
		LIMIT 1`

	j, err := scanJob(store.pool.QueryRow(ctx, query, kind, ownerID, jobKind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres_job_find_active_failed: %w", err)
	}

	return j, nil
}

// # Row Scanning

func (store *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := store.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres_job_list_failed: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_job_scan_failed: %w", err)
		}
		jobs = append(jobs, j)
	}

	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	j := &Job{}
	err := row.Scan(
		&j.ID, &j.ProjectID, &j.OwnerKind, &j.OwnerID, &j.Kind, &j.Provider, &j.ExternalHandle,
		&j.Status, &j.Attempts, &j.MaxAttempts, &j.Polls, &j.LastError, &j.Input, &j.Output,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}
