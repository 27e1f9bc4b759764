// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package project provides the PostgreSQL implementation for project data access.

The repository keeps two invariant-bearing queries close together:
  - UpdateStage: a compare-and-set stage move, so two racing advance calls
    cannot skip a stage between them.
  - StageSnapshot: the aggregate counts the stage exit predicates evaluate,
    computed in one round-trip with scalar subqueries.
*/
package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/platform/database/schema"
	"github.com/fablemint/storyforge/internal/selection"
	"github.com/fablemint/storyforge/internal/stage"
)

// # PostgreSQL Repository

// repository implements the [Repository] interface using pgx.
type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed project store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// Create persists a new project row.
func (repository *repository) Create(context context.Context, project *Project) error {
	t := schema.StoryProject
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.Table,
		t.ID, t.Name, t.Description, t.Platform, t.StyleAsset, t.StylePrompt,
		t.TargetAge, t.ImageSize, t.ImageResolution, t.Content, t.Stage,
		t.PlanningComplete, t.CreatedAt, t.UpdatedAt,
	)

	_, err := repository.pool.Exec(context, query,
		project.ID, project.Name, project.Description, project.Platform,
		project.StyleAsset, project.StylePrompt, project.TargetAge,
		project.ImageSize, project.ImageResolution, project.Content,
		project.Stage, project.PlanningComplete,
		project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create project: %w", err)
	}

	return nil
}

// FindByID returns one hydrated project.
func (repository *repository) FindByID(context context.Context, id string) (*Project, error) {
	t := schema.StoryProject
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s WHERE %s = $1`,
		t.ID, t.Name, t.Description, t.Platform, t.StyleAsset, t.StylePrompt,
		t.TargetAge, t.ImageSize, t.ImageResolution, t.Content, t.Stage,
		t.PlanningComplete, t.CreatedAt, t.UpdatedAt,
		t.Table, t.ID,
	)

	project := &Project{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&project.ID, &project.Name, &project.Description, &project.Platform,
		&project.StyleAsset, &project.StylePrompt, &project.TargetAge,
		&project.ImageSize, &project.ImageResolution, &project.Content,
		&project.Stage, &project.PlanningComplete,
		&project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Project")
		}
		return nil, fmt.Errorf("postgres: failed to find project: %w", err)
	}

	return project, nil
}

// List returns a page of projects, newest first, with the total count.
func (repository *repository) List(context context.Context, limit, offset int) ([]*Project, int, error) {
	t := schema.StoryProject
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s,
			COUNT(*) OVER() AS total_count
		FROM %s
		ORDER BY %s DESC
		LIMIT $1 OFFSET $2`,
		t.ID, t.Name, t.Description, t.Platform, t.StyleAsset, t.StylePrompt,
		t.TargetAge, t.ImageSize, t.ImageResolution, t.Content, t.Stage,
		t.PlanningComplete, t.CreatedAt, t.UpdatedAt,
		t.Table, t.CreatedAt,
	)

	rows, err := repository.pool.Query(context, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	var totalCount int

	for rows.Next() {
		project := &Project{}
		err := rows.Scan(
			&project.ID, &project.Name, &project.Description, &project.Platform,
			&project.StyleAsset, &project.StylePrompt, &project.TargetAge,
			&project.ImageSize, &project.ImageResolution, &project.Content,
			&project.Stage, &project.PlanningComplete,
			&project.CreatedAt, &project.UpdatedAt,
			&totalCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	return projects, totalCount, rows.Err()
}

// Update persists all mutable project fields.
func (repository *repository) Update(context context.Context, project *Project) error {
	t := schema.StoryProject
	query := fmt.Sprintf(`
		UPDATE %s SET
			%s = $1, %s = $2, %s = $3, %s = $4, %s = $5, %s = $6,
			%s = $7, %s = $8, %s = $9, %s = $10, %s = $11
		WHERE %s = $12`,
		t.Table,
		t.Name, t.Description, t.Platform, t.StyleAsset, t.StylePrompt,
		t.TargetAge, t.ImageSize, t.ImageResolution, t.Content,
		t.PlanningComplete, t.UpdatedAt,
		t.ID,
	)

	tag, err := repository.pool.Exec(context, query,
		project.Name, project.Description, project.Platform,
		project.StyleAsset, project.StylePrompt, project.TargetAge,
		project.ImageSize, project.ImageResolution, project.Content,
		project.PlanningComplete, project.UpdatedAt,
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Project")
	}

	return nil
}

// UpdateStage moves the stage column under a compare-and-set guard.
func (repository *repository) UpdateStage(context context.Context, id string, from, to stage.Stage) error {
	t := schema.StoryProject
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = NOW()
		WHERE %s = $2 AND %s = $3`,
		t.Table, t.Stage, t.UpdatedAt, t.ID, t.Stage,
	)

	tag, err := repository.pool.Exec(context, query, to, id, from)
	if err != nil {
		return fmt.Errorf("postgres: failed to update project stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("Project stage changed concurrently").
			WithCausef("stage guard failed: project=%s from=%s to=%s", id, from, to)
	}

	return nil
}

// Delete removes the project row; dependents cascade via foreign keys.
func (repository *repository) Delete(context context.Context, id string) error {
	t := schema.StoryProject
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.Table, t.ID)

	tag, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Project")
	}

	return nil
}

/*
StageSnapshot aggregates the counts behind every stage exit predicate in a
single round-trip.

Description: An entity is "resolved" when one of its candidates carries a
selection (auto or user); a page also counts as resolved or prompted when it
is explicitly skipped.
*/
func (repository *repository) StageSnapshot(context context.Context, id string) (stage.Snapshot, error) {
	p := schema.StoryProject
	r := schema.StoryReferenceImage
	g := schema.StoryPage
	c := schema.StoryCandidate

	query := fmt.Sprintf(`
		SELECT
			p.%s <> '' AS has_content,
			p.%s <> '' AS platform_set,
			p.%s <> '' AS has_style,
			p.%s AS planning_complete,
			(SELECT COUNT(*) FROM %s r WHERE r.%s = p.%s) AS reference_total,
			(SELECT COUNT(*) FROM %s r WHERE r.%s = p.%s AND EXISTS (
				SELECT 1 FROM %s c
				WHERE c.%s = 'reference' AND c.%s = r.%s AND c.%s <> $2
			)) AS reference_resolved,
			(SELECT COUNT(*) FROM %s g WHERE g.%s = p.%s) AS page_total,
			(SELECT COUNT(*) FROM %s g WHERE g.%s = p.%s
				AND (g.%s <> '' OR g.%s)) AS pages_with_prompt,
			(SELECT COUNT(*) FROM %s g WHERE g.%s = p.%s AND (g.%s OR EXISTS (
				SELECT 1 FROM %s c
				WHERE c.%s = 'page' AND c.%s = g.%s AND c.%s <> $2
			))) AS pages_resolved
		FROM %s p
		WHERE p.%s = $1`,
		p.Content, p.Platform, p.StylePrompt, p.PlanningComplete,
		r.Table, r.ProjectID, p.ID,
		r.Table, r.ProjectID, p.ID,
		c.Table, c.OwnerKind, c.OwnerID, r.ID, c.SelectionMode,
		g.Table, g.ProjectID, p.ID,
		g.Table, g.ProjectID, p.ID, g.Prompt, g.Skipped,
		g.Table, g.ProjectID, p.ID, g.Skipped,
		c.Table, c.OwnerKind, c.OwnerID, g.ID, c.SelectionMode,
		p.Table, p.ID,
	)

	var snapshot stage.Snapshot
	err := repository.pool.QueryRow(context, query, id, selection.ModeNone).Scan(
		&snapshot.HasContent,
		&snapshot.PlatformSet,
		&snapshot.HasStyle,
		&snapshot.PlanningComplete,
		&snapshot.ReferenceTotal,
		&snapshot.ReferenceResolved,
		&snapshot.PageTotal,
		&snapshot.PagesWithPrompt,
		&snapshot.PagesResolved,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stage.Snapshot{}, apperr.NotFound("Project")
		}
		return stage.Snapshot{}, fmt.Errorf("postgres: failed to build stage snapshot: %w", err)
	}

	return snapshot, nil
}
