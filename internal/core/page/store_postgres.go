// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package page

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

// NewRepository constructs a PostgreSQL backed page store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ReplaceForProject swaps the project's page set transactionally.
func (repository *repository) ReplaceForProject(context context.Context, projectID string, pages []*Page) error {
	t := schema.StoryPage
	j := schema.StoryPageReference

	tx, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin page replacement: %w", err)
	}
	defer tx.Rollback(context)

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.Table, t.ProjectID)
	if _, err := tx.Exec(context, deleteQuery, projectID); err != nil {
		return fmt.Errorf("postgres: failed to clear pages: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.Table,
		t.ID, t.ProjectID, t.PageNumber, t.PageIndex, t.Content,
		t.SceneType, t.Prompt, t.Skipped, t.CreatedAt, t.UpdatedAt,
	)
	junctionQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s) VALUES ($1, $2)`,
		j.Table, j.PageID, j.ReferenceID,
	)

	for _, page := range pages {
		_, err := tx.Exec(context, insertQuery,
			page.ID, page.ProjectID, page.PageNumber, page.PageIndex,
			page.Content, page.SceneType, page.Prompt, page.Skipped,
			page.CreatedAt, page.UpdatedAt,
		)
		if err != nil {
			return dberr.Wrap(err, "insert_page")
		}

		for _, referenceID := range page.ReferenceIDs {
			if _, err := tx.Exec(context, junctionQuery, page.ID, referenceID); err != nil {
				return dberr.Wrap(err, "assign_reference")
			}
		}
	}

	return tx.Commit(context)
}

// FindByID returns one hydrated page.
func (repository *repository) FindByID(context context.Context, id string) (*Page, error) {
	t := schema.StoryPage
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s WHERE %s = $1`,
		t.ID, t.ProjectID, t.PageNumber, t.PageIndex, t.Content,
		t.SceneType, t.Prompt, t.Skipped, t.CreatedAt, t.UpdatedAt,
		t.Table, t.ID,
	)

	page := &Page{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&page.ID, &page.ProjectID, &page.PageNumber, &page.PageIndex,
		&page.Content, &page.SceneType, &page.Prompt, &page.Skipped,
		&page.CreatedAt, &page.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Page")
		}
		return nil, fmt.Errorf("postgres: failed to find page: %w", err)
	}

	if err := repository.hydrateReferences(context, []*Page{page}); err != nil {
		return nil, err
	}

	return page, nil
}

// ListByProject returns the project's pages in reading order.
func (repository *repository) ListByProject(context context.Context, projectID string) ([]*Page, error) {
	t := schema.StoryPage
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s, %s, %s, %s
		FROM %s WHERE %s = $1 ORDER BY %s ASC`,
		t.ID, t.ProjectID, t.PageNumber, t.PageIndex, t.Content,
		t.SceneType, t.Prompt, t.Skipped, t.CreatedAt, t.UpdatedAt,
		t.Table, t.ProjectID, t.PageIndex,
	)

	rows, err := repository.pool.Query(context, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		page := &Page{}
		err := rows.Scan(
			&page.ID, &page.ProjectID, &page.PageNumber, &page.PageIndex,
			&page.Content, &page.SceneType, &page.Prompt, &page.Skipped,
			&page.CreatedAt, &page.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := repository.hydrateReferences(context, pages); err != nil {
		return nil, err
	}

	return pages, nil
}

// hydrateReferences loads the junction rows for a batch of pages.
func (repository *repository) hydrateReferences(context context.Context, pages []*Page) error {
	if len(pages) == 0 {
		return nil
	}

	j := schema.StoryPageReference

	ids := make([]string, 0, len(pages))
	byID := make(map[string]*Page, len(pages))
	for _, page := range pages {
		ids = append(ids, page.ID)
		byID[page.ID] = page
	}

	query := fmt.Sprintf(`
		SELECT %s, %s FROM %s WHERE %s = ANY($1)`,
		j.PageID, j.ReferenceID, j.Table, j.PageID,
	)

	rows, err := repository.pool.Query(context, query, ids)
	if err != nil {
		return fmt.Errorf("postgres: failed to load page references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pageID, referenceID string
		if err := rows.Scan(&pageID, &referenceID); err != nil {
			return fmt.Errorf("postgres: failed to scan page reference: %w", err)
		}
		if page, ok := byID[pageID]; ok {
			page.ReferenceIDs = append(page.ReferenceIDs, referenceID)
		}
	}

	return rows.Err()
}

// Update stores the page's mutable fields and swaps its assignments.
func (repository *repository) Update(context context.Context, page *Page) error {
	t := schema.StoryPage
	j := schema.StoryPageReference

	tx, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin page update: %w", err)
	}
	defer tx.Rollback(context)

	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2, %s = $3, %s = $4 WHERE %s = $5`,
		t.Table, t.Content, t.SceneType, t.Skipped, t.UpdatedAt, t.ID,
	)
	tag, err := tx.Exec(context, query,
		page.Content, page.SceneType, page.Skipped, time.Now(), page.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to update page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Page")
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, j.Table, j.PageID)
	if _, err := tx.Exec(context, deleteQuery, page.ID); err != nil {
		return fmt.Errorf("postgres: failed to clear page references: %w", err)
	}

	junctionQuery := fmt.Sprintf(`
		INSERT INTO %s (%s, %s) VALUES ($1, $2)`,
		j.Table, j.PageID, j.ReferenceID,
	)
	for _, referenceID := range page.ReferenceIDs {
		if _, err := tx.Exec(context, junctionQuery, page.ID, referenceID); err != nil {
			return dberr.Wrap(err, "assign_reference")
		}
	}

	return tx.Commit(context)
}

// UpdatePrompt stores the page's illustration prompt.
func (repository *repository) UpdatePrompt(context context.Context, id, prompt string) error {
	t := schema.StoryPage
	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1, %s = $2 WHERE %s = $3`,
		t.Table, t.Prompt, t.UpdatedAt, t.ID,
	)

	tag, err := repository.pool.Exec(context, query, prompt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update page prompt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Page")
	}

	return nil
}

// Delete removes a page.
func (repository *repository) Delete(context context.Context, id string) error {
	t := schema.StoryPage
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, t.Table, t.ID)

	tag, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete page: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Page")
	}

	return nil
}
