// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package export moves prompts between the pipeline and spreadsheets.

Writers review and polish prompts in Excel far faster than through
per-field API calls, so the package exports the full prompt state of a
project as a workbook and re-imports an edited copy, matching pages by
label and reference slots by name.
*/
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/fablemint/storyforge/internal/asset"
	"github.com/fablemint/storyforge/internal/core/page"
	"github.com/fablemint/storyforge/internal/core/project"
	"github.com/fablemint/storyforge/internal/core/reference"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/pkg/slug"
)

// Sheet and column layout of the exchanged workbooks.
const (
	sheetPages      = "Pages"
	sheetReferences = "References"
)

var pageHeader = []string{"Page", "Content", "Scene Type", "Prompt", "Skipped"}
var referenceHeader = []string{"Type", "Name", "Index", "Prompt"}

// ImportSummary reports what an uploaded workbook changed.
type ImportSummary struct {
	PagesUpdated      int `json:"pages_updated"`
	ReferencesUpdated int `json:"references_updated"`
}

// # Service Layer

// Service builds and consumes prompt workbooks.
type Service struct {
	projectRepo   project.Repository
	pageRepo      page.Repository
	referenceRepo reference.Repository
	assets        *asset.Store
	logger        *slog.Logger
}

// NewService constructs a new export [Service].
func NewService(projectRepo project.Repository, pageRepo page.Repository, referenceRepo reference.Repository, assets *asset.Store, logger *slog.Logger) *Service {
	return &Service{
		projectRepo:   projectRepo,
		pageRepo:      pageRepo,
		referenceRepo: referenceRepo,
		assets:        assets,
		logger:        logger,
	}
}

// # Workbook Export

/*
PromptsWorkbook writes the project's page prompts to an xlsx file.

Returns:
  - string: Absolute path of the written workbook
  - string: Download filename derived from the project name
  - error: Unprocessable when the project has no pages
*/
func (service *Service) PromptsWorkbook(context context.Context, projectID string) (string, string, error) {
	proj, err := service.projectRepo.FindByID(context, projectID)
	if err != nil {
		return "", "", err
	}

	pages, err := service.pageRepo.ListByProject(context, projectID)
	if err != nil {
		return "", "", err
	}
	if len(pages) == 0 {
		return "", "", apperr.Unprocessable("Plan pages before exporting prompts")
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	if err := workbook.SetSheetName("Sheet1", sheetPages); err != nil {
		return "", "", fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := writeRow(workbook, sheetPages, 1, pageHeader); err != nil {
		return "", "", err
	}
	for i, p := range pages {
		row := []any{p.PageNumber, p.Content, string(p.SceneType), p.Prompt, p.Skipped}
		if err := writeRowValues(workbook, sheetPages, i+2, row); err != nil {
			return "", "", err
		}
	}

	filename := slug.From(proj.Name) + "-prompts.xlsx"
	absPath, err := service.save(workbook, filename)
	if err != nil {
		return "", "", err
	}

	return absPath, filename, nil
}

/*
ReferencesWorkbook writes the project's reference prompts to an xlsx file.

Returns:
  - string: Absolute path of the written workbook
  - string: Download filename derived from the project name
  - error: Unprocessable when the project has no reference slots
*/
func (service *Service) ReferencesWorkbook(context context.Context, projectID string) (string, string, error) {
	proj, err := service.projectRepo.FindByID(context, projectID)
	if err != nil {
		return "", "", err
	}

	references, err := service.referenceRepo.ListByProject(context, projectID, "")
	if err != nil {
		return "", "", err
	}
	if len(references) == 0 {
		return "", "", apperr.Unprocessable("Extract reference prompts before exporting")
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	if err := workbook.SetSheetName("Sheet1", sheetReferences); err != nil {
		return "", "", fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := writeRow(workbook, sheetReferences, 1, referenceHeader); err != nil {
		return "", "", err
	}
	for i, r := range references {
		row := []any{string(r.Type), r.Name, r.RefIndex, r.Prompt}
		if err := writeRowValues(workbook, sheetReferences, i+2, row); err != nil {
			return "", "", err
		}
	}

	filename := slug.From(proj.Name) + "-references.xlsx"
	absPath, err := service.save(workbook, filename)
	if err != nil {
		return "", "", err
	}

	return absPath, filename, nil
}

// save writes the workbook into the exports category.
func (service *Service) save(workbook *excelize.File, filename string) (string, error) {
	relPath := filepath.ToSlash(filepath.Join(asset.CategoryExports, filename))
	absPath := service.assets.AbsPath(relPath)
	if err := workbook.SaveAs(absPath); err != nil {
		return "", fmt.Errorf("export: save workbook: %w", err)
	}
	return absPath, nil
}

// # Workbook Import

/*
ImportPrompts applies an edited workbook back to the project.

Description: Pages match by label, reference slots by name; rows with an
empty prompt cell and rows for pages or slots that no longer exist are
ignored. A workbook may carry either sheet or both.
*/
func (service *Service) ImportPrompts(context context.Context, projectID string, r io.Reader) (ImportSummary, error) {
	summary := ImportSummary{}

	workbook, err := excelize.OpenReader(r)
	if err != nil {
		return summary, apperr.ValidationError("File is not a readable xlsx workbook")
	}
	defer workbook.Close()

	pagesUpdated, err := service.importPages(context, projectID, workbook)
	if err != nil {
		return summary, err
	}
	referencesUpdated, err := service.importReferences(context, projectID, workbook)
	if err != nil {
		return summary, err
	}

	summary.PagesUpdated = pagesUpdated
	summary.ReferencesUpdated = referencesUpdated

	if pagesUpdated == 0 && referencesUpdated == 0 {
		return summary, apperr.Unprocessable("Workbook contained no applicable prompt rows")
	}

	service.logger.Info("prompts_imported",
		slog.String("project_id", projectID),
		slog.Int("pages", pagesUpdated),
		slog.Int("references", referencesUpdated),
	)

	return summary, nil
}

func (service *Service) importPages(context context.Context, projectID string, workbook *excelize.File) (int, error) {
	rows, err := workbook.GetRows(sheetPages)
	if err != nil {
		// Sheet absent: nothing to apply.
		return 0, nil
	}

	pages, err := service.pageRepo.ListByProject(context, projectID)
	if err != nil {
		return 0, err
	}
	byNumber := make(map[string]*page.Page, len(pages))
	for _, p := range pages {
		byNumber[p.PageNumber] = p
	}

	promptColumn := columnIndex(pageHeader, "Prompt")
	updated := 0
	for _, row := range skipHeader(rows) {
		if len(row) <= promptColumn {
			continue
		}
		label := strings.TrimSpace(row[0])
		prompt := strings.TrimSpace(row[promptColumn])
		target, ok := byNumber[label]
		if !ok || prompt == "" || prompt == target.Prompt {
			continue
		}
		if err := service.pageRepo.UpdatePrompt(context, target.ID, prompt); err != nil {
			return updated, err
		}
		updated++
	}

	return updated, nil
}

func (service *Service) importReferences(context context.Context, projectID string, workbook *excelize.File) (int, error) {
	rows, err := workbook.GetRows(sheetReferences)
	if err != nil {
		return 0, nil
	}

	references, err := service.referenceRepo.ListByProject(context, projectID, "")
	if err != nil {
		return 0, err
	}
	byName := make(map[string]*reference.Reference, len(references))
	for _, ref := range references {
		byName[ref.Name] = ref
	}

	nameColumn := columnIndex(referenceHeader, "Name")
	promptColumn := columnIndex(referenceHeader, "Prompt")
	updated := 0
	for _, row := range skipHeader(rows) {
		if len(row) <= promptColumn {
			continue
		}
		name := strings.TrimSpace(row[nameColumn])
		prompt := strings.TrimSpace(row[promptColumn])
		target, ok := byName[name]
		if !ok || prompt == "" || prompt == target.Prompt {
			continue
		}
		if err := service.referenceRepo.UpdatePrompt(context, target.ID, prompt); err != nil {
			return updated, err
		}
		updated++
	}

	return updated, nil
}

// # Cell Helpers

func writeRow(workbook *excelize.File, sheet string, rowNumber int, values []string) error {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return writeRowValues(workbook, sheet, rowNumber, row)
}

func writeRowValues(workbook *excelize.File, sheet string, rowNumber int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNumber)
	if err != nil {
		return fmt.Errorf("export: cell name: %w", err)
	}
	if err := workbook.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("export: write row: %w", err)
	}
	return nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return 0
}

func skipHeader(rows [][]string) [][]string {
	if len(rows) == 0 {
		return nil
	}
	return rows[1:]
}
