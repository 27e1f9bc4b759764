// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package page manages the planned book pages of a project.

Planning splits the uploaded manuscript into pages and assigns each page
the reference slots appearing on it, within hard limits per slot type.
Once every assigned slot has a selected canonical image, a workflow
assembles the page's illustration prompt, and the prompt renders into
candidate images through the image domain.
*/
package page

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fablemint/storyforge/internal/core/image"
	"github.com/fablemint/storyforge/internal/core/project"
	"github.com/fablemint/storyforge/internal/core/reference"
	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/platform/constants"
	"github.com/fablemint/storyforge/internal/platform/validate"
	"github.com/fablemint/storyforge/internal/provider"
	"github.com/fablemint/storyforge/internal/selection"
	"github.com/fablemint/storyforge/internal/stage"
	"github.com/fablemint/storyforge/pkg/uuid"
)

const (
	FieldPrompt     = "prompt"
	FieldSceneType  = "scene_type"
	FieldReferences = "reference_ids"
	FieldPages      = "pages"
)

// promptFanout bounds concurrent prompt submissions in GenerateAllPrompts.
const promptFanout = 4

// Renderer is the slice of the image domain the page service uses.
type Renderer interface {
	Generate(context context.Context, spec image.GenerateSpec) ([]*image.Candidate, error)
	CheckStatus(context context.Context, kind job.OwnerKind, ownerID string) ([]*image.Candidate, error)
	List(context context.Context, kind job.OwnerKind, ownerID string) ([]*image.Candidate, error)
	AutoSelect(context context.Context, kind job.OwnerKind, ownerID string) error
	DeleteOwned(context context.Context, kind job.OwnerKind, ownerID string) error
}

// # Service Layer

// Service orchestrates the business logic for book pages.
type Service struct {
	pageRepo      Repository
	projectRepo   project.Repository
	referenceRepo reference.Repository
	orch          *orchestrator.Engine
	renderer      Renderer
	logger        *slog.Logger
}

// NewService constructs a new page [Service].
func NewService(pageRepo Repository, projectRepo project.Repository, referenceRepo reference.Repository, orch *orchestrator.Engine, renderer Renderer, logger *slog.Logger) *Service {
	return &Service{
		pageRepo:      pageRepo,
		projectRepo:   projectRepo,
		referenceRepo: referenceRepo,
		orch:          orch,
		renderer:      renderer,
		logger:        logger,
	}
}

// # Planning

// PagePlan is one page's planning decision: its scene treatment and the
// reference slots appearing on it. Pages absent from the plan keep
// defaults.
type PagePlan struct {
	PageNumber   string    `json:"page_number"`
	SceneType    SceneType `json:"scene_type"`
	ReferenceIDs []string  `json:"reference_ids"`
	Skipped      bool      `json:"skipped"`
}

/*
PlanPages builds the project's page set from its manuscript.

Description: Splits the stored content into labelled segments and creates
one page per segment, applying the matching plan entry where present.
Re-planning replaces the whole set, prompts included, and cancels work in
flight for the old pages. Planning is only complete once CompletePlanning
confirms it.

Parameters:
  - context: context.Context
  - projectID: string (UUID)
  - plans: []PagePlan (Optional per-page decisions, matched by label)

Returns:
  - []*Page: The new page set in reading order
  - error: Unprocessable without content, validation errors on bad plans
*/
func (service *Service) PlanPages(context context.Context, projectID string, plans []PagePlan) ([]*Page, error) {
	proj, err := service.projectRepo.FindByID(context, projectID)
	if err != nil {
		return nil, err
	}
	if proj.Content == "" {
		return nil, apperr.Unprocessable("Upload story content first")
	}

	segments := project.ParseContent(proj.Content)
	if len(segments) == 0 {
		return nil, apperr.Unprocessable("Story content has no page labels")
	}

	slots, err := service.referenceRepo.ListByProject(context, projectID, "")
	if err != nil {
		return nil, err
	}
	slotsByID := make(map[string]*reference.Reference, len(slots))
	for _, slot := range slots {
		slotsByID[slot.ID] = slot
	}

	plansByNumber := make(map[string]PagePlan, len(plans))
	for _, plan := range plans {
		plansByNumber[plan.PageNumber] = plan
	}

	existing, err := service.pageRepo.ListByProject(context, projectID)
	if err != nil {
		return nil, err
	}

	pages := make([]*Page, 0, len(segments))
	for _, segment := range segments {
		now := time.Now()
		page := &Page{
			ID:         uuid.New(),
			ProjectID:  projectID,
			PageNumber: segment.Number,
			PageIndex:  segment.Index,
			Content:    segment.Content,
			SceneType:  SceneReal,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if plan, ok := plansByNumber[segment.Number]; ok {
			if plan.SceneType != "" {
				page.SceneType = plan.SceneType
			}
			page.ReferenceIDs = plan.ReferenceIDs
			page.Skipped = plan.Skipped
		}

		if err := service.validatePage(page, slotsByID); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	// Old pages are replaced wholesale; stop their in-flight work first.
	for _, old := range existing {
		if err := service.cancelPageWork(context, old.ID); err != nil {
			return nil, err
		}
	}

	if err := service.pageRepo.ReplaceForProject(context, projectID, pages); err != nil {
		return nil, err
	}

	// Re-planning invalidates a previous confirmation.
	if proj.PlanningComplete {
		proj.PlanningComplete = false
		if err := service.projectRepo.Update(context, proj); err != nil {
			return nil, err
		}
	}

	service.logger.Info("pages_planned",
		slog.String("project_id", projectID),
		slog.Int("count", len(pages)),
	)

	return pages, nil
}

// CompletePlanning confirms the page set, unlocking the stage advance
// towards prompt generation.
func (service *Service) CompletePlanning(context context.Context, projectID string) error {
	proj, err := service.projectRepo.FindByID(context, projectID)
	if err != nil {
		return err
	}

	pages, err := service.pageRepo.ListByProject(context, projectID)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return apperr.Unprocessable("Plan pages before completing planning")
	}

	if proj.PlanningComplete {
		return nil
	}

	proj.PlanningComplete = true
	return service.projectRepo.Update(context, proj)
}

// validatePage checks scene type, slot existence and per-type limits.
func (service *Service) validatePage(page *Page, slots map[string]*reference.Reference) error {
	validator := &validate.Validator{}
	validator.OneOf(FieldSceneType, string(page.SceneType),
		string(SceneReal), string(SceneKnowledge), string(SceneAbstract))

	var characters, props, scenes int
	seen := make(map[string]bool, len(page.ReferenceIDs))
	for _, referenceID := range page.ReferenceIDs {
		if seen[referenceID] {
			validator.Custom(FieldReferences, true,
				fmt.Sprintf("reference %s assigned twice on %s", referenceID, page.PageNumber))
			continue
		}
		seen[referenceID] = true

		slot, ok := slots[referenceID]
		if !ok {
			validator.Custom(FieldReferences, true,
				fmt.Sprintf("reference %s does not belong to this project", referenceID))
			continue
		}
		switch slot.Type {
		case reference.TypeCharacter:
			characters++
		case reference.TypeProp:
			props++
		case reference.TypeScene:
			scenes++
		}
	}

	validator.Custom(FieldReferences, characters > MaxCharacterRefs,
		fmt.Sprintf("at most %d character references per page", MaxCharacterRefs))
	validator.Custom(FieldReferences, props > MaxPropRefs,
		fmt.Sprintf("at most %d prop references per page", MaxPropRefs))
	validator.Custom(FieldReferences, scenes > MaxSceneRefs,
		fmt.Sprintf("at most %d scene reference per page", MaxSceneRefs))

	return validator.Err()
}

// cancelPageWork stops a page's in-flight jobs and purges its candidate
// rounds. Both call sites delete the page row right after; the page's own
// ledger jobs are cancelled but kept as project history.
func (service *Service) cancelPageWork(context context.Context, pageID string) error {
	if err := service.renderer.DeleteOwned(context, job.OwnerPage, pageID); err != nil {
		return err
	}
	return service.orch.CancelOwner(context, job.OwnerPage, pageID)
}

// # Page Management

// List returns a project's pages in reading order.
func (service *Service) List(context context.Context, projectID string) ([]*Page, error) {
	return service.pageRepo.ListByProject(context, projectID)
}

// Get returns one page.
func (service *Service) Get(context context.Context, id string) (*Page, error) {
	return service.pageRepo.FindByID(context, id)
}

// UpdateInput carries the mutable page fields; nil pointers leave the
// stored value unchanged.
type UpdateInput struct {
	Content      *string
	SceneType    *SceneType
	ReferenceIDs *[]string
	Skipped      *bool
}

/*
UpdatePage applies a partial update to one page.

Description: Editing content, scene type or assignments invalidates a
previously assembled prompt, since its inputs changed. Skipping a page
removes it from the remaining pipeline without deleting its text.
*/
func (service *Service) UpdatePage(context context.Context, id string, input UpdateInput) (*Page, error) {
	page, err := service.pageRepo.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	invalidated := false
	if input.Content != nil && *input.Content != page.Content {
		page.Content = *input.Content
		invalidated = true
	}
	if input.SceneType != nil && *input.SceneType != page.SceneType {
		page.SceneType = *input.SceneType
		invalidated = true
	}
	if input.ReferenceIDs != nil {
		page.ReferenceIDs = *input.ReferenceIDs
		invalidated = true
	}
	if input.Skipped != nil {
		page.Skipped = *input.Skipped
	}

	slots, err := service.referenceRepo.ListByProject(context, page.ProjectID, "")
	if err != nil {
		return nil, err
	}
	slotsByID := make(map[string]*reference.Reference, len(slots))
	for _, slot := range slots {
		slotsByID[slot.ID] = slot
	}
	if err := service.validatePage(page, slotsByID); err != nil {
		return nil, err
	}

	if err := service.pageRepo.Update(context, page); err != nil {
		return nil, err
	}
	if invalidated && page.Prompt != "" {
		if err := service.pageRepo.UpdatePrompt(context, id, ""); err != nil {
			return nil, err
		}
	}

	return service.pageRepo.FindByID(context, id)
}

// UpdatePrompt stores a hand-edited illustration prompt.
func (service *Service) UpdatePrompt(context context.Context, id, prompt string) (*Page, error) {
	validator := &validate.Validator{}
	validator.Required(FieldPrompt, prompt)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if err := service.pageRepo.UpdatePrompt(context, id, prompt); err != nil {
		return nil, err
	}

	return service.pageRepo.FindByID(context, id)
}

// Delete removes a page after cancelling its in-flight work.
func (service *Service) Delete(context context.Context, id string) error {
	if _, err := service.pageRepo.FindByID(context, id); err != nil {
		return err
	}
	if err := service.cancelPageWork(context, id); err != nil {
		return err
	}
	return service.pageRepo.Delete(context, id)
}

// # Prompt Assembly

/*
GeneratePrompt queues the prompt assembly workflow for one page.

Description: The workflow combines the page text, its scene treatment, the
style prompt, and the canonical images of every assigned reference slot.
It therefore requires each assigned slot to have a selected image first.
Skipped pages are rejected.

Returns:
  - *job.Job: The queued (or pre-existing) assembly job
  - error: Unprocessable when prerequisites are missing
*/
func (service *Service) GeneratePrompt(context context.Context, id string) (*job.Job, error) {
	page, err := service.pageRepo.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if page.Skipped {
		return nil, apperr.Unprocessable("Skipped pages get no prompt")
	}

	proj, err := service.projectRepo.FindByID(context, page.ProjectID)
	if err != nil {
		return nil, err
	}
	if proj.StylePrompt == "" {
		return nil, apperr.Unprocessable("Configure a style prompt first")
	}

	referenceImages, err := service.referenceImages(context, page)
	if err != nil {
		return nil, err
	}

	submitted, _, err := service.orch.Enqueue(context, orchestrator.EnqueueParams{
		ProjectID: proj.ID,
		OwnerKind: job.OwnerPage,
		OwnerID:   page.ID,
		Kind:      job.KindPagePrompt,
		Provider:  constants.ProviderDify,
		Request: provider.Request{
			Task: provider.TaskPagePrompt,
			Inputs: map[string]any{
				"page_number":      page.PageNumber,
				"page_content":     page.Content,
				"scene_type":       page.SceneType,
				"style_prompt":     proj.StylePrompt,
				"reference_images": referenceImages,
				"target_age":       proj.TargetAge,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return submitted, nil
}

// referenceImages gathers the selected canonical image of every assigned
// slot, grouped the way the assembly workflow expects.
func (service *Service) referenceImages(context context.Context, page *Page) (map[string]any, error) {
	var characters, props []string
	var scene string

	for _, referenceID := range page.ReferenceIDs {
		slot, err := service.referenceRepo.FindByID(context, referenceID)
		if err != nil {
			return nil, err
		}

		candidates, err := service.renderer.List(context, job.OwnerReference, referenceID)
		if err != nil {
			return nil, err
		}

		imagePath := ""
		for _, candidate := range candidates {
			if candidate.Selection == selection.ModeNone {
				continue
			}
			imagePath = candidate.LocalPath
			if imagePath == "" {
				imagePath = candidate.AssetRef
			}
			break
		}
		if imagePath == "" {
			return nil, apperr.Unprocessable(
				fmt.Sprintf("Reference %q has no selected image yet", slot.Name))
		}

		switch slot.Type {
		case reference.TypeCharacter:
			characters = append(characters, imagePath)
		case reference.TypeProp:
			props = append(props, imagePath)
		case reference.TypeScene:
			scene = imagePath
		}
	}

	return map[string]any{
		"characters":     characters,
		"non_characters": props,
		"scene":          scene,
	}, nil
}

// HandlePagePrompt applies a finished assembly job. Registered as the
// KindPagePrompt worker handler.
func (service *Service) HandlePagePrompt(context context.Context, j *job.Job) error {
	if j.Status != job.StatusSucceeded {
		service.logger.Warn("page_prompt_not_applied",
			slog.String("job_id", j.ID),
			slog.String("status", string(j.Status)),
		)
		return nil
	}

	payload, err := orchestrator.DecodeResult(j.Output)
	if err != nil {
		return err
	}

	prompt, err := provider.ParsePagePrompt(payload.Output)
	if err != nil {
		return err
	}

	if err := service.pageRepo.UpdatePrompt(context, j.OwnerID, prompt); err != nil {
		return err
	}
	service.logStageReadiness(context, j.ProjectID)

	return nil
}

// logStageReadiness surfaces advanceability after a workflow result lands.
func (service *Service) logStageReadiness(context context.Context, projectID string) {
	proj, err := service.projectRepo.FindByID(context, projectID)
	if err != nil {
		return
	}
	snap, err := service.projectRepo.StageSnapshot(context, projectID)
	if err != nil {
		return
	}
	stage.LogReadiness(service.logger, projectID, proj.Stage, snap)
}

/*
GenerateAllPrompts queues prompt assembly for every eligible page.

Description: Fans out over non-skipped pages without a prompt. Pages whose
prerequisites are unmet are reported back rather than failing the batch.

Returns:
  - []*job.Job: The queued jobs
  - map[string]string: Per-page rejection reasons, keyed by page label
*/
func (service *Service) GenerateAllPrompts(context context.Context, projectID string) ([]*job.Job, map[string]string, error) {
	pages, err := service.pageRepo.ListByProject(context, projectID)
	if err != nil {
		return nil, nil, err
	}

	type outcome struct {
		page *Page
		job  *job.Job
		err  error
	}
	outcomes := make([]outcome, len(pages))

	group, groupContext := errgroup.WithContext(context)
	group.SetLimit(promptFanout)
	for i, page := range pages {
		if page.Skipped || page.Prompt != "" {
			continue
		}
		group.Go(func() error {
			queued, err := service.GeneratePrompt(groupContext, page.ID)
			outcomes[i] = outcome{page: page, job: queued, err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}

	var queued []*job.Job
	rejected := make(map[string]string)
	for _, o := range outcomes {
		switch {
		case o.page == nil:
		case o.err != nil:
			rejected[o.page.PageNumber] = o.err.Error()
		case o.job != nil:
			queued = append(queued, o.job)
		}
	}

	return queued, rejected, nil
}

// # Image Generation

/*
Generate opens a candidate round for a page.

Description: Renders the page's assembled prompt on the project's
configured platform. A repeat call retires the previous round.
*/
func (service *Service) Generate(context context.Context, id string, count int) ([]*image.Candidate, error) {
	page, err := service.pageRepo.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if page.Skipped {
		return nil, apperr.Unprocessable("Skipped pages get no images")
	}
	if page.Prompt == "" {
		return nil, apperr.Unprocessable("Generate the page prompt first")
	}

	proj, err := service.projectRepo.FindByID(context, page.ProjectID)
	if err != nil {
		return nil, err
	}

	return service.renderer.Generate(context, image.GenerateSpec{
		ProjectID:  proj.ID,
		OwnerKind:  job.OwnerPage,
		OwnerID:    page.ID,
		Prompt:     page.Prompt,
		Provider:   proj.Platform,
		Size:       proj.ImageSize,
		Resolution: proj.ImageResolution,
		Count:      count,
	})
}

// Candidates returns the page's current candidate round.
func (service *Service) Candidates(context context.Context, id string) ([]*image.Candidate, error) {
	if _, err := service.pageRepo.FindByID(context, id); err != nil {
		return nil, err
	}
	return service.renderer.List(context, job.OwnerPage, id)
}

// CheckStatus polls the page's in-flight rendering jobs immediately.
func (service *Service) CheckStatus(context context.Context, id string) ([]*image.Candidate, error) {
	if _, err := service.pageRepo.FindByID(context, id); err != nil {
		return nil, err
	}
	return service.renderer.CheckStatus(context, job.OwnerPage, id)
}

// AutoSelect re-evaluates auto-selection for the page's round on demand.
func (service *Service) AutoSelect(context context.Context, id string) error {
	if _, err := service.pageRepo.FindByID(context, id); err != nil {
		return err
	}
	return service.renderer.AutoSelect(context, job.OwnerPage, id)
}
