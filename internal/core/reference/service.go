// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package reference manages the reference image slots of a project: the
characters, recurring props, and scene whose canonical images keep the
book visually consistent.

Slots come out of a prompt extraction workflow run over the story text.
Each slot's prompt renders into candidate images through the image
domain, and the selected candidate becomes the slot's canonical image.
*/
package reference

import (
	"context"
	"log/slog"
	"time"

	"github.com/fablemint/storyforge/internal/core/image"
	"github.com/fablemint/storyforge/internal/core/project"
	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/platform/constants"
	"github.com/fablemint/storyforge/internal/platform/validate"
	"github.com/fablemint/storyforge/internal/provider"
	"github.com/fablemint/storyforge/internal/stage"
	"github.com/fablemint/storyforge/pkg/uuid"
)

const (
	FieldPrompt  = "prompt"
	FieldRefType = "ref_type"
)

// Renderer is the slice of the image domain the reference service uses.
type Renderer interface {
	Generate(context context.Context, spec image.GenerateSpec) ([]*image.Candidate, error)
	CheckStatus(context context.Context, kind job.OwnerKind, ownerID string) ([]*image.Candidate, error)
	List(context context.Context, kind job.OwnerKind, ownerID string) ([]*image.Candidate, error)
	DeleteOwned(context context.Context, kind job.OwnerKind, ownerID string) error
}

// # Service Layer

// Service orchestrates the business logic for reference image slots.
type Service struct {
	referenceRepo Repository
	projectRepo   project.Repository
	orch          *orchestrator.Engine
	renderer      Renderer
	logger        *slog.Logger
}

// NewService constructs a new reference [Service].
func NewService(referenceRepo Repository, projectRepo project.Repository, orch *orchestrator.Engine, renderer Renderer, logger *slog.Logger) *Service {
	return &Service{
		referenceRepo: referenceRepo,
		projectRepo:   projectRepo,
		orch:          orch,
		renderer:      renderer,
		logger:        logger,
	}
}

// # Prompt Extraction

/*
GeneratePrompts queues the prompt extraction workflow for a project.

Description: The workflow reads the full story text and the style prompt
and produces one prompt per character, prop and scene. Re-invocation while
a run is in flight returns the existing job; a finished run replaces the
project's whole slot set.

Returns:
  - *job.Job: The queued (or pre-existing) extraction job
  - error: Unprocessable when content or style prompt is missing
*/
func (service *Service) GeneratePrompts(context context.Context, projectID string) (*job.Job, error) {
	proj, err := service.projectRepo.FindByID(context, projectID)
	if err != nil {
		return nil, err
	}

	if proj.Content == "" {
		return nil, apperr.Unprocessable("Upload story content first")
	}
	if proj.StylePrompt == "" {
		return nil, apperr.Unprocessable("Configure a style prompt first")
	}

	submitted, _, err := service.orch.Enqueue(context, orchestrator.EnqueueParams{
		ProjectID: proj.ID,
		OwnerKind: job.OwnerProject,
		OwnerID:   proj.ID,
		Kind:      job.KindReferencePrompts,
		Provider:  constants.ProviderDify,
		Request: provider.Request{
			Task: provider.TaskReferencePrompts,
			Inputs: map[string]any{
				"content":      proj.Content,
				"style_prompt": proj.StylePrompt,
				"target_age":   proj.TargetAge,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return submitted, nil
}

// HandleReferencePrompts applies a finished extraction run. Registered as
// the KindReferencePrompts worker handler.
func (service *Service) HandleReferencePrompts(context context.Context, j *job.Job) error {
	if j.Status != job.StatusSucceeded {
		service.logger.Warn("reference_prompts_not_applied",
			slog.String("job_id", j.ID),
			slog.String("status", string(j.Status)),
		)
		return nil
	}

	payload, err := orchestrator.DecodeResult(j.Output)
	if err != nil {
		return err
	}

	set, err := provider.ParseReferencePrompts(payload.Output)
	if err != nil {
		return err
	}

	var references []*Reference
	appendSlots := func(refType Type, prompts []provider.NamedPrompt) {
		for i, p := range prompts {
			now := time.Now()
			references = append(references, &Reference{
				ID:        uuid.New(),
				ProjectID: j.ProjectID,
				Type:      refType,
				Name:      p.Name,
				RefIndex:  i + 1,
				Prompt:    p.Prompt,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	}
	appendSlots(TypeCharacter, set.Characters)
	appendSlots(TypeProp, set.Props)
	appendSlots(TypeScene, set.Scenes)

	if err := service.referenceRepo.ReplaceForProject(context, j.ProjectID, references); err != nil {
		return err
	}

	service.logger.Info("reference_slots_replaced",
		slog.String("project_id", j.ProjectID),
		slog.Int("count", len(references)),
	)
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

// # Slot Management

// List returns a project's slots, optionally filtered by type.
func (service *Service) List(context context.Context, projectID string, refType Type) ([]*Reference, error) {
	if refType != "" {
		validator := &validate.Validator{}
		validator.OneOf(FieldRefType, string(refType),
			string(TypeCharacter), string(TypeProp), string(TypeScene))
		if err := validator.Err(); err != nil {
			return nil, err
		}
	}

	return service.referenceRepo.ListByProject(context, projectID, refType)
}

// Get returns one slot.
func (service *Service) Get(context context.Context, id string) (*Reference, error) {
	return service.referenceRepo.FindByID(context, id)
}

// UpdatePrompt stores a hand-edited prompt on a slot.
func (service *Service) UpdatePrompt(context context.Context, id, prompt string) (*Reference, error) {
	validator := &validate.Validator{}
	validator.Required(FieldPrompt, prompt)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if err := service.referenceRepo.UpdatePrompt(context, id, prompt); err != nil {
		return nil, err
	}

	return service.referenceRepo.FindByID(context, id)
}

/*
Delete removes a slot and everything hanging off it.

Description: Cancels the slot's in-flight work and purges its candidate
rounds before deleting the row. The slot's own ledger jobs are cancelled
but kept as project history.
*/
func (service *Service) Delete(context context.Context, id string) error {
	reference, err := service.referenceRepo.FindByID(context, id)
	if err != nil {
		return err
	}

	if err := service.renderer.DeleteOwned(context, job.OwnerReference, reference.ID); err != nil {
		return err
	}
	if err := service.orch.CancelOwner(context, job.OwnerReference, reference.ID); err != nil {
		return err
	}

	return service.referenceRepo.Delete(context, id)
}

// # Image Generation

/*
Generate opens a candidate round for a slot.

Description: Renders the slot's prompt on the project's configured
platform. A repeat call retires the previous round and starts over.

Returns:
  - []*image.Candidate: The fresh round
  - error: Unprocessable when the slot has no prompt yet
*/
func (service *Service) Generate(context context.Context, id string, count int) ([]*image.Candidate, error) {
	reference, err := service.referenceRepo.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	if reference.Prompt == "" {
		return nil, apperr.Unprocessable("Reference slot has no prompt yet")
	}

	proj, err := service.projectRepo.FindByID(context, reference.ProjectID)
	if err != nil {
		return nil, err
	}

	return service.renderer.Generate(context, image.GenerateSpec{
		ProjectID:  proj.ID,
		OwnerKind:  job.OwnerReference,
		OwnerID:    reference.ID,
		Prompt:     reference.Prompt,
		Provider:   proj.Platform,
		Size:       proj.ImageSize,
		Resolution: proj.ImageResolution,
		Count:      count,
	})
}

// Candidates returns the slot's current candidate round.
func (service *Service) Candidates(context context.Context, id string) ([]*image.Candidate, error) {
	if _, err := service.referenceRepo.FindByID(context, id); err != nil {
		return nil, err
	}
	return service.renderer.List(context, job.OwnerReference, id)
}

// CheckStatus polls the slot's in-flight rendering jobs immediately.
func (service *Service) CheckStatus(context context.Context, id string) ([]*image.Candidate, error) {
	if _, err := service.referenceRepo.FindByID(context, id); err != nil {
		return nil, err
	}
	return service.renderer.CheckStatus(context, job.OwnerReference, id)
}
