// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package project

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/fablemint/storyforge/internal/asset"
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
	FieldName     = "name"
	FieldPlatform = "platform"
	FieldSize     = "image_size"
	FieldRes      = "image_resolution"
	FieldContent  = "content"
)

// # Service Layer

// Service orchestrates the business logic for projects.
type Service struct {
	projectRepo Repository
	orch        *orchestrator.Engine
	assets      *asset.Store
	logger      *slog.Logger
}

// NewService constructs a new [Service] with its required collaborators.
func NewService(projectRepo Repository, orch *orchestrator.Engine, assets *asset.Store, logger *slog.Logger) *Service {
	return &Service{
		projectRepo: projectRepo,
		orch:        orch,
		assets:      assets,
		logger:      logger,
	}
}

// # Project Operations

/*
CreateProject initialises a new project in stage content_uploaded.

Description: Applies platform and rendering defaults, validates the style
configuration enumerations, and persists the aggregate root.

Parameters:
  - context: context.Context
  - project: *Project (The new project data)

Returns:
  - error: Validation or persistence errors
*/
func (service *Service) CreateProject(context context.Context, project *Project) error {

	// Identity & Mandatory field generation
	if project.ID == "" {
		project.ID = uuid.New()
	}
	if project.TargetAge == "" {
		project.TargetAge = DefaultTargetAge
	}
	if project.ImageSize == "" {
		project.ImageSize = "16:9"
	}
	if project.ImageResolution == "" {
		project.ImageResolution = "2K"
	}
	if project.Platform == "" {
		project.Platform = constants.PlatformJimeng
	}

	// Business attribute validation
	validator := &validate.Validator{}
	validator.Required(FieldName, project.Name)
	validator.Custom(FieldPlatform, !slices.Contains(constants.Platforms, project.Platform),
		"Platform must be one of: jimeng, volcano, mj")
	validator.Custom(FieldSize, !slices.Contains(ValidSizes, project.ImageSize),
		"Unsupported image size")
	validator.Custom(FieldRes, !slices.Contains(ValidResolutions, project.ImageResolution),
		"Unsupported image resolution")

	if err := validator.Err(); err != nil {
		return err
	}

	now := time.Now()
	project.Stage = stage.ContentUploaded
	project.CreatedAt = now
	project.UpdatedAt = now

	if err := service.projectRepo.Create(context, project); err != nil {
		return err
	}

	service.logger.Info("project_created",
		slog.String("project_id", project.ID),
		slog.String("name", project.Name),
		slog.String("platform", project.Platform),
	)

	return nil
}

// GetProject retrieves one project by ID.
func (service *Service) GetProject(context context.Context, id string) (*Project, error) {
	return service.projectRepo.FindByID(context, id)
}

// ListProjects retrieves a page of projects, newest first.
func (service *Service) ListProjects(context context.Context, limit, offset int) ([]*Project, int, error) {
	return service.projectRepo.List(context, limit, offset)
}

// UpdateInput carries the mutable project fields; nil pointers leave the
// stored value unchanged.
type UpdateInput struct {
	Name            *string
	Description     *string
	Platform        *string
	StylePrompt     *string
	TargetAge       *string
	ImageSize       *string
	ImageResolution *string
}

/*
UpdateProject applies a partial update to project configuration.

Description: Only configuration fields change here; content and stage move
through their dedicated operations. Changing the platform is allowed at any
stage and only affects jobs submitted afterwards.

Parameters:
  - context: context.Context
  - id: string (UUID)
  - input: UpdateInput

Returns:
  - *Project: The updated project
  - error: Validation or persistence errors
*/
func (service *Service) UpdateProject(context context.Context, id string, input UpdateInput) (*Project, error) {
	project, err := service.projectRepo.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		project.Name = *input.Name
	}
	if input.Description != nil {
		project.Description = *input.Description
	}
	if input.Platform != nil {
		project.Platform = *input.Platform
	}
	if input.StylePrompt != nil {
		project.StylePrompt = *input.StylePrompt
	}
	if input.TargetAge != nil {
		project.TargetAge = *input.TargetAge
	}
	if input.ImageSize != nil {
		project.ImageSize = *input.ImageSize
	}
	if input.ImageResolution != nil {
		project.ImageResolution = *input.ImageResolution
	}

	validator := &validate.Validator{}
	validator.Required(FieldName, project.Name)
	validator.Custom(FieldPlatform, !slices.Contains(constants.Platforms, project.Platform),
		"Platform must be one of: jimeng, volcano, mj")
	validator.Custom(FieldSize, !slices.Contains(ValidSizes, project.ImageSize),
		"Unsupported image size")
	validator.Custom(FieldRes, !slices.Contains(ValidResolutions, project.ImageResolution),
		"Unsupported image resolution")

	if err := validator.Err(); err != nil {
		return nil, err
	}

	project.UpdatedAt = time.Now()
	if err := service.projectRepo.Update(context, project); err != nil {
		return nil, err
	}

	return project, nil
}

/*
DeleteProject removes a project and everything under it.

Description: All non-terminal jobs of the project are cancelled first so
in-flight provider results are discarded on arrival; dependent rows cascade
at the database level.
*/
func (service *Service) DeleteProject(context context.Context, id string) error {
	if _, err := service.projectRepo.FindByID(context, id); err != nil {
		return err
	}

	if err := service.orch.CancelProject(context, id); err != nil {
		return err
	}

	if err := service.projectRepo.Delete(context, id); err != nil {
		return err
	}

	service.logger.Info("project_deleted", slog.String("project_id", id))
	return nil
}

// # Content & Style

/*
UploadContent stores the book text and returns its page segmentation.

Description: The text must contain at least one page label ("P1"). The raw
text is stored verbatim; segmentation is recomputed on demand, so editing
content never desynchronizes stored pages that were already planned.

Parameters:
  - context: context.Context
  - id: string (UUID)
  - reader: io.Reader (UTF-8 text)

Returns:
  - []Segment: Parsed page segments
  - error: Validation or persistence errors
*/
func (service *Service) UploadContent(context context.Context, id string, reader io.Reader) ([]Segment, error) {
	project, err := service.projectRepo.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(reader, 1<<20))
	if err != nil {
		return nil, apperr.Internal(err)
	}

	text := string(raw)
	segments := ParseContent(text)

	validator := &validate.Validator{}
	validator.Required(FieldContent, text)
	validator.Custom(FieldContent, len(segments) == 0,
		"Content must contain page labels (P1, P2, ...)")
	if err := validator.Err(); err != nil {
		return nil, err
	}

	project.Content = text
	project.UpdatedAt = time.Now()
	if err := service.projectRepo.Update(context, project); err != nil {
		return nil, err
	}

	service.logger.Info("project_content_uploaded",
		slog.String("project_id", id),
		slog.Int("pages", len(segments)),
	)

	return segments, nil
}

// UploadStyleReference stores a style reference image on the project.
func (service *Service) UploadStyleReference(context context.Context, id, filename string, reader io.Reader) (string, error) {
	project, err := service.projectRepo.FindByID(context, id)
	if err != nil {
		return "", err
	}

	relPath, err := service.assets.SaveUpload(asset.CategoryStyleReferences, filename, reader)
	if err != nil {
		return "", apperr.Internal(err)
	}

	project.StyleAsset = relPath
	project.UpdatedAt = time.Now()
	if err := service.projectRepo.Update(context, project); err != nil {
		return "", err
	}

	return relPath, nil
}

/*
ReverseStylePrompt derives a style prompt from the uploaded reference image.

Description: Submits a workflow job against the style reference; the result
handler stores the derived prompt on the project. Re-invocation while a
derivation is in flight returns the existing job.

Returns:
  - *job.Job: The submitted (or pre-existing) derivation job
  - error: Unprocessable when no style reference was uploaded
*/
func (service *Service) ReverseStylePrompt(context context.Context, id string) (*job.Job, error) {
	project, err := service.projectRepo.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if project.StyleAsset == "" {
		return nil, apperr.Unprocessable("Upload a style reference image first")
	}

	submitted, _, err := service.orch.Enqueue(context, orchestrator.EnqueueParams{
		ProjectID: project.ID,
		OwnerKind: job.OwnerProject,
		OwnerID:   project.ID,
		Kind:      job.KindStyleReverse,
		Provider:  constants.ProviderDify,
		Request: provider.Request{
			Task: provider.TaskStyleReverse,
			Inputs: map[string]any{
				"image_path": project.StyleAsset,
				"style_name": project.Name,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return submitted, nil
}

// HandleStyleReverse applies a finished style derivation job. Registered as
// the KindStyleReverse worker handler.
func (service *Service) HandleStyleReverse(context context.Context, j *job.Job) error {
	if j.Status != job.StatusSucceeded {
		service.logger.Warn("style_reverse_unresolved",
			slog.String("project_id", j.ProjectID),
			slog.String("reason", j.LastError),
		)
		return nil
	}

	payload, err := orchestrator.DecodeResult(j.Output)
	if err != nil {
		return err
	}

	prompt, err := provider.ParseStylePrompt(payload.Output)
	if err != nil {
		return err
	}

	project, err := service.projectRepo.FindByID(context, j.ProjectID)
	if err != nil {
		return err
	}

	project.StylePrompt = prompt
	project.UpdatedAt = time.Now()
	if err := service.projectRepo.Update(context, project); err != nil {
		return err
	}

	service.logger.Info("style_prompt_derived", slog.String("project_id", j.ProjectID))

	if snap, err := service.projectRepo.StageSnapshot(context, j.ProjectID); err == nil {
		stage.LogReadiness(service.logger, j.ProjectID, project.Stage, snap)
	}
	return nil
}

// # Stage Progression

// Stage returns the current stage together with the snapshot its exit
// predicate evaluates, so clients can render what is still blocking.
func (service *Service) Stage(context context.Context, id string) (stage.Stage, stage.Snapshot, error) {
	project, err := service.projectRepo.FindByID(context, id)
	if err != nil {
		return "", stage.Snapshot{}, err
	}

	snapshot, err := service.projectRepo.StageSnapshot(context, id)
	if err != nil {
		return "", stage.Snapshot{}, err
	}

	return project.Stage, snapshot, nil
}

/*
AdvanceStage moves the project to the next stage when the current exit
predicate holds.

Description: The predicate is evaluated against a fresh snapshot; the stage
column moves under a compare-and-set guard so two concurrent advances
cannot skip a stage. Evaluating an unsatisfied predicate is side-effect
free and returns StagePreconditionUnmet naming the blocker.
*/
func (service *Service) AdvanceStage(context context.Context, id string) (stage.Stage, error) {
	project, err := service.projectRepo.FindByID(context, id)
	if err != nil {
		return "", err
	}

	snapshot, err := service.projectRepo.StageSnapshot(context, id)
	if err != nil {
		return "", err
	}

	next, err := stage.Advance(project.Stage, snapshot)
	if err != nil {
		return "", err
	}

	if err := service.projectRepo.UpdateStage(context, id, project.Stage, next); err != nil {
		return "", err
	}

	service.logger.Info("project_stage_advanced",
		slog.String("project_id", id),
		slog.String("from", string(project.Stage)),
		slog.String("to", string(next)),
	)

	return next, nil
}
