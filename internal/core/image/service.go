// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package image manages candidate generation rounds and their lifecycle.

One "generate" call opens a round: the owner's previous candidates are
retired, N fresh candidates are created, and one rendering job per
candidate goes through the orchestrator. As each job finishes, its result
is downloaded and thumbnailed, and the selection engine is nudged; once the
whole round is terminal a winner emerges.
*/
package image

import (
	"context"
	"log/slog"
	"time"

	"github.com/fablemint/storyforge/internal/asset"
	"github.com/fablemint/storyforge/internal/job"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/apperr"
	"github.com/fablemint/storyforge/internal/provider"
	"github.com/fablemint/storyforge/internal/selection"
	"github.com/fablemint/storyforge/pkg/uuid"
)

const (
	// DefaultCount is how many candidates one generation round produces.
	DefaultCount = 3

	// maxCount bounds a single round.
	maxCount = 8

	// thumbEdge is the longest thumbnail edge in pixels.
	thumbEdge = 512
)

// GenerateSpec describes one candidate generation round.
type GenerateSpec struct {
	ProjectID string
	OwnerKind job.OwnerKind
	OwnerID   string

	Prompt     string
	Provider   string
	Size       string
	Resolution string

	// Count defaults to [DefaultCount] when zero.
	Count int
}

// # Service Layer

// Service owns the candidate image lifecycle.
type Service struct {
	candidateRepo Repository
	orch          *orchestrator.Engine
	worker        *orchestrator.Worker
	selector      *selection.Engine
	assets        *asset.Store
	logger        *slog.Logger
}

// NewService constructs a new image [Service].
func NewService(candidateRepo Repository, orch *orchestrator.Engine, worker *orchestrator.Worker, selector *selection.Engine, assets *asset.Store, logger *slog.Logger) *Service {
	return &Service{
		candidateRepo: candidateRepo,
		orch:          orch,
		worker:        worker,
		selector:      selector,
		assets:        assets,
		logger:        logger,
	}
}

// # Generation Rounds

/*
Generate opens a new candidate round for an owner.

Description: Cancels jobs still in flight from the previous round, retires
the previous candidates, clears the selection, and submits one rendering
job per new candidate. Superseded candidates keep their downloaded files
but no longer compete.

Parameters:
  - context: context.Context
  - spec: GenerateSpec (The owner, prompt and rendering settings)

Returns:
  - []*Candidate: The fresh candidate set, jobs attached
  - error: Unprocessable when the prompt is empty
*/
func (service *Service) Generate(context context.Context, spec GenerateSpec) ([]*Candidate, error) {
	if spec.Prompt == "" {
		return nil, apperr.Unprocessable("Generate a prompt before requesting images")
	}

	count := spec.Count
	if count <= 0 {
		count = DefaultCount
	}
	if count > maxCount {
		count = maxCount
	}

	previous, err := service.candidateRepo.ListByOwner(context, spec.OwnerKind, spec.OwnerID)
	if err != nil {
		return nil, err
	}
	for _, candidate := range previous {
		if candidate.Status.Terminal() {
			continue
		}
		if err := service.orch.CancelOwner(context, job.OwnerCandidate, candidate.ID); err != nil {
			return nil, err
		}
	}
	if len(previous) > 0 {
		if err := service.candidateRepo.Supersede(context, spec.OwnerKind, spec.OwnerID); err != nil {
			return nil, err
		}
	}

	candidates := make([]*Candidate, 0, count)
	for i := 0; i < count; i++ {
		now := time.Now()
		candidate := &Candidate{
			ID:        uuid.New(),
			ProjectID: spec.ProjectID,
			OwnerKind: spec.OwnerKind,
			OwnerID:   spec.OwnerID,
			Provider:  spec.Provider,
			Status:    StatusGenerating,
			Selection: selection.ModeNone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := service.candidateRepo.Create(context, candidate); err != nil {
			return nil, err
		}

		submitted, _, err := service.orch.Enqueue(context, orchestrator.EnqueueParams{
			ProjectID: spec.ProjectID,
			OwnerKind: job.OwnerCandidate,
			OwnerID:   candidate.ID,
			Kind:      job.KindImage,
			Provider:  spec.Provider,
			Request: provider.Request{
				Task:       provider.TaskImage,
				Prompt:     spec.Prompt,
				Size:       spec.Size,
				Resolution: spec.Resolution,
			},
		})
		if err != nil {
			return nil, err
		}

		if err := service.candidateRepo.SetJob(context, candidate.ID, submitted.ID); err != nil {
			return nil, err
		}
		candidate.JobID = submitted.ID
		candidates = append(candidates, candidate)
	}

	service.logger.Info("image_round_opened",
		slog.String("owner_kind", string(spec.OwnerKind)),
		slog.String("owner_id", spec.OwnerID),
		slog.Int("count", count),
	)

	return candidates, nil
}

/*
HandleImageJob applies a finished rendering job to its candidate.

Description: Registered as the KindImage worker handler. On success the
image is downloaded into local storage and thumbnailed; a failed download
keeps the remote reference and retries lazily on first file access. Either
way the selection engine is nudged, so the round resolves as soon as its
last candidate lands.
*/
func (service *Service) HandleImageJob(context context.Context, j *job.Job) error {
	candidate, err := service.candidateRepo.FindByID(context, j.OwnerID)
	if err != nil {
		if apperr.IsNotFound(err) {
			service.logger.Warn("image_candidate_gone", slog.String("job_id", j.ID))
			return nil
		}
		return err
	}

	// A superseded candidate's late result is irrelevant.
	if candidate.Status != StatusGenerating {
		return nil
	}

	switch j.Status {
	case job.StatusSucceeded:
		payload, err := orchestrator.DecodeResult(j.Output)
		if err != nil {
			return err
		}

		localPath := service.download(context, payload.AssetRef)
		if err := service.candidateRepo.MarkResult(context, candidate.ID, StatusSucceeded, payload.AssetRef, localPath); err != nil {
			return err
		}

	case job.StatusCancelled:
		if err := service.candidateRepo.MarkResult(context, candidate.ID, StatusCancelled, "", ""); err != nil {
			return err
		}

	default:
		if err := service.candidateRepo.MarkResult(context, candidate.ID, StatusFailed, "", ""); err != nil {
			return err
		}
	}

	return service.selector.MaybeAutoSelect(context, candidate.ProjectID, candidate.OwnerKind, candidate.OwnerID)
}

// download fetches a generated asset and its thumbnail, logging failures
// instead of failing the candidate. Returns the local path, or "".
func (service *Service) download(context context.Context, assetRef string) string {
	if assetRef == "" {
		return ""
	}

	localPath, err := service.assets.Download(context, asset.CategoryGenerated, assetRef)
	if err != nil {
		service.logger.Warn("image_download_failed",
			slog.String("asset_ref", assetRef),
			slog.String("error", err.Error()),
		)
		return ""
	}

	if _, err := service.assets.Thumbnail(localPath, thumbEdge); err != nil {
		service.logger.Warn("image_thumbnail_failed",
			slog.String("local_path", localPath),
			slog.String("error", err.Error()),
		)
	}

	return localPath
}

// # Status & Selection

// List returns an owner's live candidates, oldest first.
func (service *Service) List(context context.Context, kind job.OwnerKind, ownerID string) ([]*Candidate, error) {
	return service.candidateRepo.ListByOwner(context, kind, ownerID)
}

// Get returns one candidate.
func (service *Service) Get(context context.Context, id string) (*Candidate, error) {
	return service.candidateRepo.FindByID(context, id)
}

/*
CheckStatus polls every in-flight job of an owner's round immediately.

Description: Forces a provider status check ahead of the backoff schedule,
applying any terminal results through the normal handler path, and returns
the refreshed candidate set.
*/
func (service *Service) CheckStatus(context context.Context, kind job.OwnerKind, ownerID string) ([]*Candidate, error) {
	candidates, err := service.candidateRepo.ListByOwner(context, kind, ownerID)
	if err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if candidate.Status != StatusGenerating || candidate.JobID == "" {
			continue
		}
		if _, err := service.worker.PollNow(context, candidate.JobID); err != nil {
			service.logger.Warn("image_check_status_failed",
				slog.String("candidate_id", candidate.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return service.candidateRepo.ListByOwner(context, kind, ownerID)
}

// Select pins a candidate as the owner's manual choice.
func (service *Service) Select(context context.Context, kind job.OwnerKind, ownerID, candidateID string) error {
	return service.selector.Select(context, kind, ownerID, candidateID)
}

// AutoSelect re-evaluates auto-selection for an owner's round on demand.
func (service *Service) AutoSelect(context context.Context, kind job.OwnerKind, ownerID string) error {
	candidates, err := service.candidateRepo.ListByOwner(context, kind, ownerID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return apperr.Unprocessable("No candidates to select from")
	}

	return service.selector.MaybeAutoSelect(context, candidates[0].ProjectID, kind, ownerID)
}

/*
Delete removes a candidate from its round.

Description: Cancels the rendering job if still in flight and deletes the
row. When the deleted candidate carried the selection, auto-selection
re-arms for the remaining round.
*/
func (service *Service) Delete(context context.Context, id string) error {
	candidate, err := service.candidateRepo.FindByID(context, id)
	if err != nil {
		return err
	}

	if !candidate.Status.Terminal() && candidate.Status != StatusSuperseded {
		if err := service.orch.CancelOwner(context, job.OwnerCandidate, candidate.ID); err != nil {
			return err
		}
	}

	if err := service.candidateRepo.Delete(context, id); err != nil {
		return err
	}

	if candidate.Selection != selection.ModeNone {
		return service.selector.MaybeAutoSelect(context, candidate.ProjectID, candidate.OwnerKind, candidate.OwnerID)
	}

	return nil
}

/*
DeleteOwned removes an owner's entire candidate history.

Description: Called when the owning page or reference slot is deleted.
Rendering jobs of live candidates are cancelled first; the polymorphic
owner link carries no database constraint, so without this sweep deleted
owners would leave candidate rows behind.
*/
func (service *Service) DeleteOwned(context context.Context, kind job.OwnerKind, ownerID string) error {
	candidates, err := service.candidateRepo.ListByOwner(context, kind, ownerID)
	if err != nil {
		return err
	}
	for _, candidate := range candidates {
		if candidate.Status.Terminal() {
			continue
		}
		if err := service.orch.CancelOwner(context, job.OwnerCandidate, candidate.ID); err != nil {
			return err
		}
	}

	return service.candidateRepo.DeleteByOwner(context, kind, ownerID)
}

/*
File resolves the on-disk location of a candidate's image.

Description: Serves the downloaded copy, fetching it first when the
original download failed. With thumb set, serves the webp thumbnail
instead.

Returns:
  - string: Absolute filesystem path
  - error: Unprocessable when the candidate has no image yet
*/
func (service *Service) File(context context.Context, id string, thumb bool) (string, error) {
	candidate, err := service.candidateRepo.FindByID(context, id)
	if err != nil {
		return "", err
	}

	if candidate.Status != StatusSucceeded && candidate.Status != StatusSuperseded {
		return "", apperr.Unprocessable("Candidate has no image yet")
	}

	if candidate.LocalPath == "" {
		if candidate.AssetRef == "" {
			return "", apperr.Unprocessable("Candidate has no image reference")
		}
		localPath := service.download(context, candidate.AssetRef)
		if localPath == "" {
			return "", apperr.Unprocessable("Image could not be retrieved from the provider")
		}
		if err := service.candidateRepo.MarkResult(context, candidate.ID, candidate.Status, candidate.AssetRef, localPath); err != nil {
			return "", err
		}
		candidate.LocalPath = localPath
	}

	if thumb {
		thumbPath, err := service.assets.Thumbnail(candidate.LocalPath, thumbEdge)
		if err != nil {
			return "", err
		}
		return service.assets.AbsPath(thumbPath), nil
	}

	return service.assets.AbsPath(candidate.LocalPath), nil
}
