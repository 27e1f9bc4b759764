// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package page

import (
	"net/http"

	requestutil "github.com/fablemint/storyforge/internal/platform/request"
	"github.com/fablemint/storyforge/internal/platform/respond"
	"github.com/fablemint/storyforge/pkg/pointer"
	"github.com/go-chi/chi/v5"
)

const (
	FieldItems    = "items"
	FieldTotal    = "total"
	FieldMessage  = "message"
	FieldRejected = "rejected"
)

// # Handler Implementation

// Handler implements the HTTP layer for page planning and generation.
type Handler struct {
	service *Service
}

// NewHandler constructs a new page [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches page endpoints to the root API router.
// Page endpoints span both /projects/{id}/... and /pages/... prefixes.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	// Planning
	api.Post("/projects/{id}/pages/plan", handler.PlanPages)
	api.Post("/projects/{id}/pages/plan/complete", handler.CompletePlanning)
	api.Get("/projects/{id}/pages", handler.ListPages)
	api.Post("/projects/{id}/pages/generate-all-prompts", handler.GenerateAllPrompts)

	// Individual pages
	api.Get("/pages/{id}", handler.GetPage)
	api.Put("/pages/{id}", handler.UpdatePage)
	api.Delete("/pages/{id}", handler.DeletePage)
	api.Put("/pages/{id}/prompt", handler.UpdatePrompt)
	api.Post("/pages/{id}/skip", handler.SkipPage)
	api.Post("/pages/{id}/generate-prompt", handler.GeneratePrompt)
	api.Post("/pages/{id}/generate", handler.Generate)
	api.Get("/pages/{id}/images", handler.ListCandidates)
	api.Post("/pages/{id}/check-status", handler.CheckStatus)
	api.Post("/pages/{id}/auto-select", handler.AutoSelect)
}

// # Planning

// planPagesRequest defines the inbound JSON schema for planning.
type planPagesRequest struct {
	Pages []PagePlan `json:"pages"`
}

/*
POST /api/v1/projects/{id}/pages/plan.

Description: Builds the page set from the uploaded manuscript, applying
per-page scene and reference decisions. Re-planning replaces the set.

Request:
  - pages: []PagePlan (Optional decisions, matched by page label)

Response:
  - 200: []Page: The new page set in reading order
  - 400: ErrValidation: Bad scene type or reference assignment
  - 422: ErrUnprocessable: No content uploaded
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) PlanPages(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	input := planPagesRequest{}
	if request.ContentLength > 0 {
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	pages, err := handler.service.PlanPages(request.Context(), id, input.Pages)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: pages,
		FieldTotal: len(pages),
	})
}

/*
POST /api/v1/projects/{id}/pages/plan/complete.

Description: Confirms the page set, unlocking the stage advance towards
prompt generation.

Response:
  - 200: message: Confirmation
  - 422: ErrUnprocessable: No pages planned yet
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) CompletePlanning(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	if err := handler.service.CompletePlanning(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Planning completed",
	})
}

/*
GET /api/v1/projects/{id}/pages.

Response:
  - 200: []Page: The project's pages in reading order
*/
func (handler *Handler) ListPages(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	pages, err := handler.service.List(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: pages,
		FieldTotal: len(pages),
	})
}

/*
POST /api/v1/projects/{id}/pages/generate-all-prompts.

Description: Queues prompt assembly for every non-skipped page without a
prompt. Pages whose prerequisites are unmet come back under "rejected"
instead of failing the batch.

Response:
  - 200: items + rejected
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) GenerateAllPrompts(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	queued, rejected, err := handler.service.GenerateAllPrompts(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems:    queued,
		FieldTotal:    len(queued),
		FieldRejected: rejected,
	})
}

// # Individual Pages

/*
GET /api/v1/pages/{id}.

Response:
  - 200: Page
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) GetPage(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	page, err := handler.service.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, page)
}

// updatePageRequest defines the inbound JSON schema for partial updates.
type updatePageRequest struct {
	Content      *string    `json:"content"`
	SceneType    *SceneType `json:"scene_type"`
	ReferenceIDs *[]string  `json:"reference_ids"`
	Skipped      *bool      `json:"skipped"`
}

/*
PUT /api/v1/pages/{id}.

Description: Applies a partial update. Changing content, scene type or
assignments invalidates an assembled prompt.

Response:
  - 200: Page: The updated page
  - 400: ErrValidation: Bad scene type or reference assignment
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) UpdatePage(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	var input updatePageRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	page, err := handler.service.UpdatePage(request.Context(), id, UpdateInput{
		Content:      input.Content,
		SceneType:    input.SceneType,
		ReferenceIDs: input.ReferenceIDs,
		Skipped:      input.Skipped,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, page)
}

/*
DELETE /api/v1/pages/{id}.

Response:
  - 200: message: Confirmation
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) DeletePage(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	if err := handler.service.Delete(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Page deleted successfully",
	})
}

// updatePromptRequest defines the inbound JSON schema for prompt edits.
type updatePromptRequest struct {
	Prompt string `json:"prompt"`
}

/*
PUT /api/v1/pages/{id}/prompt.

Response:
  - 200: Page: The updated page
  - 400: ErrValidation: Empty prompt
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) UpdatePrompt(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	var input updatePromptRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	page, err := handler.service.UpdatePrompt(request.Context(), id, input.Prompt)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, page)
}

// # Prompt Assembly & Generation

/*
POST /api/v1/pages/{id}/generate-prompt.

Description: Queues the workflow that assembles this page's illustration
prompt from its text, scene treatment, style prompt and the selected
images of its assigned references.

Response:
  - 200: Job: The queued or already-active assembly job
  - 422: ErrUnprocessable: Page skipped, or a reference lacks a selection
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) GeneratePrompt(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	queued, err := handler.service.GeneratePrompt(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, queued)
}

/*
POST /api/v1/pages/{id}/generate.

Description: Opens a candidate round for the page's assembled prompt.

Request:
  - count: int (Candidates per round, default 3)

Response:
  - 200: []Candidate: The fresh round
  - 422: ErrUnprocessable: No prompt yet, or page skipped
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) Generate(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")
	count := requestutil.QueryInt(request, "count", 0)

	candidates, err := handler.service.Generate(request.Context(), id, count)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: candidates,
		FieldTotal: len(candidates),
	})
}

/*
GET /api/v1/pages/{id}/images.

Response:
  - 200: []Candidate: The page's current round, oldest first
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) ListCandidates(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	candidates, err := handler.service.Candidates(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: candidates,
		FieldTotal: len(candidates),
	})
}

/*
POST /api/v1/pages/{id}/check-status.

Description: Forces an immediate provider status check on the page's
in-flight rendering jobs.

Response:
  - 200: []Candidate: The refreshed round
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) CheckStatus(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	candidates, err := handler.service.CheckStatus(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: candidates,
		FieldTotal: len(candidates),
	})
}

// skipPageRequest defines the inbound JSON schema for skip toggles.
// An absent body skips the page.
type skipPageRequest struct {
	Skipped *bool `json:"skipped"`
}

/*
POST /api/v1/pages/{id}/skip.

Description: Toggles the skipped flag. Skipped pages keep their text but
are excluded from prompts, generation and the stage exit counts.

Request:
  - skipped: bool (Defaults to true)

Response:
  - 200: Page: The updated page
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) SkipPage(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	input := skipPageRequest{}
	if request.ContentLength > 0 {
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	page, err := handler.service.UpdatePage(request.Context(), id, UpdateInput{
		Skipped: pointer.To(pointer.Fallback(input.Skipped, true)),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, page)
}

/*
POST /api/v1/pages/{id}/auto-select.

Description: Re-evaluates auto-selection for the page's candidate round on
demand. A no-op while candidates are still in flight or a manual selection
pins the round.

Response:
  - 200: message: Confirmation
  - 422: ErrUnprocessable: No candidates yet
  - 404: ErrNotFound: Page not found
*/
func (handler *Handler) AutoSelect(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	if err := handler.service.AutoSelect(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Selection re-evaluated",
	})
}
