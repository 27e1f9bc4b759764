// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package reference

import (
	"net/http"

	requestutil "github.com/fablemint/storyforge/internal/platform/request"
	"github.com/fablemint/storyforge/internal/platform/respond"
	"github.com/go-chi/chi/v5"
)

const (
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
)

// # Handler Implementation

// Handler implements the HTTP layer for reference image slots.
type Handler struct {
	service *Service
}

// NewHandler constructs a new reference [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches reference endpoints to the root API router.
// Slot endpoints span both /projects/{id}/... and /references/... prefixes.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Post("/projects/{id}/references/generate-prompts", handler.GeneratePrompts)
	api.Get("/projects/{id}/references", handler.ListReferences)

	api.Get("/references/{id}", handler.GetReference)
	api.Delete("/references/{id}", handler.DeleteReference)
	api.Put("/references/{id}/prompt", handler.UpdatePrompt)
	api.Post("/references/{id}/generate", handler.Generate)
	api.Get("/references/{id}/images", handler.ListCandidates)
	api.Post("/references/{id}/check-status", handler.CheckStatus)
}

// # Prompt Extraction

/*
POST /api/v1/projects/{id}/references/generate-prompts.

Description: Queues the workflow that extracts one reference prompt per
character, prop and scene from the story text.

Response:
  - 200: Job: The queued or already-active extraction job
  - 422: ErrUnprocessable: Content or style prompt missing
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) GeneratePrompts(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	queued, err := handler.service.GeneratePrompts(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, queued)
}

/*
GET /api/v1/projects/{id}/references.

Request:
  - type: string (character, prop, scene)

Response:
  - 200: []Reference: The project's slots, characters first
*/
func (handler *Handler) ListReferences(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")
	refType := Type(request.URL.Query().Get("type"))

	references, err := handler.service.List(request.Context(), id, refType)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: references,
		FieldTotal: len(references),
	})
}

// # Slot Management

/*
GET /api/v1/references/{id}.

Response:
  - 200: Reference
  - 404: ErrNotFound: Reference not found
*/
func (handler *Handler) GetReference(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	reference, err := handler.service.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, reference)
}

/*
DELETE /api/v1/references/{id}.

Description: Deletes a slot, cancelling in-flight work; its candidates
cascade.

Response:
  - 200: message: Confirmation
  - 404: ErrNotFound: Reference not found
*/
func (handler *Handler) DeleteReference(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	if err := handler.service.Delete(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Reference deleted successfully",
	})
}

// updatePromptRequest defines the inbound JSON schema for prompt edits.
type updatePromptRequest struct {
	Prompt string `json:"prompt"`
}

/*
PUT /api/v1/references/{id}/prompt.

Description: Stores a hand-edited prompt on the slot. The next generation
round uses the edited prompt.

Response:
  - 200: Reference: The updated slot
  - 400: ErrValidation: Empty prompt
  - 404: ErrNotFound: Reference not found
*/
func (handler *Handler) UpdatePrompt(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	var input updatePromptRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	reference, err := handler.service.UpdatePrompt(request.Context(), id, input.Prompt)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, reference)
}

// # Image Generation

/*
POST /api/v1/references/{id}/generate.

Description: Opens a candidate round for the slot on the project's
configured platform. A repeat call retires the previous round.

Request:
  - count: int (Candidates per round, default 3)

Response:
  - 200: []Candidate: The fresh round
  - 422: ErrUnprocessable: Slot has no prompt yet
  - 404: ErrNotFound: Reference not found
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
GET /api/v1/references/{id}/images.

Response:
  - 200: []Candidate: The slot's current round, oldest first
  - 404: ErrNotFound: Reference not found
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
POST /api/v1/references/{id}/check-status.

Description: Forces an immediate provider status check on the slot's
in-flight rendering jobs.

Response:
  - 200: []Candidate: The refreshed round
  - 404: ErrNotFound: Reference not found
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
