// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package image

import (
	"net/http"

	requestutil "github.com/fablemint/storyforge/internal/platform/request"
	"github.com/fablemint/storyforge/internal/platform/respond"
	"github.com/go-chi/chi/v5"
)

// # Handler Implementation

// Handler implements the candidate-centric HTTP layer. Owner-centric
// endpoints (generate a round for a page or reference) live with their
// owning domain.
type Handler struct {
	service *Service
}

// NewHandler constructs a new image [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches candidate endpoints to the root API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/images/{id}", handler.GetCandidate)
	api.Post("/images/{id}/check-status", handler.CheckStatus)
	api.Post("/images/{id}/select", handler.SelectCandidate)
	api.Delete("/images/{id}", handler.DeleteCandidate)
	api.Get("/images/{id}/download", handler.Download)
}

/*
GET /api/v1/images/{id}.

Response:
  - 200: Candidate
  - 404: ErrNotFound: Candidate not found
*/
func (handler *Handler) GetCandidate(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	candidate, err := handler.service.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, candidate)
}

/*
POST /api/v1/images/{id}/check-status.

Description: Forces an immediate provider status check on the candidate's
whole generation round and returns the refreshed candidate.

Response:
  - 200: Candidate: Refreshed state
  - 404: ErrNotFound: Candidate not found
*/
func (handler *Handler) CheckStatus(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	candidate, err := handler.service.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if _, err := handler.service.CheckStatus(request.Context(), candidate.OwnerKind, candidate.OwnerID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	refreshed, err := handler.service.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, refreshed)
}

/*
POST /api/v1/images/{id}/select.

Description: Pins this candidate as the manual selection for its owner.
Manual selections override and block later auto-selection.

Response:
  - 200: Candidate: The selected candidate
  - 422: ErrUnprocessable: Candidate has not succeeded
  - 404: ErrNotFound: Candidate not found
*/
func (handler *Handler) SelectCandidate(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	candidate, err := handler.service.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Select(request.Context(), candidate.OwnerKind, candidate.OwnerID, id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	selected, err := handler.service.Get(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, selected)
}

/*
GET /api/v1/images/{id}/download.

Description: Streams the candidate's image from local storage, downloading
it from the provider first if needed.

Request:
  - thumb: bool (Serve the webp thumbnail instead of the original)

Response:
  - 200: The image bytes
  - 422: ErrUnprocessable: Candidate has no image yet
  - 404: ErrNotFound: Candidate not found
*/
func (handler *Handler) Download(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")
	thumb := request.URL.Query().Get("thumb") == "1" || request.URL.Query().Get("thumb") == "true"

	path, err := handler.service.File(request.Context(), id, thumb)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.ServeFile(writer, request, path)
}

/*
DELETE /api/v1/images/{id}.

Description: Removes a candidate from its round, cancelling its rendering
job if still in flight. Removing the selected candidate clears the
selection and re-arms auto-selection.

Response:
  - 200: message: Confirmation
  - 404: ErrNotFound: Candidate not found
*/
func (handler *Handler) DeleteCandidate(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	if err := handler.service.Delete(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"message": "Candidate deleted successfully",
	})
}
