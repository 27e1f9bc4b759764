// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package orchestrator

import (
	"net/http"

	requestutil "github.com/fablemint/storyforge/internal/platform/request"
	"github.com/fablemint/storyforge/internal/platform/respond"
	"github.com/go-chi/chi/v5"
)

const (
	FieldItems = "items"
	FieldTotal = "total"
)

// # Handler Implementation

// Handler exposes the job ledger over HTTP: inspection, manual retry and
// cancellation.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a new job [Handler].
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes attaches job endpoints to the root API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/projects/{id}/jobs", handler.ListJobs)
	api.Get("/jobs/{id}", handler.GetJob)
	api.Post("/jobs/{id}/retry", handler.RetryJob)
	api.Post("/jobs/{id}/cancel", handler.CancelJob)
}

/*
GET /api/v1/projects/{id}/jobs.

Response:
  - 200: []Job: Every job under the project, newest first
*/
func (handler *Handler) ListJobs(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	jobs, err := handler.engine.Jobs(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: jobs,
		FieldTotal: len(jobs),
	})
}

/*
GET /api/v1/jobs/{id}.

Response:
  - 200: Job
  - 404: ErrNotFound: Job not found
*/
func (handler *Handler) GetJob(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	entry, err := handler.engine.Job(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, entry)
}

/*
POST /api/v1/jobs/{id}/retry.

Description: Requeues a terminally failed job, opening one more attempt
window even when automatic retries were exhausted.

Response:
  - 200: Job: The requeued job
  - 409: ErrInvalidTransition: Job is not in a failed state
  - 404: ErrNotFound: Job not found
*/
func (handler *Handler) RetryJob(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	requeued, err := handler.engine.Retry(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, requeued)
}

/*
POST /api/v1/jobs/{id}/cancel.

Description: Cancels a non-terminal job. A provider result arriving later
is discarded.

Response:
  - 200: Job: The cancelled job
  - 409: ErrInvalidTransition: Job already terminal
  - 404: ErrNotFound: Job not found
*/
func (handler *Handler) CancelJob(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	cancelled, err := handler.engine.Cancel(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, cancelled)
}
