// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package project

import (
	"net/http"

	requestutil "github.com/fablemint/storyforge/internal/platform/request"
	"github.com/fablemint/storyforge/internal/platform/respond"
	"github.com/fablemint/storyforge/pkg/pagination"
	"github.com/go-chi/chi/v5"
)

const (
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"

	// maxContentUpload bounds the raw story text accepted in one request.
	maxContentUpload = 1 << 20
	// maxStyleUpload bounds a single style reference image.
	maxStyleUpload = 50 << 20
)

// # Handler Implementation

// Handler implements the HTTP layer for project management.
type Handler struct {
	service *Service
}

// NewHandler constructs a new project [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches project lifecycle endpoints to the root API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Post("/projects", handler.CreateProject)
	api.Get("/projects", handler.ListProjects)
	api.Get("/projects/{id}", handler.GetProject)
	api.Put("/projects/{id}", handler.UpdateProject)
	api.Delete("/projects/{id}", handler.DeleteProject)

	// Content & style configuration
	api.Post("/projects/{id}/content", handler.UploadContent)
	api.Post("/projects/{id}/style-reference", handler.UploadStyleReference)
	api.Post("/projects/{id}/reverse-style-prompt", handler.ReverseStylePrompt)

	// Stage machine
	api.Get("/projects/{id}/stage", handler.GetStage)
	api.Post("/projects/{id}/stage/advance", handler.AdvanceStage)
}

// # Project CRUD

// createProjectRequest defines the inbound JSON schema for new projects.
type createProjectRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Platform        string `json:"platform"`
	TargetAge       string `json:"target_age"`
	ImageSize       string `json:"image_size"`
	ImageResolution string `json:"image_resolution"`
}

/*
POST /api/v1/projects.

Description: Creates a new picture-book project in the initial stage.

Request:
  - name: string (Required)
  - description: string
  - platform: string (jimeng, volcano, mj)
  - target_age: string
  - image_size: string (1:1, 4:3, 3:4, 16:9, 9:16)
  - image_resolution: string (1K, 2K, 4K)

Response:
  - 201: Project: The created project
  - 400: ErrValidation: Invalid configuration
*/
func (handler *Handler) CreateProject(writer http.ResponseWriter, request *http.Request) {
	var input createProjectRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	project := &Project{
		Name:            input.Name,
		Description:     input.Description,
		Platform:        input.Platform,
		TargetAge:       input.TargetAge,
		ImageSize:       input.ImageSize,
		ImageResolution: input.ImageResolution,
	}

	if err := handler.service.CreateProject(request.Context(), project); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, project)
}

/*
GET /api/v1/projects.

Description: Returns a paginated roster of projects, newest first.

Request:
  - limit: int
  - page: int

Response:
  - 200: []Project: Paginated list
*/
func (handler *Handler) ListProjects(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	projects, total, err := handler.service.ListProjects(request.Context(), paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: projects,
		FieldTotal: total,
	})
}

/*
GET /api/v1/projects/{id}.

Response:
  - 200: Project
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) GetProject(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	project, err := handler.service.GetProject(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, project)
}

// updateProjectRequest defines the inbound JSON schema for partial updates.
// Absent fields leave the stored value unchanged.
type updateProjectRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	Platform        *string `json:"platform"`
	StylePrompt     *string `json:"style_prompt"`
	TargetAge       *string `json:"target_age"`
	ImageSize       *string `json:"image_size"`
	ImageResolution *string `json:"image_resolution"`
}

/*
PUT /api/v1/projects/{id}.

Description: Applies a partial update to project configuration.

Response:
  - 200: Project: The updated project
  - 400: ErrValidation: Invalid configuration
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) UpdateProject(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	var input updateProjectRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	project, err := handler.service.UpdateProject(request.Context(), id, UpdateInput{
		Name:            input.Name,
		Description:     input.Description,
		Platform:        input.Platform,
		StylePrompt:     input.StylePrompt,
		TargetAge:       input.TargetAge,
		ImageSize:       input.ImageSize,
		ImageResolution: input.ImageResolution,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, project)
}

/*
DELETE /api/v1/projects/{id}.

Description: Deletes a project, cancelling its in-flight jobs and cascading
to references, pages and candidates.

Response:
  - 200: message: Confirmation
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) DeleteProject(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	if err := handler.service.DeleteProject(request.Context(), id); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldMessage: "Project deleted successfully",
	})
}

// # Content & Style

/*
POST /api/v1/projects/{id}/content.

Description: Uploads the story text. Accepts a multipart "file" part or a raw
text body. The text must contain at least one page label (P1, P2, ...).

Response:
  - 200: []Segment: The parsed page segments
  - 400: ErrValidation: No page labels found
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) UploadContent(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	request.Body = http.MaxBytesReader(writer, request.Body, maxContentUpload)

	reader := request.Body
	if err := request.ParseMultipartForm(maxContentUpload); err == nil {
		file, _, err := request.FormFile("file")
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		defer file.Close()
		reader = file
	}

	segments, err := handler.service.UploadContent(request.Context(), id, reader)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldItems: segments,
		FieldTotal: len(segments),
	})
}

/*
POST /api/v1/projects/{id}/style-reference.

Description: Uploads a style reference image as a multipart "file" part and
records it on the project.

Response:
  - 200: style_asset: Stored asset path
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) UploadStyleReference(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	request.Body = http.MaxBytesReader(writer, request.Body, maxStyleUpload)
	if err := request.ParseMultipartForm(maxStyleUpload); err != nil {
		respond.Error(writer, request, err)
		return
	}

	file, header, err := request.FormFile("file")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	defer file.Close()

	assetPath, err := handler.service.UploadStyleReference(request.Context(), id, header.Filename, file)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"style_asset": assetPath,
	})
}

/*
POST /api/v1/projects/{id}/reverse-style-prompt.

Description: Queues a job that derives a textual style prompt from the
uploaded style reference image.

Response:
  - 200: Job: The queued or already-active job
  - 422: ErrUnprocessable: No style reference uploaded
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) ReverseStylePrompt(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	queued, err := handler.service.ReverseStylePrompt(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, queued)
}

// # Stage Machine

/*
GET /api/v1/projects/{id}/stage.

Description: Returns the current stage and the progress snapshot used to
evaluate its exit conditions.

Response:
  - 200: stage + snapshot
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) GetStage(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	current, snapshot, err := handler.service.Stage(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"stage":    current,
		"snapshot": snapshot,
	})
}

/*
POST /api/v1/projects/{id}/stage/advance.

Description: Advances the project to the next stage when the current stage's
exit conditions are met.

Response:
  - 200: stage: The new stage
  - 409: ErrConflict: Exit conditions not met or concurrent stage change
  - 404: ErrNotFound: Project not found
*/
func (handler *Handler) AdvanceStage(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	next, err := handler.service.AdvanceStage(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"stage": next,
	})
}
