// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

package export

import (
	"fmt"
	"net/http"

	requestutil "github.com/fablemint/storyforge/internal/platform/request"
	"github.com/fablemint/storyforge/internal/platform/respond"
	"github.com/go-chi/chi/v5"
)

// maxWorkbookUpload bounds an uploaded prompt workbook.
const maxWorkbookUpload = 10 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// # Handler Implementation

// Handler implements the HTTP layer for prompt workbook exchange.
type Handler struct {
	service *Service
}

// NewHandler constructs a new export [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes attaches export endpoints to the root API router.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/projects/{id}/export/prompts.xlsx", handler.DownloadPrompts)
	api.Get("/projects/{id}/export/references.xlsx", handler.DownloadReferences)
	api.Post("/projects/{id}/export/prompts/import", handler.ImportPrompts)
}

// # Downloads

/*
GET /api/v1/projects/{id}/export/prompts.xlsx.

Description: Downloads the project's page prompts as an Excel workbook.

Response:
  - 200: The xlsx file as an attachment
  - 404: ErrNotFound: Project not found
  - 422: ErrUnprocessable: Project has no pages yet
*/
func (handler *Handler) DownloadPrompts(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	path, filename, err := handler.service.PromptsWorkbook(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	serveWorkbook(writer, request, path, filename)
}

/*
GET /api/v1/projects/{id}/export/references.xlsx.

Description: Downloads the project's reference prompts as an Excel workbook.

Response:
  - 200: The xlsx file as an attachment
  - 404: ErrNotFound: Project not found
  - 422: ErrUnprocessable: Project has no reference slots yet
*/
func (handler *Handler) DownloadReferences(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	path, filename, err := handler.service.ReferencesWorkbook(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	serveWorkbook(writer, request, path, filename)
}

func serveWorkbook(writer http.ResponseWriter, request *http.Request, path, filename string) {
	writer.Header().Set("Content-Type", xlsxContentType)
	writer.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(writer, request, path)
}

// # Import

/*
POST /api/v1/projects/{id}/export/prompts/import.

Description: Applies an edited workbook back to the project. Accepts a
multipart "file" part or a raw xlsx body.

Response:
  - 200: ImportSummary: Counts of updated pages and references
  - 400: ErrValidation: Not a readable xlsx workbook
  - 404: ErrNotFound: Project not found
  - 422: ErrUnprocessable: No applicable rows in the workbook
*/
func (handler *Handler) ImportPrompts(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	request.Body = http.MaxBytesReader(writer, request.Body, maxWorkbookUpload)

	reader := request.Body
	if err := request.ParseMultipartForm(maxWorkbookUpload); err == nil {
		file, _, err := request.FormFile("file")
		if err != nil {
			respond.Error(writer, request, err)
			return
		}
		defer file.Close()
		reader = file
	}

	summary, err := handler.service.ImportPrompts(request.Context(), id, reader)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, summary)
}
