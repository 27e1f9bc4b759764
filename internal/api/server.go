// Copyright (c) 2026 Storyforge. All rights reserved.
// Author: dev@fablemint.io

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fablemint/storyforge/internal/core/image"
	"github.com/fablemint/storyforge/internal/core/page"
	"github.com/fablemint/storyforge/internal/core/project"
	"github.com/fablemint/storyforge/internal/core/reference"
	"github.com/fablemint/storyforge/internal/export"
	"github.com/fablemint/storyforge/internal/orchestrator"
	"github.com/fablemint/storyforge/internal/platform/config"
	"github.com/fablemint/storyforge/internal/platform/constants"
	"github.com/fablemint/storyforge/internal/platform/middleware"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Project handles book lifecycle, content upload, and the stage machine.
	Project *project.Handler

	// Reference manages reference image slots and their generations.
	Reference *reference.Handler

	// Page manages page planning, prompts, and illustrations.
	Page *page.Handler

	// Image handles individual candidates and downloads.
	Image *image.Handler

	// Jobs exposes the generation job ledger.
	Jobs *orchestrator.Handler

	// Export moves prompts between projects and Excel workbooks.
	Export *export.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated health probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	// Domain handlers register their routes under the versioned prefix.
	// Several domains hang sub-resources off /projects/{id}, so they
	// share one router instead of per-domain mounts.
	r.Route("/api/v1", func(api chi.Router) {
		h.Project.RegisterRoutes(api)
		h.Reference.RegisterRoutes(api)
		h.Page.RegisterRoutes(api)
		h.Image.RegisterRoutes(api)
		h.Jobs.RegisterRoutes(api)
		h.Export.RegisterRoutes(api)
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
