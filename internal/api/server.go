// SPDX-License-Identifier: MIT

// Package api is morphd's HTTP surface: job submission, progress streaming,
// session status, corpus browsing, and artifact serving.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/xaimorph/morphd/internal/config"
	"github.com/xaimorph/morphd/internal/library"
	"github.com/xaimorph/morphd/internal/pipeline"
	"github.com/xaimorph/morphd/internal/session"
)

// Server holds the handlers' collaborators.
type Server struct {
	cfg       config.Config
	sequencer *pipeline.Sequencer
	registry  *session.Registry
	library   *library.Library

	// jobLimiter throttles job starts globally, on top of the sequencer's
	// concurrency cap. Burst of one: jobs are expensive.
	jobLimiter *rate.Limiter
}

// NewServer wires the HTTP layer.
func NewServer(cfg config.Config, seq *pipeline.Sequencer, reg *session.Registry, lib *library.Library) *Server {
	perMinute := cfg.JobStartPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	return &Server{
		cfg:        cfg,
		sequencer:  seq,
		registry:   reg,
		library:    lib,
		jobLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Router builds the route tree with the shared middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/morph", s.handleStartMorph)
		r.Get("/progress/{sessionID}", s.handleProgress)
		r.Get("/session/{sessionID}", s.handleSession)
		r.Get("/categories", s.handleCategories)
		r.Get("/random-images", s.handleRandomImages)
	})

	r.Handle("/videos/*", http.StripPrefix("/videos/", artifactServer(s.cfg.OutputDir)))
	r.Handle("/images/*", http.StripPrefix("/images/", artifactServer(s.cfg.ImagesDir)))

	return otelhttp.NewHandler(r, "morphd-api")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}
