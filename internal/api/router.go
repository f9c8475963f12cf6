// Package api wires the HTTP handlers and middleware into a chi router.
package api

import (
	"net/http"

	"github.com/dvloznov/statement-scrubber/internal/api/handlers"
	"github.com/dvloznov/statement-scrubber/internal/api/middleware"
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/jobs"
	"github.com/dvloznov/statement-scrubber/internal/redact"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Metrics is what the router needs from the metrics registry.
type Metrics interface {
	middleware.HTTPRecorder
	Handler() http.Handler
}

// Deps are the services behind the HTTP API. JobStore, Publisher, Runs and
// Metrics are optional; their routes are not mounted when nil.
type Deps struct {
	Analyzer  handlers.Analyzer
	Redactor  *redact.Redactor
	JobStore  jobs.JobStore
	Publisher jobs.Publisher
	Runs      bq.RunRepository
	Metrics   Metrics

	Log            zerolog.Logger
	CORSOrigins    []string
	MaxUploadBytes int64
}

// NewRouter builds the API router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS(d.CORSOrigins))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	r.Get("/health", handlers.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBytes(d.MaxUploadBytes))

		r.Post("/analyze", handlers.NewAnalyzeHandler(d.Analyzer).Analyze)
		r.Post("/api/scrub", handlers.NewScrubHandler(d.Redactor).Scrub)

		if d.JobStore != nil && d.Publisher != nil {
			jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Publisher)
			r.Post("/api/jobs", jobsHandler.EnqueueAnalysis)
			r.Get("/api/jobs", jobsHandler.ListJobs)
			r.Get("/api/jobs/{id}", jobsHandler.GetJob)
		}

		if d.Runs != nil {
			r.Get("/api/runs", handlers.NewRunsHandler(d.Runs).ListRuns)
		}
	})

	return r
}
