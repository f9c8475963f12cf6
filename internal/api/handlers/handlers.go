package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/api/middleware"
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/domain"
	"github.com/dvloznov/statement-scrubber/internal/jobs"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/pipeline"
	"github.com/dvloznov/statement-scrubber/internal/redact"
	"github.com/dvloznov/statement-scrubber/internal/statement"
	"github.com/go-chi/chi/v5"
)

// maxScrubChars bounds the text accepted by the scrub preview.
const maxScrubChars = 1 << 20

// Analyzer is the part of pipeline.Analyzer the HTTP layer needs.
type Analyzer interface {
	Analyze(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// AnalyzeHandler handles synchronous statement analysis.
type AnalyzeHandler struct {
	analyzer Analyzer
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(analyzer Analyzer) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer}
}

// Analyze handles POST /analyze
//
// The request is multipart with a "file" part and an optional "password"
// field. The response is the JSON array of masked transaction records.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	file, header, err := r.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	res, err := h.analyzer.Analyze(ctx, pipeline.Input{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Password:    r.FormValue("password"),
		Source:      pipeline.SourceUpload,
	})
	if err != nil {
		status, detail := analysisErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("Statement analysis failed")
		} else {
			log.Warn().Err(err).Int("status", status).Msg("Statement analysis rejected")
		}
		middleware.WriteError(w, status, detail)
		return
	}

	records := res.Records
	if records == nil {
		records = []domain.TransactionRecord{}
	}
	w.Header().Set("X-Run-ID", res.RunID)
	middleware.WriteJSON(w, http.StatusOK, records)
}

// analysisErrorStatus maps an analysis error onto an HTTP status and a
// client-facing message.
func analysisErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrMissingAPIKey):
		return http.StatusInternalServerError, "Missing Server API Key"
	case errors.Is(err, statement.ErrIncorrectPassword):
		return http.StatusBadRequest, "Incorrect Password"
	case errors.Is(err, statement.ErrPasswordRequired):
		return http.StatusBadRequest, "PDF is password protected"
	case errors.Is(err, statement.ErrNoText):
		return http.StatusBadRequest, "Could not extract text from PDF. It might be scanned/image-based."
	case errors.Is(err, statement.ErrInvalidPDF):
		return http.StatusBadRequest, "Invalid PDF"
	case errors.Is(err, pipeline.ErrNoInput):
		return http.StatusBadRequest, "file is required"
	case errors.Is(err, pipeline.ErrAllModelsFailed):
		detail := "All models failed."
		msg := err.Error()
		if i := strings.Index(msg, "last error: "); i >= 0 {
			detail += " Last error: " + msg[i+len("last error: "):]
		}
		return http.StatusTooManyRequests, detail
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// ScrubHandler previews the redaction of raw text without calling a model.
type ScrubHandler struct {
	redactor *redact.Redactor
}

// NewScrubHandler creates a new scrub handler. A nil redactor uses the
// default keyword set.
func NewScrubHandler(redactor *redact.Redactor) *ScrubHandler {
	if redactor == nil {
		redactor = redact.Default()
	}
	return &ScrubHandler{redactor: redactor}
}

// Scrub handles POST /api/scrub
func (h *ScrubHandler) Scrub(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Text) > maxScrubChars {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request too large")
		return
	}

	scrubbed, report := h.redactor.ScrubWithReport(req.Text)

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"text":       scrubbed,
		"report":     report,
		"redactions": report.Total(),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store     jobs.JobStore
	publisher jobs.Publisher
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, publisher jobs.Publisher) *JobsHandler {
	return &JobsHandler{
		store:     store,
		publisher: publisher,
	}
}

// EnqueueAnalysis handles POST /api/jobs
func (h *JobsHandler) EnqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GCSURI   string `json:"gcs_uri"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.GCSURI = strings.TrimSpace(req.GCSURI)
	if !strings.HasPrefix(req.GCSURI, "gs://") {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri must be a gs:// URI")
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx)

	job := &jobs.AnalyzeStatementJob{
		GCSURI:   req.GCSURI,
		Password: req.Password,
	}

	if err := h.publisher.PublishAnalyzeStatement(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue analysis job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("gcs_uri", req.GCSURI).Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"gcs_uri": req.GCSURI,
		"status":  string(jobs.JobStatusPending),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
		GCSURI: query.Get("gcs_uri"),
		Limit:  queryInt(query.Get("limit")),
		Offset: queryInt(query.Get("offset")),
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// RunsHandler exposes the analysis audit trail.
type RunsHandler struct {
	runs bq.RunRepository
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs bq.RunRepository) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runs, err := h.runs.ListRecentRuns(ctx, queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list analysis runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list analysis runs")
		return
	}
	if runs == nil {
		runs = []*bq.AnalysisRunRow{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// queryInt parses a non-negative integer query value; anything else is 0.
func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
