package bigquery

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/logger"
)

// DefaultLogRunCapacity is the number of runs a LogRunRepository remembers.
const DefaultLogRunCapacity = 100

// LogRunRepository is the RunRepository used when BigQuery is not configured.
// It writes each audit event to the context logger and keeps the most recent
// runs in memory so they can still be listed.
type LogRunRepository struct {
	mu       sync.Mutex
	capacity int
	runs     []*AnalysisRunRow // oldest first
}

// NewLogRunRepository creates a LogRunRepository holding up to capacity runs.
func NewLogRunRepository(capacity int) *LogRunRepository {
	if capacity <= 0 {
		capacity = DefaultLogRunCapacity
	}
	return &LogRunRepository{capacity: capacity}
}

// StartAnalysisRun records a RUNNING run.
func (r *LogRunRepository) StartAnalysisRun(ctx context.Context, row *AnalysisRunRow) error {
	if row.StartedTS.IsZero() {
		row.StartedTS = time.Now()
	}
	row.Status = bq.RunStatusRunning

	stored := *row
	r.mu.Lock()
	r.runs = append(r.runs, &stored)
	if len(r.runs) > r.capacity {
		r.runs = r.runs[len(r.runs)-r.capacity:]
	}
	r.mu.Unlock()

	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", row.RunID).
		Str("source", row.Source).
		Str("filename", row.OriginalFilename).
		Msg("Analysis run started")
	return nil
}

// MarkAnalysisRunSucceeded records the run summary.
func (r *LogRunRepository) MarkAnalysisRunSucceeded(ctx context.Context, runID string, summary RunSummary) error {
	r.update(runID, func(row *AnalysisRunRow) {
		row.Status = bq.RunStatusSuccess
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: time.Now(), Valid: true}
		row.ErrorMessage = ""
		row.ModelName = bigquery.NullString{StringVal: summary.ModelName, Valid: summary.ModelName != ""}
		row.TextChars = bigquery.NullInt64{Int64: int64(summary.TextChars), Valid: true}
		row.LinesTotal = bigquery.NullInt64{Int64: int64(summary.Lines), Valid: true}
		row.Redactions = bigquery.NullInt64{Int64: int64(summary.Redactions), Valid: true}
		row.RecordCount = bigquery.NullInt64{Int64: int64(summary.RecordCount), Valid: true}
	})

	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", runID).
		Str("model", summary.ModelName).
		Int("lines", summary.Lines).
		Int("redactions", summary.Redactions).
		Int("records", summary.RecordCount).
		Msg("Analysis run succeeded")
	return nil
}

// MarkAnalysisRunFailed records the failure.
func (r *LogRunRepository) MarkAnalysisRunFailed(ctx context.Context, runID string, runErr error) {
	msg := truncateErrorMessage(runErr)
	r.update(runID, func(row *AnalysisRunRow) {
		row.Status = bq.RunStatusFailed
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: time.Now(), Valid: true}
		row.ErrorMessage = msg
	})

	log := logger.FromContext(ctx)
	log.Warn().
		Str("run_id", runID).
		Str("error", msg).
		Msg("Analysis run failed")
}

// InsertModelOutput logs which model answered. The masked payload itself is
// not logged.
func (r *LogRunRepository) InsertModelOutput(ctx context.Context, row *ModelOutputRow) error {
	log := logger.FromContext(ctx)
	log.Debug().
		Str("run_id", row.RunID).
		Str("output_id", row.OutputID).
		Str("model", row.ModelName).
		Int("raw_json_bytes", len(row.RawJSON.JSONVal)).
		Msg("Model output recorded")
	return nil
}

// ListRecentRuns returns copies of the remembered runs, newest first.
func (r *LogRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*AnalysisRunRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.runs) {
		limit = len(r.runs)
	}
	out := make([]*AnalysisRunRow, 0, limit)
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		row := *r.runs[i]
		out = append(out, &row)
	}
	return out, nil
}

// Close is a no-op.
func (r *LogRunRepository) Close() error {
	return nil
}

func (r *LogRunRepository) update(runID string, fn func(row *AnalysisRunRow)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.runs) - 1; i >= 0; i-- {
		if r.runs[i].RunID == runID {
			fn(r.runs[i])
			return
		}
	}
}
