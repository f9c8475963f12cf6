package bigquery

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses stored in analysis_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// RunRepository records the audit trail of statement analyses. Rows never
// contain unscrubbed statement text or unmasked account numbers.
type RunRepository interface {
	// StartAnalysisRun inserts a new run with status=RUNNING.
	StartAnalysisRun(ctx context.Context, row *AnalysisRunRow) error

	// MarkAnalysisRunSucceeded sets status=SUCCESS, finished_ts and the run summary.
	MarkAnalysisRunSucceeded(ctx context.Context, runID string, summary RunSummary) error

	// MarkAnalysisRunFailed sets status=FAILED, finished_ts and error_message.
	MarkAnalysisRunFailed(ctx context.Context, runID string, runErr error)

	// InsertModelOutput stores the masked model response for a run.
	InsertModelOutput(ctx context.Context, row *ModelOutputRow) error

	// ListRecentRuns returns the most recent runs, newest first.
	ListRecentRuns(ctx context.Context, limit int) ([]*AnalysisRunRow, error)

	// Close releases the underlying client, if any.
	Close() error
}

// RunSummary is what a successful run reports back to its audit row.
type RunSummary struct {
	ModelName   string
	TextChars   int
	Lines       int
	Redactions  int
	RuleCounts  map[string]int
	RecordCount int
}

// AnalysisRunRow represents one statement analysis in BigQuery.
type AnalysisRunRow struct {
	RunID  string `bigquery:"run_id" json:"run_id"`
	Source string `bigquery:"source" json:"source"` // upload, gcs or cli

	OriginalFilename string              `bigquery:"original_filename" json:"original_filename"`
	GCSURI           bigquery.NullString `bigquery:"gcs_uri" json:"gcs_uri,omitempty"`

	StartedTS  time.Time              `bigquery:"started_ts" json:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts" json:"finished_ts,omitempty"`

	Status       string `bigquery:"status" json:"status"`
	ErrorMessage string `bigquery:"error_message" json:"error_message,omitempty"`

	ModelName bigquery.NullString `bigquery:"model_name" json:"model_name,omitempty"`

	TextChars   bigquery.NullInt64 `bigquery:"text_chars" json:"text_chars,omitempty"`
	LinesTotal  bigquery.NullInt64 `bigquery:"lines_total" json:"lines_total,omitempty"`
	Redactions  bigquery.NullInt64 `bigquery:"redactions" json:"redactions,omitempty"`
	RecordCount bigquery.NullInt64 `bigquery:"record_count" json:"record_count,omitempty"`

	// RuleCounts holds the per-rule redaction counts as a JSON object.
	RuleCounts bigquery.NullJSON `bigquery:"rule_counts" json:"rule_counts,omitempty"`
}

// ModelOutputRow represents a model response in BigQuery. RawJSON holds the
// decoded response with account numbers already masked.
type ModelOutputRow struct {
	OutputID string `bigquery:"output_id"`
	RunID    string `bigquery:"run_id"`

	ModelName   string             `bigquery:"model_name"`
	PromptChars bigquery.NullInt64 `bigquery:"prompt_chars"`

	RawJSON bigquery.NullJSON `bigquery:"raw_json"`

	CreatedTS time.Time           `bigquery:"created_ts"`
	Notes     bigquery.NullString `bigquery:"notes"`
}
