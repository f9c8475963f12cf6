package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"google.golang.org/api/iterator"
)

// StartAnalysisRunWithClient inserts a new row into analysis_runs with
// status=RUNNING. row.RunID must already be set.
func StartAnalysisRunWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *AnalysisRunRow) error {
	if row.RunID == "" {
		return fmt.Errorf("StartAnalysisRun: run_id is required")
	}
	if row.StartedTS.IsZero() {
		row.StartedTS = time.Now()
	}
	row.Status = bq.RunStatusRunning

	q := client.Query(`
		INSERT INTO ` + tableRef(client.Project(), datasetID, analysisRunsTable) + ` (
			run_id, source, original_filename, gcs_uri,
			started_ts, status
		)
		VALUES (
			@run_id, @source, @original_filename, @gcs_uri,
			@started_ts, @status
		)
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "source", Value: row.Source},
		{Name: "original_filename", Value: row.OriginalFilename},
		{Name: "gcs_uri", Value: row.GCSURI},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "status", Value: row.Status},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("StartAnalysisRun: %w", err)
	}
	return nil
}

// MarkAnalysisRunSucceededWithClient sets status=SUCCESS, finished_ts and the
// run summary, and clears error_message.
func MarkAnalysisRunSucceededWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, summary RunSummary) error {
	ruleCounts := bigquery.NullJSON{}
	if len(summary.RuleCounts) > 0 {
		b, err := json.Marshal(summary.RuleCounts)
		if err != nil {
			return fmt.Errorf("MarkAnalysisRunSucceeded: marshal rule counts: %w", err)
		}
		ruleCounts = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}

	q := client.Query(`
		UPDATE ` + tableRef(client.Project(), datasetID, analysisRunsTable) + `
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    model_name = @model_name,
		    text_chars = @text_chars,
		    lines_total = @lines_total,
		    redactions = @redactions,
		    record_count = @record_count,
		    rule_counts = @rule_counts
		WHERE run_id = @run_id
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "model_name", Value: summary.ModelName},
		{Name: "text_chars", Value: summary.TextChars},
		{Name: "lines_total", Value: summary.Lines},
		{Name: "redactions", Value: summary.Redactions},
		{Name: "record_count", Value: summary.RecordCount},
		{Name: "rule_counts", Value: ruleCounts},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkAnalysisRunSucceeded: %w", err)
	}
	return nil
}

// MarkAnalysisRunFailedWithClient sets status=FAILED, finished_ts and
// error_message. Failures are logged rather than returned because the caller
// is already handling the original error.
func MarkAnalysisRunFailedWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(`
		UPDATE ` + tableRef(client.Project(), datasetID, analysisRunsTable) + `
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: truncateErrorMessage(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkAnalysisRunFailed: update failed")
	}
}

// ListRecentRunsWithClient returns up to limit runs ordered by started_ts
// descending.
func ListRecentRunsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, limit int) ([]*AnalysisRunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	q := client.Query(`
		SELECT
			run_id,
			source,
			original_filename,
			gcs_uri,
			started_ts,
			finished_ts,
			status,
			error_message,
			model_name,
			text_chars,
			lines_total,
			redactions,
			record_count,
			rule_counts
		FROM ` + tableRef(client.Project(), datasetID, analysisRunsTable) + `
		ORDER BY started_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRunsWithClient: reading query: %w", err)
	}

	var runs []*AnalysisRunRow
	for {
		var row AnalysisRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRunsWithClient: iterating: %w", err)
		}
		runs = append(runs, &row)
	}

	return runs, nil
}

// runDML runs a DML statement and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
