package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
)

// Re-export the interface from the shared package.
type RunRepository = bq.RunRepository

// BigQueryRunRepository is the concrete implementation of RunRepository
// backed by BigQuery. It holds a shared client to avoid creating a new
// connection for each operation.
type BigQueryRunRepository struct {
	client    *bigquery.Client
	datasetID string
}

// NewBigQueryRunRepository creates a repository writing to projectID.datasetID.
func NewBigQueryRunRepository(ctx context.Context, projectID, datasetID string) (*BigQueryRunRepository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewBigQueryRunRepository: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRunRepository: creating client: %w", err)
	}
	return &BigQueryRunRepository{
		client:    client,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryRunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// StartAnalysisRun delegates to StartAnalysisRunWithClient with the shared client.
func (r *BigQueryRunRepository) StartAnalysisRun(ctx context.Context, row *AnalysisRunRow) error {
	return StartAnalysisRunWithClient(ctx, r.client, r.datasetID, row)
}

// MarkAnalysisRunSucceeded delegates to MarkAnalysisRunSucceededWithClient with the shared client.
func (r *BigQueryRunRepository) MarkAnalysisRunSucceeded(ctx context.Context, runID string, summary RunSummary) error {
	return MarkAnalysisRunSucceededWithClient(ctx, r.client, r.datasetID, runID, summary)
}

// MarkAnalysisRunFailed delegates to MarkAnalysisRunFailedWithClient with the shared client.
func (r *BigQueryRunRepository) MarkAnalysisRunFailed(ctx context.Context, runID string, runErr error) {
	MarkAnalysisRunFailedWithClient(ctx, r.client, r.datasetID, runID, runErr)
}

// InsertModelOutput delegates to InsertModelOutputWithClient with the shared client.
func (r *BigQueryRunRepository) InsertModelOutput(ctx context.Context, row *ModelOutputRow) error {
	return InsertModelOutputWithClient(ctx, r.client, r.datasetID, row)
}

// ListRecentRuns delegates to ListRecentRunsWithClient with the shared client.
func (r *BigQueryRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*AnalysisRunRow, error) {
	return ListRecentRunsWithClient(ctx, r.client, r.datasetID, limit)
}
