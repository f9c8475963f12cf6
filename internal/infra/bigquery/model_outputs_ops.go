package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// InsertModelOutputWithClient inserts a single ModelOutputRow into
// model_outputs. Uses DML INSERT to avoid streaming buffer issues.
func InsertModelOutputWithClient(ctx context.Context, client *bigquery.Client, datasetID string, row *ModelOutputRow) error {
	q := client.Query(`
		INSERT INTO ` + tableRef(client.Project(), datasetID, modelOutputsTable) + ` (
			output_id, run_id, model_name, prompt_chars,
			raw_json, created_ts, notes
		)
		VALUES (
			@output_id, @run_id, @model_name, @prompt_chars,
			@raw_json, @created_ts, @notes
		)
	`)

	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "run_id", Value: row.RunID},
		{Name: "model_name", Value: row.ModelName},
		{Name: "prompt_chars", Value: row.PromptChars},
		{Name: "raw_json", Value: row.RawJSON},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "notes", Value: row.Notes},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertModelOutput: %w", err)
	}
	return nil
}
