package bigquery

import (
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
)

const (
	analysisRunsTable = "analysis_runs"
	modelOutputsTable = "model_outputs"

	// maxErrorMessageLen caps error_message so a verbose provider error
	// cannot blow up the row.
	maxErrorMessageLen = 2000
)

// Re-export row types from the shared package.
type AnalysisRunRow = bq.AnalysisRunRow
type ModelOutputRow = bq.ModelOutputRow
type RunSummary = bq.RunSummary

// tableRef returns the fully qualified, backtick-quoted table name.
func tableRef(projectID, datasetID, table string) string {
	return "`" + projectID + "." + datasetID + "." + table + "`"
}

func truncateErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}
