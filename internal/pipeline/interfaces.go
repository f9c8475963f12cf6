package pipeline

import (
	"context"
	"time"

	infra "github.com/dvloznov/statement-scrubber/internal/infra/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/redact"
)

// StorageService is the slice of cloud storage the pipeline needs to read
// statements referenced by gs:// URI.
type StorageService interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
	ExtractFilenameFromGCSURI(uri string) string
}

// AIParser turns scrubbed statement text into raw transaction records.
// This interface enables mocking and testing of AI parsing functionality.
type AIParser interface {
	// ParseStatement sends scrubbed text to a model and returns its decoded output.
	ParseStatement(ctx context.Context, text string) (*ModelOutput, error)
}

// RunRepository records the analysis audit trail.
type RunRepository = infra.RunRepository

// ModelOutput is a decoded model response. Records are the raw JSON objects
// before normalization and masking.
type ModelOutput struct {
	ModelName string
	Records   []map[string]interface{}
}

// Recorder receives pipeline measurements. metrics.Metrics implements it.
type Recorder interface {
	ObserveScrub(report redact.Report)
	ObserveModelAttempt(model, outcome string)
	ObserveRun(status string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveScrub(redact.Report) {}
func (nopRecorder) ObserveModelAttempt(string, string) {}
func (nopRecorder) ObserveRun(string, time.Duration) {}
