// Package app builds the analyzer and its collaborators from Config. The
// API server, the worker and the CLI share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-scrubber/internal/config"
	"github.com/dvloznov/statement-scrubber/internal/gcsuploader"
	infraBQ "github.com/dvloznov/statement-scrubber/internal/infra/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/pipeline"
	"github.com/dvloznov/statement-scrubber/internal/redact"
)

// NewRedactor returns the default redactor, extended with the keywords of
// path when it is set.
func NewRedactor(path string) (*redact.Redactor, error) {
	if path == "" {
		return redact.Default(), nil
	}
	extra, err := redact.LoadKeywords(path)
	if err != nil {
		return nil, fmt.Errorf("NewRedactor: %w", err)
	}
	r, err := redact.New(redact.DefaultKeywords().Merge(extra))
	if err != nil {
		return nil, fmt.Errorf("NewRedactor: %w", err)
	}
	return r, nil
}

// NewRunRepository returns the BigQuery audit repository when a project is
// configured, otherwise the in-memory log repository.
func NewRunRepository(ctx context.Context, cfg *config.Config) (pipeline.RunRepository, error) {
	if !cfg.BigQueryEnabled() {
		return infraBQ.NewLogRunRepository(infraBQ.DefaultLogRunCapacity), nil
	}
	return infraBQ.NewBigQueryRunRepository(ctx, cfg.ProjectID, cfg.Dataset)
}

// NewAnalyzer wires a pipeline.Analyzer from cfg. A missing API key is not an
// error here: the analyzer then fails each analysis with ErrMissingAPIKey,
// while scrubbing keeps working. The caller closes the returned analyzer's
// run repository.
func NewAnalyzer(ctx context.Context, cfg *config.Config, rec pipeline.Recorder) (*pipeline.Analyzer, error) {
	log := logger.FromContext(ctx)

	redactor, err := NewRedactor(cfg.KeywordsFile)
	if err != nil {
		return nil, err
	}

	runs, err := NewRunRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewAnalyzer: %w", err)
	}

	acfg := pipeline.AnalyzerConfig{
		Runs:           runs,
		Storage:        gcsuploader.NewGCSStorageService(),
		Redactor:       redactor,
		Metrics:        rec,
		MaxPromptChars: cfg.MaxPromptChars,
		MinTextChars:   cfg.MinTextChars,
	}

	parser, err := pipeline.NewGeminiAIParser(ctx, pipeline.ParserConfig{
		APIKey:    cfg.GeminiAPIKey,
		Models:    cfg.Models,
		Retries:   cfg.Retries,
		RetryWait: cfg.RetryWait,
		Metrics:   rec,
	})
	switch {
	case errors.Is(err, pipeline.ErrMissingAPIKey):
		log.Warn().Msg("GEMINI_API_KEY is not set; statement analysis is disabled")
	case err != nil:
		_ = runs.Close()
		return nil, fmt.Errorf("NewAnalyzer: %w", err)
	default:
		acfg.Parser = parser
	}

	log.Info().
		Bool("bigquery", cfg.BigQueryEnabled()).
		Strs("models", cfg.Models).
		Str("keywords_file", cfg.KeywordsFile).
		Msg("Analyzer configured")

	return pipeline.NewAnalyzer(acfg), nil
}
