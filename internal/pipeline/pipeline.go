// Package pipeline runs a statement through extraction, PII scrubbing,
// model-based structuring and record masking, recording each run in the
// audit repository.
package pipeline

import (
	"context"
	"errors"
	"time"

	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/domain"
	infra "github.com/dvloznov/statement-scrubber/internal/infra/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/redact"
	"github.com/dvloznov/statement-scrubber/internal/statement"
	"github.com/google/uuid"
)

// DefaultMaxPromptChars caps the scrubbed text sent to the model.
const DefaultMaxPromptChars = 30000

// Run sources stored in analysis_runs.source.
const (
	SourceUpload = "upload"
	SourceGCS    = "gcs"
	SourceCLI    = "cli"
)

var (
	// ErrMissingAPIKey is returned when no inference provider key is configured.
	ErrMissingAPIKey = errors.New("missing server API key")

	// ErrNoInput is returned when neither statement bytes nor a URI were given.
	ErrNoInput = errors.New("no statement provided")

	// ErrAllModelsFailed is returned when every model in the rotation failed.
	// The wrapped message carries the last error.
	ErrAllModelsFailed = errors.New("all models failed")
)

// AnalyzerConfig wires an Analyzer. Only Parser is needed for analysis;
// everything else has a default.
type AnalyzerConfig struct {
	Parser   AIParser
	Runs     RunRepository  // defaults to an in-memory LogRunRepository
	Storage  StorageService // required only for gs:// inputs
	Redactor *redact.Redactor
	Metrics  Recorder

	MaxPromptChars int
	MinTextChars   int
}

// Analyzer turns uploaded statements into masked transaction records.
// It is safe for concurrent use.
type Analyzer struct {
	parser    AIParser
	runs      RunRepository
	storage   StorageService
	redactor  *redact.Redactor
	metrics   Recorder
	extractor statement.Extractor
	maxChars  int
}

// NewAnalyzer creates an Analyzer, filling defaults for unset fields.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	a := &Analyzer{
		parser:    cfg.Parser,
		runs:      cfg.Runs,
		storage:   cfg.Storage,
		redactor:  cfg.Redactor,
		metrics:   cfg.Metrics,
		extractor: statement.Extractor{MinTextChars: cfg.MinTextChars},
		maxChars:  cfg.MaxPromptChars,
	}
	if a.runs == nil {
		a.runs = infra.NewLogRunRepository(0)
	}
	if a.redactor == nil {
		a.redactor = redact.Default()
	}
	if a.metrics == nil {
		a.metrics = nopRecorder{}
	}
	if a.maxChars <= 0 {
		a.maxChars = DefaultMaxPromptChars
	}
	if cfg.MinTextChars <= 0 {
		a.extractor.MinTextChars = statement.DefaultMinTextChars
	}
	return a
}

// Input is one statement to analyze. Either Data or GCSURI must be set.
type Input struct {
	Data        []byte
	Filename    string
	ContentType string
	Password    string
	GCSURI      string
	Source      string // upload, gcs or cli; derived when empty
}

// Result is the outcome of a successful analysis.
type Result struct {
	RunID     string                     `json:"run_id"`
	ModelName string                     `json:"model_name"`
	Records   []domain.TransactionRecord `json:"records"`
	Report    redact.Report              `json:"report"`
	Skipped   int                        `json:"skipped"`
	Truncated bool                       `json:"truncated"`
}

// Redactor returns the redactor used for scrubbing.
func (a *Analyzer) Redactor() *redact.Redactor {
	return a.redactor
}

// Runs returns the audit repository.
func (a *Analyzer) Runs() RunRepository {
	return a.runs
}

// Analyze runs the full pipeline for one statement. On failure the run is
// marked FAILED and the error is returned; callers match the statement and
// pipeline sentinel errors with errors.Is.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Result, error) {
	if a.parser == nil {
		return nil, ErrMissingAPIKey
	}
	if len(in.Data) == 0 && in.GCSURI == "" {
		return nil, ErrNoInput
	}

	started := time.Now()
	runID := uuid.NewString()

	log := logger.FromContext(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		RunID:       runID,
		Source:      in.Source,
		GCSURI:      in.GCSURI,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Password:    in.Password,
		Data:        in.Data,
	}
	if state.Source == "" {
		state.Source = SourceUpload
		if in.GCSURI != "" && len(in.Data) == 0 {
			state.Source = SourceGCS
		}
	}

	if err := a.newPipeline().Execute(ctx, state); err != nil {
		if state.runStarted {
			a.runs.MarkAnalysisRunFailed(ctx, runID, err)
		}
		a.metrics.ObserveRun(bq.RunStatusFailed, time.Since(started))
		log.Error().Err(err).Msg("Statement analysis failed")
		return nil, err
	}

	a.metrics.ObserveRun(bq.RunStatusSuccess, time.Since(started))
	log.Info().
		Int("records", len(state.Records)).
		Int("skipped", state.Skipped).
		Dur("elapsed", time.Since(started)).
		Msg("Statement analysis completed")

	return &Result{
		RunID:     runID,
		ModelName: state.ModelOutput.ModelName,
		Records:   state.Records,
		Report:    state.Report,
		Skipped:   state.Skipped,
		Truncated: state.Truncated,
	}, nil
}

// AnalyzeFromGCS analyzes a statement stored at gcsURI
// (e.g. "gs://bucket/path/to/statement.pdf").
func (a *Analyzer) AnalyzeFromGCS(ctx context.Context, gcsURI, password string) (*Result, error) {
	return a.Analyze(ctx, Input{GCSURI: gcsURI, Password: password, Source: SourceGCS})
}

// newPipeline builds the standard analysis pipeline.
func (a *Analyzer) newPipeline() *Pipeline {
	return NewPipeline(
		&StartRunStep{runs: a.runs},
		&FetchStatementStep{storage: a.storage},
		&ExtractTextStep{extractor: a.extractor},
		&ScrubTextStep{redactor: a.redactor, metrics: a.metrics},
		&TruncateStep{maxChars: a.maxChars},
		&ParseStatementStep{parser: a.parser},
		&StoreModelOutputStep{runs: a.runs},
		&TransformRecordsStep{},
		&MaskRecordsStep{},
		&MarkSuccessStep{runs: a.runs},
	)
}
