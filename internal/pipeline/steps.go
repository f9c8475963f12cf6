package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/domain"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/redact"
	"github.com/dvloznov/statement-scrubber/internal/statement"
	"github.com/google/uuid"
)

// PipelineStep represents a single step in the analysis pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps. Raw
// statement bytes and unscrubbed text are dropped as soon as the next
// step no longer needs them.
type PipelineState struct {
	RunID       string
	Source      string
	GCSURI      string
	Filename    string
	ContentType string
	Password    string

	Data         []byte
	Text         string
	ScrubbedText string
	Report       redact.Report
	PromptText   string
	Truncated    bool

	ModelOutput *ModelOutput
	Records     []domain.TransactionRecord
	Skipped     int

	runStarted bool
}

// StartRunStep records a RUNNING analysis run.
type StartRunStep struct {
	runs RunRepository
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	row := &bq.AnalysisRunRow{
		RunID:            state.RunID,
		Source:           state.Source,
		OriginalFilename: state.Filename,
	}
	if state.GCSURI != "" {
		row.GCSURI = bigquery.NullString{StringVal: state.GCSURI, Valid: true}
	}
	if err := s.runs.StartAnalysisRun(ctx, row); err != nil {
		return err
	}
	state.runStarted = true
	return nil
}

// FetchStatementStep downloads the statement when only a gs:// URI was given.
type FetchStatementStep struct {
	storage StorageService
}

func (s *FetchStatementStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Data) > 0 || state.GCSURI == "" {
		return nil
	}
	if s.storage == nil {
		return fmt.Errorf("FetchStatement: no storage configured for %s", state.GCSURI)
	}
	data, err := s.storage.FetchFromGCS(ctx, state.GCSURI)
	if err != nil {
		return fmt.Errorf("FetchStatement: %w", err)
	}
	state.Data = data
	if state.Filename == "" {
		state.Filename = s.storage.ExtractFilenameFromGCSURI(state.GCSURI)
	}
	return nil
}

// ExtractTextStep turns the uploaded file into text.
type ExtractTextStep struct {
	extractor statement.Extractor
}

func (s *ExtractTextStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := s.extractor.Extract(state.Data, state.Filename, state.ContentType, state.Password)
	if err != nil {
		return err
	}
	state.Text = text
	state.Data = nil
	state.Password = ""
	return nil
}

// ScrubTextStep redacts PII from the extracted text.
type ScrubTextStep struct {
	redactor *redact.Redactor
	metrics  Recorder
}

func (s *ScrubTextStep) Execute(ctx context.Context, state *PipelineState) error {
	scrubbed, report := s.redactor.ScrubWithReport(state.Text)
	state.ScrubbedText = scrubbed
	state.Report = report
	state.Text = ""
	s.metrics.ObserveScrub(report)

	log := logger.FromContext(ctx)
	log.Info().
		Int("lines", report.Lines).
		Int("redactions", report.Total()).
		Msg("Statement text scrubbed")
	return nil
}

// TruncateStep caps the prompt at maxChars characters.
type TruncateStep struct {
	maxChars int
}

func (s *TruncateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.PromptText, state.Truncated = truncateRunes(state.ScrubbedText, s.maxChars)
	if state.Truncated {
		log := logger.FromContext(ctx)
		log.Warn().
			Int("max_chars", s.maxChars).
			Int("text_chars", utf8.RuneCountInString(state.ScrubbedText)).
			Msg("Statement text truncated for prompt")
	}
	return nil
}

// ParseStatementStep asks the model to structure the scrubbed text.
type ParseStatementStep struct {
	parser AIParser
}

func (s *ParseStatementStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.parser == nil {
		return ErrMissingAPIKey
	}
	out, err := s.parser.ParseStatement(ctx, state.PromptText)
	if err != nil {
		return err
	}
	state.ModelOutput = out
	return nil
}

// StoreModelOutputStep stores the model output, with account numbers masked,
// in model_outputs.
type StoreModelOutputStep struct {
	runs RunRepository
}

func (s *StoreModelOutputStep) Execute(ctx context.Context, state *PipelineState) error {
	masked, err := json.Marshal(redact.MaskRawRecords(state.ModelOutput.Records))
	if err != nil {
		return fmt.Errorf("StoreModelOutput: marshal records: %w", err)
	}

	row := &bq.ModelOutputRow{
		OutputID:    uuid.NewString(),
		RunID:       state.RunID,
		ModelName:   state.ModelOutput.ModelName,
		PromptChars: bigquery.NullInt64{Int64: int64(utf8.RuneCountInString(state.PromptText)), Valid: true},
		RawJSON:     bigquery.NullJSON{JSONVal: string(masked), Valid: true},
		CreatedTS:   time.Now(),
	}
	if state.Truncated {
		row.Notes = bigquery.NullString{StringVal: "prompt truncated", Valid: true}
	}
	return s.runs.InsertModelOutput(ctx, row)
}

// TransformRecordsStep normalizes raw model objects into TransactionRecords.
type TransformRecordsStep struct{}

func (s *TransformRecordsStep) Execute(ctx context.Context, state *PipelineState) error {
	records, skipped := transformRecords(state.ModelOutput.Records)
	if len(skipped) > 0 {
		log := logger.FromContext(ctx)
		for _, err := range skipped {
			log.Warn().Err(err).Msg("Skipping model record")
		}
	}
	state.Records = records
	state.Skipped = len(skipped)
	return nil
}

// MaskRecordsStep masks account numbers in the record free-text fields.
type MaskRecordsStep struct{}

func (s *MaskRecordsStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Records = redact.MaskRecords(state.Records)
	return nil
}

// MarkSuccessStep marks the run as SUCCESS with its summary.
type MarkSuccessStep struct {
	runs RunRepository
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *PipelineState) error {
	modelName := ""
	if state.ModelOutput != nil {
		modelName = state.ModelOutput.ModelName
	}
	return s.runs.MarkAnalysisRunSucceeded(ctx, state.RunID, bq.RunSummary{
		ModelName:   modelName,
		TextChars:   utf8.RuneCountInString(state.ScrubbedText),
		Lines:       state.Report.Lines,
		Redactions:  state.Report.Total(),
		RuleCounts:  state.Report.Rules,
		RecordCount: len(state.Records),
	})
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// truncateRunes cuts s to at most max characters without splitting a rune.
func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}
