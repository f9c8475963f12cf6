package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/domain"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/pipeline"
	"github.com/dvloznov/statement-scrubber/internal/statement"
)

// MockRunRepository is a mock implementation of RunRepository for testing.
type MockRunRepository struct {
	mu sync.Mutex

	StartAnalysisRunFunc         func(ctx context.Context, row *bq.AnalysisRunRow) error
	MarkAnalysisRunSucceededFunc func(ctx context.Context, runID string, summary bq.RunSummary) error
	InsertModelOutputFunc        func(ctx context.Context, row *bq.ModelOutputRow) error

	Started      []*bq.AnalysisRunRow
	Succeeded    map[string]bq.RunSummary
	Failed       map[string]error
	ModelOutputs []*bq.ModelOutputRow
}

func (m *MockRunRepository) StartAnalysisRun(ctx context.Context, row *bq.AnalysisRunRow) error {
	if m.StartAnalysisRunFunc != nil {
		if err := m.StartAnalysisRunFunc(ctx, row); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = append(m.Started, row)
	return nil
}

func (m *MockRunRepository) MarkAnalysisRunSucceeded(ctx context.Context, runID string, summary bq.RunSummary) error {
	if m.MarkAnalysisRunSucceededFunc != nil {
		if err := m.MarkAnalysisRunSucceededFunc(ctx, runID, summary); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Succeeded == nil {
		m.Succeeded = map[string]bq.RunSummary{}
	}
	m.Succeeded[runID] = summary
	return nil
}

func (m *MockRunRepository) MarkAnalysisRunFailed(ctx context.Context, runID string, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Failed == nil {
		m.Failed = map[string]error{}
	}
	m.Failed[runID] = runErr
}

func (m *MockRunRepository) InsertModelOutput(ctx context.Context, row *bq.ModelOutputRow) error {
	if m.InsertModelOutputFunc != nil {
		if err := m.InsertModelOutputFunc(ctx, row); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelOutputs = append(m.ModelOutputs, row)
	return nil
}

func (m *MockRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*bq.AnalysisRunRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Started, nil
}

func (m *MockRunRepository) Close() error { return nil }

// MockStorageService is a mock implementation of StorageService for testing.
type MockStorageService struct {
	FetchFromGCSFunc              func(ctx context.Context, gcsURI string) ([]byte, error)
	ExtractFilenameFromGCSURIFunc func(uri string) string
}

func (m *MockStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	if m.FetchFromGCSFunc != nil {
		return m.FetchFromGCSFunc(ctx, gcsURI)
	}
	return nil, errors.New("not found")
}

func (m *MockStorageService) ExtractFilenameFromGCSURI(uri string) string {
	if m.ExtractFilenameFromGCSURIFunc != nil {
		return m.ExtractFilenameFromGCSURIFunc(uri)
	}
	return "statement.txt"
}

// MockAIParser is a mock implementation of AIParser for testing.
type MockAIParser struct {
	ParseStatementFunc func(ctx context.Context, text string) (*pipeline.ModelOutput, error)

	mu      sync.Mutex
	Prompts []string
}

func (m *MockAIParser) ParseStatement(ctx context.Context, text string) (*pipeline.ModelOutput, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, text)
	m.mu.Unlock()
	if m.ParseStatementFunc != nil {
		return m.ParseStatementFunc(ctx, text)
	}
	return &pipeline.ModelOutput{ModelName: "mock-model"}, nil
}

const statementText = `HDFC BANK CREDIT CARD STATEMENT
Name: Rahul Sharma
Email: rahul.sharma@example.com
Card No 4111 1111 1111 1234
15/03/2024  UBER TRIP  245.00
16/03/2024  NETFLIX  649.00
`

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
}

func modelRecords() []map[string]interface{} {
	return []map[string]interface{}{
		{"date": "2024-03-15", "merchant": "Uber", "amount": 245.0, "category": "Transport", "isRecurring": false},
		{"date": "2024-03-16", "merchant": "NETFLIX 4111-1111-1111-1234", "amount": 649.0, "category": "Entertainment", "isRecurring": true},
		{"date": "March 17", "merchant": "Unparseable", "amount": 1.0},
	}
}

func TestAnalyze_PlainTextUpload(t *testing.T) {
	runs := &MockRunRepository{}
	parser := &MockAIParser{
		ParseStatementFunc: func(ctx context.Context, text string) (*pipeline.ModelOutput, error) {
			return &pipeline.ModelOutput{ModelName: "gemini-test", Records: modelRecords()}, nil
		},
	}
	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{Parser: parser, Runs: runs})

	res, err := analyzer.Analyze(quietContext(), pipeline.Input{
		Data:        []byte(statementText),
		Filename:    "statement.txt",
		ContentType: "text/plain",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	// The model only ever sees scrubbed text.
	if len(parser.Prompts) != 1 {
		t.Fatalf("expected 1 parser call, got %d", len(parser.Prompts))
	}
	prompt := parser.Prompts[0]
	for _, leaked := range []string{"Rahul Sharma", "rahul.sharma@example.com", "4111 1111 1111 1234"} {
		if strings.Contains(prompt, leaked) {
			t.Errorf("prompt leaked %q:\n%s", leaked, prompt)
		}
	}
	for _, kept := range []string{"15/03/2024  UBER TRIP  245.00", "[REDACTED_NUM_1234]", "[REDACTED_EMAIL]"} {
		if !strings.Contains(prompt, kept) {
			t.Errorf("prompt missing %q:\n%s", kept, prompt)
		}
	}

	if res.ModelName != "gemini-test" || res.Skipped != 1 || len(res.Records) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := res.Records[1].Merchant; got != "NETFLIX XXXX-XXXX-XXXX-1234" {
		t.Errorf("merchant = %q, want masked account number", got)
	}
	if res.Records[1].Category != domain.CategoryEntertainment || !res.Records[1].IsRecurring {
		t.Errorf("record = %+v", res.Records[1])
	}
	if res.Report.Total() == 0 {
		t.Error("report should count redactions")
	}

	// Audit trail
	if len(runs.Started) != 1 || runs.Started[0].RunID != res.RunID || runs.Started[0].Source != pipeline.SourceUpload {
		t.Errorf("started runs = %+v", runs.Started)
	}
	summary, ok := runs.Succeeded[res.RunID]
	if !ok {
		t.Fatalf("run %s not marked succeeded", res.RunID)
	}
	if summary.RecordCount != 2 || summary.ModelName != "gemini-test" || summary.Redactions != res.Report.Total() {
		t.Errorf("summary = %+v", summary)
	}
	if len(runs.Failed) != 0 {
		t.Errorf("unexpected failures: %v", runs.Failed)
	}

	// Stored model output has account numbers masked.
	if len(runs.ModelOutputs) != 1 {
		t.Fatalf("expected 1 model output, got %d", len(runs.ModelOutputs))
	}
	raw := runs.ModelOutputs[0].RawJSON.JSONVal
	if strings.Contains(raw, "4111-1111-1111-1234") || !strings.Contains(raw, "XXXX-XXXX-XXXX-1234") {
		t.Errorf("stored model output not masked: %s", raw)
	}
	var stored []map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil || len(stored) != 3 {
		t.Errorf("stored model output = %s (err %v)", raw, err)
	}
}

func TestAnalyze_TruncatesPrompt(t *testing.T) {
	parser := &MockAIParser{}
	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{
		Parser:         parser,
		Runs:           &MockRunRepository{},
		MaxPromptChars: 10,
	})

	res, err := analyzer.Analyze(quietContext(), pipeline.Input{Data: []byte("café café café café"), Filename: "a.txt"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated")
	}
	if got := parser.Prompts[0]; got != "café café " {
		t.Errorf("prompt = %q, want first 10 characters", got)
	}
}

func TestAnalyze_FromGCS(t *testing.T) {
	runs := &MockRunRepository{}
	var fetched string
	storage := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, gcsURI string) ([]byte, error) {
			fetched = gcsURI
			return []byte(statementText), nil
		},
		ExtractFilenameFromGCSURIFunc: func(uri string) string { return "march.txt" },
	}
	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{
		Parser:  &MockAIParser{},
		Runs:    runs,
		Storage: storage,
	})

	if _, err := analyzer.AnalyzeFromGCS(quietContext(), "gs://bucket/march.txt", ""); err != nil {
		t.Fatalf("AnalyzeFromGCS failed: %v", err)
	}
	if fetched != "gs://bucket/march.txt" {
		t.Errorf("fetched %q", fetched)
	}
	row := runs.Started[0]
	if row.Source != pipeline.SourceGCS || row.GCSURI.StringVal != "gs://bucket/march.txt" {
		t.Errorf("run row = %+v", row)
	}
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name       string
		parser     pipeline.AIParser
		input      pipeline.Input
		storage    pipeline.StorageService
		wantErr    error
		wantMarked bool
	}{
		{
			name:    "missing API key",
			parser:  nil,
			input:   pipeline.Input{Data: []byte(statementText), Filename: "a.txt"},
			wantErr: pipeline.ErrMissingAPIKey,
		},
		{
			name:    "no input",
			parser:  &MockAIParser{},
			input:   pipeline.Input{},
			wantErr: pipeline.ErrNoInput,
		},
		{
			name:       "invalid pdf",
			parser:     &MockAIParser{},
			input:      pipeline.Input{Data: []byte("not a pdf"), Filename: "a.pdf"},
			wantErr:    statement.ErrInvalidPDF,
			wantMarked: true,
		},
		{
			name: "all models failed",
			parser: &MockAIParser{
				ParseStatementFunc: func(ctx context.Context, text string) (*pipeline.ModelOutput, error) {
					return nil, errors.Join(pipeline.ErrAllModelsFailed, errors.New("rate limited"))
				},
			},
			input:      pipeline.Input{Data: []byte(statementText), Filename: "a.txt"},
			wantErr:    pipeline.ErrAllModelsFailed,
			wantMarked: true,
		},
		{
			name:       "storage failure",
			parser:     &MockAIParser{},
			storage:    &MockStorageService{},
			input:      pipeline.Input{GCSURI: "gs://bucket/missing.pdf"},
			wantMarked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &MockRunRepository{}
			analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{
				Parser:  tt.parser,
				Runs:    runs,
				Storage: tt.storage,
			})

			res, err := analyzer.Analyze(quietContext(), tt.input)
			if err == nil {
				t.Fatalf("expected error, got result %+v", res)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if got := len(runs.Failed) == 1; got != tt.wantMarked {
				t.Errorf("run marked failed = %v, want %v (failed: %v)", got, tt.wantMarked, runs.Failed)
			}
			if len(runs.Succeeded) != 0 {
				t.Errorf("no run should succeed: %v", runs.Succeeded)
			}
		})
	}
}

func TestAnalyze_StartRunError(t *testing.T) {
	runs := &MockRunRepository{
		StartAnalysisRunFunc: func(ctx context.Context, row *bq.AnalysisRunRow) error {
			return errors.New("bigquery unavailable")
		},
	}
	parser := &MockAIParser{}
	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{Parser: parser, Runs: runs})

	_, err := analyzer.Analyze(quietContext(), pipeline.Input{Data: []byte(statementText), Filename: "a.txt"})
	if err == nil || !strings.Contains(err.Error(), "bigquery unavailable") {
		t.Fatalf("error = %v", err)
	}
	if len(parser.Prompts) != 0 {
		t.Error("parser must not be called when the run cannot be recorded")
	}
	if len(runs.Failed) != 0 {
		t.Error("a run that never started must not be marked failed")
	}
}

func TestAnalyze_DefaultRunRepository(t *testing.T) {
	analyzer := pipeline.NewAnalyzer(pipeline.AnalyzerConfig{Parser: &MockAIParser{}})
	res, err := analyzer.Analyze(quietContext(), pipeline.Input{Data: []byte(statementText), Filename: "a.txt"})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	runs, err := analyzer.Runs().ListRecentRuns(quietContext(), 5)
	if err != nil {
		t.Fatalf("ListRecentRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != res.RunID || runs[0].Status != bq.RunStatusSuccess {
		t.Errorf("runs = %+v", runs)
	}
}
