package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/statement-scrubber/internal/domain"
	"github.com/dvloznov/statement-scrubber/internal/pipeline"
	"github.com/dvloznov/statement-scrubber/internal/statement"
)

// MockAnalyzer is a mock implementation of Analyzer for testing.
type MockAnalyzer struct {
	AnalyzeFromGCSFunc func(ctx context.Context, gcsURI, password string) (*pipeline.Result, error)
}

func (m *MockAnalyzer) AnalyzeFromGCS(ctx context.Context, gcsURI, password string) (*pipeline.Result, error) {
	return m.AnalyzeFromGCSFunc(ctx, gcsURI, password)
}

func TestAnalyzeHandler_Success(t *testing.T) {
	handler := NewAnalyzeHandler(&MockAnalyzer{
		AnalyzeFromGCSFunc: func(ctx context.Context, gcsURI, password string) (*pipeline.Result, error) {
			if gcsURI != "gs://b/s.pdf" || password != "pw" {
				t.Errorf("unexpected args %q %q", gcsURI, password)
			}
			return &pipeline.Result{
				RunID:   "run-9",
				Records: []domain.TransactionRecord{{Merchant: "Uber", Category: domain.CategoryTransport}},
			}, nil
		},
	})

	job := &AnalyzeStatementJob{JobID: "j", GCSURI: "gs://b/s.pdf", Password: "pw"}
	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if job.RunID != "run-9" || len(job.Records) != 1 || job.Report == nil {
		t.Errorf("job = %+v", job)
	}
}

func TestAnalyzeHandler_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"incorrect password", statement.ErrIncorrectPassword, true},
		{"password required", statement.ErrPasswordRequired, true},
		{"invalid pdf", statement.ErrInvalidPDF, true},
		{"scanned pdf", statement.ErrNoText, true},
		{"missing key", pipeline.ErrMissingAPIKey, true},
		{"models exhausted", pipeline.ErrAllModelsFailed, false},
		{"storage", errors.New("storage: object doesn't exist"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAnalyzeHandler(&MockAnalyzer{
				AnalyzeFromGCSFunc: func(ctx context.Context, gcsURI, password string) (*pipeline.Result, error) {
					return nil, tt.err
				},
			})
			err := handler(context.Background(), &AnalyzeStatementJob{JobID: "j"})
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want wrapping %v", err, tt.err)
			}
			if IsPermanent(err) != tt.permanent {
				t.Errorf("IsPermanent = %v, want %v", IsPermanent(err), tt.permanent)
			}
		})
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	base := errors.New("boom")
	if IsPermanent(base) {
		t.Error("plain error reported permanent")
	}
	if err := Permanent(base); !IsPermanent(err) || err.Error() != "boom" || !errors.Is(err, base) {
		t.Errorf("Permanent(base) = %v", err)
	}
}
