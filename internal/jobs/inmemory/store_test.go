package inmemory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/domain"
	"github.com/dvloznov/statement-scrubber/internal/jobs"
	"github.com/dvloznov/statement-scrubber/internal/redact"
)

func TestStore_SaveAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.AnalyzeStatementJob{
		JobID:    "job-1",
		GCSURI:   "gs://bucket/march.pdf",
		Password: "secret",
		Status:   jobs.JobStatusPending,
	}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.GCSURI != job.GCSURI || got.Status != jobs.JobStatusPending {
		t.Errorf("GetJob() = %+v", got)
	}
	if got.Password != "" {
		t.Error("store must not keep passwords")
	}
	if job.Password != "secret" {
		t.Error("SaveJob must not modify the caller's job")
	}

	// Returned copies are independent.
	got.Status = jobs.JobStatusFailed
	again, _ := store.GetJob(ctx, "job-1")
	if again.Status != jobs.JobStatusPending {
		t.Error("store mutated through returned copy")
	}
}

func TestStore_Errors(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.SaveJob(ctx, &jobs.AnalyzeStatementJob{}); err == nil {
		t.Error("SaveJob without ID should fail")
	}
	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob error = %v, want ErrJobNotFound", err)
	}
	if err := store.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "x"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("UpdateJobStatus error = %v, want ErrJobNotFound", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		status := jobs.JobStatusCompleted
		if i%2 == 1 {
			status = jobs.JobStatusFailed
		}
		_ = store.SaveJob(ctx, &jobs.AnalyzeStatementJob{
			JobID:     fmt.Sprintf("job-%d", i),
			GCSURI:    fmt.Sprintf("gs://statements/%d.pdf", i%3),
			Status:    status,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"job-4", "job-3", "job-2", "job-1", "job-0"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"job-3", "job-1"}},
		{"by statement", jobs.JobFilter{GCSURI: "gs://statements/1.pdf"}, []string{"job-4", "job-1"}},
		{"by status and statement", jobs.JobFilter{Status: jobs.JobStatusFailed, GCSURI: "gs://statements/0.pdf"}, []string{"job-3"}},
		{"limit", jobs.JobFilter{Limit: 2}, []string{"job-4", "job-3"}},
		{"offset", jobs.JobFilter{Offset: 3}, []string{"job-1", "job-0"}},
		{"offset past end", jobs.JobFilter{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].JobID != id {
					t.Errorf("job[%d] = %s, want %s", i, got[i].JobID, id)
				}
			}
		})
	}
}

func TestStore_CopiesResults(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	started := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	_, rep := redact.Default().ScrubWithReport("Card 4111222233334444")
	job := &jobs.AnalyzeStatementJob{
		JobID:     "j",
		Status:    jobs.JobStatusCompleted,
		StartedAt: &started,
		Records:   []domain.TransactionRecord{{Merchant: "UBER", Category: domain.CategoryOther}},
		Report:    &rep,
	}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	// Changes to the saved job do not reach the store.
	job.Records[0].Merchant = "CHANGED"
	job.Report.Rules[redact.RuleLongNumber] = 99
	*job.StartedAt = started.Add(time.Hour)

	got, err := store.GetJob(ctx, "j")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Records[0].Merchant != "UBER" {
		t.Errorf("merchant = %q, want UBER", got.Records[0].Merchant)
	}
	if got.Report.Rules[redact.RuleLongNumber] != 1 {
		t.Errorf("long number count = %d, want 1", got.Report.Rules[redact.RuleLongNumber])
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started = %v, want %v", got.StartedAt, started)
	}

	// Neither do changes to a returned copy.
	got.Records[0].Merchant = "CHANGED"
	got.Report.Rules[redact.RuleLongNumber] = 99
	listed, _ := store.ListJobs(ctx, jobs.JobFilter{})
	if listed[0].Records[0].Merchant != "UBER" || listed[0].Report.Rules[redact.RuleLongNumber] != 1 {
		t.Errorf("store mutated through returned copy: %+v", listed[0])
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.SaveJob(ctx, &jobs.AnalyzeStatementJob{JobID: "j", Status: jobs.JobStatusRunning})

	if err := store.UpdateJobStatus(ctx, "j", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}
	got, _ := store.GetJob(ctx, "j")
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" {
		t.Errorf("job = %+v", got)
	}
}
