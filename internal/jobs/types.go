package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/domain"
	"github.com/dvloznov/statement-scrubber/internal/redact"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeAnalyzeStatement represents a statement analysis job.
	JobTypeAnalyzeStatement JobType = "analyze_statement"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by JobStore lookups for unknown IDs.
var ErrJobNotFound = errors.New("job not found")

// AnalyzeStatementJob represents a job to analyze a statement stored in GCS.
type AnalyzeStatementJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// GCSURI is the GCS URI of the statement to analyze.
	GCSURI string `json:"gcs_uri"`

	// Password unlocks an encrypted PDF. It is never serialized or stored.
	Password string `json:"-"`

	// RunID is the analysis run recorded for the last attempt.
	RunID string `json:"run_id,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Records are the masked transactions of a completed job.
	Records []domain.TransactionRecord `json:"records,omitempty"`

	// Report summarises the scrub pass of a completed job.
	Report *redact.Report `json:"report,omitempty"`
}

// Clone returns a copy of j with its own records, report and timestamps.
// The password is not carried over.
func (j *AnalyzeStatementJob) Clone() *AnalyzeStatementJob {
	c := *j
	c.Password = ""
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Records != nil {
		c.Records = append([]domain.TransactionRecord(nil), j.Records...)
	}
	if j.Report != nil {
		rep := j.Report.Clone()
		c.Report = &rep
	}
	return &c
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *AnalyzeStatementJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *AnalyzeStatementJob) GetType() JobType {
	return JobTypeAnalyzeStatement
}

// GetStatus implements the Job interface.
func (j *AnalyzeStatementJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishAnalyzeStatement publishes a statement analysis job.
	PublishAnalyzeStatement(ctx context.Context, job *AnalyzeStatementJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed; errors wrapped with
// Permanent are not retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *AnalyzeStatementJob) error

	// GetJob retrieves a job by ID. Unknown IDs yield ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*AnalyzeStatementJob, error)

	// ListJobs retrieves jobs, newest first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalyzeStatementJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// GCSURI filters jobs by the statement they analyze.
	GCSURI string

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
