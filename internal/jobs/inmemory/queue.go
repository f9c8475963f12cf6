package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/jobs"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/google/uuid"
)

// QueueConfig tunes a Queue. Zero values fall back to the defaults.
type QueueConfig struct {
	BufferSize   int           // jobs queued before PublishAnalyzeStatement blocks
	Workers      int           // concurrent handlers
	MaxRetries   int           // retries per job unless the job sets its own
	RetryBackoff time.Duration // multiplied by the retry number
}

const (
	defaultBufferSize   = 100
	defaultWorkers      = 2
	defaultMaxRetries   = 2
	defaultRetryBackoff = time.Second
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan *jobs.AnalyzeStatementJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
	cfg       QueueConfig
}

// NewQueue creates a new in-memory job queue with default settings.
// bufferSize determines how many jobs can be queued before publishing blocks.
func NewQueue(bufferSize int, store jobs.JobStore) *Queue {
	return NewQueueWithConfig(QueueConfig{BufferSize: bufferSize}, store)
}

// NewQueueWithConfig creates a new in-memory job queue.
func NewQueueWithConfig(cfg QueueConfig, store jobs.JobStore) *Queue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Queue{
		jobChan:   make(chan *jobs.AnalyzeStatementJob, cfg.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		cfg:       cfg,
	}
}

// PublishAnalyzeStatement implements the Publisher interface.
// It enqueues a statement analysis job for asynchronous processing.
func (q *Queue) PublishAnalyzeStatement(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	// Generate job ID if not provided
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}

	// Set initial status and timestamp
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	// Save job to store
	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	// Enqueue job with context cancellation support
	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements the Consumer interface.
// It starts the configured number of workers, each calling handler for the
// jobs it receives.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.AnalyzeStatementJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx)

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := false
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		job.Password = ""
	case job.RetryCount < job.MaxRetries && !jobs.IsPermanent(err):
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		retry = true
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		job.Password = ""
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Job failed")
	}

	// Save before scheduling the retry: the timer goroutine owns job afterwards.
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
	if !retry {
		return
	}

	backoff := time.Duration(job.RetryCount) * q.cfg.RetryBackoff
	log.Warn().
		Err(err).
		Str("job_id", job.JobID).
		Int("retry", job.RetryCount).
		Dur("backoff", backoff).
		Msg("Job failed, retrying")

	time.AfterFunc(backoff, func() {
		// Reset for retry
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.PublishAnalyzeStatement(ctx, job); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Re-enqueue failed")
		}
	})
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
// It closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
