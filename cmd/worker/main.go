package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/app"
	"github.com/dvloznov/statement-scrubber/internal/config"
	"github.com/dvloznov/statement-scrubber/internal/jobs"
	"github.com/dvloznov/statement-scrubber/internal/jobs/inmemory"
	"github.com/dvloznov/statement-scrubber/internal/logger"
)

// worker analyzes a batch of statements stored in GCS and writes one JSON
// line per job to stdout.
func main() {
	password := flag.String("password", "", "password for encrypted statements (applies to every URI)")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall time limit for the batch")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: worker [options] gs://bucket/statement.pdf ...")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.NewWithConfig(cfg.LogLevel, cfg.LogFormat)

	uris := flag.Args()
	if len(uris) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Create context that cancels on interrupt or timeout
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	analyzer, err := app.NewAnalyzer(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create analyzer")
	}
	defer analyzer.Runs().Close()

	// Initialize job store and queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueueWithConfig(inmemory.QueueConfig{
		BufferSize: len(uris),
		Workers:    cfg.JobWorkers,
		MaxRetries: cfg.JobMaxRetries,
	}, jobStore)

	if err := jobQueue.Start(ctx, jobs.NewAnalyzeHandler(analyzer)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	ids := make([]string, 0, len(uris))
	for _, uri := range uris {
		job := &jobs.AnalyzeStatementJob{GCSURI: uri, Password: *password}
		if err := jobQueue.PublishAnalyzeStatement(ctx, job); err != nil {
			log.Fatal().Err(err).Str("gcs_uri", uri).Msg("Failed to enqueue job")
		}
		ids = append(ids, job.JobID)
	}
	log.Info().Int("jobs", len(ids)).Int("workers", cfg.JobWorkers).Msg("Batch enqueued")

	results, waitErr := waitForJobs(ctx, jobStore, ids, 250*time.Millisecond)

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, job := range results {
		if job.Status != jobs.JobStatusCompleted {
			failed++
		}
		if err := enc.Encode(job); err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to write result")
		}
	}

	log.Info().Int("jobs", len(results)).Int("failed", failed).Msg("Batch finished")
	if waitErr != nil {
		log.Error().Err(waitErr).Msg("Batch interrupted")
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// waitForJobs polls store until every job in ids is completed or failed, or
// ctx ends. It returns the latest state of each job in ids order.
func waitForJobs(ctx context.Context, store jobs.JobStore, ids []string, interval time.Duration) ([]*jobs.AnalyzeStatementJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		results := make([]*jobs.AnalyzeStatementJob, 0, len(ids))
		done := true
		for _, id := range ids {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("waitForJobs: %w", err)
			}
			if !isTerminal(job.Status) {
				done = false
			}
			results = append(results, job)
		}
		if done {
			return results, nil
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTerminal(status jobs.JobStatus) bool {
	return status == jobs.JobStatusCompleted || status == jobs.JobStatusFailed
}
