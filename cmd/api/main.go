package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/api"
	"github.com/dvloznov/statement-scrubber/internal/app"
	"github.com/dvloznov/statement-scrubber/internal/config"
	"github.com/dvloznov/statement-scrubber/internal/jobs"
	"github.com/dvloznov/statement-scrubber/internal/jobs/inmemory"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	addr := flag.String("addr", cfg.ListenAddr, "HTTP listen address (or set PORT env)")
	flag.Parse()

	// Initialize logger
	log := logger.NewWithConfig(cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	m := metrics.New(metrics.DefaultNamespace)

	analyzer, err := app.NewAnalyzer(ctx, cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create analyzer")
	}
	defer analyzer.Runs().Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueueWithConfig(inmemory.QueueConfig{
		Workers:    cfg.JobWorkers,
		MaxRetries: cfg.JobMaxRetries,
	}, jobStore)

	// Start workers in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var jobHandler jobs.JobHandler = jobs.NewAnalyzeHandler(analyzer)
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.JobWorkers).Msg("Job workers started")

	handler := api.NewRouter(api.Deps{
		Analyzer:       analyzer,
		Redactor:       analyzer.Redactor(),
		JobStore:       jobStore,
		Publisher:      jobQueue,
		Runs:           analyzer.Runs(),
		Metrics:        m,
		Log:            log,
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	// Model rotation with retries can take minutes, so the write timeout is
	// generous.
	server := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", *addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
