package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-sync/internal/api/handlers"
	"github.com/dvloznov/receipt-sync/internal/api/middleware"
	"github.com/dvloznov/receipt-sync/internal/config"
	"github.com/dvloznov/receipt-sync/internal/jobs"
	"github.com/dvloznov/receipt-sync/internal/jobs/inmemory"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/syncer"
)

func main() {
	var (
		envFile    = flag.String("env-file", config.DefaultEnvFile, "dotenv file with secrets")
		tomlFile   = flag.String("config", config.DefaultTomlFile, "TOML file with a [vars] table")
		runNow     = flag.Bool("run-now", false, "Enqueue a sync immediately instead of waiting one interval")
		maxRetries = flag.Int("max-retries", 0, "Retries for a failed sync job")
	)
	flag.Parse()

	cfg, err := config.Load(config.Sources{EnvFile: *envFile, TomlFile: *tomlFile})
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	s, cleanup, err := syncer.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up sync")
	}
	defer cleanup()

	// One worker: runs never overlap within this process.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(16, 1, jobStore)

	handler := func(ctx context.Context, job *jobs.SyncJob) error {
		opts := syncer.OptionsFromConfig(cfg, job.Trigger)
		opts.DryRun = job.DryRun

		report, err := s.SyncReceipts(ctx, opts)
		if err != nil {
			return err
		}
		job.RunID = report.RunID
		job.Stats = &report.Stats
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	go schedule(ctx, jobQueue, cfg.SyncInterval, *runNow, cfg.DryRun, *maxRetries)

	mux := handlers.NewMux(
		handlers.NewSyncHandler(jobQueue, cfg.DryRun, *maxRetries),
		handlers.NewJobsHandler(jobStore),
		handlers.NewRunsHandler(s.Recorder()),
	)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      middleware.Chain(mux, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Dur("sync_interval", cfg.SyncInterval).Msg("Starting worker service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let an in-flight run finish before cancelling its context.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

// schedule enqueues a sync every interval until ctx is done.
func schedule(ctx context.Context, publisher jobs.Publisher, interval time.Duration, runNow, dryRun bool, maxRetries int) {
	log := logger.FromContext(ctx)

	enqueue := func() {
		job := &jobs.SyncJob{Trigger: "schedule", DryRun: dryRun, MaxRetries: maxRetries}
		if err := publisher.PublishSync(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to enqueue scheduled sync")
			return
		}
		log.Info().Str("job_id", job.JobID).Msg("Scheduled sync enqueued")
	}

	if runNow {
		enqueue()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}
