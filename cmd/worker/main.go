package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kyuchan/presentation-grader/internal/app"
	"github.com/kyuchan/presentation-grader/internal/config"
	"github.com/kyuchan/presentation-grader/internal/queue"
	"github.com/kyuchan/presentation-grader/internal/queue/workers"
)

// Transcription and prosody are CPU bound; two runs at once is plenty.
const concurrency = 2

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// In-memory records are invisible to the API process.
	if cfg.Database.URL == "" {
		return errors.New("worker needs DATABASE_URL to share analyses with the API")
	}

	services, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	defer services.Close()

	srv := asynq.NewServer(queue.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{"default": 1},
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried >= maxRetry {
				logger.Error("task exhausted retries", "type", task.Type(), "error", err)
			}
		}),
	})

	registry := queue.NewHandlersRegistry(logger)
	analyses := workers.NewAnalysisWorker(services.Store, services.Pipeline)
	registry.Register(queue.TypeAnalysisRun, asynq.HandlerFunc(analyses.ProcessTask))

	logger.Info("worker started", "concurrency", concurrency)
	return srv.Run(registry.Mux())
}
