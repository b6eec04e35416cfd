// Package app assembles the services shared by the server, the worker and
// the command line tool.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kyuchan/presentation-grader/internal/analysis"
	"github.com/kyuchan/presentation-grader/internal/cache"
	"github.com/kyuchan/presentation-grader/internal/config"
	"github.com/kyuchan/presentation-grader/internal/database"
	"github.com/kyuchan/presentation-grader/internal/grading"
	"github.com/kyuchan/presentation-grader/internal/llm"
	"github.com/kyuchan/presentation-grader/internal/pipeline"
	"github.com/kyuchan/presentation-grader/internal/prosody"
	"github.com/kyuchan/presentation-grader/internal/queue"
	"github.com/kyuchan/presentation-grader/internal/report"
	"github.com/kyuchan/presentation-grader/internal/storage"
	"github.com/kyuchan/presentation-grader/internal/stt"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *pgxpool.Pool // nil without DATABASE_URL
	Redis    *redis.Client // nil when Redis is unreachable
	Queue    *queue.Client // nil when Redis is unreachable
	Store    analysis.Store
	STT      *stt.Provider
	Pipeline *pipeline.Pipeline
	Files    *storage.Local
}

// New connects to the optional backing services and builds the pipeline.
// Postgres and Redis are used when reachable; otherwise records live in
// memory and transcripts are not cached.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if cfg.Database.URL != "" {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(ctx, db, database.MigrationFS(cfg.Database.MigrationsPath)); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.DB = db
		a.Store = analysis.NewPostgresStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, keeping analyses in memory")
		a.Store = analysis.NewMemoryStore()
	}

	rdb := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, running without cache and queue", "addr", cfg.Redis.Addr, "error", err)
		rdb.Close()
	} else {
		a.Redis = rdb
		a.Queue = queue.NewClient(cfg.Redis)
	}

	load, err := stt.LoaderFromConfig(cfg.STT)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.STT = stt.NewProvider(cfg.STT.Backend, cfg.STT.Language, load, logger)
	if cfg.STT.LoadOnStartup {
		if err := a.STT.Init(ctx); err != nil {
			logger.Warn("speech recognition unavailable at startup, will retry on first use", "error", err)
		}
	}

	params, err := prosody.ParamsFromConfig(cfg.Prosody)
	if err != nil {
		a.Close()
		return nil, err
	}
	analyzer, err := prosody.NewAnalyzer(params, prosody.WithWorkers(cfg.Prosody.Workers), prosody.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}

	grader := grading.NewGrader(llm.NewGateway(cfg.LLM, logger), cfg.LLM.DefaultModel, logger)
	renderer := report.NewRenderer(cfg.Report, logger)
	a.Files = storage.NewLocal(renderer.PDFDir(), renderer.ExcelDir(), cfg.Server.UploadDir)

	opts := []pipeline.Option{pipeline.WithStore(a.Store), pipeline.WithLogger(logger)}
	if a.Redis != nil {
		opts = append(opts, pipeline.WithTranscriptCache(cache.NewTranscriptCache(cache.NewCache(a.Redis), cfg.Redis.TranscriptTTL)))
	}
	if cfg.Storage.SupabaseURL != "" && cfg.Storage.SupabaseKey != "" {
		opts = append(opts, pipeline.WithRemote(storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey), cfg.Storage.Bucket))
	}
	a.Pipeline = pipeline.New(a.STT, analyzer, grader, renderer, opts...)

	return a, nil
}

func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
