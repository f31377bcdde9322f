// Package appctx builds the single AppContext every long-lived process
// (cmd/newsctl) wires once at startup, replacing the teacher's
// package-level globals (metrics.Global, the package-level aiClient in
// internal/gemini) with explicit dependency construction and injection,
// per the Design Notes' capability-interface approach.
package appctx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/newsagg/internal/ai"
	"github.com/deusflow/newsagg/internal/category"
	"github.com/deusflow/newsagg/internal/config"
	"github.com/deusflow/newsagg/internal/extractmem"
	"github.com/deusflow/newsagg/internal/extractor"
	"github.com/deusflow/newsagg/internal/httpfetch"
	"github.com/deusflow/newsagg/internal/logging"
	"github.com/deusflow/newsagg/internal/metrics"
	"github.com/deusflow/newsagg/internal/migrations"
	"github.com/deusflow/newsagg/internal/orchestrator"
	"github.com/deusflow/newsagg/internal/persistqueue"
	"github.com/deusflow/newsagg/internal/scheduler"
	"github.com/deusflow/newsagg/internal/sources"
	"github.com/deusflow/newsagg/internal/sources/generic"
	"github.com/deusflow/newsagg/internal/sources/pagemonitor"
	"github.com/deusflow/newsagg/internal/sources/rss"
	"github.com/deusflow/newsagg/internal/sources/telegram"
	"github.com/deusflow/newsagg/internal/telegraph"
	telegramout "github.com/deusflow/newsagg/internal/telegram"
)

// AppContext holds every shared, process-wide dependency.
type AppContext struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Fetcher      *httpfetch.Fetcher
	Queue        *persistqueue.Queue
	Storage      *persistqueue.Storage
	Migrations   *migrations.Manager
	ExtractMem   *extractmem.Memory
	Extractor    *extractor.Extractor
	AI           *ai.Client
	Categories   *category.Engine
	Registry     *sources.Registry
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *scheduler.Scheduler
	GenericSource *generic.Adapter
}

// New constructs the full dependency graph from cfg. It runs schema
// migrations (C10) before returning; a migration failure is logged and
// does not stop New, so the returned AppContext then runs against
// whatever schema the database already has.
func New(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	logger := logging.New(levelFromDebug(cfg.Debug))
	m := metrics.New()

	fetcher := httpfetch.New(20, 4, cfg.RequestTimeout)

	queue, err := persistqueue.Open(cfg.DatabaseURL, 20, 5, logger)
	if err != nil {
		return nil, fmt.Errorf("appctx: opening persistence queue: %w", err)
	}
	storage := persistqueue.NewStorage(queue)

	migMgr := migrations.New(queue.DB(), logger)
	if err := migMgr.Run(ctx); err != nil {
		logger.Error("schema migrations failed, continuing in degraded mode", "error", err)
	}

	extractMem := extractmem.New(storage)

	aiClient, err := ai.New(ctx, ai.Config{
		APIKey:              cfg.GeminiAPIKey,
		SummarizationModel:  cfg.SummarizationModel,
		CategorizationModel: cfg.CategorizationModel,
		DigestModel:         cfg.DigestModel,
		RPS:                 cfg.RPS,
		MaxAttempts:         cfg.RetryAttempts,
		CacheTTL:            cfg.CacheTTL,
	}, m, logger)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("appctx: building ai client: %w", err)
	}

	ext := extractor.New(fetcher, extractMem, httpfetch.NullRenderer{}, aiClient)
	categories := category.New(storage, cfg.DefaultCategory, 3)

	registry := sources.NewRegistry()
	registry.Register(rss.New(cfg.MinContentLength, logger))
	registry.Register(telegram.New(fetcher))
	registry.Register(pagemonitor.New(fetcher))
	genericAdapter := generic.New()
	registry.Register(genericAdapter)

	var publishers []orchestrator.Publisher
	if cfg.TelegramToken != "" {
		publishers = append(publishers, telegramout.New(cfg.TelegramToken, cfg.TelegramChatIDNews, logger))
	}
	if cfg.TelegraphToken != "" {
		publishers = append(publishers, telegraph.New(cfg.TelegraphToken, "", logger))
	}

	orch := orchestrator.New(registry, storage, ext, aiClient, categories, storage, publishers, m, logger, orchestrator.Config{
		MaxWorkers: cfg.MaxWorkers,
	})

	sched := scheduler.New(storage, logger,
		time.Duration(cfg.SchedulerCheckIntervalSeconds)*time.Second,
		time.Duration(cfg.SchedulerStuckHours)*time.Hour)
	sched.Register("ingest_and_publish", orch.RunCycle)

	return &AppContext{
		Config:        cfg,
		Logger:        logger,
		Metrics:       m,
		Fetcher:       fetcher,
		Queue:         queue,
		Storage:       storage,
		Migrations:    migMgr,
		ExtractMem:    extractMem,
		Extractor:     ext,
		AI:            aiClient,
		Categories:    categories,
		Registry:      registry,
		Orchestrator:  orch,
		Scheduler:     sched,
		GenericSource: genericAdapter,
	}, nil
}

// Close releases every resource the AppContext opened.
func (a *AppContext) Close() {
	a.AI.Close()
	a.Queue.Close()
}

func levelFromDebug(debug bool) string {
	if debug {
		return "debug"
	}
	return "info"
}
