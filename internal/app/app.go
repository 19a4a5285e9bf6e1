package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"NewsFlow/internal/batch"
	"NewsFlow/internal/config"
	"NewsFlow/internal/dedup"
	"NewsFlow/internal/domain"
	"NewsFlow/internal/infrastructure/feeds"
	"NewsFlow/internal/infrastructure/llm"
	"NewsFlow/internal/infrastructure/scheduler"
	"NewsFlow/internal/infrastructure/storage"
	"NewsFlow/internal/infrastructure/telegram"
	"NewsFlow/internal/logging"
	"NewsFlow/internal/scanner"
	"NewsFlow/internal/state"
	"NewsFlow/internal/usecase"
)

const shutdownGrace = 30 * time.Second

// Application wires configuration to adapters, use cases, and lifecycle.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	db          *sqlx.DB
	store       *storage.PostgresStore
	ingestor    *usecase.Ingestor
	coordinator *usecase.Coordinator
}

// New builds a runnable application instance: it connects to Postgres,
// applies the schema, and assembles the pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	store := storage.NewPostgresStore(db)

	registry := scanner.NewRegistry()
	registry.Register(feeds.NewRSSScanner(nil))
	source := feeds.NewMultiSource(
		registry, "rss",
		cfg.Ingest.MaxConcurrentFetches, cfg.Ingest.FetchTimeout,
		baseLogger.With("component", "source"),
	)

	filter := dedup.NewFilter(dedup.Config{
		WindowSize:          cfg.Dedup.WindowSize,
		CoarseMaxAge:        cfg.Dedup.CoarseMaxAge,
		FineMaxAge:          cfg.Dedup.FineMaxAge,
		MaxHammingDistance:  cfg.Dedup.MaxHammingDistance,
		MaxCosineSimilarity: cfg.Dedup.MaxCosineSimilarity,
		MinContentLength:    cfg.Dedup.MinContentLength,
	}, baseLogger.With("component", "dedup"))

	ingestor := usecase.NewIngestor(usecase.IngestDeps{
		Source:  source,
		Store:   store,
		Catalog: store,
		Filter:  filter,
		Logger:  baseLogger.With("component", "ingest"),
	}, cfg.Ingest)

	keys := llm.NewKeyRing(cfg.LLM.APIKeys)
	classifier := llm.NewClient(cfg.LLM, cfg.Classification, keys, store, baseLogger.With("component", "llm"))

	machine := state.NewMachine(store, state.Config{
		MaxAttempts:        cfg.Classification.MaxAttempts,
		StaleAfter:         cfg.Classification.StaleAfter,
		RelevanceThreshold: cfg.Classification.RelevanceThreshold,
	}, baseLogger.With("component", "state"))

	priorities := make(map[string]int, len(cfg.Sources))
	for _, src := range cfg.Sources {
		priorities[src.ID] = src.Priority
	}
	batcher := batch.NewBuilder(batch.Config{
		TokenBudget:    cfg.Batch.TokenBudget,
		SafetyReserve:  cfg.Batch.SafetyReserve,
		TopicThreshold: cfg.Batch.TopicThreshold,
		Order:          batchOrder(cfg.Batch.Order),
		SourcePriority: priorities,
	})

	classify := usecase.NewClassifyRunner(usecase.ClassifyDeps{
		Machine:    machine,
		Batcher:    batcher,
		Classifier: classifier,
		Keys:       keys,
		Logger:     baseLogger.With("component", "classify"),
	}, cfg.Batch.MaxDocuments)

	notifier := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	digest := usecase.NewDigestRunner(usecase.DigestDeps{
		Store:      store,
		Classifier: classifier,
		Notifier:   notifier,
		Logger:     baseLogger.With("component", "digest"),
	}, cfg.Digest.Lookback)

	cronDriver := scheduler.NewCronScheduler(cfg.Scheduler.Location(), baseLogger.With("component", "scheduler"))
	coordinator := usecase.NewCoordinator(cronDriver, ingestor, classify, digest, cfg.Scheduler, baseLogger.With("component", "coordinator"))

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		db:          db,
		store:       store,
		ingestor:    ingestor,
		coordinator: coordinator,
	}, nil
}

// Run starts the scheduled pipeline and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.prepare(ctx); err != nil {
		return err
	}

	if err := a.coordinator.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	a.logger.Info("pipeline started",
		"ingest", a.cfg.Scheduler.IngestCron,
		"classify", a.cfg.Scheduler.ClassifyCron,
		"digest", a.cfg.Scheduler.DigestCron,
	)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := a.coordinator.Stop(stopCtx); err != nil {
		a.logger.Warn("coordinator stop", "error", err)
	}
	return a.Close()
}

// RunOnce executes a single full pipeline pass and exits.
func (a *Application) RunOnce(ctx context.Context) error {
	if err := a.prepare(ctx); err != nil {
		return err
	}
	if err := a.coordinator.RunOnce(ctx); err != nil {
		return err
	}
	return a.Close()
}

func (a *Application) prepare(ctx context.Context) error {
	sources := make([]domain.Source, 0, len(a.cfg.Sources))
	for _, src := range a.cfg.Sources {
		sources = append(sources, domain.Source{
			ID:       src.ID,
			Name:     src.Name,
			FeedURL:  src.URL,
			Priority: src.Priority,
			Health:   domain.SourceActive,
		})
	}
	if err := a.store.UpsertSources(ctx, sources); err != nil {
		return fmt.Errorf("register sources: %w", err)
	}

	if err := a.ingestor.Warm(ctx); err != nil {
		return fmt.Errorf("warm duplicate window: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// batchOrder maps the config vocabulary onto the builder's order keys.
// "priority" is kept as an accepted spelling for "source".
func batchOrder(name string) batch.Order {
	switch batch.Order(name) {
	case batch.OrderSourcePriority, "priority":
		return batch.OrderSourcePriority
	default:
		return batch.OrderOldestFirst
	}
}
