package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsFlow/internal/config"
	"NewsFlow/internal/dedup"
	"NewsFlow/internal/domain"
	"NewsFlow/internal/ports"
)

// IngestDeps wires the driven adapters into the ingestion run.
type IngestDeps struct {
	Source  ports.DocumentSource
	Store   ports.DocumentStore
	Catalog ports.SourceCatalog
	Filter  *dedup.Filter
	Logger  *slog.Logger
}

// Ingestor polls the active feeds, screens fetched documents through the
// duplicate gate, and stores the survivors as pending.
type Ingestor struct {
	source  ports.DocumentSource
	store   ports.DocumentStore
	catalog ports.SourceCatalog
	filter  *dedup.Filter
	cfg     config.IngestConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngestor constructs the ingestion use case.
func NewIngestor(deps IngestDeps, cfg config.IngestConfig) *Ingestor {
	return &Ingestor{
		source:  deps.Source,
		store:   deps.Store,
		catalog: deps.Catalog,
		filter:  deps.Filter,
		cfg:     cfg,
		logger:  deps.Logger,
		now:     time.Now,
	}
}

// Warm reloads the duplicate window from recently stored documents so a
// restart does not re-admit near-duplicates.
func (i *Ingestor) Warm(ctx context.Context) error {
	if i.filter == nil {
		return nil
	}
	since := i.now().Add(-i.filter.CoarseMaxAge())
	docs, err := i.store.RecentDocuments(ctx, since, i.filter.Capacity())
	if err != nil {
		return fmt.Errorf("load recent documents: %w", err)
	}
	i.filter.Warm(docs)
	i.info("duplicate window warmed", "documents", len(docs))
	return nil
}

// Run executes one ingestion pass. A failing feed only degrades that feed's
// health; the rest of the run proceeds.
func (i *Ingestor) Run(ctx context.Context) error {
	sources, err := i.catalog.ListActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(sources) == 0 {
		i.info("no active sources to poll")
		return nil
	}

	since := i.now().Add(-i.cfg.Lookback)
	results := i.source.FetchSince(ctx, sources, since)

	var accepted []domain.Document
	var fetched, duplicates, failedSources int

	for _, result := range results {
		if result.Err != nil {
			failedSources++
			if err := i.catalog.RecordSourceFailure(ctx, result.Source.ID, i.cfg.SourceFailureLimit); err != nil {
				i.warn("cannot record source failure", "source", result.Source.ID, "error", err)
			}
			continue
		}
		if err := i.catalog.RecordSourceSuccess(ctx, result.Source.ID); err != nil {
			i.warn("cannot record source success", "source", result.Source.ID, "error", err)
		}

		fetched += len(result.Documents)
		for _, doc := range result.Documents {
			verdict := i.filter.Screen(&doc)
			if verdict.Duplicate {
				duplicates++
				continue
			}
			accepted = append(accepted, doc)
		}
	}

	inserted, err := i.store.InsertPending(ctx, accepted)
	if err != nil {
		// Roll the duplicate window back so the unsaved documents are not
		// rejected as duplicates of themselves on the next run.
		ids := make([]string, 0, len(accepted))
		for _, doc := range accepted {
			ids = append(ids, doc.PostID)
		}
		i.filter.Forget(ids)
		return fmt.Errorf("store documents: %w", err)
	}

	i.info("ingestion finished",
		"sources", len(sources),
		"failed_sources", failedSources,
		"fetched", fetched,
		"duplicates", duplicates,
		"inserted", inserted,
	)
	return nil
}

func (i *Ingestor) info(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Info(msg, args...)
	}
}

func (i *Ingestor) warn(msg string, args ...any) {
	if i.logger != nil {
		i.logger.Warn(msg, args...)
	}
}
