package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsFlow/internal/domain"
	"NewsFlow/internal/pipeerr"
	"NewsFlow/internal/ports"
	"NewsFlow/internal/scanner"
)

// MultiSource implements DocumentSource via registered scanner strategies,
// polling feeds concurrently under a bounded limit. One result slot is
// produced per input source, in input order, so a broken feed surfaces as a
// per-source error instead of sinking the run.
type MultiSource struct {
	registry     *scanner.Registry
	strategy     string
	maxInFlight  int
	fetchTimeout time.Duration
	logger       *slog.Logger
}

var _ ports.DocumentSource = (*MultiSource)(nil)

// NewMultiSource wires the scanner registry with fetch bounds.
func NewMultiSource(reg *scanner.Registry, strategy string, maxInFlight int, fetchTimeout time.Duration, log *slog.Logger) *MultiSource {
	if strategy == "" {
		strategy = "rss"
	}
	if maxInFlight <= 0 {
		maxInFlight = 10
	}
	return &MultiSource{
		registry:     reg,
		strategy:     strategy,
		maxInFlight:  maxInFlight,
		fetchTimeout: fetchTimeout,
		logger:       log,
	}
}

// FetchSince polls every source for documents published after since.
func (s *MultiSource) FetchSince(ctx context.Context, sources []domain.Source, since time.Time) []ports.SourceResult {
	results := make([]ports.SourceResult, len(sources))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.maxInFlight)

	for i, src := range sources {
		i, src := i, src
		results[i].Source = src
		group.Go(func() error {
			docs, err := s.fetchOne(groupCtx, src, since)
			if err != nil {
				s.warn("source fetch failed", "source", src.ID, "error", err)
				results[i].Err = &pipeerr.SourceFetchError{Source: src.ID, Err: err}
				return nil
			}
			s.debug("source fetched", "source", src.ID, "documents", len(docs))
			results[i].Documents = docs
			return nil
		})
	}

	_ = group.Wait()
	return results
}

func (s *MultiSource) fetchOne(ctx context.Context, src domain.Source, since time.Time) ([]domain.Document, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	strategy, err := s.registry.Resolve(s.strategy)
	if err != nil {
		return nil, err
	}

	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	docs, err := strategy.Scan(ctx, scanner.Request{Source: src, Since: since})
	if err != nil {
		return nil, err
	}

	for i := range docs {
		if docs[i].Source == "" {
			docs[i].Source = src.ID
		}
	}
	return docs, nil
}

func (s *MultiSource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *MultiSource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
