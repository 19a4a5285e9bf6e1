package state

import (
	"context"
	"log/slog"
	"time"

	"NewsFlow/internal/domain"
)

// Store is the narrow persistence surface the machine drives. The concrete
// Postgres store satisfies it; tests use fakes.
type Store interface {
	RelevanceCandidates(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Document, error)
	CategorizationCandidates(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Document, error)
	ClaimForStage(ctx context.Context, ids []string, to domain.Status) error
	SaveRelevance(ctx context.Context, postID string, relevant bool, score float64, to domain.Status) error
	SaveCategories(ctx context.Context, postID, category, subcategory string, confidence float64, to domain.Status) error
	RecordFailure(ctx context.Context, postID, message string, countAttempt bool) error
	ReclaimStale(ctx context.Context, staleBefore time.Time) (int64, error)
}

// Config bounds retries and in-flight staleness.
type Config struct {
	// MaxAttempts is how many failed attempts a document gets before it is
	// parked in error permanently.
	MaxAttempts int
	// StaleAfter is how long an in-flight claim may live before it is
	// treated as an implicit failure and released for retry.
	StaleAfter time.Duration
	// RelevanceThreshold is the minimum accepted relevance score.
	RelevanceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.RelevanceThreshold <= 0 {
		c.RelevanceThreshold = 0.5
	}
	return c
}

// Machine advances documents through the relevance and categorization stages.
// All transitions for a single document are strictly sequential: a claimed
// document is not selectable again until its attempt resolves or goes stale.
type Machine struct {
	store  Store
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewMachine wires the state machine over a store.
func NewMachine(store Store, cfg Config, logger *slog.Logger) *Machine {
	return &Machine{store: store, cfg: cfg.withDefaults(), now: time.Now, logger: logger}
}

// NextForRelevance selects and claims documents for a relevance attempt.
// Claimed documents move to relevance_checking so concurrent selections
// cannot double-book them.
func (m *Machine) NextForRelevance(ctx context.Context, limit int) ([]domain.Document, error) {
	staleBefore := m.now().Add(-m.cfg.StaleAfter)
	docs, err := m.store.RelevanceCandidates(ctx, m.cfg.MaxAttempts, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	return m.claim(ctx, docs, domain.StatusRelevanceChecking)
}

// NextForCategorization selects and claims relevant documents awaiting
// category assignment.
func (m *Machine) NextForCategorization(ctx context.Context, limit int) ([]domain.Document, error) {
	staleBefore := m.now().Add(-m.cfg.StaleAfter)
	docs, err := m.store.CategorizationCandidates(ctx, m.cfg.MaxAttempts, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	return m.claim(ctx, docs, domain.StatusCategorizing)
}

func (m *Machine) claim(ctx context.Context, docs []domain.Document, to domain.Status) ([]domain.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(docs))
	claimed := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		// Claiming a document already in the stage's status only renews
		// the claim stamp; it is not a state change.
		if doc.Status != to {
			if err := guard(doc.PostID, doc.Status, to); err != nil {
				m.warn("skipping unclaimable document", "post_id", doc.PostID, "status", doc.Status.String())
				continue
			}
		}
		doc.Status = to
		ids = append(ids, doc.PostID)
		claimed = append(claimed, doc)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := m.store.ClaimForStage(ctx, ids, to); err != nil {
		return nil, err
	}
	return claimed, nil
}

// RecordRelevance resolves a relevance attempt. Scores below the acceptance
// threshold terminate the document as irrelevant; accepted documents become
// eligible for categorization.
func (m *Machine) RecordRelevance(ctx context.Context, doc domain.Document, relevant bool, score float64) error {
	accepted := relevant && score >= m.cfg.RelevanceThreshold
	to := domain.StatusIrrelevant
	if accepted {
		to = domain.StatusCategorizing
	}

	if err := guard(doc.PostID, doc.Status, to); err != nil {
		return err
	}
	return m.store.SaveRelevance(ctx, doc.PostID, accepted, score, to)
}

// RecordCategories resolves a categorization attempt and finishes the
// document.
func (m *Machine) RecordCategories(ctx context.Context, doc domain.Document, category, subcategory string, confidence float64) error {
	if err := guard(doc.PostID, doc.Status, domain.StatusProcessed); err != nil {
		return err
	}
	return m.store.SaveCategories(ctx, doc.PostID, category, subcategory, confidence, domain.StatusProcessed)
}

// Fail moves a document into the retryable error state and charges one
// attempt. Documents that exhaust MaxAttempts stay visible in the store but
// are no longer selected automatically.
func (m *Machine) Fail(ctx context.Context, doc domain.Document, cause error) error {
	if err := guard(doc.PostID, doc.Status, domain.StatusError); err != nil {
		return err
	}
	m.warn("document attempt failed", "post_id", doc.PostID, "error", cause)
	return m.store.RecordFailure(ctx, doc.PostID, cause.Error(), true)
}

// ReclaimStale releases in-flight claims older than StaleAfter as implicit
// errors without charging an attempt.
func (m *Machine) ReclaimStale(ctx context.Context) (int64, error) {
	staleBefore := m.now().Add(-m.cfg.StaleAfter)
	n, err := m.store.ReclaimStale(ctx, staleBefore)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.warn("reclaimed stale in-flight documents", "count", n)
	}
	return n, nil
}

// MaxAttempts exposes the configured retry bound.
func (m *Machine) MaxAttempts() int { return m.cfg.MaxAttempts }

func (m *Machine) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
