package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"NewsFlow/internal/domain"
	"NewsFlow/internal/ports"
)

const digestDocumentLimit = 100

// DigestDeps wires the digest run.
type DigestDeps struct {
	Store      ports.DocumentStore
	Classifier ports.Classifier
	Notifier   ports.Notifier
	Logger     *slog.Logger
}

// DigestRunner collects processed relevant documents, summarizes them and
// delivers the digest. Documents are marked delivered only after the
// notifier acknowledged the send.
type DigestRunner struct {
	store      ports.DocumentStore
	classifier ports.Classifier
	notifier   ports.Notifier
	lookback   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewDigestRunner constructs the digest use case.
func NewDigestRunner(deps DigestDeps, lookback time.Duration) *DigestRunner {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &DigestRunner{
		store:      deps.Store,
		classifier: deps.Classifier,
		notifier:   deps.Notifier,
		lookback:   lookback,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Run executes one digest pass.
func (d *DigestRunner) Run(ctx context.Context) error {
	since := d.now().Add(-d.lookback)
	docs, err := d.store.ProcessedForDigest(ctx, since, digestDocumentLimit)
	if err != nil {
		return fmt.Errorf("load processed documents: %w", err)
	}
	if len(docs) == 0 {
		d.info("nothing to digest")
		return nil
	}

	digest, err := d.classifier.Summarize(ctx, docs)
	if err != nil {
		// A digest is still worth sending when the model is down.
		d.warn("summarization failed, falling back to plain list", "error", err)
		digest = plainDigest(docs)
	}

	if err := d.notifier.PublishDigest(ctx, digest); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.PostID)
	}
	if err := d.store.MarkDelivered(ctx, ids); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	d.info("digest delivered", "documents", len(docs))
	d.reportStats(ctx)
	return nil
}

// reportStats logs the per-status document counts alongside each digest so
// the daily report doubles as a pipeline health snapshot.
func (d *DigestRunner) reportStats(ctx context.Context) {
	counts, err := d.store.StatusCounts(ctx)
	if err != nil {
		d.warn("cannot load status counts", "error", err)
		return
	}
	args := make([]any, 0, len(counts)*2)
	for status, n := range counts {
		args = append(args, status.String(), n)
	}
	d.info("pipeline status", args...)
}

// plainDigest renders documents grouped by category without model help.
func plainDigest(docs []domain.Document) string {
	byCategory := map[string][]domain.Document{}
	order := []string{}
	for _, doc := range docs {
		category := doc.Category
		if category == "" {
			category = "Uncategorized"
		}
		if _, ok := byCategory[category]; !ok {
			order = append(order, category)
		}
		byCategory[category] = append(byCategory[category], doc)
	}

	var b strings.Builder
	for _, category := range order {
		b.WriteString(category)
		b.WriteString(":\n")
		for _, doc := range byCategory[category] {
			b.WriteString("- ")
			b.WriteString(doc.Title)
			if doc.URL != "" {
				b.WriteString("\n  ")
				b.WriteString(doc.URL)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *DigestRunner) info(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}

func (d *DigestRunner) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
