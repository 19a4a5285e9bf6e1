package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"NewsFlow/internal/batch"
	"NewsFlow/internal/domain"
	"NewsFlow/internal/pipeerr"
	"NewsFlow/internal/ports"
	"NewsFlow/internal/state"
)

// KeyRotator switches the classifier to the next API key after a quota
// rejection. The llm key ring satisfies it.
type KeyRotator interface {
	Rotate() bool
}

// ClassifyDeps wires the classification run.
type ClassifyDeps struct {
	Machine    *state.Machine
	Batcher    *batch.Builder
	Classifier ports.Classifier
	Keys       KeyRotator
	Logger     *slog.Logger
}

// ClassifyRunner drives claimed documents through the relevance and
// categorization stages in token-bounded batches.
type ClassifyRunner struct {
	machine    *state.Machine
	batcher    *batch.Builder
	classifier ports.Classifier
	keys       KeyRotator
	maxDocs    int
	logger     *slog.Logger
}

// NewClassifyRunner constructs the classification use case. maxDocs bounds
// how many documents one run claims per stage.
func NewClassifyRunner(deps ClassifyDeps, maxDocs int) *ClassifyRunner {
	if maxDocs <= 0 {
		maxDocs = 200
	}
	return &ClassifyRunner{
		machine:    deps.Machine,
		batcher:    deps.Batcher,
		classifier: deps.Classifier,
		keys:       deps.Keys,
		maxDocs:    maxDocs,
		logger:     deps.Logger,
	}
}

// Run executes one classification pass: stale claims are released first,
// then the relevance stage, then categorization.
func (r *ClassifyRunner) Run(ctx context.Context) error {
	if _, err := r.machine.ReclaimStale(ctx); err != nil {
		return fmt.Errorf("reclaim stale claims: %w", err)
	}

	if err := r.runRelevance(ctx); err != nil {
		return err
	}
	return r.runCategorization(ctx)
}

func (r *ClassifyRunner) runRelevance(ctx context.Context) error {
	docs, err := r.machine.NextForRelevance(ctx, r.maxDocs)
	if err != nil {
		return fmt.Errorf("select relevance candidates: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	for _, b := range r.batcher.Build(docs) {
		results, err := r.callWithRotation(ctx, func(ctx context.Context) (int, error) {
			res, err := r.classifier.EvaluateRelevance(ctx, b.Documents, b.Oversized)
			if err != nil {
				return 0, err
			}
			for _, doc := range b.Documents {
				verdict, ok := res[doc.PostID]
				if !ok {
					r.fail(ctx, doc, errors.New("model response missing document"))
					continue
				}
				if err := r.machine.RecordRelevance(ctx, doc, verdict.Relevant, verdict.Score); err != nil {
					r.warn("cannot record relevance", "post_id", doc.PostID, "error", err)
				}
			}
			return len(res), nil
		})
		if err != nil {
			r.failBatch(ctx, b.Documents, err)
			continue
		}
		r.info("relevance batch done", "documents", len(b.Documents), "answered", results, "oversized", b.Oversized)
	}
	return nil
}

func (r *ClassifyRunner) runCategorization(ctx context.Context) error {
	docs, err := r.machine.NextForCategorization(ctx, r.maxDocs)
	if err != nil {
		return fmt.Errorf("select categorization candidates: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	for _, b := range r.batcher.Build(docs) {
		results, err := r.callWithRotation(ctx, func(ctx context.Context) (int, error) {
			res, err := r.classifier.Categorize(ctx, b.Documents, b.Oversized)
			if err != nil {
				return 0, err
			}
			for _, doc := range b.Documents {
				assigned, ok := res[doc.PostID]
				if !ok {
					r.fail(ctx, doc, errors.New("model response missing document"))
					continue
				}
				if err := r.machine.RecordCategories(ctx, doc, assigned.Category, assigned.Subcategory, assigned.Confidence); err != nil {
					r.warn("cannot record categories", "post_id", doc.PostID, "error", err)
				}
			}
			return len(res), nil
		})
		if err != nil {
			r.failBatch(ctx, b.Documents, err)
			continue
		}
		r.info("categorization batch done", "documents", len(b.Documents), "answered", results, "oversized", b.Oversized)
	}
	return nil
}

// callWithRotation runs one classifier call and, on a quota rejection,
// rotates the key and retries the same batch exactly once.
func (r *ClassifyRunner) callWithRotation(ctx context.Context, call func(context.Context) (int, error)) (int, error) {
	n, err := call(ctx)
	if err == nil || !pipeerr.IsQuota(err) {
		return n, err
	}

	if r.keys == nil || !r.keys.Rotate() {
		return 0, err
	}
	r.warn("quota exhausted, rotated key and retrying batch", "error", err)
	return call(ctx)
}

func (r *ClassifyRunner) failBatch(ctx context.Context, docs []domain.Document, cause error) {
	r.warn("classifier batch failed", "documents", len(docs), "error", cause)
	for _, doc := range docs {
		r.fail(ctx, doc, cause)
	}
}

func (r *ClassifyRunner) fail(ctx context.Context, doc domain.Document, cause error) {
	if err := r.machine.Fail(ctx, doc, cause); err != nil {
		r.warn("cannot record failure", "post_id", doc.PostID, "error", err)
	}
}

func (r *ClassifyRunner) info(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *ClassifyRunner) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
