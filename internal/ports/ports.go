package ports

import (
	"context"
	"time"

	"NewsFlow/internal/domain"
)

// SourceResult is one feed's outcome within an ingestion run. A failed source
// never aborts the run for the others.
type SourceResult struct {
	Source    domain.Source
	Documents []domain.Document
	Err       error
}

// DocumentSource pulls fresh documents from the configured upstream feeds.
type DocumentSource interface {
	FetchSince(ctx context.Context, sources []domain.Source, since time.Time) []SourceResult
}

// DocumentStore persists documents and their processing lifecycle. The status
// and relevance columns are written exclusively through the state machine.
type DocumentStore interface {
	// InsertPending stores accepted documents with status pending. Rows
	// whose post_id already exists are left untouched; the returned count
	// covers newly inserted rows only.
	InsertPending(ctx context.Context, docs []domain.Document) (int, error)

	// RecentDocuments returns accepted documents fetched after since,
	// oldest first, used to warm the dedup window across restarts.
	RecentDocuments(ctx context.Context, since time.Time, limit int) ([]domain.Document, error)

	// RelevanceCandidates returns documents awaiting the relevance stage:
	// pending, or retryable errors that never got a relevance verdict.
	RelevanceCandidates(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Document, error)

	// CategorizationCandidates returns relevant documents awaiting
	// category assignment, excluding ones with a live in-flight claim.
	CategorizationCandidates(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Document, error)

	// ClaimForStage transitions the documents into the in-flight state for
	// a stage and stamps the claim time.
	ClaimForStage(ctx context.Context, ids []string, to domain.Status) error

	// SaveRelevance records a relevance verdict and the follow-up status.
	SaveRelevance(ctx context.Context, postID string, relevant bool, score float64, to domain.Status) error

	// SaveCategories records category assignment and the follow-up status.
	SaveCategories(ctx context.Context, postID, category, subcategory string, confidence float64, to domain.Status) error

	// RecordFailure moves a document to error, storing the message and
	// incrementing the attempt counter when countAttempt is set.
	RecordFailure(ctx context.Context, postID, message string, countAttempt bool) error

	// ReclaimStale reverts in-flight documents whose claim predates
	// staleBefore back to a retryable error without charging an attempt.
	ReclaimStale(ctx context.Context, staleBefore time.Time) (int64, error)

	// ProcessedForDigest returns processed, relevant, undelivered
	// documents published after since.
	ProcessedForDigest(ctx context.Context, since time.Time, limit int) ([]domain.Document, error)

	// MarkDelivered flags documents whose delivery was acknowledged.
	MarkDelivered(ctx context.Context, ids []string) error

	// StatusCounts reports how many documents sit in each status.
	StatusCounts(ctx context.Context) (map[domain.Status]int, error)
}

// SourceCatalog tracks feed registration and health.
type SourceCatalog interface {
	UpsertSources(ctx context.Context, sources []domain.Source) error
	ListActiveSources(ctx context.Context) ([]domain.Source, error)
	RecordSourceSuccess(ctx context.Context, id string) error
	// RecordSourceFailure increments the consecutive-error counter and
	// deactivates the source once the counter exceeds deactivateAfter.
	RecordSourceFailure(ctx context.Context, id string, deactivateAfter int) error
}

// RelevanceResult is the per-document outcome of a relevance call.
type RelevanceResult struct {
	Relevant bool
	Score    float64
}

// CategoryResult is the per-document outcome of a categorization call.
type CategoryResult struct {
	Category    string
	Subcategory string
	Confidence  float64
}

// Classifier evaluates document batches through the external model provider.
// Implementations must tolerate partial per-document failure: missing map
// entries mean the model skipped those documents.
type Classifier interface {
	EvaluateRelevance(ctx context.Context, docs []domain.Document, truncate bool) (map[string]RelevanceResult, error)
	Categorize(ctx context.Context, docs []domain.Document, truncate bool) (map[string]CategoryResult, error)
	Summarize(ctx context.Context, docs []domain.Document) (string, error)
}

// AuditLog records every external model call for key-rotation diagnostics and
// cost accounting.
type AuditLog interface {
	RecordAIRequest(ctx context.Context, req domain.AIRequest) error
}

// Notifier delivers digests to the configured channel (Telegram or similar).
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler drives the pipeline cadences.
type Scheduler interface {
	Schedule(name, spec string, job func(context.Context)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
