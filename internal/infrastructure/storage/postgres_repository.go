package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"NewsFlow/internal/domain"
	"NewsFlow/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var documentColumns = []string{
	"post_id", "source", "title", "content", "url",
	"published_at", "fetched_at", "simhash", "status",
	"relevance", "relevance_score", "category", "subcategory", "confidence",
	"error_count", "last_error", "delivered", "updated_at",
}

// PostgresStore persists documents, sources and the model-call audit trail.
type PostgresStore struct {
	db *sqlx.DB
}

var (
	_ ports.DocumentStore = (*PostgresStore)(nil)
	_ ports.SourceCatalog = (*PostgresStore)(nil)
	_ ports.AuditLog      = (*PostgresStore)(nil)
)

// NewPostgresStore wires an sqlx.DB implementation.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type documentRow struct {
	PostID         string         `db:"post_id"`
	Source         string         `db:"source"`
	Title          string         `db:"title"`
	Content        string         `db:"content"`
	URL            string         `db:"url"`
	PublishedAt    time.Time      `db:"published_at"`
	FetchedAt      time.Time      `db:"fetched_at"`
	Simhash        int64          `db:"simhash"`
	Status         string         `db:"status"`
	Relevance      sql.NullBool   `db:"relevance"`
	RelevanceScore float64        `db:"relevance_score"`
	Category       sql.NullString `db:"category"`
	Subcategory    sql.NullString `db:"subcategory"`
	Confidence     float64        `db:"confidence"`
	ErrorCount     int            `db:"error_count"`
	LastError      sql.NullString `db:"last_error"`
	Delivered      bool           `db:"delivered"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r documentRow) toDomain() domain.Document {
	doc := domain.Document{
		PostID:         r.PostID,
		Source:         r.Source,
		Title:          r.Title,
		Content:        r.Content,
		URL:            r.URL,
		PublishedAt:    r.PublishedAt,
		FetchedAt:      r.FetchedAt,
		Simhash:        uint64(r.Simhash),
		RelevanceScore: r.RelevanceScore,
		Category:       r.Category.String,
		Subcategory:    r.Subcategory.String,
		Confidence:     r.Confidence,
		ErrorCount:     r.ErrorCount,
		LastError:      r.LastError.String,
		Delivered:      r.Delivered,
		UpdatedAt:      r.UpdatedAt,
	}
	if status, err := domain.ParseStatus(r.Status); err == nil {
		doc.Status = status
	}
	if r.Relevance.Valid {
		v := r.Relevance.Bool
		doc.Relevance = &v
	}
	return doc
}

// InsertPending stores accepted documents; rows whose post_id already exists
// are left untouched.
func (s *PostgresStore) InsertPending(ctx context.Context, docs []domain.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	builder := psql.Insert("documents").Columns(
		"post_id", "source", "title", "content", "url",
		"published_at", "fetched_at", "simhash", "status",
	)
	for _, doc := range docs {
		builder = builder.Values(
			doc.PostID, doc.Source, doc.Title, doc.Content, doc.URL,
			doc.PublishedAt, doc.FetchedAt, int64(doc.Simhash), domain.StatusPending.String(),
		)
	}
	query, args, err := builder.Suffix("ON CONFLICT (post_id) DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert documents: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(inserted), nil
}

// RecentDocuments returns documents fetched after since, oldest first.
func (s *PostgresStore) RecentDocuments(ctx context.Context, since time.Time, limit int) ([]domain.Document, error) {
	query, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(sq.Gt{"fetched_at": since}).
		OrderBy("fetched_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.selectDocuments(ctx, query, args)
}

// RelevanceCandidates returns documents awaiting a relevance attempt:
// pending rows plus retryable errors that never got a verdict.
func (s *PostgresStore) RelevanceCandidates(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Document, error) {
	query, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(sq.Or{
			sq.Eq{"status": domain.StatusPending.String()},
			sq.And{
				sq.Eq{"status": domain.StatusError.String()},
				sq.Lt{"error_count": maxAttempts},
				sq.Expr("relevance IS NULL"),
			},
		}).
		Where(sq.Or{
			sq.Expr("claimed_at IS NULL"),
			sq.Lt{"claimed_at": staleBefore},
		}).
		OrderBy("published_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.selectDocuments(ctx, query, args)
}

// CategorizationCandidates returns relevant documents awaiting category
// assignment, skipping rows with a live in-flight claim.
func (s *PostgresStore) CategorizationCandidates(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]domain.Document, error) {
	query, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(sq.Or{
			sq.Eq{"status": domain.StatusCategorizing.String()},
			sq.And{
				sq.Eq{"status": domain.StatusError.String()},
				sq.Lt{"error_count": maxAttempts},
				sq.Eq{"relevance": true},
				sq.Expr("(category IS NULL OR category = '')"),
			},
		}).
		Where(sq.Or{
			sq.Expr("claimed_at IS NULL"),
			sq.Lt{"claimed_at": staleBefore},
		}).
		OrderBy("published_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.selectDocuments(ctx, query, args)
}

// ClaimForStage moves the documents into the stage's in-flight status and
// stamps the claim time.
func (s *PostgresStore) ClaimForStage(ctx context.Context, ids []string, to domain.Status) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := psql.Update("documents").
		Set("status", to.String()).
		Set("claimed_at", sq.Expr("NOW()")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"post_id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build claim: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("claim documents: %w", err)
	}
	return nil
}

// SaveRelevance records a relevance verdict and releases the claim.
func (s *PostgresStore) SaveRelevance(ctx context.Context, postID string, relevant bool, score float64, to domain.Status) error {
	query, args, err := psql.Update("documents").
		Set("relevance", relevant).
		Set("relevance_score", score).
		Set("status", to.String()).
		Set("claimed_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"post_id": postID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build relevance update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save relevance %s: %w", postID, err)
	}
	return nil
}

// SaveCategories records the category assignment and releases the claim.
func (s *PostgresStore) SaveCategories(ctx context.Context, postID, category, subcategory string, confidence float64, to domain.Status) error {
	query, args, err := psql.Update("documents").
		Set("category", category).
		Set("subcategory", subcategory).
		Set("confidence", confidence).
		Set("status", to.String()).
		Set("claimed_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"post_id": postID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build category update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save categories %s: %w", postID, err)
	}
	return nil
}

// RecordFailure moves a document into error, optionally charging an attempt.
func (s *PostgresStore) RecordFailure(ctx context.Context, postID, message string, countAttempt bool) error {
	builder := psql.Update("documents").
		Set("status", domain.StatusError.String()).
		Set("last_error", message).
		Set("claimed_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"post_id": postID})
	if countAttempt {
		builder = builder.Set("error_count", sq.Expr("error_count + 1"))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build failure update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record failure %s: %w", postID, err)
	}
	return nil
}

// ReclaimStale releases in-flight claims older than staleBefore. Documents
// stuck mid-relevance revert to a retryable error; stale categorization
// claims are simply released back to the candidate pool. No attempt is
// charged either way.
func (s *PostgresStore) ReclaimStale(ctx context.Context, staleBefore time.Time) (int64, error) {
	query, args, err := psql.Update("documents").
		Set("status", domain.StatusError.String()).
		Set("last_error", "stale in-flight claim reclaimed").
		Set("claimed_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"status": domain.StatusRelevanceChecking.String()}).
		Where(sq.Lt{"claimed_at": staleBefore}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build reclaim: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}
	reclaimed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	query, args, err = psql.Update("documents").
		Set("claimed_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"status": domain.StatusCategorizing.String()}).
		Where(sq.Lt{"claimed_at": staleBefore}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build release: %w", err)
	}
	result, err = s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return reclaimed + released, nil
}

// ProcessedForDigest returns processed, relevant, undelivered documents
// published after since.
func (s *PostgresStore) ProcessedForDigest(ctx context.Context, since time.Time, limit int) ([]domain.Document, error) {
	query, args, err := psql.Select(documentColumns...).
		From("documents").
		Where(sq.Eq{"status": domain.StatusProcessed.String()}).
		Where(sq.Eq{"relevance": true}).
		Where(sq.Eq{"delivered": false}).
		Where(sq.Gt{"published_at": since}).
		OrderBy("published_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.selectDocuments(ctx, query, args)
}

// MarkDelivered flags the documents whose digest delivery was acknowledged.
func (s *PostgresStore) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := psql.Update("documents").
		Set("delivered", true).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"post_id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delivered update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// StatusCounts reports how many documents sit in each status.
func (s *PostgresStore) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	query, _, err := psql.Select("status", "COUNT(*) AS total").
		From("documents").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := map[domain.Status]int{}
	for rows.Next() {
		var name string
		var total int
		if err := rows.Scan(&name, &total); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		status, err := domain.ParseStatus(name)
		if err != nil {
			continue
		}
		counts[status] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) selectDocuments(ctx context.Context, query string, args []any) ([]domain.Document, error) {
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toDomain())
	}
	return docs, nil
}
