package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsFlow/internal/domain"
)

type sourceRow struct {
	ID                string       `db:"id"`
	Name              string       `db:"name"`
	FeedURL           string       `db:"feed_url"`
	Priority          int          `db:"priority"`
	Health            string       `db:"health"`
	ConsecutiveErrors int          `db:"consecutive_errors"`
	LastSuccessAt     sql.NullTime `db:"last_success_at"`
}

func (r sourceRow) toDomain() domain.Source {
	src := domain.Source{
		ID:                r.ID,
		Name:              r.Name,
		FeedURL:           r.FeedURL,
		Priority:          r.Priority,
		Health:            domain.SourceHealth(r.Health),
		ConsecutiveErrors: r.ConsecutiveErrors,
	}
	if r.LastSuccessAt.Valid {
		src.LastSuccessAt = r.LastSuccessAt.Time
	}
	return src
}

// UpsertSources registers configured feeds. Health and error counters of
// existing rows are preserved so a config reload never resets feed state.
func (s *PostgresStore) UpsertSources(ctx context.Context, sources []domain.Source) error {
	if len(sources) == 0 {
		return nil
	}

	builder := psql.Insert("sources").Columns("id", "name", "feed_url", "priority", "health")
	for _, src := range sources {
		health := src.Health
		if health == "" {
			health = domain.SourceActive
		}
		builder = builder.Values(src.ID, src.Name, src.FeedURL, src.Priority, string(health))
	}
	query, args, err := builder.
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, feed_url = EXCLUDED.feed_url, priority = EXCLUDED.priority").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert sources: %w", err)
	}
	return nil
}

// ListActiveSources returns pollable feeds, highest priority first.
func (s *PostgresStore) ListActiveSources(ctx context.Context) ([]domain.Source, error) {
	query, args, err := psql.Select("id", "name", "feed_url", "priority", "health", "consecutive_errors", "last_success_at").
		From("sources").
		Where(sq.Eq{"health": string(domain.SourceActive)}).
		OrderBy("priority DESC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select sources: %w", err)
	}

	sources := make([]domain.Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, row.toDomain())
	}
	return sources, nil
}

// RecordSourceSuccess resets the consecutive-error counter.
func (s *PostgresStore) RecordSourceSuccess(ctx context.Context, id string) error {
	query, args, err := psql.Update("sources").
		Set("consecutive_errors", 0).
		Set("health", string(domain.SourceActive)).
		Set("last_success_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build success update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record source success %s: %w", id, err)
	}
	return nil
}

// RecordSourceFailure increments the consecutive-error counter and flips the
// source to error health once the counter reaches deactivateAfter.
func (s *PostgresStore) RecordSourceFailure(ctx context.Context, id string, deactivateAfter int) error {
	query, args, err := psql.Update("sources").
		Set("consecutive_errors", sq.Expr("consecutive_errors + 1")).
		Set("health", sq.Expr(
			"CASE WHEN consecutive_errors + 1 >= ? THEN ? ELSE health END",
			deactivateAfter, string(domain.SourceErrored),
		)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build failure update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record source failure %s: %w", id, err)
	}
	return nil
}

// RecordAIRequest appends one model call to the audit trail.
func (s *PostgresStore) RecordAIRequest(ctx context.Context, req domain.AIRequest) error {
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query, args, err := psql.Insert("ai_requests").
		Columns("id", "stage", "model", "key_label", "document_count",
			"prompt_chars", "response_chars", "estimated_tokens",
			"outcome", "error", "latency_ms", "created_at").
		Values(req.ID, req.Stage, req.Model, req.KeyLabel, req.DocumentCount,
			req.PromptChars, req.ResponseChars, req.EstimatedTokens,
			string(req.Outcome), req.Error, req.Latency.Milliseconds(), createdAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ai request: %w", err)
	}
	return nil
}
