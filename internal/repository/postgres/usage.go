package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/google/uuid"
)

// UsageRepository implements domain.UsageRepository on PostgreSQL
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Append(ctx context.Context, record domain.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	query := `
		INSERT INTO usage_records (id, actor_id, tokens, elapsed_seconds, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		record.ID,
		record.ActorID,
		record.Tokens,
		record.ElapsedSeconds,
		record.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

func (r *UsageRepository) ListBetween(ctx context.Context, from, to time.Time) ([]domain.UsageRecord, error) {
	query := `
		SELECT id, actor_id, tokens, elapsed_seconds, recorded_at
		FROM usage_records
		WHERE recorded_at >= $1 AND recorded_at <= $2
		ORDER BY recorded_at
	`
	rows, err := r.db.Pool.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.ActorID,
			&rec.Tokens,
			&rec.ElapsedSeconds,
			&rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}
	return records, nil
}

func (r *UsageRepository) Close() error {
	r.db.Close()
	return nil
}
