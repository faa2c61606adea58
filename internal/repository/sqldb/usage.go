package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Rrens/slack-gpt/internal/domain"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Dialect selects the database/sql driver
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

var schemas = map[Dialect]string{
	MySQL: `CREATE TABLE IF NOT EXISTS usage_records (
		id CHAR(36) PRIMARY KEY,
		actor_id VARCHAR(64) NOT NULL,
		tokens INT NOT NULL DEFAULT 0,
		elapsed_seconds DOUBLE NOT NULL DEFAULT 0,
		recorded_at BIGINT NOT NULL,
		INDEX idx_usage_records_recorded_at (recorded_at)
	)`,
	SQLite: `CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		tokens INTEGER NOT NULL DEFAULT 0,
		elapsed_seconds REAL NOT NULL DEFAULT 0,
		recorded_at INTEGER NOT NULL
	)`,
}

// UsageRepository implements domain.UsageRepository over database/sql.
// Timestamps are stored as unix milliseconds so both drivers compare them the same way.
type UsageRepository struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to dsn and creates the usage table if needed
func Open(ctx context.Context, dialect Dialect, dsn string) (*UsageRepository, error) {
	if _, ok := schemas[dialect]; !ok {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if dialect == SQLite {
		db.SetMaxOpenConns(1) // SQLite only supports one writer
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	repo := &UsageRepository{db: db, dialect: dialect}
	if err := repo.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *UsageRepository) ensureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemas[r.dialect]); err != nil {
		return fmt.Errorf("failed to create usage table: %w", err)
	}
	return nil
}

func (r *UsageRepository) Append(ctx context.Context, record domain.UsageRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	query := `INSERT INTO usage_records (id, actor_id, tokens, elapsed_seconds, recorded_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		record.ID.String(),
		record.ActorID,
		record.Tokens,
		record.ElapsedSeconds,
		record.RecordedAt.UnixMilli(),
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
		WHERE recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at
	`
	rows, err := r.db.QueryContext(ctx, query, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var (
			rec      domain.UsageRecord
			id       string
			recorded int64
		)
		if err := rows.Scan(&id, &rec.ActorID, &rec.Tokens, &rec.ElapsedSeconds, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		rec.ID, _ = uuid.Parse(id)
		rec.RecordedAt = time.UnixMilli(recorded).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage records: %w", err)
	}
	return records, nil
}

func (r *UsageRepository) Close() error {
	return r.db.Close()
}
