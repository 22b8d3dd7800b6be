package historystore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore persists Records to a Postgres table via sqlx, mirroring the teacher's
// SQLite repository's query style generalized to the Postgres driver.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens dsn and ensures the history table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect history store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS evaluation_history (
	id SERIAL PRIMARY KEY,
	requested_at TIMESTAMPTZ NOT NULL,
	outcome TEXT NOT NULL,
	matched_block TEXT,
	detail TEXT
)`

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluation_history (requested_at, outcome, matched_block, detail)
		VALUES ($1, $2, $3, $4)
	`, rec.RequestedAt, rec.Outcome, rec.MatchedBlock, rec.Detail)
	if err != nil {
		return fmt.Errorf("append history record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Record
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, requested_at, outcome, matched_block, detail
		FROM evaluation_history
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
