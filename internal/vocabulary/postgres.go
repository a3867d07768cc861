package vocabulary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore implements the Store interface on PostgreSQL. The table is
// created by the database migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection and verifies it is reachable.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (map[string][]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field, label, code, created_at
		FROM vocabulary
		ORDER BY field, code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Field, &e.Label, &e.Code, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupEntries(entries), nil
}

func (s *PostgresStore) Append(ctx context.Context, field, label string, code int) error {
	query := `
		INSERT INTO vocabulary (field, label, code, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, field, label, code, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	var stored int
	err := s.db.QueryRowContext(ctx,
		"SELECT code FROM vocabulary WHERE field = $1 AND label = $2", field, label,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return &ConflictError{Field: field, Label: label, Code: code}
	}
	if err != nil {
		return fmt.Errorf("failed to verify insert: %w", err)
	}
	if stored != code {
		return &ConflictError{Field: field, Label: label, Code: code}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
