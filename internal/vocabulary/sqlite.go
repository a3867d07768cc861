package vocabulary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the database file at dbPath and its schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps code assignment checks serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vocabulary (
		field TEXT NOT NULL,
		label TEXT NOT NULL,
		code INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (field, label),
		UNIQUE (field, code)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string][]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT field, label, code, created_at FROM vocabulary ORDER BY field, code")
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

func (s *SQLiteStore) Append(ctx context.Context, field, label string, code int) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO vocabulary (field, label, code, created_at) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING",
		field, label, code, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	var stored int
	err = s.db.QueryRowContext(ctx,
		"SELECT code FROM vocabulary WHERE field = ? AND label = ?", field, label,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		// The code is held by a different label
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

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
