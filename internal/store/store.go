package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_documents (
	name       TEXT PRIMARY KEY,
	version    TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store keeps documents in a Postgres table
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store and makes sure the schema exists
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewStoreFromDB(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// NewStoreFromDB wraps an existing connection
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the documents table if needed
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type documentRow struct {
	Name    string `db:"name"`
	Version string `db:"version"`
	Body    []byte `db:"body"`
}

// Load retrieves a document. A missing document loads as empty with no version.
func (s *Store) Load(ctx context.Context, name string) (Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row,
		"SELECT name, version, body FROM ledger_documents WHERE name = $1", name)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{Name: name}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to load %s: %w", name, err)
	}

	return Document{Name: row.Name, Body: row.Body, Version: Version(row.Version)}, nil
}

// Save writes a document if its stored version still matches expected
func (s *Store) Save(ctx context.Context, name string, body []byte, expected Version) (Version, error) {
	next := VersionOf(body)

	var (
		res sql.Result
		err error
	)
	if expected == "" {
		res, err = s.db.ExecContext(ctx,
			"INSERT INTO ledger_documents (name, version, body) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING",
			name, string(next), string(body))
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE ledger_documents SET version = $1, body = $2, updated_at = NOW() WHERE name = $3 AND version = $4",
			string(next), string(body), name, string(expected))
	}
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%s: %w", name, ErrStaleWrite)
	}

	return next, nil
}
