// Package store provides a SQLite-backed log of answered queries. Each
// record keeps the question, the relevance gate decision and the scores it
// was made on, so the similarity threshold can be calibrated against real
// traffic with `cqa calibrate`.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// QueryRecord is one answered query.
type QueryRecord struct {
	// ID is the response identifier returned to the caller.
	ID string
	// CreatedAt is when the query was answered.
	CreatedAt time.Time
	// Question is the trimmed question text.
	Question string
	// Category is the requested category, empty when none.
	Category string
	// State is the gate decision name, e.g. "CONFIDENT".
	State string
	// Retrieved is the number of raw retrieval results.
	Retrieved int
	// Kept is the number of results used as evidence or reference.
	Kept int
	// TopScore is the best similarity score, zero when nothing was retrieved.
	TopScore float32
	// AverageScore is the mean evidence score.
	AverageScore float32
	// Fallback reports whether the template answer replaced the model answer.
	Fallback bool
	// Generator names the generator that was bound.
	Generator string
}

// QueryLog persists answered queries. Implementations must be safe for
// concurrent use.
type QueryLog interface {
	// Append persists a single record.
	Append(ctx context.Context, rec *QueryRecord) error
	// Recent returns the most recent n records, newest first. n <= 0
	// returns every record.
	Recent(ctx context.Context, n int) ([]QueryRecord, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteStore is a QueryLog backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.cqa/queries.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".cqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "queries.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer connection; concurrent handlers serialise on it.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT    NOT NULL UNIQUE,
    question      TEXT    NOT NULL,
    category      TEXT    NOT NULL DEFAULT '',
    state         TEXT    NOT NULL CHECK(state IN ('CONFIDENT','LOW_CONFIDENCE','NO_EVIDENCE')),
    retrieved     INTEGER NOT NULL,
    kept          INTEGER NOT NULL,
    top_score     REAL    NOT NULL,
    average_score REAL    NOT NULL,
    fallback      INTEGER NOT NULL,
    generator     TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single record. A zero CreatedAt is stamped with the
// current time.
func (s *SQLiteStore) Append(ctx context.Context, rec *QueryRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	const q = `
INSERT INTO queries (id, question, category, state, retrieved, kept, top_score, average_score, fallback, generator, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Question, rec.Category, rec.State,
		rec.Retrieved, rec.Kept, float64(rec.TopScore), float64(rec.AverageScore),
		boolToInt(rec.Fallback), rec.Generator, created.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]QueryRecord, error) {
	if n <= 0 {
		n = -1 // SQLite: no limit
	}
	const q = `
SELECT id, question, category, state, retrieved, kept, top_score, average_score, fallback, generator, created_at
FROM   queries
ORDER  BY created_at DESC, seq DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []QueryRecord
	for rows.Next() {
		var r QueryRecord
		var top, avg float64
		var fallback int
		var ts int64
		if err := rows.Scan(&r.ID, &r.Question, &r.Category, &r.State,
			&r.Retrieved, &r.Kept, &top, &avg, &fallback, &r.Generator, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.TopScore = float32(top)
		r.AverageScore = float32(avg)
		r.Fallback = fallback != 0
		r.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
