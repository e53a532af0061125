// Package registry maintains a durable index of stored artifacts in SQLite.
//
// The registry is an index, not the source of truth: the storage directory
// is. It is reconciled from the directory on every startup, so losing or
// deleting the database is recoverable.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// timeFormat is the ISO 8601 format used for all timestamps in SQLite.
const timeFormat = "2006-01-02T15:04:05.000Z"

// Artifact is one row of the artifact index.
type Artifact struct {
	// Name is the stored file name (nn-<digest>.nnue.gz), the primary key.
	Name string `json:"name"`
	// Digest is the content digest token from the name.
	Digest string `json:"digest"`
	// Size is the original, uncompressed content size in bytes.
	Size int64 `json:"size"`
	// CompressedSize is the on-disk gzip size in bytes.
	CompressedSize int64 `json:"compressed_size"`
	// CreatedAt is when the artifact was first stored.
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteRegistry implements the artifact index on a local SQLite database.
type SQLiteRegistry struct {
	db *sql.DB
}

// New opens (or creates) the registry database at the given DSN and
// initializes the schema.
func New(dsn string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	r := &SQLiteRegistry{db: db}
	if err := r.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing registry database: %w", err)
	}
	return r, nil
}

// initDB applies PRAGMAs and creates the schema. Idempotent via IF NOT EXISTS.
func (r *SQLiteRegistry) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := r.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			name            TEXT PRIMARY KEY,
			digest          TEXT NOT NULL,
			size            INTEGER NOT NULL,
			compressed_size INTEGER NOT NULL,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_artifacts_digest ON artifacts(digest);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// Put records an artifact. Re-recording the same name is idempotent: the
// original created_at is preserved, sizes are refreshed.
func (r *SQLiteRegistry) Put(ctx context.Context, a *Artifact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (name, digest, size, compressed_size, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			size = excluded.size,
			compressed_size = excluded.compressed_size`,
		a.Name, a.Digest, a.Size, a.CompressedSize, a.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("recording artifact %q: %w", a.Name, err)
	}
	return nil
}

// Get returns the artifact with the given stored name, or nil when it is
// not recorded.
func (r *SQLiteRegistry) Get(ctx context.Context, name string) (*Artifact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, digest, size, compressed_size, created_at
		FROM artifacts WHERE name = ?`, name)

	a, err := scanArtifact(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading artifact %q: %w", name, err)
	}
	return a, nil
}

// List returns all recorded artifacts ordered by name.
func (r *SQLiteRegistry) List(ctx context.Context) ([]Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, digest, size, compressed_size, created_at
		FROM artifacts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact row: %w", err)
		}
		artifacts = append(artifacts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artifact rows: %w", err)
	}
	return artifacts, nil
}

// Delete removes an artifact record. Deleting an absent name is not an error.
func (r *SQLiteRegistry) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting artifact %q: %w", name, err)
	}
	return nil
}

// Count returns the number of recorded artifacts.
func (r *SQLiteRegistry) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting artifacts: %w", err)
	}
	return n, nil
}

// scanArtifact reads one artifact row via the given scan function.
func scanArtifact(scan func(dest ...any) error) (*Artifact, error) {
	var a Artifact
	var createdAt string
	if err := scan(&a.Name, &a.Digest, &a.Size, &a.CompressedSize, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	a.CreatedAt = t
	return &a, nil
}
