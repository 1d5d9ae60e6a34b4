// Package storage provides the SQLite journal of builds and surface
// resolutions.
//
// Information Hiding:
// - SQLite connection management hidden behind Journal
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Journal records the outcome of builds and resolution requests.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// OpenJournal opens or creates a journal database at the given path.
// Creates parent directories if they don't exist.
func OpenJournal(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	return newJournal(db)
}

// NewJournalInMemory creates an in-memory journal (useful for testing).
func NewJournalInMemory() (*Journal, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return newJournal(db)
}

func newJournal(db *sql.DB) (*Journal, error) {
	j := &Journal{db: db, now: time.Now}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS builds (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			files TEXT NOT NULL,
			files_run INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			moves INTEGER NOT NULL,
			duration REAL NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			interrupted INTEGER NOT NULL,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_builds_created
		ON builds(created_at DESC);

		CREATE TABLE IF NOT EXISTS resolutions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			hash TEXT NOT NULL,
			filename TEXT NOT NULL,
			source TEXT NOT NULL,
			lookup TEXT NOT NULL,
			triangles INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_resolutions_created
		ON resolutions(created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_resolutions_hash
		ON resolutions(hash);
	`

	_, err := j.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordBuild stores a build record, assigning an id and timestamp when
// absent. It returns the stored id.
func (j *Journal) RecordBuild(ctx context.Context, rec BuildRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = j.now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO builds
		(id, created_at, files, files_run, skipped, moves, duration, elapsed_ms, interrupted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CreatedAt.UnixMilli(),
		strings.Join(rec.Files, "\n"),
		rec.FilesRun,
		rec.Skipped,
		rec.Moves,
		rec.Duration,
		rec.Elapsed.Milliseconds(),
		rec.Interrupted,
		nullable(rec.Error),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record build: %w", err)
	}
	return rec.ID, nil
}

// RecordResolution stores a resolution record, assigning an id and
// timestamp when absent. It returns the stored id.
func (j *Journal) RecordResolution(ctx context.Context, rec ResolutionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = j.now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO resolutions
		(id, created_at, hash, filename, source, lookup, triangles, elapsed_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CreatedAt.UnixMilli(),
		rec.Hash,
		rec.Filename,
		rec.Source,
		rec.Lookup,
		rec.Triangles,
		rec.Elapsed.Milliseconds(),
		nullable(rec.Error),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record resolution: %w", err)
	}
	return rec.ID, nil
}

// ListBuilds returns the most recent builds, newest first.
func (j *Journal) ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, files, files_run, skipped, moves, duration, elapsed_ms, interrupted, error
		FROM builds
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	builds := []BuildRecord{} // Start with empty slice, not nil
	for rows.Next() {
		var (
			rec       BuildRecord
			created   int64
			files     string
			elapsedMs int64
			errText   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &created, &files, &rec.FilesRun, &rec.Skipped, &rec.Moves,
			&rec.Duration, &elapsedMs, &rec.Interrupted, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(created)
		if files != "" {
			rec.Files = strings.Split(files, "\n")
		}
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		rec.Error = errText.String
		builds = append(builds, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}
	return builds, nil
}

// ListResolutions returns the most recent resolutions, newest first.
func (j *Journal) ListResolutions(ctx context.Context, limit int) ([]ResolutionRecord, error) {
	return j.queryResolutions(ctx, `
		SELECT id, created_at, hash, filename, source, lookup, triangles, elapsed_ms, error
		FROM resolutions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limitOrAll(limit))
}

// ResolutionsByHash returns every resolution of one simulation hash,
// newest first.
func (j *Journal) ResolutionsByHash(ctx context.Context, hash string) ([]ResolutionRecord, error) {
	return j.queryResolutions(ctx, `
		SELECT id, created_at, hash, filename, source, lookup, triangles, elapsed_ms, error
		FROM resolutions
		WHERE hash = ?
		ORDER BY created_at DESC, rowid DESC`, hash)
}

func (j *Journal) queryResolutions(ctx context.Context, query string, args ...any) ([]ResolutionRecord, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	records := []ResolutionRecord{}
	for rows.Next() {
		var (
			rec       ResolutionRecord
			created   int64
			elapsedMs int64
			errText   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &created, &rec.Hash, &rec.Filename, &rec.Source, &rec.Lookup,
			&rec.Triangles, &elapsedMs, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(created)
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		rec.Error = errText.String
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}
	return records, nil
}

// nullable converts empty strings to NULL for optional columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
