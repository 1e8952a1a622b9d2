// Package storage persists bisection runs in a local SQLite database so
// results survive across invocations and can be listed later.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"ccbisect/internal/bisect"
)

// Run is one recorded bisection, finished or aborted.
type Run struct {
	ID         string
	Project    string
	Good       string
	Bad        string
	Mode       string
	Culprit    string
	Status     string // "found", "aborted" or "failed"
	Error      string
	Stats      bisect.Stats
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store provides persistence for runs in a SQLite database.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// Open opens or creates the run database at the given path.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{conn: conn, logger: logger, dbPath: dbPath}
	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize run schema: %w", err)
	}
	return store, nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			good TEXT NOT NULL,
			bad TEXT NOT NULL,
			mode TEXT NOT NULL,
			culprit TEXT,
			status TEXT NOT NULL,
			error TEXT,
			steps INTEGER NOT NULL DEFAULT 0,
			builds INTEGER NOT NULL DEFAULT 0,
			build_failures INTEGER NOT NULL DEFAULT 0,
			test_runs INTEGER NOT NULL DEFAULT 0,
			cache_tests INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// SaveRun inserts a finished run. An empty ID is filled in.
func (s *Store) SaveRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	query := `
		INSERT INTO runs (id, project, good, bad, mode, culprit, status, error,
			steps, builds, build_failures, test_runs, cache_tests,
			started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.conn.Exec(query,
		run.ID,
		run.Project,
		run.Good,
		run.Bad,
		run.Mode,
		nullString(run.Culprit),
		run.Status,
		nullString(run.Error),
		run.Stats.Steps,
		run.Stats.Builds,
		run.Stats.BuildFailures,
		run.Stats.TestRuns,
		run.Stats.CacheTests,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("saved run", "id", run.ID, "status", run.Status)
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.conn.QueryRow(`
		SELECT id, project, good, bad, mode, culprit, status, error,
			steps, builds, build_failures, test_runs, cache_tests,
			started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.Query(`
		SELECT id, project, good, bad, mode, culprit, status, error,
			steps, builds, build_failures, test_runs, cache_tests,
			started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var culprit, errMsg sql.NullString
	var started, finished string

	err := row.Scan(
		&run.ID,
		&run.Project,
		&run.Good,
		&run.Bad,
		&run.Mode,
		&culprit,
		&run.Status,
		&errMsg,
		&run.Stats.Steps,
		&run.Stats.Builds,
		&run.Stats.BuildFailures,
		&run.Stats.TestRuns,
		&run.Stats.CacheTests,
		&started,
		&finished,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Culprit = culprit.String
	run.Error = errMsg.String
	run.StartedAt, _ = time.Parse(time.RFC3339, started)
	run.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
