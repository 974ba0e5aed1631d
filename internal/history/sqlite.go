// Package history keeps a SQLite record of past batch runs and their outcomes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Outcomes for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Workers   int
	Pooled    bool
	Kinds     types.OutputKinds
	Jobs      int
	Failed    int
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the history database at dbPath.
// Use ":memory:" for a throwaway store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		workers INTEGER NOT NULL,
		pooled INTEGER NOT NULL,
		kinds TEXT NOT NULL,
		jobs INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS outcomes (
		run_id TEXT NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		source_path TEXT NOT NULL,
		succeeded INTEGER NOT NULL,
		diagnostic TEXT,
		duration_ms INTEGER NOT NULL,
		worker INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a finished run and all of its outcomes in one transaction.
func (s *Store) Record(ctx context.Context, result types.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, duration_ms, workers, pooled, kinds, jobs, failed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		result.RunID, result.StartedAt.UnixMilli(), result.Duration.Milliseconds(),
		result.Workers, result.Pooled, result.Kinds.String(), len(result.Outcomes), result.Failed(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO outcomes (run_id, position, source_path, succeeded, diagnostic, duration_ms, worker) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range result.Outcomes {
		if _, err := stmt.ExecContext(ctx, result.RunID, i, o.SourcePath, o.Succeeded, o.Diagnostic, o.Duration.Milliseconds(), o.Worker); err != nil {
			return fmt.Errorf("insert outcome %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, started_at, duration_ms, workers, pooled, kinds, jobs, failed FROM runs ORDER BY started_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedMs  int64
			durationMs int64
			kinds      string
		)
		if err := rows.Scan(&r.ID, &startedMs, &durationMs, &r.Workers, &r.Pooled, &kinds, &r.Jobs, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if kinds != "" {
			if r.Kinds, err = types.ParseOutputKinds(strings.Split(kinds, ",")); err != nil {
				return nil, fmt.Errorf("run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Outcomes returns the outcomes of one run in input order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]types.JobOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT source_path, succeeded, diagnostic, duration_ms, worker FROM outcomes WHERE run_id = ? ORDER BY position",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]types.JobOutcome, 0)
	for rows.Next() {
		var (
			o          types.JobOutcome
			diagnostic sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&o.SourcePath, &o.Succeeded, &diagnostic, &durationMs, &o.Worker); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Diagnostic = diagnostic.String
		o.Duration = time.Duration(durationMs) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return outcomes, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
