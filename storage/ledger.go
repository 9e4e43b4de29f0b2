// Package storage keeps a local ledger of finished runs so earlier output artifacts can be
// found again.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"afdata/util"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run carries the requested tag
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	tag         TEXT NOT NULL,
	kind        TEXT NOT NULL,
	pass        TEXT NOT NULL DEFAULT 'nosigs',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	found       INTEGER NOT NULL DEFAULT 0,
	not_found   INTEGER NOT NULL DEFAULT 0,
	stalled     INTEGER NOT NULL DEFAULT 0,
	bulk_path   TEXT NOT NULL DEFAULT '',
	pretty_path TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_tag ON runs(tag);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one ledger row
type Run struct {
	ID         string    `json:"id"`
	Tag        string    `json:"tag"`
	Kind       string    `json:"kind"`
	Pass       string    `json:"pass"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Found      int       `json:"found"`
	NotFound   int       `json:"not_found"`
	Stalled    bool      `json:"stalled"`
	BulkPath   string    `json:"bulk_path"`
	PrettyPath string    `json:"pretty_path"`
}

// Duration is the wall time of the run
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Ledger is the SQLite-backed run history
type Ledger struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
}

func configureConnection(db *sql.DB, path string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	// in-memory databases report "memory"
	if path != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got: %s)", journalMode)
	}
	return nil
}

func validatePath(path string) error {
	if path == "" {
		return errors.New("database path cannot be empty")
	}
	if strings.Contains(path, "\x00") {
		return errors.New("null bytes not allowed in path")
	}
	return nil
}

// OpenLedger opens (creating if needed) the ledger database at path
func OpenLedger(path string, logger *zap.SugaredLogger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := validatePath(path); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if path != ":memory:" {
		if err := util.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := configureConnection(db, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	logger.Debugw("Run ledger opened", "path", path)
	return &Ledger{db: db, path: path, logger: logger}, nil
}

// Record inserts or replaces a run
func (l *Ledger) Record(ctx context.Context, run Run) error {
	if run.ID == "" || run.Tag == "" {
		return errors.New("run id and tag are required")
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, tag, kind, pass, started_at, finished_at, found, not_found, stalled, bulk_path, pretty_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Tag, run.Kind, run.Pass,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Found, run.NotFound, run.Stalled,
		run.BulkPath, run.PrettyPath,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.Tag, err)
	}
	l.logger.Debugw("Run recorded", "id", run.ID, "tag", run.Tag, "pass", run.Pass)
	return nil
}

const selectRuns = `
	SELECT id, tag, kind, pass, started_at, finished_at, found, not_found, stalled, bulk_path, pretty_path
	FROM runs`

// List returns the most recent runs first; limit <= 0 returns all of them
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY started_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run with tag
func (l *Ledger) Latest(ctx context.Context, tag string) (Run, error) {
	row := l.db.QueryRowContext(ctx, selectRuns+" WHERE tag = ? ORDER BY started_at DESC, rowid DESC LIMIT 1", tag)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, tag)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var started, finished string
	err := s.Scan(&run.ID, &run.Tag, &run.Kind, &run.Pass,
		&started, &finished,
		&run.Found, &run.NotFound, &run.Stalled,
		&run.BulkPath, &run.PrettyPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("invalid started_at for run %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return Run{}, fmt.Errorf("invalid finished_at for run %s: %w", run.ID, err)
	}
	return run, nil
}

// Path returns the database location
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}
