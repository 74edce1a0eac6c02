// Package history persists finished audit runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/a3tai/handover-auditor/internal/audit"
	"github.com/a3tai/handover-auditor/internal/handover"
	"github.com/a3tai/handover-auditor/internal/rules"
)

// DefaultLimit caps List and Runs when no limit is given
const DefaultLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	documents   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	error       INTEGER NOT NULL,
	concession  INTEGER NOT NULL,
	returns     INTEGER NOT NULL,
	rat         INTEGER NOT NULL,
	unknown     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	name   TEXT NOT NULL,
	status TEXT NOT NULL,
	type   TEXT NOT NULL DEFAULT '',
	rule   TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	error  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
`

// RunSummary is one row of the runs table
type RunSummary struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
	Documents  int         `json:"documents"`
	Failed     int         `json:"failed"`
	Tally      audit.Tally `json:"tally"`
}

// Entry is a stored outcome together with the run it belongs to
type Entry struct {
	RunID      string    `json:"runId"`
	FinishedAt time.Time `json:"finishedAt"`
	audit.Outcome
}

// Store is the SQLite history of audit runs
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the history database at path. ":memory:" gives a
// private in-memory store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// one connection: pragmas apply to it and :memory: stays a single database
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range append(pragmas, schema) {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", firstLine(p), err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	logger.Debug("history.open", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a run and its outcomes in one transaction
func (s *Store) Save(ctx context.Context, run *audit.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	t := run.Tally
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, documents, failed, ok, error, concession, returns, rat, unknown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Documents, run.Failed,
		t.OK, t.Error, t.Concession, t.Return, t.RAT, t.Unknown)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, seq, name, status, type, rule, reason, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare: %w", err)
	}
	defer stmt.Close()

	for i, o := range run.Outcomes {
		if _, err := stmt.ExecContext(ctx, run.ID, i, o.Name, o.Status, string(o.Type), string(o.Rule), o.Reason, o.Error); err != nil {
			return fmt.Errorf("history: insert outcome %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	s.logger.Debug("history.saved", "run", run.ID, "outcomes", len(run.Outcomes))
	return nil
}

// Runs returns the latest runs, newest first
func (s *Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, documents, failed, ok, error, concession, returns, rat, unknown
		 FROM runs ORDER BY finished_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Documents, &r.Failed,
			&r.Tally.OK, &r.Tally.Error, &r.Tally.Concession, &r.Tally.Return, &r.Tally.RAT, &r.Tally.Unknown); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns the latest document outcomes, newest run first and in
// processing order within a run
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.run_id, r.finished_at, o.name, o.status, o.type, o.rule, o.reason, o.error
		 FROM outcomes o JOIN runs r ON r.id = o.run_id
		 ORDER BY r.finished_at DESC, o.run_id, o.seq LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var finished, typ, rule string
		if err := rows.Scan(&e.RunID, &finished, &e.Name, &e.Status, &typ, &rule, &e.Reason, &e.Error); err != nil {
			return nil, fmt.Errorf("history: scan outcome: %w", err)
		}
		e.FinishedAt = parseTime(finished)
		e.Type = handover.DocType(typ)
		e.Rule = rules.RuleName(rule)
		out = append(out, e)
	}
	return out, rows.Err()
}

// fixed width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
