// Package journal persists the device changes made by migration runs in a
// SQLite database, one row per created object or rewritten rule.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grimm.is/cpmigrate/internal/clock"
)

// Actions recorded by the remediator and publisher.
const (
	ActionCreateAddress = "create-address"
	ActionRewriteRule   = "rewrite-rule"
	ActionSubmitBatch   = "submit-batch"
)

// Entry is a single journaled change.
type Entry struct {
	ID        int64          `json:"id" yaml:"id"`
	RunID     string         `json:"run_id" yaml:"run_id"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Pass      string         `json:"pass,omitempty" yaml:"pass,omitempty"`
	Action    string         `json:"action" yaml:"action"`
	Target    string         `json:"target" yaml:"target"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	DryRun    bool           `json:"dry_run" yaml:"dry_run"`
}

// Run summarizes the entries of one run.
type Run struct {
	ID      string
	Started time.Time
	Entries int
}

// Store is a journal database. Every Store gets a fresh run id.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	runID string
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			pass TEXT,
			action TEXT NOT NULL,
			target TEXT NOT NULL,
			details TEXT,
			dry_run INTEGER DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_journal_run ON journal(run_id);
		CREATE INDEX IF NOT EXISTS idx_journal_target ON journal(target);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal table: %w", err)
	}

	return &Store{db: db, runID: uuid.NewString()}, nil
}

// RunID identifies the entries written through this Store.
func (s *Store) RunID() string { return s.runID }

// Record appends e under the current run. A zero timestamp is set to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = clock.Now()
	}

	var detailsJSON []byte
	if e.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(e.Details)
		if err != nil {
			detailsJSON = []byte("{}")
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (run_id, timestamp, pass, action, target, details, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.runID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.Pass, e.Action, e.Target, string(detailsJSON), e.DryRun)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Entries returns the entries of runID in insertion order, or of every run
// when runID is empty. limit <= 0 means no limit.
func (s *Store) Entries(ctx context.Context, runID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, run_id, timestamp, pass, action, target, details, dry_run FROM journal`
	var args []any
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		var pass, details sql.NullString

		if err := rows.Scan(&e.ID, &e.RunID, &ts, &pass, &e.Action, &e.Target, &details, &e.DryRun); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("journal entry %d: bad timestamp %q: %w", e.ID, ts, err)
		}
		e.Pass = pass.String
		if details.Valid && details.String != "" {
			json.Unmarshal([]byte(details.String), &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Runs lists the runs in the journal, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, MIN(timestamp), COUNT(*) FROM journal
		GROUP BY run_id ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("query journal runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.Entries); err != nil {
			return nil, fmt.Errorf("scan journal run: %w", err)
		}
		r.Started, _ = time.Parse(time.RFC3339Nano, ts)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune removes entries older than cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// timestamps are UTC RFC3339; compare on the parsed value
	rows, err := s.db.QueryContext(ctx, "SELECT id, timestamp FROM journal")
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		var ts string
		if err := rows.Scan(&id, &ts); err != nil {
			rows.Close()
			return 0, fmt.Errorf("prune journal: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil && t.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	rows.Close()

	var n int64
	for _, id := range stale {
		res, err := s.db.ExecContext(ctx, "DELETE FROM journal WHERE id = ?", id)
		if err != nil {
			return n, fmt.Errorf("prune journal: %w", err)
		}
		c, _ := res.RowsAffected()
		n += c
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
