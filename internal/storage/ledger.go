// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jeranaias/agentsig/internal/session"
)

// ErrLedgerClosed is returned by operations on a closed ledger.
var ErrLedgerClosed = errors.New("ledger is closed")

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// Schema is the ledger table layout.
const Schema = `
CREATE TABLE IF NOT EXISTS rewrites (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	session_id  TEXT    NOT NULL,
	tool        TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	action      TEXT    NOT NULL,
	model       TEXT    NOT NULL,
	mutated     INTEGER NOT NULL DEFAULT 0,
	before_text TEXT    NOT NULL DEFAULT '',
	after_text  TEXT    NOT NULL DEFAULT '',
	error       TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rewrites_session ON rewrites(session_id);
CREATE INDEX IF NOT EXISTS idx_rewrites_created ON rewrites(created_at);
`

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one recorded tool call outcome.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Tool      string    `json:"tool"`
	Kind      string    `json:"kind"`
	Action    string    `json:"action"`
	Model     string    `json:"model"`
	Mutated   bool      `json:"mutated"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FromOutcome converts a coordinator outcome into a ledger entry.
func FromOutcome(sessionID string, o session.Outcome) Entry {
	return Entry{
		ID:        o.ID,
		SessionID: sessionID,
		Tool:      o.Tool,
		Kind:      o.Kind,
		Action:    string(o.Action),
		Model:     o.Model,
		Mutated:   o.Mutated,
		Before:    o.Before,
		After:     o.After,
		Error:     o.ErrorMessage(),
		CreatedAt: o.Time,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is a sqlite table of tool call outcomes.
type Ledger struct {
	mu         sync.RWMutex
	db         *sql.DB
	path       string
	maxEntries int
	closed     bool
}

// Open opens (creating if needed) the ledger at path. maxEntries bounds the
// table when Prune runs; zero keeps everything.
func Open(path string, maxEntries int) (*Ledger, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// One connection: sqlite has a single writer, and an in-memory database
	// exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA wal_autocheckpoint=1000")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Ledger{db: db, path: path, maxEntries: maxEntries}, nil
}

// Path returns the database path the ledger was opened with.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the ledger. Closing twice is a no-op.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// acquire holds the read lock for an operation, failing on a closed ledger.
func (l *Ledger) acquire() (release func(), err error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrLedgerClosed
	}
	return l.mu.RUnlock, nil
}

// Record inserts one entry. CreatedAt defaults to now.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	release, err := l.acquire()
	if err != nil {
		return err
	}
	defer release()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO rewrites (id, session_id, tool, kind, action, model, mutated, before_text, after_text, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Tool, e.Kind, e.Action, e.Model, e.Mutated,
		e.Before, e.After, e.Error, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.ID, err)
	}
	return nil
}

// Query filters Recent.
type Query struct {
	Limit int

	// SessionID restricts results to one session when set.
	SessionID string

	// MutatedOnly skips outcomes that left the arguments unchanged.
	MutatedOnly bool
}

// Recent returns the newest entries first.
func (l *Ledger) Recent(ctx context.Context, q Query) ([]Entry, error) {
	release, err := l.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if q.Limit <= 0 {
		q.Limit = 20
	}

	stmt := `SELECT id, session_id, tool, kind, action, model, mutated, before_text, after_text, error, created_at
		FROM rewrites WHERE 1=1`
	var args []any
	if q.SessionID != "" {
		stmt += " AND session_id = ?"
		args = append(args, q.SessionID)
	}
	if q.MutatedOnly {
		stmt += " AND mutated = 1"
	}
	stmt += " ORDER BY seq DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := l.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Tool, &e.Kind, &e.Action, &e.Model,
			&e.Mutated, &e.Before, &e.After, &e.Error, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats summarises the whole ledger.
type Stats struct {
	Total    int            `json:"total"`
	Mutated  int            `json:"mutated"`
	Sessions int            `json:"sessions"`
	ByAction map[string]int `json:"by_action"`
	ByModel  map[string]int `json:"by_model"`
	First    time.Time      `json:"first,omitempty"`
	Last     time.Time      `json:"last,omitempty"`
}

// Stats returns totals across all sessions.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	release, err := l.acquire()
	if err != nil {
		return Stats{}, err
	}
	defer release()

	s := Stats{ByAction: map[string]int{}, ByModel: map[string]int{}}

	var first, last sql.NullInt64
	err = l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(mutated), 0), COUNT(DISTINCT session_id), MIN(created_at), MAX(created_at)
		FROM rewrites`).Scan(&s.Total, &s.Mutated, &s.Sessions, &first, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read ledger totals: %w", err)
	}
	if first.Valid {
		s.First = time.Unix(0, first.Int64)
	}
	if last.Valid {
		s.Last = time.Unix(0, last.Int64)
	}

	if err := l.countBy(ctx, "action", s.ByAction); err != nil {
		return Stats{}, err
	}
	if err := l.countBy(ctx, "model", s.ByModel); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// countBy fills into with row counts grouped by column. column is one of a
// fixed set of names, never user input.
func (l *Ledger) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := l.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM rewrites GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("failed to group ledger by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan ledger group: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// Prune deletes the oldest entries beyond the configured maximum and
// returns how many were removed.
func (l *Ledger) Prune(ctx context.Context) (int64, error) {
	release, err := l.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	if l.maxEntries <= 0 {
		return 0, nil
	}
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM rewrites WHERE seq <= (
			SELECT seq FROM rewrites ORDER BY seq DESC LIMIT 1 OFFSET ?
		)`, l.maxEntries)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return res.RowsAffected()
}
