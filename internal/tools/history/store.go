// Package history keeps a local sqlite log of tool calls and exposes it as tools.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alucardeht/elk-mcp/internal/logger"
	"github.com/alucardeht/elk-mcp/internal/tools"
)

var log = logger.ForComponent("history")

const (
	DefaultRetention = 30 * 24 * time.Hour
	maxArgumentsLen  = 4096
	maxErrorLen      = 1024
)

type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	if n, err := store.Prune(context.Background(), DefaultRetention); err != nil {
		log.Warn("failed to prune call history", "error", err)
	} else if n > 0 {
		log.Info("pruned call history", "rows", n)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id TEXT PRIMARY KEY,
		tool TEXT NOT NULL,
		arguments TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calls_tool ON calls(tool);
	CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_at);

	CREATE VIRTUAL TABLE IF NOT EXISTS calls_fts USING fts5(id UNINDEXED, tool, arguments, error);
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// Record stores c, filling in ID and CreatedAt when unset.
func (s *Store) Record(ctx context.Context, c *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = StatusOK
	}
	c.Arguments = truncate(c.Arguments, maxArgumentsLen)
	c.Error = truncate(c.Error, maxErrorLen)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO calls (id, tool, arguments, status, error, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		c.ID, c.Tool, c.Arguments, string(c.Status), c.Error, c.DurationMs, c.CreatedAt,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO calls_fts (id, tool, arguments, error) VALUES (?, ?, ?, ?)",
		c.ID, c.Tool, c.Arguments, c.Error,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// List returns the most recent calls first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, tool, arguments, status, error, duration_ms, created_at FROM calls WHERE 1=1"
	var args []interface{}

	if opts.Tool != "" {
		query += " AND tool = ?"
		args = append(args, opts.Tool)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, clampLimit(opts.Limit))

	return s.query(ctx, query, args...)
}

// Search runs a full-text phrase query over tool names, arguments and errors.
func (s *Store) Search(ctx context.Context, text string, limit int) ([]*Call, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("search query is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.query(ctx,
		"SELECT id, tool, arguments, status, error, duration_ms, created_at FROM calls "+
			"WHERE id IN (SELECT id FROM calls_fts WHERE calls_fts MATCH ?) "+
			"ORDER BY created_at DESC, rowid DESC LIMIT ?",
		phrase(text), clampLimit(limit),
	)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]*Call, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []*Call
	for rows.Next() {
		c := &Call{}
		var status string
		if err := rows.Scan(&c.ID, &c.Tool, &c.Arguments, &status, &c.Error, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Status = Status(status)
		calls = append(calls, c)
	}

	return calls, rows.Err()
}

// Prune deletes calls older than maxAge and returns how many were removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM calls_fts WHERE id IN (SELECT id FROM calls WHERE created_at < ?)", cutoff,
	); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM calls WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	n, _ := result.RowsAffected()
	return n, nil
}

func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Debug("wal checkpoint failed", "error", err)
	}
	return s.db.Close()
}

// Observer returns a registry hook that records every call except reads of the
// history itself.
func (s *Store) Observer() tools.CallObserver {
	return func(name string, input json.RawMessage, d time.Duration, err error) {
		if strings.HasPrefix(name, "history_") {
			return
		}

		c := &Call{
			Tool:       name,
			Arguments:  string(input),
			Status:     StatusOK,
			DurationMs: d.Milliseconds(),
		}
		if err != nil {
			c.Status = StatusError
			c.Error = err.Error()
		}

		if rerr := s.Record(context.Background(), c); rerr != nil {
			log.Warn("failed to record tool call", "tool", name, "error", rerr)
		}
	}
}

// phrase quotes text as a single FTS5 string so operators such as "-" in tool
// names are matched literally.
func phrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 100:
		return 100
	}
	return limit
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length] + "..."
}
