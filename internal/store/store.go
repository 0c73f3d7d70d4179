// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     store
// Description: SQLite history of finished and running goals
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/msto63/wiener/pkg/core/logging"
)

// causeEncMode encodes cause lists deterministically
var causeEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	causeEncMode = em
}

// Record is the persisted state of one goal
type Record struct {
	ID        int64     `json:"id"`
	Predicate string    `json:"predicate"`
	Status    string    `json:"status"`
	Causes    []string  `json:"causes,omitempty"`
	Parent    int64     `json:"parent,omitempty"`
	Delegated bool      `json:"delegated,omitempty"`
	Script    string    `json:"script,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config holds store configuration
type Config struct {
	Path string
}

// DefaultConfig returns the default database location
func DefaultConfig() Config {
	return Config{Path: "./data/wiener.db"}
}

// Store persists goal records in SQLite
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *logging.Logger
}

// Open opens or creates the database at cfg.Path
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg = DefaultConfig()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, logger: logging.New("store")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.logger.Info("Goal history opened", "path", cfg.Path)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		id INTEGER PRIMARY KEY,
		predicate TEXT NOT NULL,
		status TEXT NOT NULL,
		causes BLOB,
		parent INTEGER NOT NULL DEFAULT 0,
		delegated INTEGER NOT NULL DEFAULT 0,
		script TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
	CREATE INDEX IF NOT EXISTS idx_goals_updated ON goals(updated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces the record with rec.ID
func (s *Store) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID <= 0 {
		return fmt.Errorf("goal id is required")
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	var causes []byte
	if len(rec.Causes) > 0 {
		var err error
		if causes, err = causeEncMode.Marshal(rec.Causes); err != nil {
			return fmt.Errorf("failed to encode causes: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, predicate, status, causes, parent, delegated, script, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			predicate = excluded.predicate,
			status = excluded.status,
			causes = excluded.causes,
			parent = excluded.parent,
			delegated = excluded.delegated,
			script = excluded.script,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Predicate, rec.Status, causes, rec.Parent, rec.Delegated, rec.Script, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save goal %d: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, predicate, status, causes, parent, delegated, script, created_at, updated_at FROM goals`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var causes []byte
	if err := row.Scan(&rec.ID, &rec.Predicate, &rec.Status, &causes, &rec.Parent, &rec.Delegated,
		&rec.Script, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	if len(causes) > 0 {
		if err := cbor.Unmarshal(causes, &rec.Causes); err != nil {
			return rec, fmt.Errorf("failed to decode causes of goal %d: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// Load returns the record with id
func (s *Store) Load(ctx context.Context, id int64) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("failed to load goal %d: %w", id, err)
	}
	return rec, true, nil
}

// Recent returns up to limit records, most recently updated first. A
// non-empty status filters by status.
func (s *Store) Recent(ctx context.Context, limit int, status string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := selectColumns
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LastID returns the highest stored goal id, 0 for an empty history
func (s *Store) LastID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM goals`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read last goal id: %w", err)
	}
	return id.Int64, nil
}

// Statistics counts goals per status
func (s *Store) Statistics(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM goals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count goals: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
