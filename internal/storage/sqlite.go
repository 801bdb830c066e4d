package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

// The whole snapshot lives in row 1, so a save is one atomic upsert.
const (
	createSnapshotTable = `CREATE TABLE IF NOT EXISTS snapshot (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`
	selectSnapshot = `SELECT doc FROM snapshot WHERE id = 1`
	upsertSnapshot = `INSERT INTO snapshot (id, doc, updated_at) VALUES (1, ?, ?)
ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`
)

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage: sqlite driver needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	// one connection: the pragmas below are per connection and the bot
	// never writes concurrently.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, p := range append(pragmas, createSnapshotTable) {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: sqlite setup: %w", err)
		}
	}
	log.Debug("sqlite snapshot store ready", logx.String("path", path))
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, error) {
	var doc string
	switch err := s.db.QueryRowContext(ctx, selectSnapshot).Scan(&doc); {
	case errors.Is(err, sql.ErrNoRows):
		return Snapshot{}, nil
	case err != nil:
		return nil, fmt.Errorf("storage: sqlite load: %w", err)
	}
	return decodeSnapshot([]byte(doc))
}

func (s *sqliteStore) Save(ctx context.Context, snap Snapshot) error {
	doc, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertSnapshot, string(doc), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }
