package storage

import (
	"context"
	"errors"
	"strings"

	logx "remindbot/pkg/logx"
)

// Store loads and saves the whole reminder snapshot.
type Store interface {
	// Load returns an empty snapshot when nothing was saved yet and an
	// ErrCorrupt-wrapped error when the saved document is unreadable.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the persisted snapshot. Failures wrap ErrWrite.
	Save(ctx context.Context, s Snapshot) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "", "file":
		st, err := openFile(cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite", "sqlite3":
		st, err := openSQLite(cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return NewMemory(), nil
	}
	return nil, errors.New("storage: unknown driver " + driver)
}
