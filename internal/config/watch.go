package config

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	logx "remindbot/pkg/logx"
)

const (
	// editors often write a file in several steps; wait for them to settle.
	reloadDebounce = 250 * time.Millisecond

	rewatchMin = 250 * time.Millisecond
	rewatchMax = 5 * time.Second
)

// Watch reloads the config whenever its file changes, until ctx ends. It
// watches the parent directory so atomic replace-by-rename is seen too.
func (m *ConfigManager) Watch(ctx context.Context) error {
	wait := rewatchMin
	for ctx.Err() == nil {
		healthy, err := m.watchOnce(ctx)
		if healthy {
			wait = rewatchMin
		}
		if ctx.Err() != nil {
			break
		}
		m.log.Warn("config watcher down, retrying", logx.String("path", m.path), logx.Duration("in", wait), logx.Err(err))
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		wait = min(2*wait, rewatchMax)
	}
	return nil
}

// watchOnce runs one fsnotify watcher until it breaks or ctx ends. healthy
// is true if the watcher came up at all.
func (m *ConfigManager) watchOnce(ctx context.Context) (healthy bool, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false, err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return false, err
	}
	name := filepath.Base(m.path)

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case ev, ok := <-w.Events:
			if !ok {
				return true, errors.New("event stream closed")
			}
			if filepath.Base(ev.Name) == name {
				settle.Reset(reloadDebounce)
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return true, errors.New("error stream closed")
			}
			// an overflow may have hidden our event.
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				settle.Reset(reloadDebounce)
			}
			m.log.Warn("config watcher error", logx.Err(werr))
		case <-settle.C:
			if m.reload(ctx) {
				m.log.Info("config file change applied", logx.String("path", m.path))
			}
		}
	}
}
