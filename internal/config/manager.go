package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// ConfigManager holds the committed config and republishes it to
// subscribers whenever the file changes into something valid.
type ConfigManager struct {
	path     string
	tokenEnv string
	log      logx.Logger
	check    func(ctx context.Context, cfg *Config) error

	mu        sync.RWMutex
	cfg       *Config
	committed []byte // canonical JSON of cfg, used to skip no-op reloads

	subMu sync.Mutex
	subs  map[chan *Config]struct{}
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, log: logx.Nop(), subs: make(map[chan *Config]struct{})}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetTokenEnv names the environment variable that supplies telegram.token.
// It is re-read on every parse so a reload keeps the token.
func (m *ConfigManager) SetTokenEnv(name string) { m.tokenEnv = strings.TrimSpace(name) }

// SetValidator adds a check a reloaded config must pass before it is
// committed, on top of Validate.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) { m.check = fn }

// Parse reads the file over Default(). A missing file is not an error.
func (m *ConfigManager) Parse() (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(m.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := decodeInto(cfg, m.path, raw); err != nil {
			return nil, err
		}
	}
	if m.tokenEnv != "" {
		if tok := strings.TrimSpace(os.Getenv(m.tokenEnv)); tok != "" {
			cfg.Telegram.Token = tok
		}
	}
	return cfg, nil
}

// Load is the startup path: parse, validate, commit.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate %s: %w", m.path, err)
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	canon, _ := json.Marshal(cfg)
	m.mu.Lock()
	m.cfg, m.committed = cfg, canon
	m.mu.Unlock()
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel that receives each newly committed config.
// A slow subscriber only ever misses intermediate versions, never the latest.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

// Unsubscribe detaches and closes ch.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			case <-ch:
				// full: evict the stale entry and retry
				continue
			}
			break
		}
	}
}

// reload re-reads the file and publishes it if it differs from the
// committed config and passes both checks. It reports whether it published.
func (m *ConfigManager) reload(ctx context.Context) bool {
	cfg, err := m.Parse()
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
		return false
	}

	canon, _ := json.Marshal(cfg)
	m.mu.RLock()
	same := bytes.Equal(canon, m.committed)
	m.mu.RUnlock()
	if same {
		m.log.Debug("config file touched, content unchanged", logx.String("path", m.path))
		return false
	}

	if m.check != nil {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.check(cctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
			return false
		}
	}
	m.Commit(cfg)
	m.publish(cfg)
	return true
}
