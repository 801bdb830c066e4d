package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

var ErrMissingToken = errors.New("telegram token is required")

// Validate checks field values. It does not require a token; see
// RequireToken.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	if cfg.Telegram.SendRatePerSec < 0 {
		add(fmt.Errorf("telegram.send_rate_per_sec must be >= 0"))
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(fmt.Errorf("logging.file.path is required when file logging is enabled"))
	}
	if cfg.Logging.Telegram.Enabled {
		if cfg.Logging.Telegram.ChatID == 0 {
			add(fmt.Errorf("logging.telegram.chat_id is required when telegram logging is enabled"))
		}
		if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
			add(fmt.Errorf("logging.telegram.min_level: unknown level %q", cfg.Logging.Telegram.MinLevel))
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3", "memory":
	default:
		add(fmt.Errorf("storage.driver: unsupported %q (want file, sqlite, sqlite3 or memory)", cfg.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	switch cfg.Scheduler.Overdue {
	case OverdueFire, OverdueDiscard:
	default:
		add(fmt.Errorf("scheduler.overdue: want %q or %q, got %q", OverdueFire, OverdueDiscard, cfg.Scheduler.Overdue))
	}
	_, err = ParseDurationField("scheduler.sweep_interval", cfg.Scheduler.SweepInterval)
	add(err)

	if cfg.TaskEngine.Workers < 0 || cfg.TaskEngine.QueueSize < 0 {
		add(fmt.Errorf("task_engine: workers and queue_size must be >= 0"))
	}
	if cfg.TaskEngine.RetryMax < 0 {
		add(fmt.Errorf("task_engine.retry_max must be >= 0"))
	}
	_, err = ParseDurationField("task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout)
	add(err)

	if cfg.Commands.Workers < 0 {
		add(fmt.Errorf("commands.workers must be >= 0"))
	}
	_, err = ParseDurationField("commands.timeout", cfg.Commands.Timeout)
	add(err)

	return errors.Join(errs...)
}

// RequireToken fails when no bot token is available after env override.
func RequireToken(cfg *Config) error {
	if cfg == nil || strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}
	return nil
}
