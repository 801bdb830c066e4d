package app

import (
	"fmt"
	"strings"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

// ---- Config ----

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

var SummarizeConfigChange = config.SummarizeConfigChange

// ---- Runtime ----

type Supervisor = supervisor.Supervisor

var NewSupervisor = supervisor.NewSupervisor

var WithLogger = supervisor.WithLogger

var WithCancelOnError = supervisor.WithCancelOnError

// ---- Config mapping ----

func mapLogConfig(cfg *Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "file":
		if path == "" {
			path = "./reminders.json"
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: sc.BusyTimeoutDuration()}, nil
	case "memory":
		return storage.Config{Driver: driver}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *Config) engine.Config {
	tc := cfg.TaskEngine
	return engine.Config{
		Workers:        tc.Workers,
		QueueSize:      tc.QueueSize,
		DefaultTimeout: tc.DefaultTimeoutDuration(),
		RetryMax:       tc.RetryMax,
	}
}

func mapSchedulerConfig(cfg *Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Scheduler.Timezone}
}

func mapReminderConfig(cfg *Config, sched *scheduler.Service) reminder.Config {
	return reminder.Config{
		Location:       sched.Location(),
		Overdue:        cfg.Scheduler.Overdue,
		CancelOnDelete: cfg.Scheduler.CancelOnDelete,
	}
}

func mapRouterConfig(cfg *Config) bot.RouterConfig {
	return bot.RouterConfig{
		Workers: cfg.Commands.Workers,
		Timeout: cfg.Commands.TimeoutDuration(),
	}
}
