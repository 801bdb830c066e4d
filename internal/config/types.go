package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Scheduler controls trigger behavior and reminder restore policy.
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution settings for fired reminders and the
	// overdue sweep.
	TaskEngine TaskEngineConfig `json:"task_engine"`

	Commands CommandsConfig `json:"commands"`
}

type TelegramConfig struct {
	// Token is normally supplied through the environment (see
	// ConfigManager.SetTokenEnv); the env value wins when both are set.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout    string `json:"poll_timeout"`
	SendRatePerSec int    `json:"send_rate_per_sec"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the reminder snapshot backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./reminders.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Overdue policies applied to reminders found past due at startup.
const (
	OverdueFire    = "fire"
	OverdueDiscard = "discard"
)

type SchedulerConfig struct {
	// Timezone naive reminder times are interpreted in. Empty = process local.
	Timezone string `json:"timezone,omitempty"`
	Overdue  string `json:"overdue"`
	// CancelOnDelete disarms the timer of a deleted reminder. When false a
	// deleted reminder still notifies once at its original time.
	CancelOnDelete bool `json:"cancel_on_delete"`
	// SweepInterval is a Go duration string; "0s" disables the sweep.
	SweepInterval string `json:"sweep_interval"`
}

// TaskEngineConfig controls the task execution engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type TaskEngineConfig struct {
	Workers        int    `json:"workers"`
	QueueSize      int    `json:"queue_size"`
	DefaultTimeout string `json:"default_timeout"`
	// RetryMax is the number of retries after a failed delivery.
	RetryMax int `json:"retry_max"`
}

type CommandsConfig struct {
	Workers int `json:"workers"`
	// Timeout bounds a single command handler. Applied live on reload.
	Timeout string `json:"timeout"`
}

// Default returns the configuration used when no file exists and the base
// that file values are decoded over.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s", SendRatePerSec: 25},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			Telegram: LoggingTelegram{MinLevel: "warn", RatePerSec: 1},
		},
		Storage: StorageConfig{Driver: "file", Path: "./reminders.json", BusyTimeout: "1s"},
		Scheduler: SchedulerConfig{
			Overdue:        OverdueFire,
			CancelOnDelete: true,
			SweepInterval:  "1m",
		},
		TaskEngine: TaskEngineConfig{Workers: 2, QueueSize: 256, DefaultTimeout: "30s", RetryMax: 2},
		Commands:   CommandsConfig{Workers: 1, Timeout: "15s"},
	}
}
