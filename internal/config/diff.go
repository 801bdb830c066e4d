package config

import (
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// liveSections are applied without a restart.
var liveSections = map[string]bool{
	"logging":  true,
	"commands": true,
}

// ChangeSummary describes what a reload changed.
type ChangeSummary struct {
	Changed []string
	// RestartRequired lists changed sections that only take effect on the
	// next start.
	RestartRequired []string
	// Attrs are safe structured log fields (never include the token).
	Attrs []logx.Field
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) ChangeSummary {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var sum ChangeSummary
	mark := func(section string, attrs ...logx.Field) {
		sum.Changed = append(sum.Changed, section)
		sum.Attrs = append(sum.Attrs, attrs...)
		if !liveSections[section] {
			sum.RestartRequired = append(sum.RestartRequired, section)
		}
	}

	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.SendRatePerSec != nt.SendRatePerSec {
		mark("telegram",
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Int("telegram.send_rate_per_sec", nt.SendRatePerSec),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage",
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.overdue", newCfg.Scheduler.Overdue),
			logx.Bool("scheduler.cancel_on_delete", newCfg.Scheduler.CancelOnDelete),
			logx.String("scheduler.sweep_interval", newCfg.Scheduler.SweepInterval),
		)
	}

	if oldCfg.TaskEngine != newCfg.TaskEngine {
		mark("task_engine",
			logx.Int("task_engine.workers", newCfg.TaskEngine.Workers),
			logx.Int("task_engine.queue_size", newCfg.TaskEngine.QueueSize),
			logx.Int("task_engine.retry_max", newCfg.TaskEngine.RetryMax),
		)
	}

	oc, nc := oldCfg.Commands, newCfg.Commands
	if oc.Workers != nc.Workers {
		mark("commands.workers", logx.Int("commands.workers", nc.Workers))
	}
	if strings.TrimSpace(oc.Timeout) != strings.TrimSpace(nc.Timeout) {
		mark("commands", logx.String("commands.timeout", nc.Timeout))
	}

	sort.Strings(sum.RestartRequired)
	return sum
}
