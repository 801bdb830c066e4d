package config

import (
	"fmt"
	"strings"
	"time"
)

// Fallbacks used by the accessors when a field is blank, zero or invalid.
const (
	defaultPollTimeout    = 10 * time.Second
	defaultBusyTimeout    = time.Second
	defaultSweepInterval  = time.Minute
	defaultTaskTimeout    = 30 * time.Second
	defaultCommandTimeout = 15 * time.Second
)

// ParseDurationField parses a Go duration string found at the YAML path
// field. Blank means zero; negative values are rejected.
func ParseDurationField(field, raw string) (time.Duration, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(text)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with zero replaced by def.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

func orDefault(raw string, def time.Duration) time.Duration {
	if d, err := ParseDurationOrDefault("", raw, def); err == nil {
		return d
	}
	return def
}

func (c TelegramConfig) PollTimeoutDuration() time.Duration {
	return orDefault(c.PollTimeout, defaultPollTimeout)
}

func (c StorageConfig) BusyTimeoutDuration() time.Duration {
	return orDefault(c.BusyTimeout, defaultBusyTimeout)
}

// SweepIntervalDuration keeps an explicit 0 (sweep disabled); only an
// unparsable value falls back to the default.
func (c SchedulerConfig) SweepIntervalDuration() time.Duration {
	if d, err := ParseDurationField("", c.SweepInterval); err == nil {
		return d
	}
	return defaultSweepInterval
}

func (c TaskEngineConfig) DefaultTimeoutDuration() time.Duration {
	return orDefault(c.DefaultTimeout, defaultTaskTimeout)
}

func (c CommandsConfig) TimeoutDuration() time.Duration {
	return orDefault(c.Timeout, defaultCommandTimeout)
}
