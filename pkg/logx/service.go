package logx

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	kit "remindbot/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig routes records at MinLevel and above to an operator chat.
// ChatID 0 keeps the sink silent even when Enabled.
type TelegramConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const (
	timeLayout     = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile = "./remindbot.log"
)

// Service owns the sinks. Apply rebuilds them in place; every Logger handed
// out by the Service picks up the new setup on its next record.
type Service struct {
	active atomic.Pointer[zerolog.Logger]

	mu    sync.Mutex
	file  *os.File
	alert *alertSink
}

// New builds the Service from cfg. sender may be nil and attached later with
// SetSender, once the Telegram adapter is connected.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeLayout
	s := &Service{alert: newAlertSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger { return *s.active.Load() }

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) SetSender(sender kit.Sender) { s.alert.setSender(sender) }

// Apply switches level and sinks. A log file that cannot be opened is
// reported on stderr and skipped.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, console(os.Stdout))
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			_, _ = os.Stderr.WriteString("logx: log file " + path + ": " + err.Error() + "\n")
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	s.alert.configure(cfg.Telegram)
	if cfg.Telegram.Enabled {
		sinks = append(sinks, s.alert)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, console(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.active.Store(&zl)
}

// Close flushes nothing; it stops the alert sender and closes the log file.
func (s *Service) Close() error {
	s.alert.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeLayout,
		FormatCaller: func(i any) string { c, _ := i.(string); return c },
	}
}

var levelNames = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

func parseLevel(name string, fallback zerolog.Level) zerolog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return lvl
	}
	return fallback
}

// ValidLevel accepts the names parseLevel knows, and "" for the default.
func ValidLevel(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	_, ok := levelNames[name]
	return ok || name == ""
}
