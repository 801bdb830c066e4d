package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "remindbot/internal/transport"
)

const (
	alertMaxLen = 3500
	alertMaxVal = 600
	alertQueue  = 256
)

// alertSink forwards severe records to an operator chat. Writes never block:
// records over the rate limit or beyond a full queue are dropped.
type alertSink struct {
	mu      sync.Mutex
	sender  kit.Sender
	to      kit.ChatTarget
	min     zerolog.Level
	limiter *rate.Limiter

	queue   chan alert
	start   sync.Once
	cancel  context.CancelFunc
	stopped chan struct{}
}

type alert struct {
	to   kit.ChatTarget
	text string
}

func newAlertSink(sender kit.Sender) *alertSink {
	return &alertSink{sender: sender, queue: make(chan alert, alertQueue), min: zerolog.WarnLevel}
}

func (a *alertSink) setSender(sender kit.Sender) {
	a.mu.Lock()
	a.sender = sender
	a.mu.Unlock()
}

func (a *alertSink) configure(cfg TelegramConfig) {
	perSec := max(cfg.RatePerSec, 1)
	a.mu.Lock()
	a.to = kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	a.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	a.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	a.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	if cfg.ChatID == 0 {
		fmt.Fprintln(os.Stderr, "logx: logging.telegram.enabled is set without logging.telegram.chat_id")
	}
	a.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel, a.stopped = cancel, make(chan struct{})
		go a.deliver(ctx)
	})
}

func (a *alertSink) deliver(ctx context.Context) {
	defer close(a.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case al := <-a.queue:
			a.mu.Lock()
			sender := a.sender
			a.mu.Unlock()
			if sender != nil {
				_, _ = sender.SendText(ctx, al.to, al.text, &kit.SendOptions{DisablePreview: true})
			}
		}
	}
}

func (a *alertSink) stop() {
	a.mu.Lock()
	cancel, stopped := a.cancel, a.stopped
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
		<-stopped
	}
}

func (a *alertSink) Write(p []byte) (int, error) { return a.WriteLevel(zerolog.NoLevel, p) }

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	to, lim, ok := a.to, a.limiter, level >= a.min && level != zerolog.NoLevel
	a.mu.Unlock()
	if !ok || to.ChatID == 0 || lim == nil || !lim.Allow() {
		return len(p), nil
	}
	select {
	case a.queue <- alert{to: to, text: formatAlert(p)}:
	default:
	}
	return len(p), nil
}

// formatAlert renders a JSON record as chat text: the level and message on
// the first line, then reminder keys, then the remaining keys sorted.
func formatAlert(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return clip(raw, alertMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	skip := map[string]bool{
		zerolog.LevelFieldName:     true,
		zerolog.MessageFieldName:   true,
		zerolog.TimestampFieldName: true,
		zerolog.CallerFieldName:    true,
	}
	var keys []string
	for _, k := range []string{KeyOwner, KeyJob, KeyFireAt} {
		if _, ok := rec[k]; ok {
			keys = append(keys, k)
			skip[k] = true
		}
	}
	var rest []string
	for k := range rec {
		if !skip[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	for _, k := range append(keys, rest...) {
		fmt.Fprintf(&b, "\n%s: %s", k, clip(fmt.Sprint(rec[k]), alertMaxVal))
	}
	return clip(b.String(), alertMaxLen)
}

// clip shortens s to n bytes, marking the cut with "..." when room allows.
func clip(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	default:
		return s[:n-3] + "..."
	}
}
