// Package telegram connects the bot to the Telegram Bot API through telebot:
// long polling for inbound text, rate-limited sends with error
// classification for reminder delivery, and the command menu.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRatePerSec caps outbound messages over all chats; Telegram
	// tolerates about 30/s per bot. 0 means 25.
	SendRatePerSec int
}

type Adapter struct {
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	// sink is the router's update channel while polling.
	sink    atomic.Pointer[chan<- kit.Update]
	dropped atomic.Uint64

	mu  sync.Mutex
	sup *rtsup.Supervisor

	menuMu  sync.Mutex
	menuKey string
}

// New authenticates with getMe; a bad token fails here rather than in the
// poll loop.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.SendRatePerSec <= 0 {
		cfg.SendRatePerSec = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token, Poller: &tele.LongPoller{Timeout: cfg.PollTimeout}})
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendRatePerSec),
	}
	// telebot routes commands it has no handler for to OnText.
	b.Handle(tele.OnText, a.onText)
	log.Info("telegram connected", logx.String("bot", a.Username()))
	return a, nil
}

// Username is the bot's @name without the "@".
func (a *Adapter) Username() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	msg := &kit.Message{ChatID: m.Chat.ID, ThreadID: m.ThreadID, Text: m.Text}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
	}
	sink := a.sink.Load()
	if sink == nil {
		return nil
	}
	select {
	case *sink <- kit.Update{Message: msg}:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Start begins long polling and forwards text messages to out without
// blocking; overflow is counted and reported every few seconds.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.sink.Store(&out)
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log))

	a.sup.Go0("updates.overflow", func(c context.Context) {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-c.Done():
				a.reportOverflow(cap(out))
				return
			case <-tick.C:
				a.reportOverflow(cap(out))
			}
		}
	})
	// bot.Start blocks until bot.Stop; a return while we are still running
	// is treated as a crash and restarted.
	a.sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("long polling")
		a.bot.Start()
		return nil
	}, rtsup.PollerPolicy)
	a.sup.Go0("telebot.stop", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	return nil
}

func (a *Adapter) reportOverflow(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("updates dropped, router backlog full", logx.Uint64("count", n), logx.Int("cap", capacity))
	}
}

// Stop ends polling. getUpdates may hang for up to the poll timeout, so the
// wait is capped and an overrun only logged.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.mu.Unlock()
	a.sink.Store(nil)
	if sup == nil {
		return nil
	}
	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && wctx.Err() != nil {
		a.log.Warn("telegram poller still draining", logx.Err(err))
	}
	a.log.Info("telegram stopped")
	return nil
}
