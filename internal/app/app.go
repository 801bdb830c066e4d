package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/runtime/lifecycle"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

const sweepJobName = "reminder.sweep"

// Options are the process-level inputs that do not live in the config file.
type Options struct {
	ConfigPath string
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string
}

type App struct {
	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	engine    *engine.Service
	sched     *scheduler.Service
	reminders *reminder.Service
	router    *bot.Router
	notifier  *lifecycle.Notifier

	sweepEvery time.Duration

	updates chan kit.Update
}

// New loads the config, connects the Telegram adapter and builds every
// component. A corrupt reminder snapshot or a missing token is fatal.
func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := NewConfigManager(opts.ConfigPath)
	cfgm.SetTokenEnv(opts.TokenEnv)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.RequireToken(cfg); err != nil {
		return nil, fmt.Errorf("%w (set %s or telegram.token)", err, opts.TokenEnv)
	}

	// The Telegram sink gets its sender once the adapter exists.
	logSvc, log := logx.New(mapLogConfig(cfg), nil)

	ad, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    cfg.Telegram.PollTimeoutDuration(),
		SendRatePerSec: cfg.Telegram.SendRatePerSec,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc.SetSender(ad)

	a, err := build(ctx, cfgm, cfg, logSvc, log, ad)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

// build wires the components around an already connected adapter.
func build(ctx context.Context, cfgm *ConfigManager, cfg *Config, logSvc *logx.Service, log logx.Logger, ad kit.Adapter) (*App, error) {
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	engineSvc := engine.New(mapTaskEngineConfig(cfg), log.With(logx.String("comp", "taskengine")), bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), engineSvc, log.With(logx.String("comp", "scheduler")))

	rstore, err := reminder.OpenStore(ctx, st, schedSvc.Location())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver), logx.Int("owners", len(rstore.Owners())))

	remSvc := reminder.NewService(mapReminderConfig(cfg, schedSvc), rstore, schedSvc, bus, log.With(logx.String("comp", "reminder")))
	remSvc.SetSender(ad)

	router := bot.NewRouter(mapRouterConfig(cfg), ad, log.With(logx.String("comp", "commands")))

	return &App{
		cfgm:       cfgm,
		log:        appLog,
		logs:       logSvc,
		bus:        bus,
		store:      st,
		adapter:    ad,
		engine:     engineSvc,
		sched:      schedSvc,
		reminders:  remSvc,
		router:     router,
		notifier:   lifecycle.NewNotifier(log.With(logx.String("comp", "systemd"))),
		sweepEvery: cfg.Scheduler.SweepIntervalDuration(),
		updates:    make(chan kit.Update, 256),
	}, nil
}

// Done closes once the run context ends, through Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup != nil {
		return a.sup.Context().Done()
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Err is the fatal error that ended the run, if any.
func (a *App) Err() error {
	if a.sup != nil {
		return a.sup.Err()
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	runCtx := a.sup.Context()

	// A reload must never drop the token the running adapter was built with.
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		return config.RequireToken(cfg)
	})

	// Task events must be flowing before Restore arms anything.
	taskEvents, unsubTasks := a.bus.Subscribe(128)
	a.sup.Go("reminder.events", func(c context.Context) error {
		defer unsubTasks()
		return a.reminders.Run(c, taskEvents)
	})
	a.traceEvents()

	a.engine.Start(runCtx)
	a.sched.Start(runCtx)

	restored, err := a.reminders.Restore(runCtx)
	if err != nil {
		// timers are armed; only saving the discards failed.
		a.log.Error("restore incomplete", logx.Err(err))
	}
	a.log.Info("reminders armed", logx.Int("armed", restored.Armed), logx.Int("overdue", restored.Overdue), logx.Int("discarded", restored.Discarded))

	if a.sweepEvery > 0 {
		if _, err := a.sched.AddInterval(sweepJobName, a.sweepEvery, 0, a.sweep); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
	}
	a.logStats("startup")

	a.router.SetCommands(runCtx, bot.ReminderCommands(a.reminders, a.router))
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	cfgSub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(cfgSub)
		a.reloadLoop(c, cfgSub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go0("systemd.watchdog", a.notifier.Watchdog)
	a.notifier.Ready()

	a.log.Info("app started")
	return nil
}

// sweep re-arms orphaned due reminders and reports the resulting load.
func (a *App) sweep(ctx context.Context) error {
	err := a.reminders.Sweep(ctx)
	a.logStats("sweep")
	return err
}

func (a *App) logStats(stage string) {
	st := a.sched.Stats()
	a.log.Info("scheduler stats",
		logx.String("stage", stage),
		logx.Int("armed", st.Armed),
		logx.Int("periodic", st.Periodic),
		logx.Int("queue_len", st.QueueLen),
		logx.Int("queue_cap", st.QueueCap),
		logx.Int("in_flight", st.InFlight),
		logx.Uint64("dropped", st.Dropped),
	)
}

// traceEvents mirrors reminder and delivery events to the debug log.
func (a *App) traceEvents() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			var e eventbus.Event
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				e = ev
			}
			fields := []logx.Field{logx.String("type", e.Type)}
			switch d := e.Data.(type) {
			case reminder.Event:
				fields = append(fields, logx.Owner(d.Owner), logx.Time("fire_at", d.FireAt))
				if d.Reason != "" {
					fields = append(fields, logx.String("reason", d.Reason))
				}
			case engine.TaskEvent:
				fields = append(fields, logx.Job(d.Name), logx.Int("attempts", d.Attempts))
			}
			a.log.Debug("event", fields...)
		}
	})
}

// reloadLoop applies each published config, skipping straight to the newest
// when several arrive at once.
func (a *App) reloadLoop(ctx context.Context, sub chan *Config) {
	current := a.cfgm.Get()
	for {
		var next *Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = cfg
		}
	drain:
		for {
			select {
			case cfg := <-sub:
				if cfg != nil {
					next = cfg
				}
			default:
				break drain
			}
		}
		a.applyConfig(current, next)
		current = next
	}
}

// applyConfig switches logging and the command timeout live. Other sections
// only take effect after a restart.
func (a *App) applyConfig(oldCfg, newCfg *Config) {
	sum := SummarizeConfigChange(oldCfg, newCfg)
	if len(sum.Changed) == 0 {
		a.log.Info("config reloaded, nothing changed")
		return
	}
	changed := strings.Join(sum.Changed, ",")
	a.log.Debug("config diff", append([]logx.Field{logx.String("changed", changed)}, sum.Attrs...)...)

	a.logs.Apply(mapLogConfig(newCfg))
	a.router.SetTimeout(newCfg.Commands.TimeoutDuration())

	if len(sum.RestartRequired) > 0 {
		a.log.Warn("restart needed for some config changes", logx.String("sections", strings.Join(sum.RestartRequired, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", changed))
}

// Stop shuts down in dependency order: no new updates, no new triggers,
// drain deliveries, then the background loops and the store. Each step has
// its own budget inside ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifier.Stopping()
	a.sup.Cancel()

	steps := []struct {
		name   string
		budget time.Duration
		run    func(context.Context) error
	}{
		{"adapter", 2 * time.Second, a.adapter.Stop},
		{"scheduler", 2 * time.Second, func(c context.Context) error { a.sched.Stop(c); return nil }},
		{"delivery", 3 * time.Second, func(c context.Context) error { a.engine.Stop(c); return nil }},
		{"supervisor", 2 * time.Second, a.sup.Wait},
		{"storage", time.Second, func(context.Context) error { return a.store.Close() }},
	}
	var errs []error
	for _, st := range steps {
		if err := a.runStep(ctx, st.name, st.budget, st.run); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// runStep gives fn at most budget (less if ctx ends sooner). A step that
// overruns is left behind and only logged, so shutdown keeps moving.
func (a *App) runStep(ctx context.Context, name string, budget time.Duration, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	began := time.Now()
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic: %v", r)
			}
		}()
		result <- fn(stepCtx)
	}()

	select {
	case err := <-result:
		if err != nil {
			a.log.Warn("stop step failed", logx.String("step", name), logx.Err(err))
		} else {
			a.log.Debug("stop step done", logx.String("step", name), logx.Duration("took", time.Since(began)))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step overran its budget", logx.String("step", name), logx.Duration("budget", budget))
		return nil
	}
}
