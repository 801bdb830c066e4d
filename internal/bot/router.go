package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	unknownCommandText = "Unknown command. Try /help"
	busyText           = "Busy, try again in a moment."
)

type RouterConfig struct {
	// Workers run commands; with 1, a chat's commands apply in the order
	// they were sent.
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Router turns incoming messages into Requests and runs them on a small
// worker pool behind a bounded queue.
type Router struct {
	cfg     RouterConfig
	log     logx.Logger
	sender  kit.Sender
	self    string
	timeout atomic.Int64

	mu       sync.RWMutex
	commands map[string]Command
	ordered  []Command

	queue atomic.Pointer[chan func()]
}

// NewRouter answers through sender. When sender also knows the bot's
// username, commands addressed to other bots are ignored.
func NewRouter(cfg RouterConfig, sender kit.Sender, log logx.Logger) *Router {
	cfg.Workers = max(cfg.Workers, 1)
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{cfg: cfg, log: log, sender: sender, commands: map[string]Command{}}
	if n, ok := sender.(kit.SelfNamer); ok {
		r.self = n.Username()
	}
	r.timeout.Store(int64(cfg.Timeout))
	return r
}

// SetTimeout applies to commands started after the call.
func (r *Router) SetTimeout(d time.Duration) { r.timeout.Store(int64(d)) }

func (r *Router) CurrentTimeout() time.Duration { return time.Duration(r.timeout.Load()) }

// SetCommands replaces the registry. Entries without a name or handler are
// skipped, an alias never shadows an earlier name, and the client menu is
// refreshed when the sender supports it.
func (r *Router) SetCommands(ctx context.Context, cmds []Command) {
	index := make(map[string]Command, len(cmds))
	var kept []Command
	for _, c := range cmds {
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))
		if c.Name == "" || c.Handle == nil {
			continue
		}
		index[c.Name] = c
		kept = append(kept, c)
		for _, alias := range c.Aliases {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if _, taken := index[alias]; alias != "" && !taken {
				index[alias] = c
			}
		}
	}
	r.mu.Lock()
	r.commands, r.ordered = index, kept
	r.mu.Unlock()

	menu, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	entries := make([]kit.BotCommand, len(kept))
	for i, c := range kept {
		entries[i] = kit.BotCommand{Command: c.Name, Description: c.Description}
	}
	mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := menu.UpdateMenuCommands(mctx, entries); err != nil {
		r.log.Warn("command menu not updated", logx.Err(err))
	}
}

// Commands lists the registry in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.ordered...)
}

// DispatchLoop routes updates until ctx ends or updates closes, then gives
// queued commands a few seconds to finish.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	queue := make(chan func(), r.cfg.QueueSize)
	r.queue.Store(&queue)

	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(r.log))
	for i := range r.cfg.Workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case run, ok := <-queue:
					if !ok {
						return nil
					}
					run()
				}
			}
		}, rtsup.WorkerPolicy)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.cfg.Workers), logx.Int("queue", cap(queue)))

	defer func() {
		r.queue.Store(nil)
		close(queue)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Wait(wctx)
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

// route runs on the dispatch goroutine only, which is also the only closer
// of the queue, so the send below cannot hit a closed channel.
func (r *Router) route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	name, args, ok := parseCommand(msg.Text, r.self)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	cmd, known := r.commands[name]
	r.mu.RUnlock()
	if !known {
		_, _ = r.sender.SendText(ctx, chat, unknownCommandText, nil)
		return
	}

	req := &Request{Chat: chat, FromID: msg.FromID, Command: cmd.Name, Args: args, ReqID: newReqID(), sender: r.sender}
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Owner(req.Owner()),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Name),
	)
	handle := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(r.CurrentTimeout))

	q := r.queue.Load()
	if q != nil {
		select {
		case *q <- func() { _ = handle(ctx, req) }:
			return
		default:
		}
	}
	_, _ = r.sender.SendText(ctx, chat, busyText, nil)
}
