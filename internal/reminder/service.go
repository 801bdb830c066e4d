package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/task/engine"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const jobPrefix = "reminder:"

// Scheduler arms and cancels one-shot jobs.
type Scheduler interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

// Overdue policies for reminders found past due at startup.
const (
	OverdueFire    = "fire"
	OverdueDiscard = "discard"
)

type Config struct {
	Location *time.Location
	// Overdue is OverdueFire or OverdueDiscard.
	Overdue        string
	CancelOnDelete bool
	// FireTimeout bounds one delivery attempt; 0 uses the engine default.
	FireTimeout time.Duration
}

// Service implements the reminder lifecycle: create, list, delete and fire.
type Service struct {
	cfg    Config
	store  *Store
	sched  Scheduler
	sender atomic.Value // kit.Sender
	bus    eventbus.Bus
	log    logx.Logger
	now    func() time.Time
	seq    atomic.Uint64
}

// Event payload published on the bus.
type Event struct {
	Owner  string    `json:"owner"`
	FireAt time.Time `json:"fire_at"`
	Body   string    `json:"body"`
	Reason string    `json:"reason,omitempty"`
}

func NewService(cfg Config, store *Store, sched Scheduler, bus eventbus.Bus, log logx.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Overdue == "" {
		cfg.Overdue = OverdueFire
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, sched: sched, bus: bus, log: log, now: time.Now}
}

// SetSender installs the transport used for notifications.
func (s *Service) SetSender(sender kit.Sender) { s.sender.Store(&sender) }

func (s *Service) Location() *time.Location { return s.cfg.Location }

// Create parses "/set" arguments, stores the reminder and arms its timer.
func (s *Service) Create(ctx context.Context, owner string, args []string) (Reminder, error) {
	at, body, err := ParseCreateArgs(args, s.cfg.Location)
	if err != nil {
		return Reminder{}, err
	}
	if at.Before(s.now()) {
		return Reminder{}, fmt.Errorf("%w: %s", ErrPastDate, at.Format(Layout))
	}

	r := Reminder{FireAt: at, Body: body, Job: s.nextJob(owner)}
	if err := s.store.Add(ctx, owner, r); err != nil {
		return Reminder{}, err
	}
	s.arm(owner, r)
	s.log.Info("reminder created", logx.Owner(owner), logx.FireAt(r.FireAt.In(s.cfg.Location)), logx.Job(r.Job))
	s.publish(eventbus.ReminderCreated, owner, r, "")
	return r, nil
}

// List returns owner's reminders in insertion order.
func (s *Service) List(owner string) []Reminder {
	return s.store.List(owner)
}

// Delete removes the reminder at the 1-based position given in args.
func (s *Service) Delete(ctx context.Context, owner string, args []string) (Reminder, error) {
	n := len(s.store.List(owner))
	if n == 0 {
		return Reminder{}, ErrNoReminders
	}
	idx, err := ParseIndex(args)
	if err != nil {
		return Reminder{}, err
	}
	if idx < 1 || idx > n {
		return Reminder{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, n)
	}
	r, err := s.store.RemoveAt(ctx, owner, idx-1)
	if err != nil {
		return Reminder{}, err
	}
	if s.cfg.CancelOnDelete && r.Job != "" {
		s.sched.Remove(r.Job)
	}
	s.log.Info("reminder deleted", logx.Owner(owner), logx.Int("index", idx), logx.Bool("cancelled", s.cfg.CancelOnDelete))
	s.publish(eventbus.ReminderDeleted, owner, r, "")
	return r, nil
}

// Fire delivers the notification for body to owner and, once delivered,
// removes every reminder of owner with that body. Delivery errors are
// returned so the task engine can retry.
func (s *Service) Fire(ctx context.Context, owner, body string) error {
	sp, _ := s.sender.Load().(*kit.Sender)
	if sp == nil || *sp == nil {
		return errors.New("reminder sender not configured")
	}
	chatID, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return engine.NoRetry(fmt.Errorf("owner %q is not a chat id: %w", owner, err))
	}

	_, err = (*sp).SendText(ctx, kit.ChatTarget{ChatID: chatID}, NotificationText(body), nil)
	if err != nil {
		var rl *kit.RateLimitedError
		switch {
		case errors.As(err, &rl):
			return engine.RetryAfter(err, rl.After)
		case errors.Is(err, kit.ErrUndeliverable):
			// The chat will never accept it; drop instead of retrying forever.
			removed, rerr := s.store.RemoveBody(ctx, owner, body)
			for _, r := range removed {
				s.publish(eventbus.ReminderDiscarded, owner, r, "undeliverable")
			}
			s.log.Warn("reminder undeliverable; discarded", logx.Owner(owner), logx.Int("removed", len(removed)), logx.Err(err))
			return engine.NoRetry(errors.Join(err, rerr))
		}
		return fmt.Errorf("send reminder: %w", err)
	}

	removed, err := s.store.RemoveBody(ctx, owner, body)
	for _, r := range removed {
		s.publish(eventbus.ReminderFired, owner, r, "")
	}
	if err != nil {
		// Delivered already; a retry would notify twice.
		return engine.NoRetry(err)
	}
	s.log.Debug("reminder fired", logx.Owner(owner), logx.Int("removed", len(removed)))
	return nil
}

// RestoreStats summarizes a Restore run.
type RestoreStats struct {
	Armed     int
	Overdue   int
	Discarded int
}

// Restore arms every stored reminder. Reminders already past due are fired
// now or dropped, per Config.Overdue.
func (s *Service) Restore(ctx context.Context) (RestoreStats, error) {
	var st RestoreStats
	now := s.now()
	all := s.store.All()
	var errs []error
	for _, owner := range s.store.Owners() {
		for _, r := range all[owner] {
			overdue := r.FireAt.Before(now)
			if overdue && s.cfg.Overdue == OverdueDiscard {
				if _, err := s.store.RemoveExact(ctx, owner, r); err != nil {
					errs = append(errs, err)
				}
				st.Discarded++
				s.publish(eventbus.ReminderDiscarded, owner, r, "overdue")
				continue
			}
			if overdue {
				st.Overdue++
			} else {
				st.Armed++
			}
			s.rearm(owner, r)
		}
	}
	s.log.Info("reminders restored", logx.Int("armed", st.Armed), logx.Int("overdue", st.Overdue), logx.Int("discarded", st.Discarded))
	return st, errors.Join(errs...)
}

// Sweep arms due reminders that have no timer handle, which happens when
// a trigger was dropped or a delivery gave up.
func (s *Service) Sweep(ctx context.Context) error {
	_ = ctx
	now := s.now()
	n := 0
	for owner, rs := range s.store.All() {
		for _, r := range rs {
			if r.Job != "" || r.FireAt.After(now) {
				continue
			}
			s.rearm(owner, r)
			n++
		}
	}
	if n > 0 {
		s.log.Info("sweep re-armed due reminders", logx.Int("count", n))
	}
	return nil
}

// HandleTaskEvent releases the timer handle of a reminder whose delivery
// task failed for good or was dropped, so Sweep can pick it up again.
func (s *Service) HandleTaskEvent(e eventbus.Event) {
	if e.Type != eventbus.TaskFailed && e.Type != eventbus.TaskDropped {
		return
	}
	ev, ok := e.Data.(engine.TaskEvent)
	if !ok || !strings.HasPrefix(ev.Name, jobPrefix) {
		return
	}
	if s.store.ClearJob(ev.Name) {
		s.log.Debug("reminder job released", logx.Job(ev.Name), logx.String("err", ev.Error))
	}
}

// Run consumes events until ctx ends or events is closed. The caller
// subscribes before any reminder is armed so no task event is missed.
func (s *Service) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			s.HandleTaskEvent(e)
		}
	}
}

func (s *Service) nextJob(owner string) string {
	return fmt.Sprintf("%s%s:%d", jobPrefix, owner, s.seq.Add(1))
}

// rearm gives a stored reminder a fresh handle and arms it.
func (s *Service) rearm(owner string, r Reminder) {
	job := s.nextJob(owner)
	if !s.store.SetJob(owner, r, r.Job, job) {
		return
	}
	r.Job = job
	s.arm(owner, r)
}

func (s *Service) arm(owner string, r Reminder) {
	body := r.Body
	_, err := s.sched.AddOnce(r.Job, r.FireAt, s.cfg.FireTimeout, func(ctx context.Context) error {
		return s.Fire(ctx, owner, body)
	})
	if err != nil {
		s.store.ClearJob(r.Job)
		s.log.Error("reminder arm failed", logx.Owner(owner), logx.Job(r.Job), logx.Err(err))
	}
}

func (s *Service) publish(typ, owner string, r Reminder, reason string) {
	s.bus.Publish(eventbus.Event{Type: typ, Data: Event{Owner: owner, FireAt: r.FireAt, Body: r.Body, Reason: reason}})
}
