// Package engine delivers fired reminders (and runs the overdue sweep) on a
// fixed pool of workers fed by a bounded queue. Failed deliveries are retried
// with capped exponential backoff unless marked final with NoRetry; a
// Telegram flood wait (RetryAfter) replaces the computed delay.
//
// Outcomes are published on the event bus as TaskFinished, TaskFailed or
// TaskDropped so the reminder store can release job handles.
package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

// Config sizes the delivery pool. Zero values take the defaults below.
type Config struct {
	Workers   int
	QueueSize int
	// DefaultTimeout bounds one attempt when Task.Timeout is zero.
	DefaultTimeout time.Duration
	// RetryMax is the number of retries after the first attempt; negative
	// means none.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	c.RetryMax = max(c.RetryMax, 0)
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	return c
}

// Task is one unit of work, usually a single reminder delivery. Name is the
// job handle ("reminder:<owner>:<seq>") echoed back in TaskEvent.
type Task struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// TaskEvent is the payload of every engine bus event.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}

// Stats is the load picture logged by the app at startup and after sweeps.
type Stats struct {
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int
	Dropped  uint64
}

type job struct {
	id     string
	task   Task
	queued time.Time
}

type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	mu    sync.Mutex
	queue chan job
	quit  chan struct{}
	sup   *rtsup.Supervisor

	seq      atomic.Uint64
	inFlight atomic.Int32
	dropped  atomic.Uint64
	lastWarn atomic.Int64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{cfg: cfg.normalized(), log: log, bus: bus}
}

// Start spins up the workers; a second call is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit != nil {
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.quit = make(chan struct{})
	s.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))

	for i := range s.cfg.Workers {
		w := &worker{svc: s, queue: s.queue, quit: s.quit}
		s.sup.GoRestart("delivery.worker."+strconv.Itoa(i), w.loop, rtsup.WorkerPolicy)
	}
	s.log.Info("delivery workers started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop ends the workers and waits for running attempts until ctx is done.
// Jobs still queued are abandoned; the sweep re-arms their reminders.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	quit, sup := s.quit, s.sup
	s.quit, s.queue, s.sup = nil, nil, nil
	s.mu.Unlock()
	if quit == nil {
		return
	}
	close(quit)
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("delivery workers did not stop in time", logx.Err(ctx.Err()))
		return
	}
	s.log.Info("delivery workers stopped")
}

// Enqueue hands t to the pool without blocking. A full queue drops the task
// and publishes TaskDropped.
func (s *Service) Enqueue(t Task) error {
	t.Name = strings.TrimSpace(t.Name)
	switch {
	case t.Name == "":
		return errors.New("engine: task name required")
	case t.Run == nil:
		return errors.New("engine: task has no Run func")
	}
	if t.Timeout <= 0 {
		t.Timeout = s.cfg.DefaultTimeout
	}

	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return ErrStopped
	}

	now := time.Now()
	j := job{id: "dlv-" + strconv.FormatUint(s.seq.Add(1), 10), task: t, queued: now}
	select {
	case q <- j:
		return nil
	default:
	}
	n := s.dropped.Add(1)
	s.bus.Publish(eventbus.Event{Type: eventbus.TaskDropped, Time: now, Data: TaskEvent{ID: j.id, Name: t.Name, Started: now, Error: "queue_full"}})
	// one warning per throttle window is enough to notice a backlog.
	if last := s.lastWarn.Load(); now.UnixNano()-last >= int64(dropWarnEvery) && s.lastWarn.CompareAndSwap(last, now.UnixNano()) {
		s.log.Warn("delivery dropped, queue full", logx.Job(t.Name), logx.Int("queue_cap", cap(q)), logx.Uint64("dropped", n))
	}
	return ErrQueueFull
}

const dropWarnEvery = 5 * time.Second

func (s *Service) Stats() Stats {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	st := Stats{Workers: s.cfg.Workers, InFlight: int(s.inFlight.Load()), Dropped: s.dropped.Load()}
	if q != nil {
		st.QueueLen, st.QueueCap = len(q), cap(q)
	}
	return st
}
