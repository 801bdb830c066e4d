// Package supervisor runs the bot's long-lived goroutines (update polling,
// command workers, reminder delivery workers, config watch) under one
// cancelable context with panic recovery and restart policies.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	// fatal turns the first goroutine error into a shutdown of the group.
	fatal bool

	wg sync.WaitGroup

	mu  sync.Mutex
	err error
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the group context when any goroutine fails.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.fatal = enabled }
}

func NewSupervisor(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel stops the group without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err is the first recorded failure, or nil.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) record(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	if s.fatal {
		s.cancel()
	}
}

// Go runs fn once. A returned error (other than cancellation) or a panic is
// recorded.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.call(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.record(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Go0 is Go for loops that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// call runs fn and turns a panic into an error.
func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

// Policy tells GoRestart when and how fast to rerun a goroutine.
type Policy struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// MaxRestarts gives up after that many reruns; 0 never gives up.
	MaxRestarts int
	// RestartOnReturn reruns fn even when it returns nil. Used for loops
	// that are expected to run for the life of the group, like polling.
	RestartOnReturn bool
	// Report records each failure in Err.
	Report bool
}

var (
	// PollerPolicy keeps the Telegram long-poll loop alive.
	PollerPolicy = Policy{MinBackoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second, RestartOnReturn: true, Report: true}
	// WorkerPolicy covers command and reminder delivery workers: a worker
	// that crashes comes back quickly, one that returns nil is done.
	WorkerPolicy = Policy{MinBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second, Report: true}
)

// GoRestart runs fn until the group is canceled, rerunning it after a
// failure with doubling backoff bounded by p.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, p Policy) {
	if p.MinBackoff <= 0 {
		p.MinBackoff = 250 * time.Millisecond
	}
	p.MaxBackoff = max(p.MaxBackoff, p.MinBackoff)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wait := p.MinBackoff
		for runs := 1; ; runs++ {
			err := s.call(name, fn)
			if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if err == nil && !p.RestartOnReturn {
				return
			}
			if err == nil {
				err = errors.New("returned")
			}
			if p.Report {
				s.mu.Lock()
				if s.err == nil {
					s.err = fmt.Errorf("%s: %w", name, err)
				}
				s.mu.Unlock()
			}
			if p.MaxRestarts > 0 && runs > p.MaxRestarts {
				s.log.Error("giving up on goroutine", logx.String("name", name), logx.Int("runs", runs), logx.Err(err))
				return
			}
			s.log.Warn("restarting goroutine", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			t := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			wait = min(2*wait, p.MaxBackoff)
		}
	}()
}

// Wait blocks until every goroutine returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
