package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

// onceSchedule activates a single time. cron asks for the next activation
// after every run and drops the entry when it gets the zero time back.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// AddOnce arms run for a single delivery at at, replacing any entry with the
// same name. When at is not in the future the job goes to the engine at once.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, run func(ctx context.Context) error) (string, error) {
	if at.IsZero() {
		return "", errors.New("scheduler: fire time required")
	}
	return s.add(&entry{name: name, at: at, timeout: timeout, run: run})
}

// AddInterval runs job every interval, first after one full interval.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, run func(ctx context.Context) error) (string, error) {
	if every <= 0 {
		return "", fmt.Errorf("scheduler: interval must be positive, got %s", every)
	}
	return s.add(&entry{name: name, every: every, timeout: timeout, run: run})
}

func (s *Service) add(e *entry) (string, error) {
	e.name = strings.TrimSpace(e.name)
	switch {
	case e.name == "":
		return "", errors.New("scheduler: entry name required")
	case e.run == nil:
		return "", errors.New("scheduler: entry has no job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(e.name)
	s.entries[e.name] = e
	if s.cron != nil {
		s.armLocked(e)
	}
	return e.name, nil
}

// Remove disarms name and reports whether it was armed. A job already handed
// to the engine is not recalled.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	ok := s.dropLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if ok {
		s.log.Debug("entry disarmed", logx.Job(name))
	}
	return ok
}

func (s *Service) dropLocked(name string) bool {
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	if s.cron != nil && e.id != 0 {
		s.cron.Remove(e.id)
	}
	delete(s.entries, name)
	return true
}

// armLocked needs s.mu and a running cron.
func (s *Service) armLocked(e *entry) {
	if !e.oneShot() {
		e.id = s.cron.Schedule(cron.Every(e.every), cron.FuncJob(func() { s.handOff(e) }))
		s.log.Debug("periodic entry armed", logx.Job(e.name), logx.Duration("every", e.every))
		return
	}
	// onceSchedule yields zero for a past time and cron would never fire it.
	if !e.at.After(s.now()) {
		delete(s.entries, e.name)
		s.handOff(e)
		return
	}
	e.id = s.cron.Schedule(onceSchedule{at: e.at}, cron.FuncJob(func() { s.fire(e) }))
	s.log.Debug("reminder armed", logx.Job(e.name), logx.Time("at", e.at.In(s.loc)))
}

// fire retires a one-shot entry, unless it was replaced or removed meanwhile,
// and passes it on.
func (s *Service) fire(e *entry) {
	s.mu.Lock()
	if s.entries[e.name] != e {
		s.mu.Unlock()
		return
	}
	delete(s.entries, e.name)
	if s.cron != nil {
		s.cron.Remove(e.id)
	}
	s.mu.Unlock()
	s.handOff(e)
}

func (s *Service) handOff(e *entry) {
	if s.eng == nil {
		return
	}
	err := s.eng.Enqueue(engine.Task{Name: e.name, Timeout: e.timeout, Run: e.run})
	switch {
	case err == nil, errors.Is(err, engine.ErrQueueFull):
		// drops are reported by the engine.
	case errors.Is(err, engine.ErrStopped):
		s.log.Debug("trigger after delivery stop", logx.Job(e.name))
	default:
		s.log.Warn("could not hand off job", logx.Job(e.name), logx.Err(err))
	}
}
