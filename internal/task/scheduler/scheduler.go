// Package scheduler arms reminder timers on robfig/cron and hands due jobs
// to the delivery engine. It owns no execution: a fired entry becomes an
// engine.Task under the same name.
//
// Two kinds of entries exist. One-shot entries (AddOnce) back individual
// reminders and retire themselves after firing. Periodic entries
// (AddInterval) drive housekeeping such as the overdue sweep.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// Timezone is an IANA name such as "Europe/Berlin"; empty means the
	// process zone.
	Timezone string
}

// Stats summarizes what is armed and how the delivery queue is doing.
type Stats struct {
	Timezone string
	Armed    int // one-shot reminder timers
	Periodic int
	engine.Stats
}

type entry struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	id      cron.EntryID

	at    time.Time     // one-shot
	every time.Duration // periodic
}

func (e *entry) oneShot() bool { return e.every == 0 }

type Service struct {
	log logx.Logger
	loc *time.Location
	eng *engine.Service
	now func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]*entry
}

func New(cfg Config, eng *engine.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		loc:     resolveZone(cfg.Timezone, log),
		eng:     eng,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

func resolveZone(name string, log logx.Logger) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("unknown timezone, using process zone", logx.String("tz", name), logx.Err(err))
		return time.Local
	}
	return loc
}

// Location is the zone naive reminder times are read in.
func (s *Service) Location() *time.Location { return s.loc }

// Start begins triggering and arms every entry added before it.
func (s *Service) Start(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	s.cron = cron.New(cron.WithLocation(s.loc))
	for _, e := range s.entries {
		s.armLocked(e)
	}
	s.cron.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("entries", len(s.entries)))
}

// Stop halts triggering. Entries are kept and re-armed by the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	for _, e := range s.entries {
		e.id = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop interrupted, a cron callback is still running")
	}
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{Timezone: s.loc.String()}
	for _, e := range s.entries {
		if e.oneShot() {
			st.Armed++
		} else {
			st.Periodic++
		}
	}
	s.mu.Unlock()
	if s.eng != nil {
		st.Stats = s.eng.Stats()
	}
	return st
}
