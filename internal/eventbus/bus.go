// Package eventbus carries reminder lifecycle and delivery outcome events
// between components in-process. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
package eventbus

import (
	"sync"
	"time"
)

const (
	ReminderCreated   = "reminder.created"
	ReminderDeleted   = "reminder.deleted"
	ReminderFired     = "reminder.fired"
	ReminderDiscarded = "reminder.discarded"

	// Delivery outcomes, Data is an engine.TaskEvent.
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskDropped  = "task.dropped"
)

type Event struct {
	Type string
	Time time.Time // set by Publish when zero
	Data any
}

type Bus interface {
	Publish(e Event)
	// Subscribe returns a buffered feed and a func that closes it. The
	// func may be called more than once.
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus { return &fanout{feeds: map[chan Event]struct{}{}} }

type fanout struct {
	// Publish sends under the read lock and unsubscribe closes under the
	// write lock, so a send never races a close.
	mu    sync.RWMutex
	feeds map[chan Event]struct{}
}

func (f *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for feed := range f.feeds {
		select {
		case feed <- e:
		default:
		}
	}
}

func (f *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	feed := make(chan Event, max(buffer, 1))
	f.mu.Lock()
	f.feeds[feed] = struct{}{}
	f.mu.Unlock()
	return feed, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.feeds[feed]; ok {
			delete(f.feeds, feed)
			close(feed)
		}
	}
}

// Nop drops every event; its feeds are closed from the start.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	feed := make(chan Event)
	close(feed)
	return feed, func() {}
}
