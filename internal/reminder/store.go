package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"remindbot/internal/storage"
)

// Store is the in-memory mirror of the persisted snapshot. Every mutation
// rewrites the whole snapshot through the backend while holding mu, so
// command handlers and fires never interleave a read-modify-write.
type Store struct {
	mu      sync.Mutex
	backend storage.Store
	loc     *time.Location
	data    map[string][]Reminder
}

// OpenStore loads the snapshot from backend. An unreadable snapshot returns
// ErrStorageCorrupt.
func OpenStore(ctx context.Context, backend storage.Store, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	snap, err := backend.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			return nil, fmt.Errorf("%w: %w", ErrStorageCorrupt, err)
		}
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	data := make(map[string][]Reminder, len(snap))
	for owner, entries := range snap {
		if len(entries) == 0 {
			continue
		}
		rs := make([]Reminder, 0, len(entries))
		for i, e := range entries {
			at, err := time.ParseInLocation(Layout, e.DateTime, loc)
			if err != nil {
				return nil, fmt.Errorf("%w: owner %s entry %d: %v", ErrStorageCorrupt, owner, i, err)
			}
			rs = append(rs, Reminder{FireAt: at, Body: e.Text})
		}
		data[owner] = rs
	}
	return &Store{backend: backend, loc: loc, data: data}, nil
}

// Add appends r to owner's list and saves. On save failure the append is
// undone.
func (s *Store) Add(ctx context.Context, owner string, r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[owner]
	s.data[owner] = append(prev[:len(prev):len(prev)], r)
	if err := s.saveLocked(ctx); err != nil {
		if had {
			s.data[owner] = prev
		} else {
			delete(s.data, owner)
		}
		return err
	}
	return nil
}

// RemoveAt removes the reminder at 0-based index and saves. On save
// failure the removal is undone.
func (s *Store) RemoveAt(ctx context.Context, owner string, index int) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data[owner]
	if index < 0 || index >= len(prev) {
		return Reminder{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index+1, len(prev))
	}
	removed := prev[index]
	next := make([]Reminder, 0, len(prev)-1)
	next = append(next, prev[:index]...)
	next = append(next, prev[index+1:]...)
	s.setLocked(owner, next)
	if err := s.saveLocked(ctx); err != nil {
		s.data[owner] = prev
		return Reminder{}, err
	}
	return removed, nil
}

// RemoveBody removes every reminder of owner whose body equals body and
// returns them. Nothing is saved when nothing matched. A failed save keeps
// the in-memory removal and returns ErrStorageWrite.
func (s *Store) RemoveBody(ctx context.Context, owner, body string) ([]Reminder, error) {
	return s.removeWhere(ctx, owner, func(r Reminder) bool { return r.Body == body })
}

// RemoveExact removes reminders of owner equal to r by time and body.
func (s *Store) RemoveExact(ctx context.Context, owner string, r Reminder) ([]Reminder, error) {
	return s.removeWhere(ctx, owner, r.same)
}

func (s *Store) removeWhere(ctx context.Context, owner string, match func(Reminder) bool) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data[owner]
	var kept, removed []Reminder
	for _, r := range prev {
		if match(r) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	s.setLocked(owner, kept)
	return removed, s.saveLocked(ctx)
}

// List returns a copy of owner's reminders in insertion order.
func (s *Store) List(owner string) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Reminder(nil), s.data[owner]...)
}

// Owners returns the owners with at least one reminder, sorted.
func (s *Store) Owners() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// All returns a deep copy of the full mapping.
func (s *Store) All() map[string][]Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]Reminder, len(s.data))
	for k, v := range s.data {
		out[k] = append([]Reminder(nil), v...)
	}
	return out
}

// SetJob attaches a timer handle to the first reminder of owner equal to r
// that has handle old. It reports whether one was found.
func (s *Store) SetJob(owner string, r Reminder, old, job string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.data[owner] {
		if cur.Job == old && cur.same(r) {
			s.data[owner][i].Job = job
			return true
		}
	}
	return false
}

// ClearJob drops handle job wherever it is attached.
func (s *Store) ClearJob(job string) bool {
	if job == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, rs := range s.data {
		for i := range rs {
			if rs[i].Job == job {
				s.data[owner][i].Job = ""
				return true
			}
		}
	}
	return false
}

// Snapshot renders the persisted form of the current state.
func (s *Store) Snapshot() storage.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) setLocked(owner string, rs []Reminder) {
	if len(rs) == 0 {
		delete(s.data, owner)
		return
	}
	s.data[owner] = rs
}

func (s *Store) snapshotLocked() storage.Snapshot {
	snap := make(storage.Snapshot, len(s.data))
	for owner, rs := range s.data {
		entries := make([]storage.Entry, 0, len(rs))
		for _, r := range rs {
			entries = append(entries, storage.Entry{DateTime: r.DateTime(s.loc), Text: r.Body})
		}
		snap[owner] = entries
	}
	return snap
}

func (s *Store) saveLocked(ctx context.Context) error {
	if err := s.backend.Save(ctx, s.snapshotLocked()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return nil
}
