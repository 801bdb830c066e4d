package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Store. SetFailSaves makes Save return ErrWrite,
// which tests use to exercise rollback paths.
type Memory struct {
	mu        sync.Mutex
	snap      Snapshot
	saves     int
	failSaves bool
}

func NewMemory() *Memory { return &Memory{snap: Snapshot{}} }

func (m *Memory) Load(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

func (m *Memory) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return ErrWrite
	}
	m.snap = s.Clone()
	m.saves++
	return nil
}

// Saves counts successful saves.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) SetFailSaves(v bool) {
	m.mu.Lock()
	m.failSaves = v
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }
