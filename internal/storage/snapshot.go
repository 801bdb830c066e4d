package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCorrupt means a saved snapshot exists but is not a valid document.
	ErrCorrupt = errors.New("storage: snapshot corrupt")
	// ErrWrite wraps every failed Save.
	ErrWrite  = errors.New("storage: write failed")
	ErrClosed = errors.New("storage: closed")
)

// Config picks the driver: "file" (also ""), "sqlite"/"sqlite3" or
// "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite; 0 keeps the driver default
}

// Entry is one saved reminder; DateTime is "YYYY-MM-DD HH:MM" in the
// configured zone.
type Entry struct {
	DateTime string `json:"datetime"`
	Text     string `json:"text"`
}

// Snapshot maps an owner id to its reminders in the order they were added.
type Snapshot map[string][]Entry

func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for owner, entries := range s {
		c[owner] = append([]Entry(nil), entries...)
	}
	return c
}

// encodeSnapshot writes indented JSON with reminder text kept verbatim
// (no \u003c style escapes for <, > and &).
func encodeSnapshot(s Snapshot) ([]byte, error) {
	if s == nil {
		s = Snapshot{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}
	return buf.Bytes(), nil
}

// decodeSnapshot reads a saved document. Zero bytes is an empty snapshot
// (a file created but never written); anything else must be a JSON object,
// so "null" or blank content is corrupt.
func decodeSnapshot(b []byte) (Snapshot, error) {
	if len(b) == 0 {
		return Snapshot{}, nil
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: document is null", ErrCorrupt)
	}
	return s, nil
}
