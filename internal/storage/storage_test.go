package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func sample() Snapshot {
	return Snapshot{
		"42": {
			{DateTime: "2099-01-01 09:00", Text: "call mom"},
			{DateTime: "2099-01-02 10:30", Text: "dentist"},
		},
		"-100123": {{DateTime: "2099-03-04 05:06", Text: "group standup"}},
	}
}

func openDriver(t *testing.T, driver string) Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.json")
	if driver == "sqlite" {
		path = filepath.Join(dir, "reminders.db")
	}
	st, err := Open(Config{Driver: driver, Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDriversRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite", "memory"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openDriver(t, driver)
			ctx := context.Background()

			empty, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load empty: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("empty store returned %v", empty)
			}

			if err := st.Save(ctx, sample()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, sample()) {
				t.Fatalf("got %v, want %v", got, sample())
			}

			// Save(Load()) is a fixed point.
			if err := st.Save(ctx, got); err != nil {
				t.Fatalf("Save again: %v", err)
			}
			again, _ := st.Load(ctx)
			if !reflect.DeepEqual(again, got) {
				t.Fatalf("round trip changed content: %v", again)
			}
		})
	}
}

func TestFileLayout(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "reminders.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.Save(context.Background(), Snapshot{"7": {{DateTime: "2099-01-01 09:00", Text: "call mom"}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "{\n  \"7\": [\n    {\n      \"datetime\": \"2099-01-01 09:00\",\n      \"text\": \"call mom\"\n    }\n  ]\n}\n"
	if string(b) != want {
		t.Fatalf("file content:\n%s\nwant:\n%s", b, want)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileCorruptSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	if err := os.WriteFile(path, []byte(`{"42": [ {"datetime": `), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Load err = %v, want ErrCorrupt", err)
	}
}

func TestFileSaveFailureWrapsErrWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// A directory where the temp file should go makes the write fail.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(context.Background(), sample()); !errors.Is(err, ErrWrite) {
		t.Fatalf("Save err = %v, want ErrWrite", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("err = %v", err)
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestMemoryFailSaves(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	m.SetFailSaves(true)
	if err := m.Save(context.Background(), sample()); !errors.Is(err, ErrWrite) {
		t.Fatalf("err = %v", err)
	}
	if m.Saves() != 0 {
		t.Fatalf("saves = %d", m.Saves())
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()
	s := sample()
	c := s.Clone()
	c["42"][0].Text = "changed"
	if s["42"][0].Text != "call mom" {
		t.Fatal("clone shares backing arrays")
	}
}

func TestSnapshotKeepsMarkupLiteral(t *testing.T) {
	t.Parallel()
	b, err := encodeSnapshot(Snapshot{"1": {{DateTime: "2099-01-01 09:00", Text: "buy <milk> & eggs"}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(b), `"text": "buy <milk> & eggs"`) {
		t.Fatalf("markup escaped or layout changed:\n%s", b)
	}
	if strings.Contains(string(b), `\u003c`) || strings.Contains(string(b), `\u0026`) {
		t.Fatalf("found HTML escapes:\n%s", b)
	}
	back, err := decodeSnapshot(b)
	if err != nil || back["1"][0].Text != "buy <milk> & eggs" {
		t.Fatalf("decode = %v, %v", back, err)
	}
}

func TestDecodeSnapshotEmptyVersusBlank(t *testing.T) {
	t.Parallel()
	snap, err := decodeSnapshot(nil)
	if err != nil || snap == nil || len(snap) != 0 {
		t.Fatalf("zero-length input = %v, %v; want empty snapshot", snap, err)
	}
	for _, in := range []string{"null", "  \n", " null ", "[]"} {
		if _, err := decodeSnapshot([]byte(in)); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("decodeSnapshot(%q) err = %v, want ErrCorrupt", in, err)
		}
	}
	if snap, err := decodeSnapshot([]byte("{}\n")); err != nil || len(snap) != 0 {
		t.Fatalf("empty object = %v, %v", snap, err)
	}
}

func TestFileZeroLengthLoadsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if snap, err := st.Load(context.Background()); err != nil || len(snap) != 0 {
		t.Fatalf("Load = %v, %v", snap, err)
	}
	if err := os.WriteFile(path, []byte("null"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load(context.Background()); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("null document err = %v, want ErrCorrupt", err)
	}
}

func TestOpenSQLite3Alias(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "SQLite3", Path: filepath.Join(t.TempDir(), "r.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if err := st.Save(context.Background(), sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
