package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	out     chan<- kit.Update
	texts   []string
	stopped bool
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = out
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) push(t *testing.T, text string) {
	t.Helper()
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	if out == nil {
		t.Fatal("adapter not started")
	}
	out <- kit.Update{Message: &kit.Message{ChatID: 99, FromID: 99, Text: text}}
}

func (f *fakeAdapter) waitText(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, s := range f.texts {
			if strings.Contains(s, substr) {
				f.mu.Unlock()
				return
			}
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Fatalf("no reply containing %q; got %q", substr, f.texts)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildTestApp(t *testing.T, body string) (*App, *fakeAdapter) {
	t.Helper()
	cfgm := NewConfigManager(writeConfig(t, body))
	cfg, err := cfgm.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	logSvc, log := logx.New(logx.Config{Level: "error", Console: true}, nil)
	ad := &fakeAdapter{}
	a, err := build(context.Background(), cfgm, cfg, logSvc, log, ad)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return a, ad
}

const testConfig = `
telegram:
  token: "123:abc"
logging:
  level: error
storage:
  driver: memory
scheduler:
  timezone: UTC
  sweep_interval: 0s
`

func TestAppStartServesCommandsAndStops(t *testing.T) {
	a, ad := buildTestApp(t, testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ad.push(t, "/set 2099-01-01 09:00 call mom")
	ad.waitText(t, "«call mom»")
	ad.push(t, "/list")
	ad.waitText(t, "1) 2099-01-01 09:00 — call mom")

	if got := a.sched.Stats().Armed; got != 1 {
		t.Fatalf("armed timers = %d, want 1", got)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	ad.mu.Lock()
	stopped := ad.stopped
	ad.mu.Unlock()
	if !stopped {
		t.Fatalf("adapter not stopped")
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done not closed after Stop")
	}
}

func TestAppRegistersSweep(t *testing.T) {
	a, _ := buildTestApp(t, strings.Replace(testConfig, "sweep_interval: 0s", "sweep_interval: 1h", 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(context.Background(), StopUnknown)
	if st := a.sched.Stats(); st.Periodic != 1 {
		t.Fatalf("periodic entries = %d, want the sweep", st.Periodic)
	}
	// a sweep over an empty store still reports stats and succeeds.
	if err := a.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}

func TestApplyConfigUpdatesCommandTimeout(t *testing.T) {
	a, _ := buildTestApp(t, testConfig)
	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	newCfg.Commands.Timeout = "3s"
	a.applyConfig(oldCfg, &newCfg)
	if got := a.router.CurrentTimeout(); got != 3*time.Second {
		t.Fatalf("timeout = %v want 3s", got)
	}
}

func TestBuildFailsOnCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	if err := os.WriteFile(path, []byte(`{"1":[{"datetime":"not a date","text":"x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	body := strings.Replace(testConfig, "driver: memory", "driver: file\n  path: "+path, 1)
	cfgm := NewConfigManager(writeConfig(t, body))
	cfg, err := cfgm.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	logSvc, log := logx.New(logx.Config{Level: "error", Console: true}, nil)
	if _, err := build(context.Background(), cfgm, cfg, logSvc, log, &fakeAdapter{}); err == nil {
		t.Fatal("expected corrupt snapshot to fail startup")
	}
}

func TestMapStorageConfig(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		path    string
		want    storage.Config
		wantErr bool
	}{
		{"default file", "", "", storage.Config{Driver: "file", Path: "./reminders.json"}, false},
		{"file", "FILE", "/tmp/r.json", storage.Config{Driver: "file", Path: "/tmp/r.json"}, false},
		{"sqlite", "sqlite", "/tmp/r.db", storage.Config{Driver: "sqlite", Path: "/tmp/r.db", BusyTimeout: time.Second}, false},
		{"sqlite3 alias", "sqlite3", "/tmp/r.db", storage.Config{Driver: "sqlite", Path: "/tmp/r.db", BusyTimeout: time.Second}, false},
		{"sqlite without path", "sqlite", "", storage.Config{}, true},
		{"memory", "memory", "", storage.Config{Driver: "memory"}, false},
		{"unknown", "redis", "", storage.Config{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Storage.Driver = tt.driver
			cfg.Storage.Path = tt.path
			cfg.Storage.BusyTimeout = "1s"
			got, err := mapStorageConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}
