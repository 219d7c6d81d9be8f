package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
	defs  []aliases.Definition
}

func (f *fakeFetcher) ListAliases(context.Context) ([]aliases.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.defs, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func defs(names ...string) []aliases.Definition {
	var out []aliases.Definition
	for _, n := range names {
		out = append(out, aliases.Definition{Name: n, Formats: []aliases.Format{aliases.BareFormat(n)}})
	}
	return out
}

func TestLoadInitial(t *testing.T) {
	reg := aliases.NewRegistry()
	f := &fakeFetcher{defs: defs("status", "uptime")}
	if err := New(f, reg, Options{Interval: time.Hour, ExitOnInitialFailure: true}).LoadInitial(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len = %d", reg.Len())
	}

	f.setErr(errors.New("api down"))
	if err := New(f, reg, Options{Interval: time.Hour, ExitOnInitialFailure: true}).LoadInitial(context.Background()); err == nil {
		t.Error("expected fatal initial failure")
	}
	if err := New(f, reg, Options{Interval: time.Hour}).LoadInitial(context.Background()); err != nil {
		t.Errorf("non-fatal initial failure returned %v", err)
	}
}

func TestTimerReloadKeepsGenerationOnFailure(t *testing.T) {
	reg := aliases.NewRegistry()
	reg.Reload(defs("status"))
	f := &fakeFetcher{err: errors.New("api down")}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(f, reg, Options{Interval: 10 * time.Millisecond}).Run(ctx) }()

	waitFor(t, func() bool { return f.count() >= 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := reg.Match("status", nil); !ok {
		t.Error("previous generation lost after failed reload")
	}
}

func TestTriggerReloads(t *testing.T) {
	reg := aliases.NewRegistry()
	f := &fakeFetcher{defs: defs("status")}
	s := New(f, reg, Options{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Trigger("signal")
	waitFor(t, func() bool { return reg.Len() == 1 })
}

func TestWatchPathReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.touch")
	if err := os.WriteFile(path, []byte("1"), 0600); err != nil {
		t.Fatal(err)
	}

	reg := aliases.NewRegistry()
	f := &fakeFetcher{defs: defs("status")}
	s := New(f, reg, Options{Interval: time.Hour, WatchPaths: []string{path}, Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Writing repeatedly until the watcher is registered avoids racing Run's setup.
	waitFor(t, func() bool {
		_ = os.WriteFile(path, []byte(time.Now().String()), 0600)
		return f.count() > 0
	})
}

func TestCronNextTick(t *testing.T) {
	s := New(&fakeFetcher{}, aliases.NewRegistry(), Options{Cron: "*/5 * * * *"})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC) }
	d, err := s.nextTick()
	if err != nil {
		t.Fatal(err)
	}
	if d != 3*time.Minute {
		t.Errorf("nextTick = %v, want 3m", d)
	}

	bad := New(&fakeFetcher{}, aliases.NewRegistry(), Options{Cron: "not a cron"})
	if _, err := bad.nextTick(); err == nil {
		t.Error("expected error for invalid cron")
	}
}
