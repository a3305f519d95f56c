package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/linernotes/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, reload ReloadFunc, bus *event.Bus) {
	t.Helper()
	svc := NewService(path, reload, bus, testLogger())
	svc.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := svc.Start(ctx); err != nil {
			t.Errorf("Start: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond) // let watcher initialize
}

func TestWritesAreCoalesced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linernotes.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	bus := event.NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()
	var published atomic.Int32
	bus.Subscribe(event.ConfigReloaded, func(event.Event) { published.Add(1) })

	startWatcher(t, path, func(_ context.Context, p string) error {
		if p != path {
			t.Errorf("reload path = %s", p)
		}
		reloads.Add(1)
		return nil
	}, bus)

	for _, level := range []string{"debug", "warn", "error"} {
		if err := os.WriteFile(path, []byte("logging:\n  level: "+level+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(300 * time.Millisecond)
	if n := reloads.Load(); n != 1 {
		t.Errorf("reloads = %d, want 1", n)
	}
	if n := published.Load(); n != 1 {
		t.Errorf("published = %d, want 1", n)
	}
}

func TestOtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linernotes.yaml")

	var reloads atomic.Int32
	startWatcher(t, path, func(context.Context, string) error {
		reloads.Add(1)
		return nil
	}, nil)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := reloads.Load(); n != 0 {
		t.Errorf("reloads = %d, want 0", n)
	}
}

func TestFailedReloadNotPublished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linernotes.yaml")

	bus := event.NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()
	var published atomic.Int32
	bus.Subscribe(event.ConfigReloaded, func(event.Event) { published.Add(1) })

	var reloads atomic.Int32
	startWatcher(t, path, func(context.Context, string) error {
		reloads.Add(1)
		return errors.New("invalid log level")
	}, bus)

	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if reloads.Load() != 1 || published.Load() != 0 {
		t.Errorf("reloads = %d, published = %d", reloads.Load(), published.Load())
	}
}

func TestStartMissingDirectory(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "nope", "linernotes.yaml"), func(context.Context, string) error { return nil }, nil, testLogger())
	if err := svc.Start(context.Background()); err == nil {
		t.Error("expected an error watching a missing directory")
	}
}
