// Package watcher reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sydlexius/linernotes/internal/event"
)

// ReloadFunc re-reads the file at path and applies it.
type ReloadFunc func(ctx context.Context, path string) error

// Service watches a single file. The parent directory is watched rather
// than the file itself so editors that save by rename are still seen.
type Service struct {
	path     string
	reload   ReloadFunc
	eventBus *event.Bus
	logger   *slog.Logger
	debounce time.Duration
}

// NewService creates a watcher for path. eventBus may be nil.
func NewService(path string, reload ReloadFunc, eventBus *event.Bus, logger *slog.Logger) *Service {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Service{
		path:     filepath.Clean(abs),
		reload:   reload,
		eventBus: eventBus,
		logger:   logger.With(slog.String("component", "config-watcher")),
		debounce: 500 * time.Millisecond,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (s *Service) SetDebounce(d time.Duration) {
	s.debounce = d
}

// Start blocks until ctx is canceled. Bursts of writes are coalesced into
// one reload after the debounce interval. It returns an error only when
// the watch cannot be set up.
func (s *Service) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	s.logger.Debug("watching config file", slog.String("path", s.path))

	// Starts stopped; reset on each relevant event.
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !s.relevant(ev) {
				continue
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(s.debounce)
			pending = true

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("fsnotify error", slog.Any("error", err))

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false
			s.apply(ctx)
		}
	}
}

func (s *Service) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != s.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (s *Service) apply(ctx context.Context) {
	if err := s.reload(ctx, s.path); err != nil {
		s.logger.Error("reloading config failed, keeping previous settings",
			slog.String("path", s.path), slog.Any("error", err))
		return
	}
	s.logger.Info("config reloaded", slog.String("path", s.path))
	s.eventBus.Publish(event.Event{
		Type: event.ConfigReloaded,
		Data: map[string]any{"path": s.path},
	})
}
