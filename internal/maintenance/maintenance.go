// Package maintenance keeps the cache database small and fast: it purges
// expired cache rows, runs SQLite optimization and reports file sizes.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sydlexius/linernotes/internal/cache"
	"github.com/sydlexius/linernotes/internal/event"
)

// Setting keys in the settings table.
const (
	keyLastRunAt     = "db_maintenance.last_run_at"
	keyEnabled       = "db_maintenance.enabled"
	keyIntervalHours = "db_maintenance.interval_hours"
)

// Status holds database maintenance status information.
type Status struct {
	DBFileSize       int64        `json:"db_file_size"`
	WALFileSize      int64        `json:"wal_file_size"`
	PageCount        int64        `json:"page_count"`
	PageSize         int64        `json:"page_size"`
	Cache            *cache.Stats `json:"cache,omitempty"`
	LastRunAt        string       `json:"last_run_at,omitempty"`
	ScheduleEnabled  bool         `json:"schedule_enabled"`
	ScheduleInterval int          `json:"schedule_interval_hours"`
}

// Report summarizes one maintenance run.
type Report struct {
	Purged   int64         `json:"purged"`
	Vacuumed bool          `json:"vacuumed"`
	Duration time.Duration `json:"duration"`
}

// Service provides database maintenance operations.
type Service struct {
	db     *sql.DB
	dbPath string
	store  *cache.SQLStore
	bus    *event.Bus
	logger *slog.Logger
}

// NewService creates a maintenance service. bus may be nil.
func NewService(db *sql.DB, dbPath string, store *cache.SQLStore, bus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dbPath: dbPath,
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns current database maintenance status.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		return nil, fmt.Errorf("reading page_count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		return nil, fmt.Errorf("reading page_size: %w", err)
	}

	if s.store != nil {
		cs, err := s.store.Stats(ctx)
		if err != nil {
			s.logger.Warn("reading cache stats", "error", err)
		} else {
			st.Cache = cs
		}
	}

	st.LastRunAt = s.getSetting(ctx, keyLastRunAt)
	st.ScheduleEnabled = s.getBoolSetting(ctx, keyEnabled, true)
	st.ScheduleInterval = s.getIntSetting(ctx, keyIntervalHours, 24)

	return st, nil
}

// SetSchedule persists the scheduler settings.
func (s *Service) SetSchedule(ctx context.Context, enabled bool, intervalHours int) error {
	if intervalHours <= 0 {
		return fmt.Errorf("interval must be positive, got %d", intervalHours)
	}
	if err := s.putSetting(ctx, keyEnabled, fmt.Sprintf("%t", enabled)); err != nil {
		return err
	}
	return s.putSetting(ctx, keyIntervalHours, fmt.Sprintf("%d", intervalHours))
}

// PurgeExpired deletes expired cache rows.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.PurgeExpired(ctx)
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Debug("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}

	s.logger.Debug("running WAL checkpoint")
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	return nil
}

// Run purges expired cache entries and optimizes the database, optionally
// vacuuming afterwards. The run time is recorded in the settings table and
// a MaintenanceCompleted event is published.
func (s *Service) Run(ctx context.Context, vacuum bool) (*Report, error) {
	start := time.Now()
	rep := &Report{}

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		return nil, err
	}
	rep.Purged = n

	if err := s.Optimize(ctx); err != nil {
		return nil, err
	}
	if vacuum {
		if err := s.Vacuum(ctx); err != nil {
			return nil, err
		}
		rep.Vacuumed = true
	}
	rep.Duration = time.Since(start)

	if err := s.putSetting(ctx, keyLastRunAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("recording maintenance timestamp", "error", err)
	}

	s.logger.Info("maintenance complete",
		slog.Int64("purged", rep.Purged),
		slog.Bool("vacuumed", rep.Vacuumed),
		slog.Duration("duration", rep.Duration))
	s.bus.Publish(event.Event{
		Type: event.MaintenanceCompleted,
		Data: map[string]any{"purged": rep.Purged, "vacuumed": rep.Vacuumed},
	})
	return rep, nil
}

// StartScheduler runs maintenance on a fixed interval until the context is canceled.
func (s *Service) StartScheduler(ctx context.Context, interval time.Duration) {
	s.logger.Info("maintenance scheduler started",
		slog.String("interval", interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("maintenance scheduler stopped")
			return
		case <-ticker.C:
			if !s.getBoolSetting(ctx, keyEnabled, true) {
				continue
			}
			if _, err := s.Run(ctx, false); err != nil {
				s.logger.Error("scheduled maintenance failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Service) getSetting(ctx context.Context, key string) string {
	var v string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v); err != nil {
		return ""
	}
	return v
}

func (s *Service) putSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// getBoolSetting reads a boolean setting from the key-value table.
func (s *Service) getBoolSetting(ctx context.Context, key string, fallback bool) bool {
	v := s.getSetting(ctx, key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

// getIntSetting reads an integer setting from the key-value table.
func (s *Service) getIntSetting(ctx context.Context, key string, fallback int) int {
	v := s.getSetting(ctx, key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}
