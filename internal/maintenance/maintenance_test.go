package maintenance

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/linernotes/internal/cache"
	"github.com/sydlexius/linernotes/internal/database"
	"github.com/sydlexius/linernotes/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db, dbPath
}

func TestStatus(t *testing.T) {
	db, dbPath := setupTestDB(t)
	store := cache.NewSQLStore(db, testLogger())
	svc := NewService(db, dbPath, store, nil, testLogger())

	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("{}"), time.Hour); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.DBFileSize <= 0 {
		t.Error("expected positive DB file size")
	}
	if st.PageSize <= 0 || st.PageCount <= 0 {
		t.Errorf("page size/count = %d/%d", st.PageSize, st.PageCount)
	}
	if st.Cache == nil || st.Cache.Entries != 1 {
		t.Errorf("cache stats = %+v, want 1 entry", st.Cache)
	}
	if st.LastRunAt != "" {
		t.Error("expected empty last run time initially")
	}
	if !st.ScheduleEnabled {
		t.Error("expected schedule enabled by default")
	}
	if st.ScheduleInterval != 24 {
		t.Errorf("expected 24h interval default, got %d", st.ScheduleInterval)
	}
}

func TestRunPurgesAndPublishes(t *testing.T) {
	db, dbPath := setupTestDB(t)
	store := cache.NewSQLStore(db, testLogger())

	bus := event.NewBus(testLogger(), 8)
	got := make(chan event.Event, 1)
	bus.Subscribe(event.MaintenanceCompleted, func(e event.Event) { got <- e })
	go bus.Start()
	defer bus.Stop()

	svc := NewService(db, dbPath, store, bus, testLogger())
	ctx := context.Background()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, created_at, expires_at) VALUES ('old', x'00', 1, 2)`); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "fresh", []byte("{}"), time.Hour); err != nil {
		t.Fatal(err)
	}

	rep, err := svc.Run(ctx, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Purged != 1 {
		t.Errorf("purged = %d, want 1", rep.Purged)
	}
	if !rep.Vacuumed {
		t.Error("expected vacuum to run")
	}

	select {
	case e := <-got:
		if e.Data["purged"] != int64(1) {
			t.Errorf("event purged = %v", e.Data["purged"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no maintenance event published")
	}

	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.LastRunAt == "" {
		t.Error("expected last run time to be recorded")
	}
	if st.Cache.Entries != 1 {
		t.Errorf("entries after purge = %d, want 1", st.Cache.Entries)
	}
}

func TestSetSchedule(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, nil, nil, testLogger())
	ctx := context.Background()

	if err := svc.SetSchedule(ctx, false, 6); err != nil {
		t.Fatalf("SetSchedule: %v", err)
	}
	st, err := svc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.ScheduleEnabled || st.ScheduleInterval != 6 {
		t.Errorf("schedule = %v/%d, want false/6", st.ScheduleEnabled, st.ScheduleInterval)
	}

	if err := svc.SetSchedule(ctx, true, 0); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestSettingFallbacks(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, nil, nil, testLogger())
	ctx := context.Background()

	if !svc.getBoolSetting(ctx, "nonexistent", true) {
		t.Error("expected bool fallback")
	}
	if got := svc.getIntSetting(ctx, "nonexistent", 42); got != 42 {
		t.Errorf("int fallback = %d", got)
	}
	if err := svc.putSetting(ctx, "bad.int", "abc"); err != nil {
		t.Fatal(err)
	}
	if got := svc.getIntSetting(ctx, "bad.int", 7); got != 7 {
		t.Errorf("invalid int = %d, want fallback 7", got)
	}
}

func TestStartSchedulerStops(t *testing.T) {
	db, dbPath := setupTestDB(t)
	svc := NewService(db, dbPath, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartScheduler(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
