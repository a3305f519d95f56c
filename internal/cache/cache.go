// Package cache stores provider-derived results under string keys with a
// time-to-live. Values are JSON documents; entries are replaced atomically
// so readers see a complete entry or none.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry is a cached value with its expiry.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Store is the key/value-with-TTL capability used by the credits and
// discography services.
type Store interface {
	// Get returns the live entry for key, or nil when absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// SQLStore is a Store backed by the cache_entries table.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLStore creates a SQLite-backed store. The schema comes from the
// database package migrations.
func NewSQLStore(db *sql.DB, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: logger.With(slog.String("component", "cache")),
		now:    time.Now,
	}
}

// Get returns the live entry for key, or nil when absent or expired.
func (s *SQLStore) Get(ctx context.Context, key string) (*Entry, error) {
	var value []byte
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s: %w", key, err)
	}

	exp := time.Unix(expires, 0)
	if !s.now().Before(exp) {
		return nil, nil
	}
	return &Entry{Value: value, ExpiresAt: exp}, nil
}

// Set writes value under key, replacing any previous entry.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *SQLStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("removing cache entry %s: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes every expired entry and returns how many were removed.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purging expired cache entries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("purged expired cache entries", slog.Int64("count", n))
	}
	return n, nil
}

// RemovePrefix deletes every key starting with prefix.
func (s *SQLStore) RemovePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return 0, fmt.Errorf("removing cache prefix %s: %w", prefix, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Bytes   int64 `json:"bytes"`
}

// Stats counts live and expired entries.
func (s *SQLStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(value)), 0)
		FROM cache_entries`, s.now().Unix()).Scan(&st.Entries, &st.Expired, &st.Bytes)
	if err != nil {
		return nil, fmt.Errorf("reading cache stats: %w", err)
	}
	return st, nil
}

// MemoryStore is an in-process Store, used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

// Get returns the live entry for key, or nil when absent or expired.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.ExpiresAt) {
		return nil, nil
	}
	v := make([]byte, len(e.Value))
	copy(v, e.Value)
	return &Entry{Value: v, ExpiresAt: e.ExpiresAt}, nil
}

// Set writes value under key.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.entries[key] = Entry{Value: v, ExpiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Remove deletes key.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// GetJSON decodes the live entry for key into a T. ok is false on a miss.
// An undecodable entry is removed and reported as a miss.
func GetJSON[T any](ctx context.Context, s Store, key string) (v T, ok bool, err error) {
	e, err := s.Get(ctx, key)
	if err != nil || e == nil {
		return v, false, err
	}
	if err := json.Unmarshal(e.Value, &v); err != nil {
		_ = s.Remove(ctx, key)
		var zero T
		return zero, false, nil
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

// Loader collapses concurrent fetch-on-miss calls for the same key into one
// upstream load.
type Loader struct {
	store  Store
	group  singleflight.Group
	logger *slog.Logger
}

// NewLoader creates a Loader over store.
func NewLoader(store Store, logger *slog.Logger) *Loader {
	return &Loader{store: store, logger: logger.With(slog.String("component", "cache"))}
}

// Store returns the underlying store.
func (l *Loader) Store() Store { return l.store }

// Fetch returns the cached T under key, or calls load, caches its result
// for ttl and returns it. Load errors are not cached. Cache read and write
// failures are logged and otherwise ignored.
//
// A shared load runs under the context of the caller that started it. When
// that caller cancels, callers that joined it with a live context start a
// fresh load of their own.
func Fetch[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if v, ok, err := GetJSON[T](ctx, l.store, key); err != nil {
		l.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		l.logger.Debug("cache hit", slog.String("key", key))
		return v, nil
	}

	res, err := DoShared(ctx, &l.group, key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if err := SetJSON(ctx, l.store, key, v, ttl); err != nil {
			l.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// DoShared runs fn through g under key. If the call was shared and failed
// with context.Canceled while ctx is still live, the cancellation belonged
// to another caller and fn is run again for this one.
func DoShared(ctx context.Context, g *singleflight.Group, key string, fn func() (any, error)) (any, error) {
	for {
		v, err, shared := g.Do(key, fn)
		if shared && err != nil && ctx.Err() == nil && errors.Is(err, context.Canceled) {
			continue
		}
		return v, err
	}
}
