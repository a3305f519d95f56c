// Package backup takes point-in-time copies of the cache database so a
// long-lived cache of credits and discographies can be restored after a
// bad purge or a corrupt file.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

const (
	filePrefix = "linernotes-"
	fileSuffix = ".db"
	stampFmt   = "20060102-150405"
)

// snapshotPattern matches snapshot filenames: linernotes-YYYYMMDD-HHMMSS.db
var snapshotPattern = regexp.MustCompile(`^linernotes-\d{8}-\d{6}\.db$`)

// Snapshot describes one copy on disk.
type Snapshot struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Policy bounds how many snapshots are kept. Zero fields disable the
// corresponding rule.
type Policy struct {
	Keep   int           `yaml:"keep"`
	MaxAge time.Duration `yaml:"max_age"`
}

// Service writes and prunes snapshots in a single directory.
type Service struct {
	db     *sql.DB
	dir    string
	policy Policy
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service writing to dir.
func NewService(db *sql.DB, dir string, policy Policy, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dir:    dir,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "backup")),
	}
}

// Dir returns the snapshot directory.
func (s *Service) Dir() string { return s.dir }

// Create copies the database with VACUUM INTO, which produces a compact,
// consistent file without blocking readers.
func (s *Service) Create(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now()
	name := filePrefix + now.Format(stampFmt) + fileSuffix
	dest := filepath.Join(s.dir, name)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("snapshot %s already exists", name)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	s.logger.Info("snapshot written", slog.String("filename", name), slog.Int64("size", info.Size()))
	return &Snapshot{Filename: name, Size: info.Size(), CreatedAt: now}, nil
}

// List returns the snapshots, newest first. A missing directory is empty.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Snapshot
	for _, e := range entries {
		if e.IsDir() || !snapshotPattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(e.Name(), filePrefix), fileSuffix)
		ts, err := time.Parse(stampFmt, stamp)
		if err != nil {
			ts = info.ModTime().UTC()
		}
		out = append(out, Snapshot{Filename: e.Name(), Size: info.Size(), CreatedAt: ts})
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// Remove deletes one snapshot by filename.
func (s *Service) Remove(name string) error {
	if !ValidFilename(name) {
		return fmt.Errorf("invalid snapshot filename %q", name)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil { //nolint:gosec // G304: name validated above
		return fmt.Errorf("removing snapshot: %w", err)
	}
	s.logger.Info("snapshot removed", slog.String("filename", name))
	return nil
}

// Prune applies the policy and returns the filenames it removed. A file
// that cannot be removed is logged and left for the next run.
func (s *Service) Prune() ([]string, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if s.policy.MaxAge > 0 {
		cutoff = s.now().Add(-s.policy.MaxAge)
	}

	var removed []string
	for i, snap := range snaps {
		overCount := s.policy.Keep > 0 && i >= s.policy.Keep
		tooOld := !cutoff.IsZero() && snap.CreatedAt.Before(cutoff)
		if !overCount && !tooOld {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, snap.Filename)); err != nil {
			s.logger.Warn("pruning snapshot", slog.String("filename", snap.Filename), slog.Any("error", err))
			continue
		}
		removed = append(removed, snap.Filename)
	}
	if len(removed) > 0 {
		s.logger.Info("snapshots pruned", slog.Int("count", len(removed)))
	}
	return removed, nil
}

// ValidFilename reports whether name is a snapshot filename with no path
// components.
func ValidFilename(name string) bool {
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return snapshotPattern.MatchString(name)
}
