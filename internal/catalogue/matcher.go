// Package catalogue matches music-graph recordings to tracks in the
// commercial streaming catalogue.
package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// Strategy is how a recording was matched.
type Strategy string

// Match strategies.
const (
	StrategyISRC Strategy = "isrc"
	StrategyText Strategy = "text"
)

// Reason says why a recording could not be matched.
type Reason string

// Miss reasons.
const (
	ReasonNoMatch        Reason = "no_catalogue_match"
	ReasonMissingCredits Reason = "missing_artist_credits"
	ReasonRateLimited    Reason = "rate_limited"
)

// ResolvedTrack is a recording matched to a catalogue track.
type ResolvedTrack struct {
	RecordingID    string   `json:"recording_id"`
	RecordingTitle string   `json:"recording_title"`
	TrackID        string   `json:"track_id"`
	URI            string   `json:"uri"`
	Name           string   `json:"name"`
	Popularity     *int     `json:"popularity,omitempty"`
	Strategy       Strategy `json:"strategy"`
}

// Miss is a recording that could not be matched.
type Miss struct {
	Recording discography.RecordingRel
	Reason    Reason
}

// Config tunes the matcher.
type Config struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	BatchSize      int           `yaml:"batch_size"`
	MaxISRCs       int           `yaml:"max_isrcs"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Pause          time.Duration `yaml:"pause"`
}

// DefaultConfig starts at 6 concurrent lookups in batches of 24, tries at
// most 3 ISRCs per recording, and pauses 2 seconds after rate limiting.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 6,
		BatchSize:      24,
		MaxISRCs:       3,
		MaxAttempts:    4,
		Pause:          2 * time.Second,
	}
}

// Matcher resolves recordings to catalogue tracks.
type Matcher struct {
	catalogue provider.Catalogue
	graph     provider.MusicGraph
	cfg       Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewMatcher creates a Matcher. graph supplies ISRCs for recordings that
// carry none and may be nil.
func NewMatcher(catalogue provider.Catalogue, graph provider.MusicGraph, cfg Config, logger *slog.Logger) *Matcher {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxISRCs <= 0 {
		cfg.MaxISRCs = def.MaxISRCs
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	return &Matcher{
		catalogue: catalogue,
		graph:     graph,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "catalogue-matcher")),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolve matches one recording. It tries the recording's ISRCs (or up
// to MaxISRCs fetched from the music graph), then a text search with each
// credited artist name in turn. A nil track comes with the miss reason.
// Rate limiting and cancellation are returned as errors.
func (m *Matcher) Resolve(ctx context.Context, rec discography.RecordingRel) (*ResolvedTrack, Reason, error) {
	for _, isrc := range m.isrcs(ctx, rec) {
		tracks, err := m.catalogue.SearchByISRC(ctx, isrc)
		if err != nil {
			if stop := m.fatal(ctx, err); stop != nil {
				return nil, "", stop
			}
			m.logger.Debug("isrc search failed", slog.String("isrc", isrc), slog.Any("error", err))
			continue
		}
		if len(tracks) > 0 {
			return resolved(rec, tracks[0], StrategyISRC), "", nil
		}
	}

	if len(rec.ArtistCredits) == 0 {
		return nil, ReasonMissingCredits, nil
	}
	for _, artist := range rec.ArtistCredits {
		tracks, err := m.catalogue.SearchByText(ctx, rec.Title, artist)
		if err != nil {
			if stop := m.fatal(ctx, err); stop != nil {
				return nil, "", stop
			}
			m.logger.Debug("text search failed", slog.String("title", rec.Title), slog.String("artist", artist), slog.Any("error", err))
			continue
		}
		if best, ok := BestTextMatch(rec.Title, tracks); ok {
			return resolved(rec, best, StrategyText), "", nil
		}
	}
	return nil, ReasonNoMatch, nil
}

// fatal returns err when it must abort the lookup: cancellation, or rate
// limiting, which the batch loop handles.
func (m *Matcher) fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if provider.IsCanceled(err) || provider.IsRateLimited(err) {
		return err
	}
	return nil
}

func (m *Matcher) isrcs(ctx context.Context, rec discography.RecordingRel) []string {
	codes := rec.ISRCs
	if len(codes) == 0 && m.graph != nil && rec.ID != "" {
		fetched, err := m.graph.GetRecordingISRCs(ctx, rec.ID)
		if err != nil {
			m.logger.Debug("fetching recording isrcs failed", slog.String("recording_id", rec.ID), slog.Any("error", err))
		}
		codes = fetched
	}
	var out []string
	for _, c := range codes {
		if n := discography.NormalizeISRC(c); n != "" {
			out = append(out, n)
		}
		if len(out) == m.cfg.MaxISRCs {
			break
		}
	}
	return out
}

// BestTextMatch picks the hit whose name is most similar to title, breaking
// ties by edit distance. Hits sharing no words with title are ignored.
func BestTextMatch(title string, tracks []provider.CatalogueTrack) (provider.CatalogueTrack, bool) {
	var (
		best      provider.CatalogueTrack
		bestScore = 0.0
		bestDist  = -1
		found     bool
	)
	for _, t := range tracks {
		if strings.TrimSpace(t.URI) == "" {
			continue
		}
		score := textmatch.Similarity(title, t.Name, textmatch.DefaultContainsBonus)
		if score <= 0 {
			continue
		}
		dist := textmatch.EditDistance(title, t.Name)
		if !found || score > bestScore || (score == bestScore && dist < bestDist) {
			best, bestScore, bestDist, found = t, score, dist, true
		}
	}
	return best, found
}

func resolved(rec discography.RecordingRel, t provider.CatalogueTrack, s Strategy) *ResolvedTrack {
	return &ResolvedTrack{
		RecordingID:    rec.ID,
		RecordingTitle: rec.Title,
		TrackID:        t.ID,
		URI:            t.URI,
		Name:           t.Name,
		Popularity:     t.Popularity,
		Strategy:       s,
	}
}

// Report is the outcome of resolving a list of recordings.
type Report struct {
	// Tracks holds the matches in input order.
	Tracks []ResolvedTrack
	Misses []Miss
	// RateLimited counts batches that hit rate limiting.
	RateLimited      int
	FinalConcurrency int
}

// ProgressFunc receives the number of settled recordings and the total.
type ProgressFunc func(settled, total int)

type slot struct {
	track    *ResolvedTrack
	reason   Reason
	limited  bool
	attempts int
	hint     time.Duration
}

// ResolveAll matches recordings in sequential batches. Within a batch up
// to the current concurrency limit of lookups run at once. A batch with
// any rate limiting halves the limit (floor 1), pauses, and requeues only
// the limited recordings; a clean batch raises the limit by one, up to
// MaxConcurrency. A recording limited MaxAttempts times is given up.
func (m *Matcher) ResolveAll(ctx context.Context, recs []discography.RecordingRel, progress ProgressFunc) (*Report, error) {
	total := len(recs)
	slots := make([]slot, total)
	queue := make([]int, total)
	for i := range queue {
		queue[i] = i
	}

	limit := m.cfg.MaxConcurrency
	settled := 0
	report := &Report{}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(m.cfg.BatchSize, len(queue))
		batch := queue[:n]
		queue = queue[n:]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for _, idx := range batch {
			idx := idx
			g.Go(func() error {
				s := &slots[idx]
				s.attempts++
				s.limited, s.hint = false, 0
				track, reason, err := m.Resolve(gctx, recs[idx])
				if err != nil {
					var rl *provider.ErrRateLimited
					if errors.As(err, &rl) {
						s.limited, s.hint = true, rl.RetryAfter
						return nil
					}
					return err
				}
				s.track, s.reason = track, reason
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("resolving catalogue tracks: %w", err)
		}

		var requeue []int
		limited := false
		pause := time.Duration(0)
		for _, idx := range batch {
			s := &slots[idx]
			if !s.limited {
				settled++
				continue
			}
			limited = true
			if s.attempts >= m.cfg.MaxAttempts {
				s.reason = ReasonRateLimited
				settled++
				continue
			}
			requeue = append(requeue, idx)
			pause = max(pause, s.hint)
		}

		switch {
		case limited:
			report.RateLimited++
			limit = max(1, limit/2)
			m.logger.Info("catalogue rate limited, slowing down",
				slog.Int("requeued", len(requeue)),
				slog.Int("concurrency", limit))
		case limit < m.cfg.MaxConcurrency:
			limit++
		}
		if len(requeue) > 0 {
			queue = append(requeue, queue...)
			if err := m.sleep(ctx, max(pause, m.cfg.Pause)); err != nil {
				return nil, err
			}
		}

		if progress != nil {
			progress(settled, total)
		}
	}

	for i, s := range slots {
		if s.track != nil {
			report.Tracks = append(report.Tracks, *s.track)
			continue
		}
		report.Misses = append(report.Misses, Miss{Recording: recs[i], Reason: s.reason})
	}
	report.FinalConcurrency = limit
	m.logger.Info("catalogue matching finished",
		slog.Int("total", total),
		slog.Int("matched", len(report.Tracks)),
		slog.Int("missed", len(report.Misses)),
		slog.Int("rate_limited_batches", report.RateLimited))
	return report, nil
}
