package discography

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sydlexius/linernotes/internal/cache"
	"github.com/sydlexius/linernotes/internal/event"
	"github.com/sydlexius/linernotes/internal/provider"
)

// ErrNoRecordingsFound is returned when no pass produced any recording.
var ErrNoRecordingsFound = errors.New("no recordings found for artist")

// Config bounds the aggregation.
type Config struct {
	MaxRecordings  int           `yaml:"max_recordings"`
	MaxWorks       int           `yaml:"max_works"`
	BrowsePageSize int           `yaml:"browse_page_size"`
	TTL            time.Duration `yaml:"ttl"`
}

// DefaultConfig caps a discography at 650 recordings and 120 hydrated
// works, and caches results for 7 days.
func DefaultConfig() Config {
	return Config{
		MaxRecordings:  650,
		MaxWorks:       120,
		BrowsePageSize: 100,
		TTL:            7 * 24 * time.Hour,
	}
}

// Artist identifies a music-graph artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Result is an artist's deduplicated discography, or the intersection of
// two artists' discographies. For a pair, ArtistID is the pair key.
type Result struct {
	ArtistID   string                 `json:"artist_id"`
	ArtistName string                 `json:"artist_name"`
	Recordings []RecordingRel         `json:"recordings"`
	FetchedAt  time.Time              `json:"fetched_at"`
	Telemetry  *IntersectionTelemetry `json:"telemetry,omitempty"`
}

// Engine fetches discographies through the music graph and caches them.
type Engine struct {
	graph  provider.MusicGraph
	loader *cache.Loader
	bus    *event.Bus
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. store and bus may be nil.
func NewEngine(graph provider.MusicGraph, store cache.Store, bus *event.Bus, cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MaxRecordings <= 0 {
		cfg.MaxRecordings = def.MaxRecordings
	}
	if cfg.MaxWorks <= 0 {
		cfg.MaxWorks = def.MaxWorks
	}
	if cfg.BrowsePageSize <= 0 {
		cfg.BrowsePageSize = def.BrowsePageSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	logger = logger.With(slog.String("component", "discography"))
	return &Engine{
		graph:  graph,
		loader: cache.NewLoader(store, logger),
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CacheKey is the cache key of one artist's discography.
func CacheKey(artistID string) string {
	return "discography:v1:" + artistID
}

// FetchAll returns the artist's discography, from cache when fresh.
func (e *Engine) FetchAll(ctx context.Context, artist Artist) (*Result, error) {
	return cache.Fetch(ctx, e.loader, CacheKey(artist.ID), e.cfg.TTL, func(ctx context.Context) (*Result, error) {
		return e.collect(ctx, artist)
	})
}

// collector accumulates recordings by id, in first-seen order, up to a
// fixed number of unique recordings.
type collector struct {
	limit int
	order []string
	byID  map[string]RecordingRel
}

func newCollector(limit int) *collector {
	return &collector{limit: limit, byID: make(map[string]RecordingRel)}
}

func (c *collector) full() bool { return len(c.order) >= c.limit }

// add merges r into the collection. A new recording is dropped once the
// collection is full.
func (c *collector) add(r RecordingRel) {
	if r.ID == "" {
		return
	}
	if cur, ok := c.byID[r.ID]; ok {
		c.byID[r.ID] = Merge(cur, r)
		return
	}
	if c.full() {
		return
	}
	c.order = append(c.order, r.ID)
	c.byID[r.ID] = r
}

func (c *collector) recordings() []RecordingRel {
	out := make([]RecordingRel, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// collect runs the three passes in order: direct relationships, the
// paginated browse, then work hydration. A failed pass is logged and the
// others still run; cancellation discards everything.
func (e *Engine) collect(ctx context.Context, artist Artist) (*Result, error) {
	start := e.now()
	c := newCollector(e.cfg.MaxRecordings)
	var passErrs []error

	workIDs, err := e.directPass(ctx, artist, c)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("direct relationship pass failed", slog.String("artist_id", artist.ID), slog.Any("error", err))
		passErrs = append(passErrs, err)
	}

	if !c.full() {
		if err := e.browsePass(ctx, artist, c); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("browse pass failed", slog.String("artist_id", artist.ID), slog.Any("error", err))
			passErrs = append(passErrs, err)
		}
	}

	if !c.full() && len(workIDs) > 0 {
		if err := e.workPass(ctx, artist, workIDs, c); err != nil {
			return nil, err
		}
	}

	recs := c.recordings()
	if len(recs) == 0 {
		if len(passErrs) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoRecordingsFound, errors.Join(passErrs...))
		}
		return nil, ErrNoRecordingsFound
	}

	e.logger.Info("discography fetched",
		slog.String("artist_id", artist.ID),
		slog.Int("recordings", len(recs)),
		slog.Int("works", len(workIDs)),
		slog.Bool("capped", c.full()),
		slog.Duration("elapsed", e.now().Sub(start)))
	e.bus.Publish(event.Event{Type: event.DiscographyFetched, Data: map[string]any{
		"artist_id":  artist.ID,
		"artist":     artist.Name,
		"recordings": len(recs),
		"capped":     c.full(),
	}})

	return &Result{
		ArtistID:   artist.ID,
		ArtistName: artist.Name,
		Recordings: recs,
		FetchedAt:  e.now().UTC(),
	}, nil
}

// directPass adds recordings the artist is directly related to and returns
// the ids of related works, capped at MaxWorks.
func (e *Engine) directPass(ctx context.Context, artist Artist, c *collector) ([]string, error) {
	rels, err := e.graph.GetArtistRecordingRelations(ctx, artist.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching artist relationships: %w", err)
	}

	var workIDs []string
	seenWork := make(map[string]bool)
	for _, rel := range rels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case rel.Recording != nil:
			c.add(RecordingRel{
				ID:            rel.Recording.ID,
				Title:         rel.Recording.Title,
				RelationType:  rel.Type,
				Attributes:    rel.Attributes,
				ArtistCredits: rel.Recording.ArtistCredits,
				ISRCs:         unionISRCs(rel.Recording.ISRCs, nil),
				Evidence:      []Evidence{evidence(artist.ID, SourceDirect, rel.Type, rel.Attributes)},
			})
		case rel.Work != nil && rel.Work.ID != "" && !seenWork[rel.Work.ID]:
			if len(workIDs) < e.cfg.MaxWorks {
				seenWork[rel.Work.ID] = true
				workIDs = append(workIDs, rel.Work.ID)
			}
		}
	}
	return workIDs, nil
}

// browsePass pages through the recordings credited to the artist.
func (e *Engine) browsePass(ctx context.Context, artist Artist, c *collector) error {
	offset := 0
	for !c.full() {
		page, err := e.graph.BrowseRecordings(ctx, artist.ID, offset, e.cfg.BrowsePageSize)
		if err != nil {
			return fmt.Errorf("browsing recordings at offset %d: %w", offset, err)
		}
		if page == nil || len(page.Recordings) == 0 {
			return nil
		}
		for _, s := range page.Recordings {
			c.add(summaryRel(artist.ID, SourceBrowse, s))
		}
		offset += len(page.Recordings)
		if offset >= page.Total {
			return nil
		}
	}
	return nil
}

// workPass hydrates works into their recordings. Failures of single works
// are logged and skipped; only cancellation is returned.
func (e *Engine) workPass(ctx context.Context, artist Artist, workIDs []string, c *collector) error {
	for _, id := range workIDs {
		if c.full() {
			return nil
		}
		recs, err := e.graph.GetWorkRecordings(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("work hydration failed", slog.String("work_id", id), slog.Any("error", err))
			continue
		}
		for _, s := range recs {
			c.add(summaryRel(artist.ID, SourceWork, s))
		}
	}
	return nil
}

func summaryRel(artistID string, src EvidenceSource, s provider.RecordingSummary) RecordingRel {
	return RecordingRel{
		ID:            s.ID,
		Title:         s.Title,
		RelationType:  s.RelationType,
		ArtistCredits: s.ArtistCredits,
		ISRCs:         unionISRCs(s.ISRCs, nil),
		Evidence:      []Evidence{evidence(artistID, src, s.RelationType, nil)},
	}
}

func evidence(artistID string, src EvidenceSource, relType string, attrs []string) Evidence {
	return Evidence{
		ArtistID:     artistID,
		Source:       src,
		RelationType: relType,
		Attributes:   attrs,
		Weight:       src.Weight(),
	}
}
