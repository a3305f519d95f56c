package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sydlexius/linernotes/internal/cache"
	"github.com/sydlexius/linernotes/internal/event"
	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/resolve"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// LookupState is the user-visible state of a credits lookup.
type LookupState string

// Lookup states.
const (
	StateResolving   LookupState = "resolving"
	StateLoading     LookupState = "loading"
	StateLoaded      LookupState = "loaded"
	StateNotFound    LookupState = "not_found"
	StateAmbiguous   LookupState = "ambiguous"
	StateRateLimited LookupState = "rate_limited"
	StateError       LookupState = "error"
)

// Lookup is the result of a credits lookup. Bundle is set only when loaded.
type Lookup struct {
	State      LookupState   `json:"state"`
	Bundle     *Bundle       `json:"bundle,omitempty"`
	Message    string        `json:"message,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
}

// ServiceConfig tunes the credits service.
type ServiceConfig struct {
	SuccessTTL  time.Duration       `yaml:"success_ttl"`
	NegativeTTL time.Duration       `yaml:"negative_ttl"`
	MaxWorks    int                 `yaml:"max_works"`
	Track       resolve.TrackConfig `yaml:"track"`
	Parser      ParserConfig        `yaml:"parser"`
}

// DefaultServiceConfig caches loaded credits for 30 days and misses for
// 24 hours, and reads relationships of at most 5 works per recording.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		SuccessTTL:  30 * 24 * time.Hour,
		NegativeTTL: 24 * time.Hour,
		MaxWorks:    5,
		Track:       resolve.DefaultTrackConfig(),
	}
}

// Service answers "who is on this track" from the music graph and the
// encyclopedia, caching settled answers.
type Service struct {
	graph  provider.MusicGraph
	wiki   provider.Encyclopedia
	tracks *resolve.TrackResolver
	pages  *resolve.PageResolver
	parser *Parser
	store  cache.Store
	bus    *event.Bus
	cfg    ServiceConfig
	group  singleflight.Group
	logger *slog.Logger
}

// NewService creates a credits service. store and bus may be nil.
func NewService(graph provider.MusicGraph, wiki provider.Encyclopedia, store cache.Store, bus *event.Bus, cfg ServiceConfig, logger *slog.Logger) *Service {
	def := DefaultServiceConfig()
	if cfg.SuccessTTL <= 0 {
		cfg.SuccessTTL = def.SuccessTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = def.NegativeTTL
	}
	if cfg.MaxWorks <= 0 {
		cfg.MaxWorks = def.MaxWorks
	}
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &Service{
		graph:  graph,
		wiki:   wiki,
		tracks: resolve.NewTrackResolver(graph, cfg.Track, logger),
		pages:  resolve.NewPageResolver(wiki, logger),
		parser: NewParser(cfg.Parser),
		store:  store,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "credits")),
	}
}

// CacheKey is the cache key of a track's credits.
func CacheKey(track resolve.NowPlayingTrack) string {
	return "credits:v1:" + textmatch.Key(track.Artist) + "|" + textmatch.Key(track.Title) + "|" + textmatch.Key(track.Album)
}

type cachedLookup struct {
	State  LookupState `json:"state"`
	Bundle *Bundle     `json:"bundle,omitempty"`
}

// Lookup resolves and loads the credits of track. The returned error is
// non-nil only when ctx is canceled; every other failure is a state.
func (s *Service) Lookup(ctx context.Context, track resolve.NowPlayingTrack) (*Lookup, error) {
	key := CacheKey(track)
	s.publishState(track, StateResolving, "")

	if c, ok, err := cache.GetJSON[cachedLookup](ctx, s.store, key); err != nil {
		s.logger.Warn("reading credits cache", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		s.logger.Debug("credits cache hit", slog.String("key", key))
		l := forTrack(&Lookup{State: c.State, Bundle: c.Bundle, Cached: true}, track.TrackNumber)
		s.publishDone(track, l)
		return l, nil
	}

	v, err := cache.DoShared(ctx, &s.group, key, func() (any, error) {
		return s.load(ctx, track, key)
	})
	if err != nil {
		return nil, err
	}
	l := forTrack(v.(*Lookup), track.TrackNumber)
	s.publishDone(track, l)
	return l, nil
}

// forTrack narrows a bundle that was built without a track number to the
// given track. The cache key ignores track numbers, so a bundle read from
// the cache or a shared load may still hold credits of other tracks.
func forTrack(l *Lookup, track int) *Lookup {
	if track <= 0 || l.Bundle == nil || l.Bundle.MatchedTrackNumber > 0 {
		return l
	}
	b := *l.Bundle
	b.Entries = FilterByTrack(b.Entries, track)
	b.MatchedTrackNumber = track
	out := *l
	if len(b.Entries) == 0 {
		out.State = StateNotFound
		out.Bundle = nil
		return &out
	}
	out.Bundle = &b
	return &out
}

// Invalidate drops the cached credits of track.
func (s *Service) Invalidate(ctx context.Context, track resolve.NowPlayingTrack) error {
	return s.store.Remove(ctx, CacheKey(track))
}

// sourceStatus is the terminal state of one source.
type sourceStatus struct {
	state      resolve.State
	message    string
	retryAfter time.Duration
}

type graphResult struct {
	status     sourceStatus
	resolution *resolve.ResolutionResult
	entries    []Entry
}

type pageResult struct {
	status  sourceStatus
	entries []Entry
	matched int
	title   string
	url     string
}

func (s *Service) load(ctx context.Context, track resolve.NowPlayingTrack, key string) (*Lookup, error) {
	var (
		rec  resolve.Outcome
		page resolve.PageOutcome
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rec, err = s.tracks.Resolve(gctx, track)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = s.pages.Resolve(gctx, track)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.publishState(track, StateLoading, "")

	gr := graphResult{status: sourceStatus{state: rec.State, message: rec.Message, retryAfter: rec.RetryAfter}}
	pr := pageResult{status: sourceStatus{state: page.State, message: page.Message, retryAfter: page.RetryAfter}}

	g, gctx = errgroup.WithContext(ctx)
	if rec.State == resolve.StateSuccess {
		g.Go(func() error {
			var err error
			gr, err = s.loadGraph(gctx, *rec.Result)
			return err
		})
	}
	if page.State == resolve.StateSuccess {
		g.Go(func() error {
			var err error
			pr, err = s.loadPage(gctx, page.PageID, track)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := MergeSources(pr.entries, gr.entries)
	if len(entries) == 0 {
		l := settle(gr.status, pr.status)
		if l.State == StateNotFound {
			s.remember(ctx, key, cachedLookup{State: StateNotFound}, s.cfg.NegativeTTL)
		}
		return l, nil
	}

	b := &Bundle{
		Resolution:         gr.resolution,
		Entries:            entries,
		MatchedTrackNumber: pr.matched,
		PageTitle:          pr.title,
		PageURL:            pr.url,
	}
	var provenance, attribution []string
	if len(pr.entries) > 0 {
		provenance = append(provenance, SourceEncyclopedia.DisplayName())
		attribution = append(attribution, pr.url)
	}
	if len(gr.entries) > 0 {
		provenance = append(provenance, SourceMusicGraph.DisplayName())
		attribution = append(attribution, "https://musicbrainz.org/recording/"+gr.resolution.RecordingID)
	}
	b.Provenance = joinProvenance(provenance...)
	b.Attribution = joinProvenance(attribution...)

	s.remember(ctx, key, cachedLookup{State: StateLoaded, Bundle: b}, s.cfg.SuccessTTL)
	return &Lookup{State: StateLoaded, Bundle: b}, nil
}

func (s *Service) remember(ctx context.Context, key string, v cachedLookup, ttl time.Duration) {
	if err := cache.SetJSON(ctx, s.store, key, v, ttl); err != nil {
		s.logger.Warn("writing credits cache", slog.String("key", key), slog.Any("error", err))
	}
}

// loadGraph reads recording, work and release relationships. Work and
// release failures are logged and skipped; a recording failure becomes
// the source status.
func (s *Service) loadGraph(ctx context.Context, res resolve.ResolutionResult) (graphResult, error) {
	out := graphResult{status: sourceStatus{state: resolve.StateSuccess}}
	kw := s.parser.Keywords()

	rels, err := s.graph.GetRecordingRelations(ctx, res.RecordingID)
	if err != nil {
		st, cerr := statusOf(ctx, err)
		if cerr != nil {
			return out, cerr
		}
		out.status = st
		return out, nil
	}
	entries := kw.MapRelations(rels, LevelRecording)

	var workIDs []string
	seen := make(map[string]bool)
	for _, r := range rels {
		if r.Work == nil || r.Work.ID == "" || seen[r.Work.ID] {
			continue
		}
		seen[r.Work.ID] = true
		workIDs = append(workIDs, r.Work.ID)
	}
	if len(workIDs) > s.cfg.MaxWorks {
		workIDs = workIDs[:s.cfg.MaxWorks]
	}

	for _, id := range workIDs {
		wrels, err := s.graph.GetWorkRelations(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			s.logger.Warn("work relations failed", slog.String("work_id", id), slog.Any("error", err))
			continue
		}
		entries = append(entries, kw.MapRelations(wrels, LevelWork)...)
	}

	if res.ReleaseID != "" {
		rrels, err := s.graph.GetReleaseRelations(ctx, res.ReleaseID)
		switch {
		case err == nil:
			entries = append(entries, kw.MapRelations(rrels, LevelRelease)...)
		case ctx.Err() != nil:
			return out, ctx.Err()
		default:
			s.logger.Warn("release relations failed", slog.String("release_id", res.ReleaseID), slog.Any("error", err))
		}
	}

	withWorks := res.WithWorks(workIDs)
	out.resolution = &withWorks
	out.entries = MergeWithPrecedence(entries)
	return out, nil
}

func (s *Service) loadPage(ctx context.Context, pageID int, track resolve.NowPlayingTrack) (pageResult, error) {
	out := pageResult{status: sourceStatus{state: resolve.StateSuccess}}
	p, err := s.wiki.FetchPage(ctx, pageID)
	if err != nil {
		st, cerr := statusOf(ctx, err)
		if cerr != nil {
			return out, cerr
		}
		out.status = st
		return out, nil
	}

	parsed := s.parser.Parse(p.Markup, TrackContext{Title: track.Title, TrackNumber: track.TrackNumber})
	for i := range parsed.Entries {
		parsed.Entries[i].Attribution = p.URL
	}
	s.logger.Debug("parsed article credits",
		slog.String("page", p.Title),
		slog.Int("entries", len(parsed.Entries)),
		slog.Int("matched_track", parsed.MatchedTrackNumber),
		slog.Bool("tabular", parsed.Tabular))

	out.entries = parsed.Entries
	out.matched = parsed.MatchedTrackNumber
	out.title = p.Title
	out.url = p.URL
	return out, nil
}

// statusOf maps a provider error to a source status. Cancellation is
// returned as an error.
func statusOf(ctx context.Context, err error) (sourceStatus, error) {
	if ctx.Err() != nil {
		return sourceStatus{}, ctx.Err()
	}
	if provider.IsCanceled(err) {
		return sourceStatus{}, err
	}
	var rl *provider.ErrRateLimited
	switch {
	case provider.IsNotFound(err):
		return sourceStatus{state: resolve.StateNotFound}, nil
	case errors.As(err, &rl):
		return sourceStatus{state: resolve.StateRateLimited, message: rl.Error(), retryAfter: rl.RetryAfter}, nil
	default:
		return sourceStatus{state: resolve.StateNetworkError, message: err.Error()}, nil
	}
}

// settle picks the user-visible state when no source produced credits:
// rate limiting first, then errors, then ambiguity, else not found.
func settle(statuses ...sourceStatus) *Lookup {
	rank := func(st resolve.State) int {
		switch st {
		case resolve.StateRateLimited:
			return 4
		case resolve.StateNetworkError:
			return 3
		case resolve.StateAmbiguous:
			return 2
		default:
			return 1
		}
	}
	best := sourceStatus{state: resolve.StateNotFound}
	for _, st := range statuses {
		if rank(st.state) > rank(best.state) {
			best = st
		}
	}

	switch best.state {
	case resolve.StateRateLimited:
		return &Lookup{State: StateRateLimited, Message: best.message, RetryAfter: best.retryAfter}
	case resolve.StateNetworkError:
		return &Lookup{State: StateError, Message: best.message}
	case resolve.StateAmbiguous:
		return &Lookup{State: StateAmbiguous}
	default:
		return &Lookup{State: StateNotFound}
	}
}

func (s *Service) publishState(track resolve.NowPlayingTrack, state LookupState, msg string) {
	data := map[string]any{
		"state":  string(state),
		"title":  track.Title,
		"artist": track.Artist,
	}
	if msg != "" {
		data["message"] = msg
	}
	s.bus.Publish(event.Event{Type: event.CreditsState, Data: data})
}

func (s *Service) publishDone(track resolve.NowPlayingTrack, l *Lookup) {
	s.publishState(track, l.State, l.Message)
	if l.State != StateLoaded || l.Bundle == nil {
		return
	}
	s.bus.Publish(event.Event{Type: event.CreditsCompleted, Data: map[string]any{
		"title":      track.Title,
		"artist":     track.Artist,
		"entries":    len(l.Bundle.Entries),
		"provenance": l.Bundle.Provenance,
		"cached":     l.Cached,
	}})
}

func (l *Lookup) String() string {
	if l.State == StateLoaded && l.Bundle != nil {
		return fmt.Sprintf("%s (%d entries from %s)", l.State, len(l.Bundle.Entries), l.Bundle.Provenance)
	}
	if l.Message != "" {
		return fmt.Sprintf("%s: %s", l.State, l.Message)
	}
	return string(l.State)
}
