package catalogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCatalogue struct {
	provider.Catalogue

	mu       sync.Mutex
	byISRC   map[string][]provider.CatalogueTrack
	byText   map[string][]provider.CatalogueTrack
	isrcLog  []string
	textLog  []string
	limitN   atomic.Int32 // rate-limit this many calls first
	always   bool         // rate-limit every call
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeCatalogue) enter() func() {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeCatalogue) limited() error {
	if f.always || f.limitN.Add(-1) >= 0 {
		return &provider.ErrRateLimited{Provider: provider.NameSpotify, RetryAfter: 3 * time.Second}
	}
	return nil
}

func (f *fakeCatalogue) SearchByISRC(ctx context.Context, isrc string) ([]provider.CatalogueTrack, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.limited(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isrcLog = append(f.isrcLog, isrc)
	return f.byISRC[isrc], nil
}

func (f *fakeCatalogue) SearchByText(ctx context.Context, title, artist string) ([]provider.CatalogueTrack, error) {
	defer f.enter()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.limited(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textLog = append(f.textLog, title+"|"+artist)
	return f.byText[title+"|"+artist], nil
}

type fakeGraph struct {
	provider.MusicGraph
	isrcs map[string][]string
}

func (f *fakeGraph) GetRecordingISRCs(_ context.Context, id string) ([]string, error) {
	if codes, ok := f.isrcs[id]; ok {
		return codes, nil
	}
	return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: id}
}

func track(id, name string, pop int) provider.CatalogueTrack {
	return provider.CatalogueTrack{ID: id, URI: "spotify:track:" + id, Name: name, Popularity: &pop}
}

func newTestMatcher(c provider.Catalogue, g provider.MusicGraph, cfg Config) (*Matcher, *[]time.Duration) {
	m := NewMatcher(c, g, cfg, testLogger())
	var pauses []time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return ctx.Err()
	}
	return m, &pauses
}

func TestResolveByISRC(t *testing.T) {
	c := &fakeCatalogue{byISRC: map[string][]provider.CatalogueTrack{
		"USSM15900001": {track("t1", "So What", 70), track("t2", "So What", 40)},
	}}
	m, _ := newTestMatcher(c, nil, Config{})

	got, reason, err := m.Resolve(context.Background(), discography.RecordingRel{
		ID: "r1", Title: "So What", ISRCs: []string{"us-sm1-59-00001"}, ArtistCredits: []string{"Miles Davis"},
	})
	if err != nil || reason != "" {
		t.Fatalf("Resolve: %v %q", err, reason)
	}
	if got.TrackID != "t1" || got.Strategy != StrategyISRC || got.RecordingID != "r1" {
		t.Errorf("track = %+v", got)
	}
	if len(c.textLog) != 0 {
		t.Errorf("text search used after an ISRC hit: %v", c.textLog)
	}
}

func TestResolveFetchesAtMostThreeISRCs(t *testing.T) {
	c := &fakeCatalogue{byText: map[string][]provider.CatalogueTrack{
		"Naima|John Coltrane": {track("n1", "Naima", 55)},
	}}
	g := &fakeGraph{isrcs: map[string][]string{
		"r1": {"USAT20000001", "USAT20000002", "junk", "USAT20000003", "USAT20000004"},
	}}
	m, _ := newTestMatcher(c, g, Config{})

	got, _, err := m.Resolve(context.Background(), discography.RecordingRel{
		ID: "r1", Title: "Naima", ArtistCredits: []string{"John Coltrane"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"USAT20000001", "USAT20000002", "USAT20000003"}; !slices.Equal(c.isrcLog, want) {
		t.Errorf("isrc lookups = %v, want %v", c.isrcLog, want)
	}
	if got == nil || got.Strategy != StrategyText || got.TrackID != "n1" {
		t.Errorf("track = %+v", got)
	}
}

func TestResolveTriesEveryCreditedName(t *testing.T) {
	c := &fakeCatalogue{byText: map[string][]provider.CatalogueTrack{
		"Afro Blue|Mongo Santamaria": {track("a1", "Afro Blue", 60)},
	}}
	m, _ := newTestMatcher(c, nil, Config{})

	got, _, err := m.Resolve(context.Background(), discography.RecordingRel{
		ID: "r1", Title: "Afro Blue", ArtistCredits: []string{"Ramón Santamaría", "Mongo Santamaria"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.TrackID != "a1" {
		t.Fatalf("track = %+v", got)
	}
	if len(c.textLog) != 2 {
		t.Errorf("text searches = %v, want both names", c.textLog)
	}
}

func TestResolveMissReasons(t *testing.T) {
	m, _ := newTestMatcher(&fakeCatalogue{}, nil, Config{})

	_, reason, err := m.Resolve(context.Background(), discography.RecordingRel{ID: "r1", Title: "Untitled"})
	if err != nil || reason != ReasonMissingCredits {
		t.Errorf("no credits: %q, %v", reason, err)
	}
	_, reason, err = m.Resolve(context.Background(), discography.RecordingRel{ID: "r2", Title: "Untitled", ArtistCredits: []string{"X"}})
	if err != nil || reason != ReasonNoMatch {
		t.Errorf("no hits: %q, %v", reason, err)
	}
}

func TestBestTextMatch(t *testing.T) {
	hits := []provider.CatalogueTrack{
		track("live", "Blue Train Live at Birdland", 10),
		track("rem", "Blue Train Remastered", 20),
		track("other", "Moment's Notice", 90),
		{ID: "nouri", Name: "Blue Train"},
	}
	got, ok := BestTextMatch("Blue Train", hits)
	if !ok || got.ID != "rem" {
		t.Errorf("best = %+v, want the closer of two equally similar titles", got)
	}
	if _, ok := BestTextMatch("Lazy Bird", hits[2:3]); ok {
		t.Error("unrelated hit accepted")
	}
}

func recordings(n int) []discography.RecordingRel {
	out := make([]discography.RecordingRel, n)
	for i := range out {
		out[i] = discography.RecordingRel{ID: fmt.Sprintf("r%d", i), Title: "T", ISRCs: []string{fmt.Sprintf("USAAA00000%02d", i)}}
	}
	return out
}

func catalogueFor(recs []discography.RecordingRel) *fakeCatalogue {
	c := &fakeCatalogue{byISRC: make(map[string][]provider.CatalogueTrack)}
	for _, r := range recs {
		c.byISRC[r.ISRCs[0]] = []provider.CatalogueTrack{track("t-"+r.ID, r.Title, 50)}
	}
	return c
}

func TestResolveAllBacksOffAndRequeues(t *testing.T) {
	recs := recordings(10)
	c := catalogueFor(recs)
	c.limitN.Store(3)
	m, pauses := newTestMatcher(c, nil, Config{MaxConcurrency: 4, BatchSize: 10, Pause: time.Second})

	var progress [][2]int
	rep, err := m.ResolveAll(context.Background(), recs, func(settled, total int) {
		progress = append(progress, [2]int{settled, total})
	})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(rep.Tracks) != 10 || len(rep.Misses) != 0 {
		t.Fatalf("tracks = %d, misses = %d", len(rep.Tracks), len(rep.Misses))
	}
	for i, tr := range rep.Tracks {
		if tr.RecordingID != recs[i].ID {
			t.Errorf("track %d = %s, want input order", i, tr.RecordingID)
		}
	}
	if rep.RateLimited != 1 {
		t.Errorf("rate-limited batches = %d, want 1", rep.RateLimited)
	}
	// 4 halves to 2, then a clean batch adds one.
	if rep.FinalConcurrency != 3 {
		t.Errorf("final concurrency = %d, want 3", rep.FinalConcurrency)
	}
	if len(*pauses) != 1 || (*pauses)[0] != 3*time.Second {
		t.Errorf("pauses = %v, want one retry-after pause of 3s", *pauses)
	}
	if want := [][2]int{{7, 10}, {10, 10}}; !slices.Equal(progress, want) {
		t.Errorf("progress = %v, want %v", progress, want)
	}
	if peak := c.peak.Load(); peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
}

func TestResolveAllGivesUpAfterMaxAttempts(t *testing.T) {
	recs := recordings(3)
	c := catalogueFor(recs)
	c.always = true
	m, pauses := newTestMatcher(c, nil, Config{MaxConcurrency: 2, MaxAttempts: 2})

	rep, err := m.ResolveAll(context.Background(), recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Tracks) != 0 || len(rep.Misses) != 3 {
		t.Fatalf("tracks = %d, misses = %d", len(rep.Tracks), len(rep.Misses))
	}
	for _, miss := range rep.Misses {
		if miss.Reason != ReasonRateLimited {
			t.Errorf("reason = %s", miss.Reason)
		}
	}
	if len(*pauses) != 1 || rep.FinalConcurrency != 1 {
		t.Errorf("pauses = %v, concurrency = %d", *pauses, rep.FinalConcurrency)
	}
}

func TestResolveAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recs := recordings(2)
	m, _ := newTestMatcher(catalogueFor(recs), nil, Config{})

	if _, err := m.ResolveAll(ctx, recs, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
