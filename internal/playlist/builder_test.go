package playlist

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/linernotes/internal/catalogue"
	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/event"
	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/resolve"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeGraph struct {
	provider.MusicGraph
	artists map[string][]provider.ArtistSearchResult
	direct  map[string][]provider.Relation
}

func (f *fakeGraph) SearchArtists(_ context.Context, name string) ([]provider.ArtistSearchResult, error) {
	return f.artists[name], nil
}

func (f *fakeGraph) GetArtistRecordingRelations(ctx context.Context, id string) ([]provider.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.direct[id], nil
}

func (f *fakeGraph) BrowseRecordings(_ context.Context, _ string, offset, _ int) (*provider.RecordingPage, error) {
	return &provider.RecordingPage{Offset: offset}, nil
}

func (f *fakeGraph) GetRecordingISRCs(context.Context, string) ([]string, error) {
	return nil, nil
}

type fakePopularity struct {
	counts map[string]int
	top    map[string][]provider.RecordingPopularity
	err    error
}

func (f *fakePopularity) RecordingPopularity(_ context.Context, ids []string) ([]provider.RecordingPopularity, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]provider.RecordingPopularity, 0, len(ids))
	for _, id := range ids {
		p := provider.RecordingPopularity{RecordingID: id}
		if n, ok := f.counts[id]; ok {
			p.Count = &n
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePopularity) TopRecordingsForArtist(_ context.Context, id string) ([]provider.RecordingPopularity, error) {
	return f.top[id], nil
}

type fakeCatalogue struct {
	provider.Catalogue

	mu      sync.Mutex
	byISRC  map[string][]provider.CatalogueTrack
	created []string
	added   []string
}

func (f *fakeCatalogue) SearchByISRC(_ context.Context, isrc string) ([]provider.CatalogueTrack, error) {
	return f.byISRC[isrc], nil
}

func (f *fakeCatalogue) SearchByText(context.Context, string, string) ([]provider.CatalogueTrack, error) {
	return nil, nil
}

func (f *fakeCatalogue) CreatePlaylist(_ context.Context, name, _ string, _ bool) (*provider.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return &provider.Playlist{ID: "pl1", URL: "https://open.spotify.com/playlist/pl1"}, nil
}

func (f *fakeCatalogue) AddTracks(_ context.Context, _ string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, uris...)
	return nil
}

func rec(id, title, isrc string, credits ...string) provider.Relation {
	r := &provider.RelatedRecording{ID: id, Title: title, ArtistCredits: credits}
	if isrc != "" {
		r.ISRCs = []string{isrc}
	}
	return provider.Relation{Type: "instrument", TargetType: "recording", Attributes: []string{"piano"}, Recording: r}
}

func catTrack(id string, pop int) provider.CatalogueTrack {
	return provider.CatalogueTrack{ID: id, URI: "spotify:track:" + id, Name: id, Popularity: &pop}
}

// evansFixture: r2 is the most played, r3 lands on r1's catalogue track,
// r4 has no credits and r5 is not in the catalogue.
func evansFixture() (*fakeGraph, *fakePopularity, *fakeCatalogue) {
	g := &fakeGraph{
		artists: map[string][]provider.ArtistSearchResult{
			"Bill Evans": {{ProviderID: "be", Name: "Bill Evans", Score: 100}},
		},
		direct: map[string][]provider.Relation{"be": {
			rec("r1", "Waltz for Debby", "USRI16100001", "Bill Evans"),
			rec("r2", "Peace Piece", "USRI15800002", "Bill Evans"),
			rec("r3", "Waltz for Debby (Take 2)", "USRI16100003", "Bill Evans"),
			rec("r4", "Nardis", ""),
			rec("r5", "Blue in Green", "USRI15900005", "Bill Evans"),
		}},
	}
	pop := &fakePopularity{counts: map[string]int{"r1": 100, "r2": 300, "r3": 50, "r4": 10, "r5": 5}}
	c := &fakeCatalogue{byISRC: map[string][]provider.CatalogueTrack{
		"USRI16100001": {catTrack("t1", 80)},
		"USRI15800002": {catTrack("t2", 40)},
		"USRI16100003": {catTrack("t1", 80)},
	}}
	return g, pop, c
}

func newTestBuilder(g provider.MusicGraph, pop provider.Popularity, c provider.Catalogue, bus *event.Bus) *Builder {
	logger := testLogger()
	return NewBuilder(
		resolve.NewArtistResolver(g, logger),
		discography.NewEngine(g, nil, bus, discography.Config{}, logger),
		pop,
		catalogue.NewMatcher(c, g, catalogue.Config{}, logger),
		c,
		bus,
		logger,
	)
}

func dropped(res *BuildResult) map[string]DropReason {
	out := make(map[string]DropReason)
	for _, d := range res.Dropped {
		out[d.RecordingID] = d.Reason
	}
	return out
}

func TestBuild(t *testing.T) {
	g, pop, c := evansFixture()
	b := newTestBuilder(g, pop, c, nil)

	var stages []Stage
	res, err := b.Build(context.Background(), BuildRequest{ArtistName: "Bill Evans", TargetSize: 3}, func(p Progress) {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if res.PlaylistID != "pl1" || res.Name != "This Is Bill Evans" || res.RankedBy != RankPopularity {
		t.Errorf("result = %+v", res)
	}
	// t1 has the higher catalogue popularity, so it moves ahead of t2.
	if want := []string{"spotify:track:t1", "spotify:track:t2"}; !slices.Equal(c.added, want) {
		t.Errorf("added = %v, want %v", c.added, want)
	}
	if res.Tracks[0].RecordingID != "r1" {
		t.Errorf("first track from %s, want r1", res.Tracks[0].RecordingID)
	}
	want := map[string]DropReason{"r3": DropDuplicateURI, "r4": DropMissingCredits, "r5": DropNoMatch}
	if got := dropped(res); len(got) != len(want) {
		t.Errorf("dropped = %v, want %v", got, want)
	} else {
		for id, reason := range want {
			if got[id] != reason {
				t.Errorf("%s dropped as %q, want %q", id, got[id], reason)
			}
		}
	}
	wantStages := []Stage{StageFetchingDiscography, StageRanking, StageResolving, StageCreating, StageComplete}
	if !slices.Equal(stages, wantStages) {
		t.Errorf("stages = %v, want %v", stages, wantStages)
	}
}

func TestBuildRanksOutAndTruncates(t *testing.T) {
	g, pop, c := evansFixture()
	b := newTestBuilder(g, pop, c, nil)

	res, err := b.Build(context.Background(), BuildRequest{ArtistID: "be", ArtistName: "Bill Evans", TargetSize: 1}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// Target 1 keeps the top two ranked recordings (r2, r1).
	counts := res.DroppedBy()
	if counts[DropRankedOut] != 3 || counts[DropTruncated] != 1 {
		t.Errorf("dropped by reason = %v", counts)
	}
	if res.TrackCount != 1 || res.Tracks[0].TrackID != "t1" {
		t.Errorf("tracks = %+v", res.Tracks)
	}
	if d := dropped(res); d["r2"] != DropTruncated {
		t.Errorf("r2 dropped as %q, want truncated", d["r2"])
	}
}

func TestBuildDryRun(t *testing.T) {
	g, pop, c := evansFixture()
	b := newTestBuilder(g, pop, c, nil)

	res, err := b.Build(context.Background(), BuildRequest{ArtistName: "Bill Evans", Name: "Evans", DryRun: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.PlaylistID != "" || len(c.created) != 0 || len(c.added) != 0 {
		t.Errorf("dry run touched the catalogue: %+v, created %v", res, c.created)
	}
	if res.Name != "Evans" || res.TrackCount != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestBuildCoCredit(t *testing.T) {
	g := &fakeGraph{
		artists: map[string][]provider.ArtistSearchResult{
			"Bill Evans": {{ProviderID: "be", Name: "Bill Evans", Score: 100}},
			"Jim Hall":   {{ProviderID: "jh", Name: "Jim Hall", Score: 100}},
		},
		direct: map[string][]provider.Relation{
			"be": {rec("u1", "My Funny Valentine", "USBN16200001", "Bill Evans", "Jim Hall"), rec("b2", "Peace Piece", "USRI15800002", "Bill Evans")},
			"jh": {rec("u1", "My Funny Valentine", "USBN16200001", "Bill Evans", "Jim Hall"), rec("j2", "Concierto", "USCT17500001", "Jim Hall")},
		},
	}
	c := &fakeCatalogue{byISRC: map[string][]provider.CatalogueTrack{
		"USBN16200001": {catTrack("mfv", 60)},
		"USRI15800002": {catTrack("pp", 40)},
	}}
	b := newTestBuilder(g, &fakePopularity{}, c, nil)

	res, err := b.Build(context.Background(), BuildRequest{ArtistName: "Bill Evans", CoArtistName: "Jim Hall"}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Name != "Bill Evans × Jim Hall" || res.RankedBy != RankAlphabetical {
		t.Errorf("result = %+v", res)
	}
	if !slices.Equal(c.added, []string{"spotify:track:mfv"}) {
		t.Errorf("added = %v, want only the shared recording", c.added)
	}
}

func TestBuildValidation(t *testing.T) {
	b := newTestBuilder(&fakeGraph{}, nil, &fakeCatalogue{}, nil)
	tests := []BuildRequest{
		{},
		{ArtistName: "A", Mode: ModeCoCredit},
		{ArtistName: "A", Mode: "mixtape"},
	}
	for _, req := range tests {
		if _, err := b.Build(context.Background(), req, nil); err == nil {
			t.Errorf("Build(%+v) succeeded", req)
		}
	}
}

func TestBuildUnresolvedArtist(t *testing.T) {
	b := newTestBuilder(&fakeGraph{}, nil, &fakeCatalogue{}, nil)
	_, err := b.Build(context.Background(), BuildRequest{ArtistName: "Nobody"}, nil)
	var rerr *resolve.ArtistResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *ArtistResolutionError", err)
	}
}

func TestBuildNoTracksPublishesFailure(t *testing.T) {
	g, pop, _ := evansFixture()
	bus := event.NewBus(testLogger(), 64)
	go bus.Start()
	defer bus.Stop()

	var mu sync.Mutex
	var failed, progress int
	bus.Subscribe(event.PlaylistFailed, func(event.Event) {
		mu.Lock()
		failed++
		mu.Unlock()
	})
	bus.Subscribe(event.PlaylistProgress, func(event.Event) {
		mu.Lock()
		progress++
		mu.Unlock()
	})

	b := newTestBuilder(g, pop, &fakeCatalogue{}, bus)
	_, err := b.Build(context.Background(), BuildRequest{ArtistID: "be"}, nil)
	if !errors.Is(err, ErrNoTracksResolved) {
		t.Fatalf("err = %v, want ErrNoTracksResolved", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if failed != 1 || progress == 0 {
		t.Errorf("failed = %d, progress = %d", failed, progress)
	}
}

func TestBuildCanceled(t *testing.T) {
	g, pop, c := evansFixture()
	b := newTestBuilder(g, pop, c, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Build(ctx, BuildRequest{ArtistID: "be"}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRankFallbacks(t *testing.T) {
	recs := []discography.RecordingRel{
		{ID: "a", Title: "Very Early"},
		{ID: "b", Title: "Peace Piece"},
		{ID: "c", Title: "Autumn Leaves"},
	}

	pop := &fakePopularity{top: map[string][]provider.RecordingPopularity{
		"be": {{RecordingID: "other-id", Title: "Peace Piece", Count: intp(500)}},
	}}
	b := newTestBuilder(&fakeGraph{}, pop, &fakeCatalogue{}, nil)
	got, source, err := b.rank(context.Background(), recs, discography.Artist{ID: "be"})
	if err != nil {
		t.Fatal(err)
	}
	if source != RankTopRecordings || got[0].ID != "b" || got[1].ID != "c" || got[2].ID != "a" {
		t.Errorf("top-recordings rank = %v via %s", ids(got), source)
	}

	b = newTestBuilder(&fakeGraph{}, &fakePopularity{err: errors.New("down")}, &fakeCatalogue{}, nil)
	got, source, err = b.rank(context.Background(), recs, discography.Artist{ID: "be"})
	if err != nil {
		t.Fatal(err)
	}
	if source != RankAlphabetical || !slices.Equal(ids(got), []string{"c", "b", "a"}) {
		t.Errorf("alphabetical rank = %v via %s", ids(got), source)
	}
}

func intp(n int) *int { return &n }

func ids(recs []discography.RecordingRel) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
