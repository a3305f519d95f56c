package musicbrainz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/linernotes/internal/provider"
)

const (
	recordingID = "a1b2c3d4-0000-4000-8000-000000000001"
	workID      = "d1b2c3d4-0000-4000-8000-000000001000"
	artistID    = "a74b1b7f-71a5-4011-9441-d0b5e4122711"
	missingID   = "ffffffff-0000-4000-8000-000000000000"
	brokenID    = "eeeeeeee-0000-4000-8000-000000000000"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()

		switch {
		case r.URL.Path == "/recording" && q.Get("query") != "":
			if strings.Contains(q.Get("query"), "nothing-matches") {
				w.Write([]byte(`{"count":0,"offset":0,"recordings":[]}`))
				return
			}
			w.Write(loadFixture(t, "search_recording.json"))

		case r.URL.Path == "/recording" && q.Get("artist") != "":
			w.Write(loadFixture(t, "browse_recordings.json"))

		case r.URL.Path == "/recording/"+recordingID:
			if q.Get("inc") == "isrcs" {
				w.Write([]byte(`{"id":"` + recordingID + `","title":"Paranoid Android","isrcs":["GBAYE9700055"]}`))
				return
			}
			w.Write(loadFixture(t, "recording_relations.json"))

		case r.URL.Path == "/work/"+workID:
			w.Write(loadFixture(t, "work_recordings.json"))

		case r.URL.Path == "/recording/"+brokenID:
			w.Write([]byte(`{not json`))

		case r.URL.Path == "/artist" && q.Get("query") != "":
			w.Write(loadFixture(t, "search_artist.json"))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	limiter := provider.NewUnlimitedRateLimiterMap()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	a := NewWithBaseURL(limiter, logger, baseURL)
	a.SetRetryPolicy(provider.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	return a
}

func TestName(t *testing.T) {
	a := newTestAdapter(t, "http://localhost")
	if a.Name() != provider.NameMusicBrainz {
		t.Errorf("expected %s, got %s", provider.NameMusicBrainz, a.Name())
	}
	if a.RequiresAuth() {
		t.Error("MusicBrainz should not require auth")
	}
}

func TestSearchRecordings(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	results, err := a.SearchRecordings(context.Background(), "Paranoid Android", "Radiohead", "OK Computer")
	if err != nil {
		t.Fatalf("SearchRecordings: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.ID != recordingID || first.Score != 100 {
		t.Errorf("unexpected first result %+v", first)
	}
	if len(first.ReleaseTitles) != 2 || first.ReleaseTitles[0] != "OK Computer" || first.ReleaseIDs[0] == "" {
		t.Errorf("unexpected releases %v / %v", first.ReleaseTitles, first.ReleaseIDs)
	}
	if len(first.ISRCs) != 1 || first.ISRCs[0] != "GBAYE9700055" {
		t.Errorf("unexpected ISRCs %v", first.ISRCs)
	}
	// Empty credited name falls back to the artist name.
	if got := results[1].ArtistNames; len(got) != 1 || got[0] != "Radiohead" {
		t.Errorf("unexpected fallback artist names %v", got)
	}
}

func TestSearchRecordingsQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		w.Write([]byte(`{"recordings":[]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	if _, err := a.SearchRecordings(context.Background(), `Say "Hi"`, "Jay‐Z", ""); err != nil {
		t.Fatalf("SearchRecordings: %v", err)
	}
	want := `recording:"Say \"Hi\"" AND artist:"Jay-Z"`
	if query != want {
		t.Errorf("query = %q, want %q", query, want)
	}
}

func TestSearchRecordingsNoTerms(t *testing.T) {
	a := newTestAdapter(t, "http://localhost")
	if _, err := a.SearchRecordings(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected error for empty search")
	}
}

func TestGetRecordingRelations(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	rels, err := a.GetRecordingRelations(context.Background(), recordingID)
	if err != nil {
		t.Fatalf("GetRecordingRelations: %v", err)
	}
	if len(rels) != 3 {
		t.Fatalf("expected 3 relations, got %d", len(rels))
	}
	if rels[0].Type != "producer" || rels[0].Artist == nil || rels[0].Artist.Name != "Nigel Godrich" {
		t.Errorf("unexpected producer relation %+v", rels[0])
	}
	if rels[1].Credited != "Jonny" || len(rels[1].Attributes) != 1 || rels[1].Attributes[0] != "guitar" {
		t.Errorf("unexpected instrument relation %+v", rels[1])
	}
	if rels[2].Work == nil || rels[2].Work.ID != workID {
		t.Errorf("expected work relation, got %+v", rels[2])
	}
}

func TestGetWorkRecordings(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	recs, err := a.GetWorkRecordings(context.Background(), workID)
	if err != nil {
		t.Fatalf("GetWorkRecordings: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 recording (artist relation skipped), got %d", len(recs))
	}
	if recs[0].ID != recordingID || recs[0].RelationType != "performance" {
		t.Errorf("unexpected recording %+v", recs[0])
	}
}

func TestBrowseRecordings(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	page, err := a.BrowseRecordings(context.Background(), artistID, 0, 100)
	if err != nil {
		t.Fatalf("BrowseRecordings: %v", err)
	}
	if page.Total != 3 || len(page.Recordings) != 2 {
		t.Errorf("unexpected page total=%d len=%d", page.Total, len(page.Recordings))
	}
	if page.Recordings[1].Title != "Karma Police" {
		t.Errorf("unexpected second recording %+v", page.Recordings[1])
	}
}

func TestGetRecordingISRCs(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	isrcs, err := a.GetRecordingISRCs(context.Background(), recordingID)
	if err != nil {
		t.Fatalf("GetRecordingISRCs: %v", err)
	}
	if len(isrcs) != 1 || isrcs[0] != "GBAYE9700055" {
		t.Errorf("unexpected isrcs %v", isrcs)
	}
}

func TestSearchArtists(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	results, err := a.SearchArtists(context.Background(), "Radiohead")
	if err != nil {
		t.Fatalf("SearchArtists: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ProviderID != artistID || results[0].Score != 100 {
		t.Errorf("unexpected top result %+v", results[0])
	}
	if results[1].Disambiguation != "cover band" {
		t.Errorf("unexpected disambiguation %q", results[1].Disambiguation)
	}
}

func TestInvalidIDSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	_, err := a.GetRecordingRelations(context.Background(), "not-a-uuid")
	if !provider.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	_, err := a.GetReleaseRelations(context.Background(), missingID)
	var nf *provider.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if nf.ID != missingID {
		t.Errorf("expected id %s, got %s", missingID, nf.ID)
	}
}

func TestDecodeError(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)

	_, err := a.GetRecordingRelations(context.Background(), brokenID)
	var de *provider.ErrDecode
	if !errors.As(err, &de) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestRateLimitedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"x","relations":[]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	rels, err := a.GetWorkRelations(context.Background(), workID)
	if err != nil {
		t.Fatalf("GetWorkRelations: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("expected no relations, got %d", len(rels))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestTestConnection(t *testing.T) {
	srv := newTestServer(t)
	a := newTestAdapter(t, srv.URL)
	if err := a.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
}

func TestNormalizeHyphens(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a-ha", "a-ha"},
		{"a‐ha", "a-ha"},
		{"a‑ha", "a-ha"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeHyphens(tt.in); got != tt.want {
			t.Errorf("normalizeHyphens(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
