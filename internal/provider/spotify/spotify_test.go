package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/linernotes/internal/provider"
)

type fakeAPI struct {
	mu        sync.Mutex
	queries   []string
	added     [][]string
	rateLimit atomic.Int32 // number of 429s to serve before succeeding
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if f.rateLimit.Load() > 0 {
			f.rateLimit.Add(-1)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"status":429,"message":"API rate limit exceeded"}}`))
			return
		}

		switch {
		case r.URL.Path == "/search":
			q := r.URL.Query().Get("q")
			f.mu.Lock()
			f.queries = append(f.queries, q)
			f.mu.Unlock()
			if strings.Contains(q, "NOMATCH") {
				w.Write([]byte(`{"tracks":{"items":[],"total":0}}`))
				return
			}
			w.Write([]byte(`{"tracks":{"items":[{
				"id":"3n3Ppam7vgaVa1iaRUc9Lp",
				"uri":"spotify:track:3n3Ppam7vgaVa1iaRUc9Lp",
				"name":"Take Five",
				"popularity":71,
				"artists":[{"id":"a1","name":"The Dave Brubeck Quartet"}],
				"external_ids":{"isrc":"USSM15900113"}
			}],"total":1}}`))

		case r.URL.Path == "/me":
			w.Write([]byte(`{"id":"user-1","display_name":"Tester"}`))

		case r.URL.Path == "/users/user-1/playlists" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"pl-1","name":"Mix","external_urls":{"spotify":"https://open.spotify.com/playlist/pl-1"}}`))

		case r.URL.Path == "/playlists/pl-1/tracks" && r.Method == http.MethodPost:
			var body struct {
				URIs []string `json:"uris"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.mu.Lock()
			f.added = append(f.added, body.URIs)
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"snapshot_id":"snap"}`))

		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"status":404,"message":"not found"}}`))
		}
	})
}

func newTestAdapter(t *testing.T, withUser bool) (*Adapter, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	var user *http.Client
	if withUser {
		user = srv.Client()
	}
	a := NewWithClients(provider.NewUnlimitedRateLimiterMap(), logger, srv.Client(), user, srv.URL)
	a.SetRetryPolicy(provider.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	return a, f
}

func TestSearchByISRC(t *testing.T) {
	a, f := newTestAdapter(t, false)

	tracks, err := a.SearchByISRC(context.Background(), " ussm15900113 ")
	if err != nil {
		t.Fatalf("SearchByISRC: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	tr := tracks[0]
	if tr.URI != "spotify:track:3n3Ppam7vgaVa1iaRUc9Lp" || tr.ISRC != "USSM15900113" {
		t.Errorf("unexpected track %+v", tr)
	}
	if tr.Popularity == nil || *tr.Popularity != 71 {
		t.Errorf("unexpected popularity %v", tr.Popularity)
	}
	if len(f.queries) != 1 || f.queries[0] != "isrc:USSM15900113" {
		t.Errorf("unexpected queries %v", f.queries)
	}
}

func TestSearchByText(t *testing.T) {
	a, f := newTestAdapter(t, false)

	if _, err := a.SearchByText(context.Background(), "Take Five", "Brubeck"); err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	want := `track:"Take Five" artist:Brubeck`
	if len(f.queries) != 1 || f.queries[0] != want {
		t.Errorf("queries = %v, want [%s]", f.queries, want)
	}

	tracks, err := a.SearchByText(context.Background(), "NOMATCH", "")
	if err != nil {
		t.Fatalf("SearchByText: %v", err)
	}
	if len(tracks) != 0 {
		t.Errorf("expected no tracks, got %d", len(tracks))
	}
}

func TestSearchRateLimitedThenSucceeds(t *testing.T) {
	a, f := newTestAdapter(t, false)
	f.rateLimit.Store(1)

	tracks, err := a.SearchByISRC(context.Background(), "USSM15900113")
	if err != nil {
		t.Fatalf("SearchByISRC: %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("expected 1 track, got %d", len(tracks))
	}
}

func TestSearchRateLimitedExhausted(t *testing.T) {
	a, f := newTestAdapter(t, false)
	f.rateLimit.Store(10)

	_, err := a.SearchByISRC(context.Background(), "USSM15900113")
	if !provider.IsRateLimited(err) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestCreatePlaylistAndAddTracks(t *testing.T) {
	a, f := newTestAdapter(t, true)
	ctx := context.Background()

	pl, err := a.CreatePlaylist(ctx, "Mix", "desc", false)
	if err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}
	if pl.ID != "pl-1" || pl.URL != "https://open.spotify.com/playlist/pl-1" {
		t.Errorf("unexpected playlist %+v", pl)
	}

	uris := make([]string, 150)
	for i := range uris {
		uris[i] = "spotify:track:" + strings.Repeat("x", 21) + string(rune('A'+i%26))
	}
	if err := a.AddTracks(ctx, pl.ID, uris); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}
	if len(f.added) != 2 || len(f.added[0]) != 100 || len(f.added[1]) != 50 {
		t.Errorf("unexpected batches: %d", len(f.added))
	}
}

func TestPlaylistRequiresUser(t *testing.T) {
	a, _ := newTestAdapter(t, false)

	_, err := a.CreatePlaylist(context.Background(), "Mix", "", false)
	var ar *provider.ErrAuthRequired
	if !errors.As(err, &ar) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if err := a.AddTracks(context.Background(), "pl-1", []string{"spotify:track:x"}); !errors.As(err, &ar) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestTrackID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"spotify:track:abc", "abc"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := trackID(tt.in); got != tt.want {
			t.Errorf("trackID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
