package listenbrainz

import (
	"context"
	"encoding/json"
	"fmt"
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

const artistID = "a74b1b7f-71a5-4011-9441-d0b5e4122711"

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

func newTestServer(t *testing.T, gotAuth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/1/popularity/recording":
			w.Write(loadFixture(t, "popularity.json"))
		case r.URL.Path == "/1/popularity/top-recordings-for-artist/"+artistID:
			w.Write(loadFixture(t, "top_recordings.json"))
		case r.URL.Path == "/1/status/get-dump-info":
			w.Write([]byte(`{"id":1}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, token, baseURL string) *Adapter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	a := NewWithBaseURL(provider.NewUnlimitedRateLimiterMap(), logger, token, baseURL)
	a.SetRetryPolicy(provider.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	return a
}

func TestRecordingPopularity(t *testing.T) {
	var auth string
	srv := newTestServer(t, &auth)
	a := newTestAdapter(t, "secret", srv.URL)

	ids := []string{"a1b2c3d4-0000-4000-8000-000000000001", "a1b2c3d4-0000-4000-8000-000000000003", "not-an-mbid"}
	got, err := a.RecordingPopularity(context.Background(), ids)
	if err != nil {
		t.Fatalf("RecordingPopularity: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Count == nil || *got[0].Count != 120034 {
		t.Errorf("unexpected count %v", got[0].Count)
	}
	if got[1].Count != nil {
		t.Errorf("expected nil count for recording without data, got %d", *got[1].Count)
	}
	if auth != "Token secret" {
		t.Errorf("expected token header, got %q", auth)
	}
}

func TestRecordingPopularityBatches(t *testing.T) {
	var requests atomic.Int32
	var maxBatch atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req RecordingPopularityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if n := int32(len(req.RecordingMBIDs)); n > maxBatch.Load() {
			maxBatch.Store(n)
		}
		items := make([]string, 0, len(req.RecordingMBIDs))
		for _, id := range req.RecordingMBIDs {
			items = append(items, fmt.Sprintf(`{"recording_mbid":%q,"total_listen_count":1}`, id))
		}
		w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	}))
	defer srv.Close()

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("a1b2c3d4-0000-4000-8000-%012d", i)
	}

	a := newTestAdapter(t, "", srv.URL)
	got, err := a.RecordingPopularity(context.Background(), ids)
	if err != nil {
		t.Fatalf("RecordingPopularity: %v", err)
	}
	if len(got) != 250 {
		t.Errorf("expected 250 items, got %d", len(got))
	}
	if requests.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", requests.Load())
	}
	if maxBatch.Load() != batchSize {
		t.Errorf("expected max batch %d, got %d", batchSize, maxBatch.Load())
	}
}

func TestRecordingPopularityEmpty(t *testing.T) {
	a := newTestAdapter(t, "", "http://127.0.0.1:1")
	got, err := a.RecordingPopularity(context.Background(), nil)
	if err != nil {
		t.Fatalf("RecordingPopularity: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no items, got %d", len(got))
	}
}

func TestTopRecordingsForArtist(t *testing.T) {
	var auth string
	srv := newTestServer(t, &auth)
	a := newTestAdapter(t, "", srv.URL)

	got, err := a.TopRecordingsForArtist(context.Background(), artistID)
	if err != nil {
		t.Fatalf("TopRecordingsForArtist: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Karma Police" {
		t.Fatalf("unexpected result %+v", got)
	}
	if auth != "" {
		t.Errorf("expected no auth header without token, got %q", auth)
	}
}

func TestTopRecordingsInvalidArtist(t *testing.T) {
	a := newTestAdapter(t, "", "http://127.0.0.1:1")
	_, err := a.TopRecordingsForArtist(context.Background(), "nope")
	if !provider.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	srv := newTestServer(t, nil)
	a := newTestAdapter(t, "", srv.URL)
	if err := a.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
	if a.Name() != provider.NameListenBrainz || a.RequiresAuth() {
		t.Error("unexpected name or auth requirement")
	}
}
