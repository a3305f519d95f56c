package listenbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/version"
)

const (
	defaultBaseURL = "https://api.listenbrainz.org"

	// batchSize bounds how many recording ids go into one popularity request.
	batchSize = 100
)

// Adapter implements provider.Popularity for ListenBrainz.
type Adapter struct {
	transport *provider.Transport
	logger    *slog.Logger
	baseURL   string
}

// New creates a ListenBrainz adapter with the default base URL. The token
// is optional; when set it is sent as "Authorization: Token <token>".
func New(limiter *provider.RateLimiterMap, logger *slog.Logger, token string) *Adapter {
	return NewWithBaseURL(limiter, logger, token, defaultBaseURL)
}

// NewWithBaseURL creates a ListenBrainz adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, token, baseURL string) *Adapter {
	logger = logger.With(slog.String("provider", "listenbrainz"))
	tr := provider.NewTransport(provider.NameListenBrainz, limiter, logger, userAgent())
	if token != "" {
		tr.Decorate = func(r *http.Request) {
			r.Header.Set("Authorization", "Token "+token)
		}
	}
	return &Adapter{
		transport: tr,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// SetRetryPolicy overrides the retry policy used for every call.
func (a *Adapter) SetRetryPolicy(p provider.RetryPolicy) { a.transport.Policy = p }

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameListenBrainz }

// RequiresAuth returns whether this provider needs an API key. The
// popularity endpoints are public; a token only raises the rate limit.
func (a *Adapter) RequiresAuth() bool { return false }

// TestConnection verifies connectivity to the ListenBrainz API.
func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.transport.Get(ctx, a.baseURL+"/1/status/get-dump-info", "status")
	return err
}

// RecordingPopularity returns listen counts for the given recording ids, in
// request order. Ids without data come back with a nil Count.
func (a *Adapter) RecordingPopularity(ctx context.Context, recordingIDs []string) ([]provider.RecordingPopularity, error) {
	ids := make([]string, 0, len(recordingIDs))
	for _, id := range recordingIDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}

	out := make([]provider.RecordingPopularity, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		items, err := a.popularityBatch(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (a *Adapter) popularityBatch(ctx context.Context, ids []string) ([]provider.RecordingPopularity, error) {
	body, err := json.Marshal(RecordingPopularityRequest{RecordingMBIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("encoding popularity request: %w", err)
	}
	data, err := a.transport.Do(ctx, http.MethodPost, a.baseURL+"/1/popularity/recording", body, "popularity batch")
	if err != nil {
		return nil, err
	}

	var resp []RecordingPopularityItem
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &provider.ErrDecode{Provider: provider.NameListenBrainz, Cause: err}
	}

	out := make([]provider.RecordingPopularity, 0, len(resp))
	for _, item := range resp {
		out = append(out, provider.RecordingPopularity{
			RecordingID: item.RecordingMBID,
			Count:       item.TotalListenCount,
		})
	}
	return out, nil
}

// TopRecordingsForArtist returns the artist's most listened recordings.
func (a *Adapter) TopRecordingsForArtist(ctx context.Context, artistID string) ([]provider.RecordingPopularity, error) {
	if _, err := uuid.Parse(artistID); err != nil {
		return nil, &provider.ErrNotFound{Provider: provider.NameListenBrainz, ID: artistID}
	}
	reqURL := a.baseURL + "/1/popularity/top-recordings-for-artist/" + url.PathEscape(artistID)
	data, err := a.transport.Get(ctx, reqURL, artistID)
	if err != nil {
		return nil, err
	}

	var resp []TopRecording
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &provider.ErrDecode{Provider: provider.NameListenBrainz, Cause: err}
	}

	out := make([]provider.RecordingPopularity, 0, len(resp))
	for _, r := range resp {
		if r.RecordingMBID == "" {
			continue
		}
		out = append(out, provider.RecordingPopularity{
			RecordingID: r.RecordingMBID,
			Title:       r.RecordingName,
			Count:       r.TotalListenCount,
		})
	}
	return out, nil
}

func userAgent() string {
	return fmt.Sprintf("Linernotes/%s (https://github.com/sydlexius/linernotes)", version.Version)
}
