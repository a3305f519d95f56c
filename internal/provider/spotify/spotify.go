package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	spotifyapi "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/sydlexius/linernotes/internal/provider"
)

const (
	searchLimit = 10

	// addBatchSize is the maximum number of tracks per add-items call.
	addBatchSize = 100
)

// Credentials configures the two Spotify authorization flows. The client
// credentials flow serves catalogue search; playlist writes need a user
// token obtained out of band.
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserToken    *oauth2.Token
	// BaseURL overrides the Web API root when non-empty.
	BaseURL      string

	// OnTokenRefresh receives the user token whenever it is refreshed, so
	// the caller can persist it.
	OnTokenRefresh func(*oauth2.Token)
}

// Adapter implements provider.Catalogue for Spotify.
type Adapter struct {
	search  *spotifyapi.Client
	user    *spotifyapi.Client
	limiter *provider.RateLimiterMap
	logger  *slog.Logger
	policy  provider.RetryPolicy
}

// New creates a Spotify adapter. Search uses the client credentials flow;
// when creds.UserToken is nil, playlist operations return ErrAuthRequired.
func New(ctx context.Context, limiter *provider.RateLimiterMap, logger *slog.Logger, creds Credentials) *Adapter {
	timeout := provider.ProviderCapabilities()[provider.NameSpotify].Timeout

	var searchHTTP, userHTTP *http.Client
	if creds.ClientID != "" && creds.ClientSecret != "" {
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		searchHTTP = cc.Client(ctx)
		searchHTTP.Timeout = timeout
	}
	if creds.UserToken != nil {
		oc := &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  spotifyauth.AuthURL,
				TokenURL: spotifyauth.TokenURL,
			},
		}
		ts := oc.TokenSource(ctx, creds.UserToken)
		if creds.OnTokenRefresh != nil {
			ts = newNotifyingSource(ts, creds.UserToken, creds.OnTokenRefresh)
		}
		userHTTP = oauth2.NewClient(ctx, ts)
		userHTTP.Timeout = timeout
	}
	return NewWithClients(limiter, logger, searchHTTP, userHTTP, creds.BaseURL)
}

// NewWithClients creates an adapter from preconfigured HTTP clients. A nil
// client disables the corresponding flow. baseURL overrides the Web API
// root (for testing) when non-empty.
func NewWithClients(limiter *provider.RateLimiterMap, logger *slog.Logger, searchHTTP, userHTTP *http.Client, baseURL string) *Adapter {
	a := &Adapter{
		limiter: limiter,
		logger:  logger.With(slog.String("provider", "spotify")),
		policy:  provider.DefaultRetryPolicy(),
	}
	var opts []spotifyapi.ClientOption
	if baseURL != "" {
		opts = append(opts, spotifyapi.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if searchHTTP != nil {
		a.search = spotifyapi.New(searchHTTP, opts...)
	}
	if userHTTP != nil {
		a.user = spotifyapi.New(userHTTP, opts...)
		if a.search == nil {
			a.search = a.user
		}
	}
	return a
}

// SetRetryPolicy overrides the retry policy used for every call.
func (a *Adapter) SetRetryPolicy(p provider.RetryPolicy) { a.policy = p }

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameSpotify }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return true }

// TestConnection runs a one-result search to verify the credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	_, err := a.searchTracks(ctx, "track:test", 1)
	return err
}

// SearchByISRC looks tracks up by ISRC.
func (a *Adapter) SearchByISRC(ctx context.Context, isrc string) ([]provider.CatalogueTrack, error) {
	isrc = strings.ToUpper(strings.TrimSpace(isrc))
	if isrc == "" {
		return nil, nil
	}
	return a.searchTracks(ctx, "isrc:"+isrc, searchLimit)
}

// SearchByText searches tracks by title and artist field filters.
func (a *Adapter) SearchByText(ctx context.Context, title, artist string) ([]provider.CatalogueTrack, error) {
	var parts []string
	if title != "" {
		parts = append(parts, "track:"+quote(title))
	}
	if artist != "" {
		parts = append(parts, "artist:"+quote(artist))
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return a.searchTracks(ctx, strings.Join(parts, " "), searchLimit)
}

// CreatePlaylist creates a playlist owned by the authorized user.
func (a *Adapter) CreatePlaylist(ctx context.Context, name, description string, public bool) (*provider.Playlist, error) {
	if a.user == nil {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	}

	var userID string
	err := a.call(ctx, "current user", func(ctx context.Context) error {
		u, err := a.user.CurrentUser(ctx)
		if err != nil {
			return err
		}
		userID = u.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	var pl *spotifyapi.FullPlaylist
	err = a.call(ctx, "create playlist", func(ctx context.Context) error {
		var err error
		pl, err = a.user.CreatePlaylistForUser(ctx, userID, name, description, public, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("playlist created", slog.String("playlist_id", pl.ID.String()), slog.String("name", name))
	return &provider.Playlist{
		ID:  pl.ID.String(),
		URL: pl.ExternalURLs["spotify"],
	}, nil
}

// AddTracks appends tracks to a playlist in batches of 100.
func (a *Adapter) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if a.user == nil {
		return &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	}

	ids := make([]spotifyapi.ID, 0, len(uris))
	for _, u := range uris {
		if id := trackID(u); id != "" {
			ids = append(ids, spotifyapi.ID(id))
		}
	}

	for start := 0; start < len(ids); start += addBatchSize {
		batch := ids[start:min(start+addBatchSize, len(ids))]
		err := a.call(ctx, "add tracks", func(ctx context.Context) error {
			_, err := a.user.AddTracksToPlaylist(ctx, spotifyapi.ID(playlistID), batch...)
			return err
		})
		if err != nil {
			return fmt.Errorf("adding tracks %d-%d: %w", start, start+len(batch), err)
		}
	}
	return nil
}

func (a *Adapter) searchTracks(ctx context.Context, query string, limit int) ([]provider.CatalogueTrack, error) {
	if a.search == nil {
		return nil, &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	}

	var res *spotifyapi.SearchResult
	err := a.call(ctx, query, func(ctx context.Context) error {
		var err error
		res, err = a.search.Search(ctx, query, spotifyapi.SearchTypeTrack, spotifyapi.Limit(limit))
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Tracks == nil {
		return nil, nil
	}

	out := make([]provider.CatalogueTrack, 0, len(res.Tracks.Tracks))
	for _, t := range res.Tracks.Tracks {
		out = append(out, mapTrack(t))
	}
	return out, nil
}

// call waits on the rate limiter, runs fn under the retry policy, and maps
// Web API errors into the provider error set.
func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return provider.Retry(ctx, a.policy, a.logger, func(ctx context.Context) error {
		if err := a.limiter.Wait(ctx, provider.NameSpotify); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &provider.ErrNetwork{Provider: provider.NameSpotify, Cause: fmt.Errorf("rate limiter: %w", err)}
		}
		a.logger.Debug("requesting", slog.String("op", op))
		return mapError(ctx, op, fn(ctx))
	})
}

// mapError converts a Web API error into the provider error set.
func mapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := 0
	var se spotifyapi.Error
	var sep *spotifyapi.Error
	switch {
	case errors.As(err, &se):
		status = se.Status
	case errors.As(err, &sep):
		status = sep.Status
	case strings.Contains(err.Error(), "HTTP 429"):
		// Empty-bodied 429s are reported as plain errors.
		status = http.StatusTooManyRequests
	}

	switch {
	case status == 0:
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return &provider.ErrAuthRequired{Provider: provider.NameSpotify}
		}
		return &provider.ErrNetwork{Provider: provider.NameSpotify, Cause: err}
	case status == http.StatusTooManyRequests:
		return &provider.ErrRateLimited{Provider: provider.NameSpotify}
	case status == http.StatusNotFound:
		return &provider.ErrNotFound{Provider: provider.NameSpotify, ID: op}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &provider.ErrAuthRequired{Provider: provider.NameSpotify}
	default:
		return &provider.ErrHTTPStatus{Provider: provider.NameSpotify, Code: status, URL: op}
	}
}

func mapTrack(t spotifyapi.FullTrack) provider.CatalogueTrack {
	ct := provider.CatalogueTrack{
		ID:   t.ID.String(),
		URI:  string(t.URI),
		Name: t.Name,
		ISRC: t.ExternalIDs["isrc"],
	}
	for _, ar := range t.Artists {
		ct.Artists = append(ct.Artists, ar.Name)
	}
	pop := int(t.Popularity)
	ct.Popularity = &pop
	return ct
}

// trackID extracts the base-62 id from a spotify:track:<id> URI or accepts a bare id.
func trackID(uri string) string {
	if i := strings.LastIndex(uri, ":"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// quote wraps multi-word field values so search treats them as a phrase.
func quote(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
