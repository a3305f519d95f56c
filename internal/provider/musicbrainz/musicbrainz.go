package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/version"
)

const defaultBaseURL = "https://musicbrainz.org/ws/2"

// Adapter implements provider.MusicGraph for MusicBrainz.
type Adapter struct {
	transport *provider.Transport
	logger    *slog.Logger
	baseURL   string
}

// New creates a MusicBrainz adapter with the default base URL.
func New(limiter *provider.RateLimiterMap, logger *slog.Logger) *Adapter {
	return NewWithBaseURL(limiter, logger, defaultBaseURL)
}

// NewWithBaseURL creates a MusicBrainz adapter with a custom base URL (for testing).
func NewWithBaseURL(limiter *provider.RateLimiterMap, logger *slog.Logger, baseURL string) *Adapter {
	logger = logger.With(slog.String("provider", "musicbrainz"))
	return &Adapter{
		transport: provider.NewTransport(provider.NameMusicBrainz, limiter, logger, userAgent()),
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// SetRetryPolicy overrides the retry policy used for every call.
func (a *Adapter) SetRetryPolicy(p provider.RetryPolicy) { a.transport.Policy = p }

// Name returns the provider name.
func (a *Adapter) Name() provider.ProviderName { return provider.NameMusicBrainz }

// RequiresAuth returns whether this provider needs an API key.
func (a *Adapter) RequiresAuth() bool { return false }

// TestConnection verifies connectivity to the MusicBrainz API.
func (a *Adapter) TestConnection(ctx context.Context) error {
	params := url.Values{
		"query": {"test"},
		"fmt":   {"json"},
		"limit": {"1"},
	}
	_, err := a.transport.Get(ctx, a.baseURL+"/artist?"+params.Encode(), "artist search")
	return err
}

// SearchRecordings searches recordings by title, artist and (optionally) album.
func (a *Adapter) SearchRecordings(ctx context.Context, title, artist, album string) ([]provider.RecordingCandidate, error) {
	var parts []string
	if title != "" {
		parts = append(parts, fmt.Sprintf(`recording:"%s"`, escapeLucene(title)))
	}
	if artist != "" {
		parts = append(parts, fmt.Sprintf(`artist:"%s"`, escapeLucene(artist)))
	}
	if album != "" {
		parts = append(parts, fmt.Sprintf(`release:"%s"`, escapeLucene(album)))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("recording search needs at least one of title, artist, album")
	}

	params := url.Values{
		"query": {strings.Join(parts, " AND ")},
		"fmt":   {"json"},
		"limit": {"25"},
	}
	var resp RecordingSearchResponse
	if err := a.getJSON(ctx, a.baseURL+"/recording?"+params.Encode(), "recording search", &resp); err != nil {
		return nil, err
	}

	results := make([]provider.RecordingCandidate, 0, len(resp.Recordings))
	for _, r := range resp.Recordings {
		c := provider.RecordingCandidate{
			ID:          r.ID,
			Title:       r.Title,
			ArtistNames: creditNames(r.ArtistCredit),
			ISRCs:       r.ISRCs,
			Score:       r.Score,
		}
		for _, rel := range r.Releases {
			c.ReleaseTitles = append(c.ReleaseTitles, rel.Title)
			c.ReleaseIDs = append(c.ReleaseIDs, rel.ID)
		}
		results = append(results, c)
	}
	return results, nil
}

// GetRecordingRelations fetches artist and work relationships of a recording.
func (a *Adapter) GetRecordingRelations(ctx context.Context, id string) ([]provider.Relation, error) {
	return a.lookupRelations(ctx, "recording", id, "artist-rels+work-rels")
}

// GetWorkRelations fetches artist relationships (writers, composers) of a work.
func (a *Adapter) GetWorkRelations(ctx context.Context, id string) ([]provider.Relation, error) {
	return a.lookupRelations(ctx, "work", id, "artist-rels")
}

// GetReleaseRelations fetches release-level artist relationships.
func (a *Adapter) GetReleaseRelations(ctx context.Context, id string) ([]provider.Relation, error) {
	return a.lookupRelations(ctx, "release", id, "artist-rels")
}

// GetArtistRecordingRelations fetches the recordings and works an artist is
// directly related to.
func (a *Adapter) GetArtistRecordingRelations(ctx context.Context, artistID string) ([]provider.Relation, error) {
	return a.lookupRelations(ctx, "artist", artistID, "recording-rels+work-rels")
}

// GetWorkRecordings lists the recordings of a work.
func (a *Adapter) GetWorkRecordings(ctx context.Context, workID string) ([]provider.RecordingSummary, error) {
	rels, err := a.lookupRelations(ctx, "work", workID, "recording-rels")
	if err != nil {
		return nil, err
	}
	var out []provider.RecordingSummary
	for _, rel := range rels {
		if rel.Recording == nil {
			continue
		}
		out = append(out, provider.RecordingSummary{
			ID:            rel.Recording.ID,
			Title:         rel.Recording.Title,
			ArtistCredits: rel.Recording.ArtistCredits,
			ISRCs:         rel.Recording.ISRCs,
			RelationType:  rel.Type,
		})
	}
	return out, nil
}

// BrowseRecordings pages through every recording credited to an artist.
func (a *Adapter) BrowseRecordings(ctx context.Context, artistID string, offset, limit int) (*provider.RecordingPage, error) {
	if !isMBID(artistID) {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: artistID}
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params := url.Values{
		"artist": {artistID},
		"inc":    {"isrcs+artist-credits"},
		"fmt":    {"json"},
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
	var resp RecordingBrowseResponse
	if err := a.getJSON(ctx, a.baseURL+"/recording?"+params.Encode(), artistID, &resp); err != nil {
		return nil, err
	}

	page := &provider.RecordingPage{
		Offset: resp.RecordingOffset,
		Total:  resp.RecordingCount,
	}
	for _, r := range resp.Recordings {
		page.Recordings = append(page.Recordings, provider.RecordingSummary{
			ID:            r.ID,
			Title:         r.Title,
			ArtistCredits: creditNames(r.ArtistCredit),
			ISRCs:         r.ISRCs,
		})
	}
	return page, nil
}

// GetRecordingISRCs returns the ISRCs registered for a recording.
func (a *Adapter) GetRecordingISRCs(ctx context.Context, id string) ([]string, error) {
	if !isMBID(id) {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: id}
	}
	params := url.Values{
		"inc": {"isrcs"},
		"fmt": {"json"},
	}
	var rec MBRecording
	if err := a.getJSON(ctx, a.baseURL+"/recording/"+url.PathEscape(id)+"?"+params.Encode(), id, &rec); err != nil {
		return nil, err
	}
	return rec.ISRCs, nil
}

// SearchArtists searches MusicBrainz for artists matching the given name.
func (a *Adapter) SearchArtists(ctx context.Context, name string) ([]provider.ArtistSearchResult, error) {
	params := url.Values{
		"query": {normalizeHyphens(name)},
		"fmt":   {"json"},
		"limit": {"25"},
	}
	var resp ArtistSearchResponse
	if err := a.getJSON(ctx, a.baseURL+"/artist?"+params.Encode(), name, &resp); err != nil {
		return nil, err
	}

	results := make([]provider.ArtistSearchResult, 0, len(resp.Artists))
	for _, art := range resp.Artists {
		results = append(results, provider.ArtistSearchResult{
			ProviderID:     art.ID,
			Name:           art.Name,
			SortName:       art.SortName,
			Type:           art.Type,
			Disambiguation: art.Disambiguation,
			Country:        art.Country,
			Score:          art.Score,
		})
	}
	return results, nil
}

func (a *Adapter) lookupRelations(ctx context.Context, entity, id, inc string) ([]provider.Relation, error) {
	if !isMBID(id) {
		return nil, &provider.ErrNotFound{Provider: provider.NameMusicBrainz, ID: id}
	}
	params := url.Values{
		"inc": {inc},
		"fmt": {"json"},
	}
	reqURL := a.baseURL + "/" + entity + "/" + url.PathEscape(id) + "?" + params.Encode()

	var ent MBEntityWithRelations
	if err := a.getJSON(ctx, reqURL, id, &ent); err != nil {
		return nil, err
	}
	return mapRelations(ent.Relations), nil
}

func (a *Adapter) getJSON(ctx context.Context, reqURL, id string, v any) error {
	body, err := a.transport.Get(ctx, reqURL, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &provider.ErrDecode{Provider: provider.NameMusicBrainz, Cause: err}
	}
	return nil
}

// mapRelations converts MusicBrainz relations to the common Relation type.
func mapRelations(rels []MBRelation) []provider.Relation {
	out := make([]provider.Relation, 0, len(rels))
	for _, r := range rels {
		rel := provider.Relation{
			Type:       r.Type,
			TargetType: r.TargetType,
			Direction:  r.Direction,
			Attributes: r.Attributes,
			Credited:   r.TargetCredit,
		}
		if r.Artist != nil {
			rel.Artist = &provider.RelatedArtist{ID: r.Artist.ID, Name: r.Artist.Name}
		}
		if r.Recording != nil {
			rel.Recording = &provider.RelatedRecording{
				ID:            r.Recording.ID,
				Title:         r.Recording.Title,
				ArtistCredits: creditNames(r.Recording.ArtistCredit),
				ISRCs:         r.Recording.ISRCs,
			}
		}
		if r.Work != nil {
			rel.Work = &provider.RelatedWork{ID: r.Work.ID, Title: r.Work.Title}
		}
		out = append(out, rel)
	}
	return out
}

// creditNames returns the credited names of an artist-credit array,
// falling back to the artist's canonical name.
func creditNames(credits []MBArtistCredit) []string {
	names := make([]string, 0, len(credits))
	for _, c := range credits {
		name := c.Name
		if name == "" {
			name = c.Artist.Name
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// isMBID reports whether id is a well-formed MusicBrainz identifier.
func isMBID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// normalizeHyphens replaces the Unicode hyphen variants that MusicBrainz
// search does not fold (U+2010, U+2011) with an ASCII hyphen.
func normalizeHyphens(s string) string {
	return strings.NewReplacer("‐", "-", "‑", "-").Replace(s)
}

var luceneEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// escapeLucene prepares a value for use inside a quoted Lucene phrase.
func escapeLucene(s string) string {
	return luceneEscaper.Replace(normalizeHyphens(s))
}

func userAgent() string {
	return fmt.Sprintf("Linernotes/%s (https://github.com/sydlexius/linernotes)", version.Version)
}
