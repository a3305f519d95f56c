package provider

import "context"

// RecordingCandidate is a music-graph search hit. ReleaseTitles and
// ReleaseIDs are parallel: index i of one describes index i of the other.
type RecordingCandidate struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	ArtistNames   []string `json:"artist_names"`
	ReleaseTitles []string `json:"release_titles"`
	ReleaseIDs    []string `json:"release_ids"`
	ISRCs         []string `json:"isrcs,omitempty"`
	Score         int      `json:"score"` // provider relevance, 0-100
}

// RelatedArtist is the person/group side of a relationship.
type RelatedArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RelatedRecording is the recording side of an artist relationship.
type RelatedRecording struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	ArtistCredits []string `json:"artist_credits,omitempty"`
	ISRCs         []string `json:"isrcs,omitempty"`
}

// RelatedWork is the work side of a relationship.
type RelatedWork struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Relation is one typed relationship between two music-graph entities.
// Exactly one of Artist, Recording or Work is normally set.
type Relation struct {
	Type       string            `json:"type"`
	TargetType string            `json:"target_type"`
	Direction  string            `json:"direction,omitempty"`
	Attributes []string          `json:"attributes,omitempty"`
	Credited   string            `json:"credited,omitempty"`
	Artist     *RelatedArtist    `json:"artist,omitempty"`
	Recording  *RelatedRecording `json:"recording,omitempty"`
	Work       *RelatedWork      `json:"work,omitempty"`
}

// RecordingSummary is a recording as returned by browse and work lookups.
type RecordingSummary struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	ArtistCredits []string `json:"artist_credits,omitempty"`
	ISRCs         []string `json:"isrcs,omitempty"`
	RelationType  string   `json:"relation_type,omitempty"`
}

// RecordingPage is one page of a paginated recording browse.
type RecordingPage struct {
	Recordings []RecordingSummary `json:"recordings"`
	Offset     int                `json:"offset"`
	Total      int                `json:"total"`
}

// ArtistSearchResult represents a single artist search hit.
type ArtistSearchResult struct {
	ProviderID     string `json:"provider_id"`
	Name           string `json:"name"`
	SortName       string `json:"sort_name,omitempty"`
	Type           string `json:"type,omitempty"`
	Disambiguation string `json:"disambiguation,omitempty"`
	Country        string `json:"country,omitempty"`
	Score          int    `json:"score"`
}

// MusicGraph is the canonical music graph (recordings, works, releases, artists).
type MusicGraph interface {
	SearchRecordings(ctx context.Context, title, artist, album string) ([]RecordingCandidate, error)
	GetRecordingRelations(ctx context.Context, id string) ([]Relation, error)
	GetWorkRelations(ctx context.Context, id string) ([]Relation, error)
	GetReleaseRelations(ctx context.Context, id string) ([]Relation, error)
	GetArtistRecordingRelations(ctx context.Context, artistID string) ([]Relation, error)
	BrowseRecordings(ctx context.Context, artistID string, offset, limit int) (*RecordingPage, error)
	GetWorkRecordings(ctx context.Context, workID string) ([]RecordingSummary, error)
	GetRecordingISRCs(ctx context.Context, id string) ([]string, error)
	SearchArtists(ctx context.Context, name string) ([]ArtistSearchResult, error)
}

// PageSearchResult is one encyclopedia full-text search hit.
type PageSearchResult struct {
	PageID  int    `json:"page_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Page is a fetched encyclopedia article with its raw markup.
type Page struct {
	PageID int    `json:"page_id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Markup string `json:"markup"`
}

// Encyclopedia is a collaborative encyclopedia with free-text article markup.
type Encyclopedia interface {
	SearchPages(ctx context.Context, query string, limit int) ([]PageSearchResult, error)
	FetchPage(ctx context.Context, pageID int) (*Page, error)
}

// RecordingPopularity is a listen count for one recording. Count is nil
// when the service has no data for the recording.
type RecordingPopularity struct {
	RecordingID string `json:"recording_id"`
	Title       string `json:"title,omitempty"`
	Count       *int   `json:"count,omitempty"`
}

// Popularity is a play-count service keyed by music-graph recording ids.
type Popularity interface {
	RecordingPopularity(ctx context.Context, recordingIDs []string) ([]RecordingPopularity, error)
	TopRecordingsForArtist(ctx context.Context, artistID string) ([]RecordingPopularity, error)
}

// CatalogueTrack is a track in the commercial streaming catalogue.
type CatalogueTrack struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists,omitempty"`
	ISRC       string   `json:"isrc,omitempty"`
	Popularity *int     `json:"popularity,omitempty"`
}

// Playlist is a handle to a created catalogue playlist.
type Playlist struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Catalogue is the commercial streaming catalogue.
type Catalogue interface {
	SearchByISRC(ctx context.Context, isrc string) ([]CatalogueTrack, error)
	SearchByText(ctx context.Context, title, artist string) ([]CatalogueTrack, error)
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*Playlist, error)
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}
