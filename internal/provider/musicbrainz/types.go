package musicbrainz

// MusicBrainz API response types.

// MBArtistCredit is one entry of an artist-credit array.
type MBArtistCredit struct {
	Name       string   `json:"name"`
	JoinPhrase string   `json:"joinphrase"`
	Artist     MBArtist `json:"artist"`
}

// MBArtist represents a MusicBrainz artist entity.
type MBArtist struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	SortName       string `json:"sort-name"`
	Type           string `json:"type"`
	Disambiguation string `json:"disambiguation"`
	Country        string `json:"country"`
	Score          int    `json:"score"`
}

// MBRelease is the short release form embedded in recording search hits.
type MBRelease struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MBRecording represents a MusicBrainz recording entity.
type MBRecording struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Score        int              `json:"score"`
	Length       int              `json:"length"`
	ISRCs        []string         `json:"isrcs"`
	ArtistCredit []MBArtistCredit `json:"artist-credit"`
	Releases     []MBRelease      `json:"releases"`
	Relations    []MBRelation     `json:"relations"`
}

// MBWork represents a MusicBrainz work entity.
type MBWork struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Relations []MBRelation `json:"relations"`
}

// MBEntityWithRelations is the shape shared by artist/release lookups with *-rels includes.
type MBEntityWithRelations struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Name      string       `json:"name"`
	Relations []MBRelation `json:"relations"`
}

// MBRelation represents a relationship between entities.
type MBRelation struct {
	Type         string       `json:"type"`
	TargetType   string       `json:"target-type"`
	Direction    string       `json:"direction"`
	Attributes   []string     `json:"attributes"`
	TargetCredit string       `json:"target-credit"`
	Artist       *MBArtist    `json:"artist,omitempty"`
	Recording    *MBRecording `json:"recording,omitempty"`
	Work         *MBWork      `json:"work,omitempty"`
}

// RecordingSearchResponse is the top-level response from the recording search endpoint.
type RecordingSearchResponse struct {
	Created    string        `json:"created"`
	Count      int           `json:"count"`
	Offset     int           `json:"offset"`
	Recordings []MBRecording `json:"recordings"`
}

// RecordingBrowseResponse is the top-level response from the recording browse endpoint.
type RecordingBrowseResponse struct {
	RecordingCount  int           `json:"recording-count"`
	RecordingOffset int           `json:"recording-offset"`
	Recordings      []MBRecording `json:"recordings"`
}

// ArtistSearchResponse is the top-level response from the artist search endpoint.
type ArtistSearchResponse struct {
	Created string     `json:"created"`
	Count   int        `json:"count"`
	Offset  int        `json:"offset"`
	Artists []MBArtist `json:"artists"`
}
