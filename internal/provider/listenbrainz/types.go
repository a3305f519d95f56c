package listenbrainz

// ListenBrainz popularity API types.

// RecordingPopularityRequest is the body of POST /1/popularity/recording.
type RecordingPopularityRequest struct {
	RecordingMBIDs []string `json:"recording_mbids"`
}

// RecordingPopularityItem is one element of the popularity response.
// Counts are null for recordings with no listens.
type RecordingPopularityItem struct {
	RecordingMBID    string `json:"recording_mbid"`
	TotalListenCount *int   `json:"total_listen_count"`
	TotalUserCount   *int   `json:"total_user_count"`
}

// TopRecording is one element of the top-recordings-for-artist response.
type TopRecording struct {
	ArtistMBIDs      []string `json:"artist_mbids"`
	ArtistName       string   `json:"artist_name"`
	RecordingMBID    string   `json:"recording_mbid"`
	RecordingName    string   `json:"recording_name"`
	ReleaseMBID      string   `json:"release_mbid"`
	ReleaseName      string   `json:"release_name"`
	TotalListenCount *int     `json:"total_listen_count"`
	TotalUserCount   *int     `json:"total_user_count"`
}
