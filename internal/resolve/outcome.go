// Package resolve matches a playing track, its album article, or an artist
// name to a single canonical entity at a remote metadata provider.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sydlexius/linernotes/internal/provider"
)

// NowPlayingTrack is the track reported by the media player. TrackNumber is
// zero when the player does not know it.
type NowPlayingTrack struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
}

// State is the terminal outcome of one resolution attempt.
type State string

// Resolution states. All of them are expected outcomes that callers handle.
const (
	StateSuccess      State = "success"
	StateNotFound     State = "not_found"
	StateAmbiguous    State = "ambiguous"
	StateRateLimited  State = "rate_limited"
	StateNetworkError State = "network_error"
)

// ResolutionResult identifies the recording a track resolved to.
type ResolutionResult struct {
	RecordingID string   `json:"recording_id"`
	ReleaseID   string   `json:"release_id,omitempty"`
	WorkIDs     []string `json:"work_ids,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// WithWorks returns a copy of r carrying the given work ids.
func (r ResolutionResult) WithWorks(ids []string) ResolutionResult {
	r.WorkIDs = append([]string(nil), ids...)
	return r
}

// Outcome is the result of a track resolution. Result is set only on success.
type Outcome struct {
	State      State             `json:"state"`
	Result     *ResolutionResult `json:"result,omitempty"`
	Message    string            `json:"message,omitempty"`
	RetryAfter time.Duration     `json:"retry_after,omitempty"`
}

// PageOutcome is the result of an encyclopedia page resolution.
type PageOutcome struct {
	State      State         `json:"state"`
	PageID     int           `json:"page_id,omitempty"`
	Title      string        `json:"title,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Message    string        `json:"message,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// ArtistResolutionError reports that an artist name could not be mapped to
// a single music-graph identifier.
type ArtistResolutionError struct {
	Name    string
	Message string
}

func (e *ArtistResolutionError) Error() string {
	return fmt.Sprintf("resolving artist %q: %s", e.Name, e.Message)
}

// classify maps a provider error to a terminal state. ok is false when err
// is a cancellation, which callers return as-is. A per-request timeout
// inside a provider is a network error, not a cancellation.
func classify(ctx context.Context, err error) (state State, msg string, retryAfter time.Duration, ok bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return "", "", 0, false
	}
	var rl *provider.ErrRateLimited
	switch {
	case provider.IsNotFound(err):
		return StateNotFound, "", 0, true
	case errors.As(err, &rl):
		return StateRateLimited, rl.Error(), rl.RetryAfter, true
	default:
		return StateNetworkError, err.Error(), 0, true
	}
}

// cancelErr returns the context error when set, else err.
func cancelErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
