package resolve

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// Candidate score weights.
const (
	weightProvider = 0.45
	weightTitle    = 0.30
	weightArtist   = 0.20
	weightAlbum    = 0.05

	// blankAlbumSimilarity is used when the track carries no album, so
	// missing metadata is not penalized.
	blankAlbumSimilarity = 0.6
)

// TrackConfig holds the acceptance policy of the track resolver.
type TrackConfig struct {
	Threshold float64 `yaml:"threshold"`
	MinMargin float64 `yaml:"min_margin"`
}

// DefaultTrackConfig returns a 0.78 confidence threshold and a 0.10 margin.
func DefaultTrackConfig() TrackConfig {
	return TrackConfig{Threshold: 0.78, MinMargin: 0.10}
}

// TrackResolver resolves a playing track to one music-graph recording.
type TrackResolver struct {
	graph  provider.MusicGraph
	cfg    TrackConfig
	logger *slog.Logger
}

// NewTrackResolver creates a TrackResolver. Zero config fields take defaults.
func NewTrackResolver(graph provider.MusicGraph, cfg TrackConfig, logger *slog.Logger) *TrackResolver {
	def := DefaultTrackConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MinMargin <= 0 {
		cfg.MinMargin = def.MinMargin
	}
	return &TrackResolver{
		graph:  graph,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "track-resolver")),
	}
}

// ScoredCandidate pairs a search hit with its combined score.
type ScoredCandidate struct {
	Candidate provider.RecordingCandidate
	Score     float64
}

// Resolve searches for the track and picks one recording. The returned
// error is non-nil only when ctx is canceled; every other failure is an
// Outcome state.
func (r *TrackResolver) Resolve(ctx context.Context, track NowPlayingTrack) (Outcome, error) {
	cands, err := r.graph.SearchRecordings(ctx, track.Title, track.Artist, track.Album)
	if err == nil && len(cands) == 0 && strings.TrimSpace(track.Album) != "" {
		r.logger.Debug("no candidates with album, retrying without",
			slog.String("title", track.Title), slog.String("album", track.Album))
		cands, err = r.graph.SearchRecordings(ctx, track.Title, track.Artist, "")
	}
	if err != nil {
		state, msg, after, ok := classify(ctx, err)
		if !ok {
			return Outcome{}, cancelErr(ctx, err)
		}
		r.logger.Debug("recording search failed", slog.String("state", string(state)), slog.String("error", err.Error()))
		return Outcome{State: state, Message: msg, RetryAfter: after}, nil
	}
	if len(cands) == 0 {
		return Outcome{State: StateNotFound}, nil
	}

	scored := ScoreCandidates(track, cands)
	best := scored[0]
	margin := best.Score
	if len(scored) > 1 {
		margin = best.Score - scored[1].Score
	}

	if best.Score < r.cfg.Threshold || margin < r.cfg.MinMargin {
		r.logger.Debug("ambiguous recording match",
			slog.String("title", track.Title),
			slog.Float64("best", best.Score),
			slog.Float64("margin", margin))
		return Outcome{State: StateAmbiguous}, nil
	}

	res := &ResolutionResult{
		RecordingID: best.Candidate.ID,
		ReleaseID:   PickRelease(best.Candidate, track.Album),
		Confidence:  best.Score,
	}
	return Outcome{State: StateSuccess, Result: res}, nil
}

// ScoreCandidates scores every candidate and returns them best first.
// Ties keep the provider's order.
func ScoreCandidates(track NowPlayingTrack, cands []provider.RecordingCandidate) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, ScoredCandidate{Candidate: c, Score: scoreCandidate(track, c)})
	}
	slices.SortStableFunc(out, func(a, b ScoredCandidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

func scoreCandidate(track NowPlayingTrack, c provider.RecordingCandidate) float64 {
	providerScore := float64(min(max(c.Score, 0), 100)) / 100

	title := textmatch.Similarity(track.Title, c.Title, textmatch.DefaultContainsBonus)
	artist := bestSimilarity(track.Artist, append([]string{strings.Join(c.ArtistNames, " ")}, c.ArtistNames...))

	album := blankAlbumSimilarity
	if strings.TrimSpace(track.Album) != "" {
		album = bestSimilarity(track.Album, c.ReleaseTitles)
	}

	return weightProvider*providerScore + weightTitle*title + weightArtist*artist + weightAlbum*album
}

// PickRelease returns the release id whose title best matches album, or
// the first release id when album is blank.
func PickRelease(c provider.RecordingCandidate, album string) string {
	if len(c.ReleaseIDs) == 0 {
		return ""
	}
	if strings.TrimSpace(album) == "" {
		return c.ReleaseIDs[0]
	}
	bestIdx, bestScore := 0, -1.0
	for i, title := range c.ReleaseTitles {
		if i >= len(c.ReleaseIDs) {
			break
		}
		if s := textmatch.Similarity(album, title, textmatch.DefaultContainsBonus); s > bestScore {
			bestIdx, bestScore = i, s
		}
	}
	return c.ReleaseIDs[bestIdx]
}

func bestSimilarity(want string, options []string) float64 {
	best := 0.0
	for _, o := range options {
		if s := textmatch.Similarity(want, o, textmatch.DefaultContainsBonus); s > best {
			best = s
		}
	}
	return best
}
