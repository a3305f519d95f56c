package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// minArtistScore is the provider score accepted without an exact name match.
const minArtistScore = 90

// ArtistMatch is a resolved music-graph artist.
type ArtistMatch struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// ArtistResolver maps an artist name to a music-graph identifier.
type ArtistResolver struct {
	graph  provider.MusicGraph
	logger *slog.Logger
}

// NewArtistResolver creates an ArtistResolver.
func NewArtistResolver(graph provider.MusicGraph, logger *slog.Logger) *ArtistResolver {
	return &ArtistResolver{
		graph:  graph,
		logger: logger.With(slog.String("component", "artist-resolver")),
	}
}

// Resolve picks the highest-scoring search hit whose normalized name equals
// the query, falling back to the top hit when its score is at least 90.
// Anything else is an *ArtistResolutionError. Provider rate limiting and
// cancellation are returned unchanged.
func (r *ArtistResolver) Resolve(ctx context.Context, name string) (*ArtistMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ArtistResolutionError{Name: name, Message: "empty artist name"}
	}

	results, err := r.graph.SearchArtists(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if provider.IsRateLimited(err) {
			return nil, err
		}
		return nil, &ArtistResolutionError{Name: name, Message: err.Error()}
	}
	if len(results) == 0 {
		return nil, &ArtistResolutionError{Name: name, Message: "no matching artists"}
	}

	key := textmatch.Key(name)
	var exact *provider.ArtistSearchResult
	top := &results[0]
	for i := range results {
		res := &results[i]
		if res.Score > top.Score {
			top = res
		}
		if textmatch.Key(res.Name) == key && (exact == nil || res.Score > exact.Score) {
			exact = res
		}
	}

	pick := exact
	if pick == nil && top.Score >= minArtistScore {
		pick = top
	}
	if pick == nil {
		return nil, &ArtistResolutionError{Name: name, Message: "no confident match"}
	}

	r.logger.Debug("artist resolved",
		slog.String("name", name),
		slog.String("id", pick.ProviderID),
		slog.Int("score", pick.Score))
	return &ArtistMatch{ID: pick.ProviderID, Name: pick.Name, Score: pick.Score}, nil
}
