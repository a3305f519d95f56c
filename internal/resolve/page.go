package resolve

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// Page scoring boosts and acceptance thresholds.
const (
	boostAlbumWord   = 0.12
	boostAlbumMarker = 0.18
	boostArtist      = 0.18

	pageRejectBelow      = 0.45
	pageAmbiguousBest    = 0.60
	pageAmbiguousRunner  = 0.55
	pageAmbiguousMargin  = 0.07
	pageHighConfidence   = 0.95
	defaultPageSearchMax = 10
)

// PageResolver resolves an album to one encyclopedia article.
type PageResolver struct {
	wiki   provider.Encyclopedia
	logger *slog.Logger
}

// NewPageResolver creates a PageResolver.
func NewPageResolver(wiki provider.Encyclopedia, logger *slog.Logger) *PageResolver {
	return &PageResolver{
		wiki:   wiki,
		logger: logger.With(slog.String("component", "page-resolver")),
	}
}

// ScoredPage pairs a search hit with its score.
type ScoredPage struct {
	Hit   provider.PageSearchResult
	Score float64
}

// Resolve finds the article for the track's album (or its title, for
// tracks without album metadata). The returned error is non-nil only when
// ctx is canceled.
func (r *PageResolver) Resolve(ctx context.Context, track NowPlayingTrack) (PageOutcome, error) {
	subject := strings.TrimSpace(track.Album)
	if subject == "" {
		subject = strings.TrimSpace(track.Title)
	}
	if subject == "" {
		return PageOutcome{State: StateNotFound}, nil
	}

	query := fmt.Sprintf("%q %s album", subject, track.Artist)
	hits, err := r.wiki.SearchPages(ctx, query, defaultPageSearchMax)
	if err != nil {
		state, msg, after, ok := classify(ctx, err)
		if !ok {
			return PageOutcome{}, cancelErr(ctx, err)
		}
		return PageOutcome{State: state, Message: msg, RetryAfter: after}, nil
	}

	scored := ScorePages(subject, track.Artist, hits)
	if len(scored) == 0 || scored[0].Score < pageRejectBelow {
		return PageOutcome{State: StateNotFound}, nil
	}

	best := scored[0]
	if len(scored) > 1 {
		runner := scored[1]
		margin := best.Score - runner.Score
		bothHigh := best.Score >= pageHighConfidence && runner.Score >= pageHighConfidence
		if best.Score >= pageAmbiguousBest && runner.Score >= pageAmbiguousRunner && margin < pageAmbiguousMargin && !bothHigh {
			r.logger.Debug("ambiguous page match",
				slog.String("best", best.Hit.Title),
				slog.String("runner_up", runner.Hit.Title),
				slog.Float64("margin", margin))
			return PageOutcome{State: StateAmbiguous}, nil
		}
	}

	return PageOutcome{
		State:      StateSuccess,
		PageID:     best.Hit.PageID,
		Title:      best.Hit.Title,
		Confidence: best.Score,
	}, nil
}

// ScorePages scores search hits against an album and artist, best first.
func ScorePages(album, artist string, hits []provider.PageSearchResult) []ScoredPage {
	normArtist := textmatch.Normalize(artist, textmatch.Basic)
	out := make([]ScoredPage, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredPage{Hit: h, Score: scorePage(album, normArtist, h)})
	}
	slices.SortStableFunc(out, func(a, b ScoredPage) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

func scorePage(album, normArtist string, h provider.PageSearchResult) float64 {
	score := textmatch.Similarity(album, h.Title, textmatch.PageContainsBonus)
	if strings.Contains(textmatch.Normalize(h.Title, textmatch.Basic), "album") {
		score += boostAlbumWord
	}
	if strings.Contains(strings.ToLower(h.Title), "(album)") {
		score += boostAlbumMarker
	}
	if normArtist != "" && strings.Contains(textmatch.Normalize(h.Snippet, textmatch.Basic), normArtist) {
		score += boostArtist
	}
	return min(score, 1.0)
}
