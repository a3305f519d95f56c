package playlist

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/sydlexius/linernotes/internal/discography"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// rank orders recordings by listen count, most played first. Counts come
// from a per-recording lookup, then from the artists' top recordings
// (matched by id or title key), and recordings with no count sort
// alphabetically after the rest. The source reports which signal ranked
// anything at all.
func (b *Builder) rank(ctx context.Context, recs []discography.RecordingRel, artists ...discography.Artist) ([]discography.RecordingRel, RankSource, error) {
	counts, err := b.recordingCounts(ctx, recs)
	if err != nil {
		return nil, "", err
	}
	source := RankPopularity
	if len(counts) == 0 {
		counts, err = b.topRecordingCounts(ctx, recs, artists)
		if err != nil {
			return nil, "", err
		}
		source = RankTopRecordings
	}
	if len(counts) == 0 {
		source = RankAlphabetical
	}

	out := slices.Clone(recs)
	slices.SortStableFunc(out, func(x, y discography.RecordingRel) int {
		cx, okx := counts[x.ID]
		cy, oky := counts[y.ID]
		switch {
		case okx && oky:
			if c := cmp.Compare(cy, cx); c != 0 {
				return c
			}
		case okx:
			return -1
		case oky:
			return 1
		}
		return cmpOr(
			cmp.Compare(strings.ToLower(x.Title), strings.ToLower(y.Title)),
			cmp.Compare(x.ID, y.ID),
		)
	})
	b.logger.Debug("recordings ranked",
		slog.Int("recordings", len(out)),
		slog.Int("with_counts", len(counts)),
		slog.String("source", string(source)))
	return out, source, nil
}

// recordingCounts looks up listen counts by recording id. Lookup failures
// other than cancellation leave the map empty.
func (b *Builder) recordingCounts(ctx context.Context, recs []discography.RecordingRel) (map[string]int, error) {
	if b.popularity == nil || len(recs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	pops, err := b.popularity.RecordingPopularity(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.Warn("recording popularity lookup failed", slog.Any("error", err))
		return nil, nil
	}
	counts := make(map[string]int, len(pops))
	for _, p := range pops {
		if p.Count != nil {
			counts[p.RecordingID] = *p.Count
		}
	}
	return counts, nil
}

func (b *Builder) topRecordingCounts(ctx context.Context, recs []discography.RecordingRel, artists []discography.Artist) (map[string]int, error) {
	if b.popularity == nil {
		return nil, nil
	}
	byID := make(map[string]int)
	byTitle := make(map[string]int)
	for _, a := range artists {
		if a.ID == "" {
			continue
		}
		top, err := b.popularity.TopRecordingsForArtist(ctx, a.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger.Warn("top recordings lookup failed", slog.String("artist_id", a.ID), slog.Any("error", err))
			continue
		}
		for _, p := range top {
			if p.Count == nil {
				continue
			}
			byID[p.RecordingID] = max(byID[p.RecordingID], *p.Count)
			if k := textmatch.Key(p.Title); k != "" {
				byTitle[k] = max(byTitle[k], *p.Count)
			}
		}
	}

	counts := make(map[string]int)
	for _, r := range recs {
		if n, ok := byID[r.ID]; ok {
			counts[r.ID] = n
			continue
		}
		if n, ok := byTitle[textmatch.Key(r.Title)]; ok {
			counts[r.ID] = n
		}
	}
	return counts, nil
}
