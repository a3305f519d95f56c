package discography

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/sydlexius/linernotes/internal/cache"
	"github.com/sydlexius/linernotes/internal/event"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// ErrNoIntersectionFound is returned when two artists share no recording.
var ErrNoIntersectionFound = errors.New("no shared recordings found")

// MatchMode selects which join stages an intersection runs.
type MatchMode string

// Match modes.
const (
	// ModeFuzzy runs the id, ISRC and canonical-key joins.
	ModeFuzzy MatchMode = "fuzzy"
	// ModeStrict runs only the id and ISRC joins.
	ModeStrict MatchMode = "strict"
)

// Join thresholds of the canonical-key stage.
const (
	keyTitleFloor       = 0.82
	keyTitleWeight      = 0.72
	keyArtistWeight     = 0.28
	keyISRCBonus        = 0.10
	keyAccept           = 0.74
	pureTitleWeight     = 0.90
	pureTitleAccept     = 0.88
	isrcTitleTieBreaker = 0.05
	unmatchedSampleSize = 5
)

// Stage names the join stage that produced a match.
type Stage string

// Join stages.
const (
	StageID           Stage = "id"
	StageISRC         Stage = "isrc"
	StageCanonicalKey Stage = "canonical_key"
)

// Match pairs a left and a right recording.
type Match struct {
	Left  RecordingRel
	Right RecordingRel
	Stage Stage
	Score float64

	leftIndex int
}

// IntersectionTelemetry describes how an intersection was reached.
type IntersectionTelemetry struct {
	Mode                 MatchMode `json:"mode"`
	LeftInput            int       `json:"left_input"`
	RightInput           int       `json:"right_input"`
	LeftVariantsDropped  int       `json:"left_variants_dropped"`
	RightVariantsDropped int       `json:"right_variants_dropped"`
	IDMatches            int       `json:"id_matches"`
	ISRCMatches          int       `json:"isrc_matches"`
	CanonicalKeyMatches  int       `json:"canonical_key_matches"`
	UnmatchedLeft        []string  `json:"unmatched_left,omitempty"`
	UnmatchedRight       []string  `json:"unmatched_right,omitempty"`
}

// Total is the number of matches across all stages.
func (t IntersectionTelemetry) Total() int {
	return t.IDMatches + t.ISRCMatches + t.CanonicalKeyMatches
}

// side is a remainder set: recordings with their index in the canonical
// input, so stages can thread what is still unmatched.
type side struct {
	recs []RecordingRel
	idx  []int
}

func newSide(recs []RecordingRel) side {
	s := side{recs: recs, idx: make([]int, len(recs))}
	for i := range recs {
		s.idx[i] = i
	}
	return s
}

// without returns s minus the entries whose positions are set in used.
func (s side) without(used []bool) side {
	var out side
	for i := range s.recs {
		if !used[i] {
			out.recs = append(out.recs, s.recs[i])
			out.idx = append(out.idx, s.idx[i])
		}
	}
	return out
}

// stage matches what is left of two sides and returns the matches and the
// new remainders.
type stage func(left, right side) ([]Match, side, side)

// Intersect matches recordings that appear in both lists. Each side is
// canonicalized first, then joined by id, by shared ISRC and, in fuzzy
// mode, by canonical key. Each stage sees only what earlier stages left
// unmatched. Matched pairs are merged, in left order.
func Intersect(left, right []RecordingRel, mode MatchMode) ([]RecordingRel, IntersectionTelemetry) {
	if mode == "" {
		mode = ModeFuzzy
	}
	tel := IntersectionTelemetry{Mode: mode, LeftInput: len(left), RightInput: len(right)}

	lc, ldrop := Canonicalize(left)
	rc, rdrop := Canonicalize(right)
	tel.LeftVariantsDropped, tel.RightVariantsDropped = ldrop, rdrop

	stages := []struct {
		run   stage
		count *int
	}{
		{joinByID, &tel.IDMatches},
		{joinByISRC, &tel.ISRCMatches},
		{joinByCanonicalKey, &tel.CanonicalKeyMatches},
	}
	if mode == ModeStrict {
		stages = stages[:2]
	}

	var all []Match
	l, r := newSide(lc), newSide(rc)
	for _, st := range stages {
		var ms []Match
		ms, l, r = st.run(l, r)
		*st.count = len(ms)
		all = append(all, ms...)
	}

	tel.UnmatchedLeft = sampleTitles(l.recs)
	tel.UnmatchedRight = sampleTitles(r.recs)

	slices.SortStableFunc(all, func(a, b Match) int { return a.leftIndex - b.leftIndex })
	out := make([]RecordingRel, 0, len(all))
	for _, m := range all {
		merged := Merge(m.Left, m.Right)
		merged.ID = m.Left.ID
		merged.CanonicalKey = m.Left.CanonicalKey
		out = append(out, merged)
	}
	return out, tel
}

func joinByID(left, right side) ([]Match, side, side) {
	byID := make(map[string]int, len(right.recs))
	for i, r := range right.recs {
		if _, ok := byID[r.ID]; !ok && r.ID != "" {
			byID[r.ID] = i
		}
	}
	usedL := make([]bool, len(left.recs))
	usedR := make([]bool, len(right.recs))
	var out []Match
	for i, l := range left.recs {
		j, ok := byID[l.ID]
		if !ok || usedR[j] {
			continue
		}
		usedL[i], usedR[j] = true, true
		out = append(out, Match{Left: l, Right: right.recs[j], Stage: StageID, Score: 1, leftIndex: left.idx[i]})
	}
	return out, left.without(usedL), right.without(usedR)
}

func joinByISRC(left, right side) ([]Match, side, side) {
	byISRC := make(map[string][]int)
	for j, r := range right.recs {
		for _, code := range r.ISRCs {
			byISRC[code] = append(byISRC[code], j)
		}
	}
	usedL := make([]bool, len(left.recs))
	usedR := make([]bool, len(right.recs))
	var out []Match
	for i, l := range left.recs {
		if len(l.ISRCs) == 0 {
			continue
		}
		shared := make(map[int]int)
		var order []int
		for _, code := range l.ISRCs {
			for _, j := range byISRC[code] {
				if usedR[j] {
					continue
				}
				if shared[j] == 0 {
					order = append(order, j)
				}
				shared[j]++
			}
		}
		best, bestScore := -1, 0.0
		for _, j := range order {
			score := float64(shared[j]) + isrcTitleTieBreaker*textmatch.Similarity(l.Title, right.recs[j].Title, textmatch.DefaultContainsBonus)
			if score > bestScore {
				best, bestScore = j, score
			}
		}
		if best < 0 {
			continue
		}
		usedL[i], usedR[best] = true, true
		out = append(out, Match{Left: l, Right: right.recs[best], Stage: StageISRC, Score: bestScore, leftIndex: left.idx[i]})
	}
	return out, left.without(usedL), right.without(usedR)
}

func joinByCanonicalKey(left, right side) ([]Match, side, side) {
	byKey := make(map[string][]int)
	for j, r := range right.recs {
		byKey[r.CanonicalKey] = append(byKey[r.CanonicalKey], j)
	}
	usedL := make([]bool, len(left.recs))
	usedR := make([]bool, len(right.recs))
	var out []Match
	for i, l := range left.recs {
		best, bestScore := -1, 0.0
		for _, j := range byKey[l.CanonicalKey] {
			if usedR[j] {
				continue
			}
			score, ok := keyJoinScore(l, right.recs[j])
			if ok && score > bestScore {
				best, bestScore = j, score
			}
		}
		if best < 0 {
			continue
		}
		usedL[i], usedR[best] = true, true
		out = append(out, Match{Left: l, Right: right.recs[best], Stage: StageCanonicalKey, Score: bestScore, leftIndex: left.idx[i]})
	}
	return out, left.without(usedL), right.without(usedR)
}

// keyJoinScore scores two recordings that share a canonical key. Without
// any artist overlap the title alone must clear a much higher bar.
func keyJoinScore(l, r RecordingRel) (float64, bool) {
	title := textmatch.Similarity(l.Title, r.Title, textmatch.DefaultContainsBonus)
	if title < keyTitleFloor {
		return 0, false
	}
	bonus := 0.0
	if sharesISRC(l, r) {
		bonus = keyISRCBonus
	}
	if overlap := artistOverlap(l.ArtistCredits, r.ArtistCredits); overlap > 0 {
		score := keyTitleWeight*title + keyArtistWeight*overlap + bonus
		return score, score >= keyAccept
	}
	score := pureTitleWeight*title + bonus
	return score, score >= pureTitleAccept
}

func sharesISRC(a, b RecordingRel) bool {
	for _, x := range a.ISRCs {
		if slices.Contains(b.ISRCs, x) {
			return true
		}
	}
	return false
}

// artistOverlap is the share of the smaller credit list also present in
// the other, by normalized name.
func artistOverlap(a, b []string) float64 {
	ka, kb := keySet(a), keySet(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	shared := 0
	for k := range ka {
		if kb[k] {
			shared++
		}
	}
	return float64(shared) / float64(min(len(ka), len(kb)))
}

func keySet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		if k := textmatch.Key(n); k != "" {
			out[k] = true
		}
	}
	return out
}

func sampleTitles(recs []RecordingRel) []string {
	var out []string
	for _, r := range recs {
		if len(out) == unmatchedSampleSize {
			break
		}
		out = append(out, r.Title)
	}
	return out
}

// PairCacheKey is the cache key of a co-credit intersection. The artist
// ids are sorted so argument order does not matter.
func PairCacheKey(a, b string, mode MatchMode) string {
	return "discography:v1:" + pairID(a, b) + ":" + string(mode)
}

func pairID(a, b string) string {
	return "pair:" + min(a, b) + "|" + max(a, b)
}

// FetchCoCredit returns the recordings credited to both artists. Each
// discography is fetched (or read from cache) independently; the
// intersection is cached under the pair key.
func (e *Engine) FetchCoCredit(ctx context.Context, a, b Artist, mode MatchMode) (*Result, error) {
	if mode == "" {
		mode = ModeFuzzy
	}
	key := PairCacheKey(a.ID, b.ID, mode)
	return cache.Fetch(ctx, e.loader, key, e.cfg.TTL, func(ctx context.Context) (*Result, error) {
		return e.intersect(ctx, a, b, mode)
	})
}

func (e *Engine) intersect(ctx context.Context, a, b Artist, mode MatchMode) (*Result, error) {
	var left, right *Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		left, err = e.FetchAll(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		right, err = e.FetchAll(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recs, tel := Intersect(left.Recordings, right.Recordings, mode)
	e.logger.Info("co-credit intersection",
		slog.String("left", a.ID),
		slog.String("right", b.ID),
		slog.String("mode", string(mode)),
		slog.Int("left_input", tel.LeftInput),
		slog.Int("right_input", tel.RightInput),
		slog.Int("left_variants_dropped", tel.LeftVariantsDropped),
		slog.Int("right_variants_dropped", tel.RightVariantsDropped),
		slog.Int("id_matches", tel.IDMatches),
		slog.Int("isrc_matches", tel.ISRCMatches),
		slog.Int("canonical_key_matches", tel.CanonicalKeyMatches),
		slog.Any("unmatched_left_sample", tel.UnmatchedLeft),
		slog.Any("unmatched_right_sample", tel.UnmatchedRight))
	e.bus.Publish(event.Event{Type: event.IntersectionComputed, Data: map[string]any{
		"left":          a.ID,
		"right":         b.ID,
		"mode":          string(mode),
		"id":            tel.IDMatches,
		"isrc":          tel.ISRCMatches,
		"canonical_key": tel.CanonicalKeyMatches,
	}})

	if len(recs) == 0 {
		return nil, ErrNoIntersectionFound
	}
	return &Result{
		ArtistID:   pairID(a.ID, b.ID),
		ArtistName: a.Name + " & " + b.Name,
		Recordings: recs,
		FetchedAt:  e.now().UTC(),
		Telemetry:  &tel,
	}, nil
}
