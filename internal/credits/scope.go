package credits

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ScopeKind says which tracks of a release a credit covers.
type ScopeKind string

// Scope kinds.
const (
	ScopeAlbum           ScopeKind = "album"
	ScopeTracks          ScopeKind = "tracks"
	ScopeRange           ScopeKind = "range"
	ScopeUnknownSpecific ScopeKind = "unknown_specific"
)

// maxRangeExpansion bounds how many track numbers a range inside a mixed
// list ("1-4, 9") is expanded into.
const maxRangeExpansion = 99

// Scope is the set of tracks a credit applies to. Tracks is set for
// ScopeTracks, From and To for ScopeRange.
type Scope struct {
	Kind   ScopeKind `json:"kind"`
	Tracks []int     `json:"tracks,omitempty"`
	From   int       `json:"from,omitempty"`
	To     int       `json:"to,omitempty"`
}

// AlbumScope covers every track.
func AlbumScope() Scope { return Scope{Kind: ScopeAlbum} }

// UnknownScope is track-specific, but the tracks could not be determined.
func UnknownScope() Scope { return Scope{Kind: ScopeUnknownSpecific} }

// TrackScope covers the given track numbers.
func TrackScope(tracks ...int) Scope {
	ts := slices.Clone(tracks)
	slices.Sort(ts)
	return Scope{Kind: ScopeTracks, Tracks: slices.Compact(ts)}
}

// RangeScope covers from..to inclusive.
func RangeScope(from, to int) Scope {
	if from > to {
		from, to = to, from
	}
	return Scope{Kind: ScopeRange, From: from, To: to}
}

// Applies reports whether the credit covers track. Album-wide and
// unknown-specific scopes apply to every track, so a credit whose tracks
// could not be parsed is never dropped.
func (s Scope) Applies(track int) bool {
	switch s.Kind {
	case ScopeTracks:
		return slices.Contains(s.Tracks, track)
	case ScopeRange:
		return track >= s.From && track <= s.To
	default:
		return true
	}
}

// IsAlbum reports whether s is album-wide (the zero Scope counts as album-wide).
func (s Scope) IsAlbum() bool {
	return s.Kind == ScopeAlbum || s.Kind == ""
}

// Key is a stable string form used in dedup keys.
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeTracks:
		parts := make([]string, len(s.Tracks))
		for i, t := range s.Tracks {
			parts[i] = strconv.Itoa(t)
		}
		return "tracks:" + strings.Join(parts, ",")
	case ScopeRange:
		return fmt.Sprintf("range:%d-%d", s.From, s.To)
	case ScopeUnknownSpecific:
		return "unknown"
	default:
		return "album"
	}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeTracks:
		parts := make([]string, len(s.Tracks))
		for i, t := range s.Tracks {
			parts[i] = strconv.Itoa(t)
		}
		if len(parts) == 1 {
			return "track " + parts[0]
		}
		return "tracks " + strings.Join(parts, ", ")
	case ScopeRange:
		return fmt.Sprintf("tracks %d–%d", s.From, s.To)
	case ScopeUnknownSpecific:
		return "some tracks"
	default:
		return "all tracks"
	}
}

var (
	scopeWordRe  = regexp.MustCompile(`\b(?:tracks?|songs?|on|nos?)\b\.?|#`)
	scopeSplitRe = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)
	scopeRangeRe = regexp.MustCompile(`^(\d+)\s*(?:-|to)\s*(\d+)$`)
	scopeCodeRe  = regexp.MustCompile(`^[a-z]?\d+[a-z]?$`)
)

// ParseScope reads scope text such as "track 2", "tracks 1, 3 and 7",
// "1–4", "all tracks" or "all tracks except 3". ok is false when the text
// does not describe tracks at all.
//
// "All tracks except N" is kept as unknown-specific rather than computed,
// since the release's track count is not known here.
func ParseScope(text string) (Scope, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.NewReplacer("–", "-", "—", "-", "‒", "-").Replace(t)
	if t == "" {
		return Scope{}, false
	}

	if strings.Contains(t, "all tracks") || strings.Contains(t, "all songs") {
		if strings.Contains(t, "except") {
			return UnknownScope(), true
		}
		return AlbumScope(), true
	}

	hadTrackWord := strings.Contains(t, "track") || strings.Contains(t, "song")
	t = strings.TrimSpace(scopeWordRe.ReplaceAllString(t, " "))
	if !strings.ContainsAny(t, "0123456789") {
		return Scope{}, false
	}

	var (
		nums   []int
		ranges [][2]int
		other  []string
	)
	for _, tok := range scopeSplitRe.Split(t, -1) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			nums = append(nums, n)
			continue
		}
		if m := scopeRangeRe.FindStringSubmatch(tok); m != nil {
			from, _ := strconv.Atoi(m[1])
			to, _ := strconv.Atoi(m[2])
			ranges = append(ranges, [2]int{from, to})
			continue
		}
		other = append(other, tok)
	}

	if len(other) > 0 {
		if hadTrackWord || allCodes(other) {
			return UnknownScope(), true
		}
		return Scope{}, false
	}

	switch {
	case len(ranges) == 1 && len(nums) == 0:
		return RangeScope(ranges[0][0], ranges[0][1]), true
	case len(ranges) == 0:
		return TrackScope(nums...), true
	}

	// Mixed list: expand the ranges into the explicit set.
	for _, r := range ranges {
		from, to := min(r[0], r[1]), max(r[0], r[1])
		if to-from > maxRangeExpansion {
			return UnknownScope(), true
		}
		for n := from; n <= to; n++ {
			nums = append(nums, n)
		}
	}
	return TrackScope(nums...), true
}

// allCodes reports whether every token looks like a side/track code
// ("a1", "2b").
func allCodes(tokens []string) bool {
	for _, t := range tokens {
		if !scopeCodeRe.MatchString(t) {
			return false
		}
	}
	return true
}
