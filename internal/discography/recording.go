// Package discography aggregates an artist's recordings from several
// music-graph query shapes and intersects two artists' catalogues.
package discography

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/sydlexius/linernotes/internal/textmatch"
)

// EvidenceSource is the query shape that reported an artist's involvement
// in a recording.
type EvidenceSource string

// Evidence sources, strongest first.
const (
	SourceDirect EvidenceSource = "direct_relationship"
	SourceBrowse EvidenceSource = "paginated_browse"
	SourceWork   EvidenceSource = "work_derived"
)

// Weight is the confidence attached to evidence from s.
func (s EvidenceSource) Weight() float64 {
	switch s {
	case SourceDirect:
		return 1.0
	case SourceBrowse:
		return 0.90
	case SourceWork:
		return 0.74
	default:
		return 0
	}
}

// Evidence records one report of an artist's involvement in a recording.
type Evidence struct {
	ArtistID     string         `json:"artist_id"`
	Source       EvidenceSource `json:"source"`
	RelationType string         `json:"relation_type,omitempty"`
	Attributes   []string       `json:"attributes,omitempty"`
	Weight       float64        `json:"weight"`
}

func (e Evidence) key() string {
	attrs := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		attrs[i] = strings.ToLower(strings.TrimSpace(a))
	}
	slices.Sort(attrs)
	return e.ArtistID + "|" + string(e.Source) + "|" + strings.ToLower(e.RelationType) + "|" + strings.Join(attrs, ",")
}

// RecordingRel is one recording in an artist's discography together with
// everything the sources reported about it. Values are never modified in
// place; Merge returns a new value.
type RecordingRel struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	RelationType  string     `json:"relation_type,omitempty"`
	Attributes    []string   `json:"attributes,omitempty"`
	ArtistCredits []string   `json:"artist_credits,omitempty"`
	ISRCs         []string   `json:"isrcs,omitempty"`
	Evidence      []Evidence `json:"evidence,omitempty"`
	CanonicalKey  string     `json:"canonical_key,omitempty"`
}

// MaxWeight is the strongest evidence weight attached to r.
func (r RecordingRel) MaxWeight() float64 {
	best := 0.0
	for _, e := range r.Evidence {
		best = max(best, e.Weight)
	}
	return best
}

// preferenceScore ranks two reports of the same recording when picking
// the title and relation type to keep.
func preferenceScore(r RecordingRel) float64 {
	score := r.MaxWeight()
	if len(r.ISRCs) > 0 {
		score += 0.05
	}
	if len(r.ArtistCredits) > 0 {
		score += 0.02
	}
	return score
}

// preferred reports whether a should be preferred over b. The order is
// total, so the outcome does not depend on argument order.
func preferred(a, b RecordingRel) bool {
	if c := cmp.Compare(preferenceScore(a), preferenceScore(b)); c != 0 {
		return c > 0
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c < 0
	}
	return a.Title < b.Title
}

// Merge combines two reports of the same recording. List fields are
// unioned case-insensitively; the scalar fields come from the preferred
// input.
func Merge(a, b RecordingRel) RecordingRel {
	pref, other := a, b
	if preferred(b, a) {
		pref, other = b, a
	}
	return RecordingRel{
		ID:            firstNonEmpty(pref.ID, other.ID),
		Title:         firstNonEmpty(pref.Title, other.Title),
		RelationType:  firstNonEmpty(pref.RelationType, other.RelationType),
		Attributes:    unionFold(a.Attributes, b.Attributes),
		ArtistCredits: unionFold(a.ArtistCredits, b.ArtistCredits),
		ISRCs:         unionISRCs(a.ISRCs, b.ISRCs),
		Evidence:      unionEvidence(a.Evidence, b.Evidence),
		CanonicalKey:  firstNonEmpty(pref.CanonicalKey, other.CanonicalKey),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func unionFold(a, b []string) []string {
	if len(a)+len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(slices.Clone(a), b...) {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func unionISRCs(a, b []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range append(slices.Clone(a), b...) {
		n := NormalizeISRC(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func unionEvidence(a, b []Evidence) []Evidence {
	if len(a)+len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]Evidence, 0, len(a)+len(b))
	for _, e := range append(slices.Clone(a), b...) {
		k := e.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

// NormalizeISRC uppercases an ISRC and drops separators. It returns ""
// unless the result is twelve letters and digits.
func NormalizeISRC(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r == '-' || r == ' ' || r == '.':
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			return ""
		}
	}
	if b.Len() != 12 {
		return ""
	}
	return b.String()
}

// CanonicalKey derives the join key used to cluster near-duplicate
// recordings: the first valid ISRC, else the normalized title, else the
// loosely normalized title with up to three sorted artist names, else the
// recording id.
func CanonicalKey(r RecordingRel) string {
	for _, s := range r.ISRCs {
		if n := NormalizeISRC(s); n != "" {
			return "isrc:" + n
		}
	}
	if t := textmatch.Key(r.Title); t != "" {
		return "title:" + t
	}
	if names := topArtistKeys(r.ArtistCredits, 3); len(names) > 0 {
		return "title-artists:" + textmatch.Normalize(r.Title, textmatch.Basic) + "|" + strings.Join(names, ",")
	}
	return "id:" + r.ID
}

// topArtistKeys returns up to n distinct normalized artist names, sorted.
func topArtistKeys(credits []string, n int) []string {
	var keys []string
	for _, c := range credits {
		if k := textmatch.Key(c); k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Canonicalize groups recordings by canonical key and collapses each group
// into one merged record. It returns the records in first-seen order and
// how many variants were folded away.
func Canonicalize(recs []RecordingRel) ([]RecordingRel, int) {
	idx := make(map[string]int, len(recs))
	out := make([]RecordingRel, 0, len(recs))
	dropped := 0
	for _, r := range recs {
		key := CanonicalKey(r)
		r.CanonicalKey = key
		if i, ok := idx[key]; ok {
			out[i] = Merge(out[i], r)
			dropped++
			continue
		}
		idx[key] = len(out)
		out = append(out, r)
	}
	return out, dropped
}
