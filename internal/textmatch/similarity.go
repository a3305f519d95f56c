package textmatch

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Typical containment bonuses used by the matching stages.
const (
	DefaultContainsBonus = 0.9
	PageContainsBonus    = 0.87
)

// Similarity scores two strings in [0,1] after Basic normalization.
// Identical strings score 1.0, a substring relationship scores
// containsBonus, anything else falls back to token-level Jaccard.
// Two empty strings score 0.
func Similarity(a, b string, containsBonus float64) float64 {
	na := Normalize(a, Basic)
	nb := Normalize(b, Basic)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return containsBonus
	}
	return Jaccard(Tokens(na), Tokens(nb))
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// EditDistance is the Levenshtein distance between the Full-normalized
// forms of a and b. Used to break ties between equally similar candidates.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(Key(a), Key(b))
}
