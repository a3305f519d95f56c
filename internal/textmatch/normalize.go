// Package textmatch canonicalizes free text and scores fuzzy similarity
// between titles and names coming from different metadata providers.
package textmatch

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Option selects optional normalization steps. Lowercasing is always applied.
type Option uint8

// Normalization steps, applied in declaration order.
const (
	StripFeaturing Option = 1 << iota
	StripParentheticals
	AlphanumericOnly
	CollapseWhitespace
)

// Common option sets.
const (
	// Basic reduces text to lowercase alphanumeric tokens.
	Basic = AlphanumericOnly | CollapseWhitespace
	// Full additionally drops "feat." clauses and bracketed groups.
	Full = StripFeaturing | StripParentheticals | AlphanumericOnly | CollapseWhitespace
)

var (
	featRe   = regexp.MustCompile(`(^|\s)[(\[]?(feat\.?|featuring|ft\.)(\s.*|$)`)
	parenRe  = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]`)
	spacesRe = regexp.MustCompile(`\s+`)
)

// maxPasses bounds the fixed-point loop in Normalize. Every step except
// lowercasing only ever shortens the text, so convergence takes two or
// three passes in practice.
const maxPasses = 8

// Normalize canonicalizes text. The order of operations is fixed:
// lowercase, strip featuring clause, strip parentheticals, alphanumeric
// filter, collapse whitespace, trim. The pipeline is repeated until the
// output is stable so Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string, opts Option) string {
	out := text
	for i := 0; i < maxPasses; i++ {
		next := normalizeOnce(out, opts)
		if next == out {
			return next
		}
		out = next
	}
	return out
}

func normalizeOnce(text string, opts Option) string {
	s := strings.ToLower(norm.NFC.String(text))

	if opts&StripFeaturing != 0 {
		s = featRe.ReplaceAllString(s, "")
	}

	if opts&StripParentheticals != 0 {
		for {
			next := parenRe.ReplaceAllString(s, " ")
			if next == s {
				break
			}
			s = next
		}
	}

	if opts&AlphanumericOnly != 0 {
		s = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
				return r
			}
			return -1
		}, s)
	}

	if opts&CollapseWhitespace != 0 {
		s = spacesRe.ReplaceAllString(s, " ")
	}

	return strings.TrimSpace(s)
}

// Key is the canonical comparison key used for joins: Normalize with Full.
func Key(text string) string {
	return Normalize(text, Full)
}

// Tokens splits normalized text into a set of whitespace-separated tokens.
func Tokens(text string) map[string]struct{} {
	fields := strings.Fields(text)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
