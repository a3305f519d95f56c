package credits

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/sydlexius/linernotes/internal/textmatch"
)

var (
	commentRe     = regexp.MustCompile(`(?s)<!--.*?-->`)
	selfRefRe     = regexp.MustCompile(`(?i)<ref\b[^>]*/\s*>`)
	pairedRefRe   = regexp.MustCompile(`(?is)<ref\b[^>]*>.*?</ref\s*>`)
	headingRe     = regexp.MustCompile(`(?m)^(={2,6})\s*(.+?)\s*(={2,6})\s*$`)
	linkRe        = regexp.MustCompile(`\[\[(?:[^\[\]|]*\|)?([^\[\]|]*)\]\]`)
	extLinkTextRe = regexp.MustCompile(`\[https?://\S+\s+([^\]]*)\]`)
	extLinkRe     = regexp.MustCompile(`\[https?://[^\]]*\]`)
	templateRe    = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	quotesRe      = regexp.MustCompile(`'{2,}`)
	breakRe       = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	tagRe         = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	spaceRe       = regexp.MustCompile(`[ \t]+`)
)

// Templates whose content is not credit text.
var droppedTemplates = map[string]bool{
	"citation needed": true, "cn": true, "efn": true, "refn": true, "sfn": true,
	"sfnp": true, "clarify": true, "dubious": true, "who": true, "when": true, "ref": true,
}

// Heading synonyms for the sections the parser reads, best first.
var (
	trackListingHeadings = []string{"track listing", "tracklisting", "track list", "tracklist", "songs", "listing"}
	personnelHeadings    = []string{"personnel", "credits and personnel", "personnel and credits", "credits", "musicians", "staff"}
)

// stripMarkupNoise removes comments and reference tags. Self-closing refs
// go first: the paired pattern would otherwise take <ref name=x/> as an
// opener and swallow text up to the next closing tag.
func stripMarkupNoise(markup string) string {
	s := commentRe.ReplaceAllString(markup, "")
	s = selfRefRe.ReplaceAllString(s, "")
	return pairedRefRe.ReplaceAllString(s, "")
}

type heading struct {
	level int
	title string
	start int // offset of the heading line
	end   int // offset just past the heading line
}

func headings(markup string) []heading {
	var out []heading
	for _, m := range headingRe.FindAllStringSubmatchIndex(markup, -1) {
		open := m[3] - m[2]
		closing := m[7] - m[6]
		out = append(out, heading{
			level: min(open, closing),
			title: markup[m[4]:m[5]],
			start: m[0],
			end:   m[1],
		})
	}
	return out
}

// findSection returns the body of the first section whose heading matches
// one of names: an exact heading match is preferred over a containing one.
// Deeper subsections stay inside the body; the section ends at the next
// heading of the same or a shallower level.
func findSection(markup string, names []string) (string, bool) {
	hs := headings(markup)
	pick := -1
	for pass := 0; pass < 2 && pick < 0; pass++ {
		for _, name := range names {
			for i, h := range hs {
				t := textmatch.Normalize(cleanInline(h.title), textmatch.Basic)
				if (pass == 0 && t == name) || (pass == 1 && strings.Contains(t, name)) {
					pick = i
					break
				}
			}
			if pick >= 0 {
				break
			}
		}
	}
	if pick < 0 {
		return "", false
	}

	h := hs[pick]
	end := len(markup)
	for _, next := range hs[pick+1:] {
		if next.level <= h.level {
			end = next.start
			break
		}
	}
	return markup[h.end:end], true
}

// cleanInline reduces one line of markup to plain text: links become their
// labels, templates their last positional argument, and formatting, tags
// and entities are removed.
func cleanInline(s string) string {
	s = breakRe.ReplaceAllString(s, " ")
	for i := 0; i < 4; i++ {
		next := templateRe.ReplaceAllStringFunc(s, expandTemplate)
		if next == s {
			break
		}
		s = next
	}
	s = linkRe.ReplaceAllString(s, "$1")
	s = extLinkTextRe.ReplaceAllString(s, "$1")
	s = extLinkRe.ReplaceAllString(s, "")
	s = quotesRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func expandTemplate(t string) string {
	parts := strings.Split(t[2:len(t)-2], "|")
	name := strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) == 1 || droppedTemplates[name] {
		return ""
	}
	for i := len(parts) - 1; i > 0; i-- {
		if !strings.Contains(parts[i], "=") {
			return strings.TrimSpace(parts[i])
		}
	}
	return ""
}

// splitTopLevel splits s on any of seps, ignoring separators nested in
// brackets. Separators match case-insensitively; empty parts are dropped.
func splitTopLevel(s string, seps ...string) []string {
	lower := strings.ToLower(s)
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}
		for _, sep := range seps {
			if strings.HasPrefix(lower[i:], sep) {
				out = appendTrimmed(out, s[start:i])
				i += len(sep) - 1
				start = i + 1
				break
			}
		}
	}
	return appendTrimmed(out, s[start:])
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

// trailingParen splits "text (inner)" into text and inner. ok is false
// when s does not end in a balanced parenthetical.
func trailingParen(s string) (text, inner string, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ")") {
		return s, "", false
	}
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[:i]), s[i+1 : len(s)-1], true
			}
		}
	}
	return s, "", false
}

// extractScope peels a trailing scope parenthetical off s.
func extractScope(s string) (string, Scope, bool) {
	text, inner, ok := trailingParen(s)
	if !ok {
		return s, Scope{}, false
	}
	sc, ok := ParseScope(inner)
	if !ok {
		return s, Scope{}, false
	}
	return text, sc, true
}

var (
	templateTitleRe = regexp.MustCompile(`(?im)^\s*\|\s*title(\d+)\s*=\s*(.*?)\s*$`)
	quotedRowRe     = regexp.MustCompile(`^\s*(?:(\d+)[.)]?|#+)\s*"(.+?)"`)
	numberedRowRe   = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.+?)\s*$`)
	hashRowRe       = regexp.MustCompile(`^\s*#+\s*(.+?)\s*$`)
	durationRe      = regexp.MustCompile(`\s*[–—-]\s*\d{1,2}:\d{2}.*$`)
)

// ParseTrackListing reads a track-number to title map from a track
// listing section. It understands track-listing template rows
// (|title1 = ...), quoted-title rows and numbered or "#" list rows.
func ParseTrackListing(section string) map[int]string {
	out := make(map[int]string)
	for _, m := range templateTitleRe.FindAllStringSubmatch(section, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if title := cleanTitle(m[2]); title != "" {
			if _, dup := out[n]; !dup {
				out[n] = title
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	next := 1
	for _, line := range strings.Split(section, "\n") {
		var n int
		var title string
		if m := quotedRowRe.FindStringSubmatch(line); m != nil {
			n, title = rowNumber(m[1], next), m[2]
		} else if m := numberedRowRe.FindStringSubmatch(line); m != nil {
			n, title = rowNumber(m[1], next), m[2]
		} else if m := hashRowRe.FindStringSubmatch(line); m != nil {
			n, title = next, m[1]
		} else {
			continue
		}
		if title = cleanTitle(title); title == "" {
			continue
		}
		if _, dup := out[n]; !dup {
			out[n] = title
		}
		next = n + 1
	}
	return out
}

func rowNumber(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}

func cleanTitle(s string) string {
	s = durationRe.ReplaceAllString(cleanInline(s), "")
	return strings.Trim(strings.TrimSpace(s), `"“”`)
}

// trackMatchThreshold is the minimum title similarity for inferring the
// playing track's number from a track listing.
const trackMatchThreshold = 0.8

// InferTrackNumber returns the listing number whose title best matches
// title, or 0 when none is similar enough. Ties go to the lower number.
func InferTrackNumber(listing map[int]string, title string) int {
	best, bestScore := 0, 0.0
	for n, t := range listing {
		s := textmatch.Similarity(textmatch.Normalize(title, textmatch.Full), textmatch.Normalize(t, textmatch.Full), textmatch.DefaultContainsBonus)
		if s > bestScore || (s == bestScore && s > 0 && n < best) {
			best, bestScore = n, s
		}
	}
	if bestScore < trackMatchThreshold {
		return 0
	}
	return best
}
