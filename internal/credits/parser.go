package credits

import "strings"

// ParserConfig tunes the markup parser.
type ParserConfig struct {
	// DenyRoles are lowercase role prefixes dropped from tabular credits.
	DenyRoles []string `yaml:"deny_roles"`
	// Keywords overrides the role classification keyword sets.
	Keywords *RoleKeywords `yaml:"role_keywords"`
}

// Parser extracts credits from encyclopedia article markup.
type Parser struct {
	denyRoles []string
	keywords  RoleKeywords
}

// NewParser creates a Parser. Empty config fields take defaults.
func NewParser(cfg ParserConfig) *Parser {
	p := &Parser{keywords: DefaultRoleKeywords()}
	if cfg.Keywords != nil {
		p.keywords = *cfg.Keywords
	}
	deny := cfg.DenyRoles
	if len(deny) == 0 {
		deny = DefaultDenyRoles()
	}
	for _, d := range deny {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			p.denyRoles = append(p.denyRoles, d)
		}
	}
	return p
}

// Keywords returns the role keyword sets in use.
func (p *Parser) Keywords() RoleKeywords { return p.keywords }

// TrackContext identifies the playing track within the article's release.
// TrackNumber is zero when the player does not report one.
type TrackContext struct {
	Title       string
	TrackNumber int
}

// ParseResult is the outcome of parsing one article.
type ParseResult struct {
	Entries            []Entry
	TrackListing       map[int]string
	MatchedTrackNumber int
	// Tabular is set when the personnel section was a table.
	Tabular bool
}

// Parse extracts the credits of one article. When the playing track's
// number is known (from the player, or inferred from the track listing by
// title), only entries whose scope covers it are kept.
func (p *Parser) Parse(markup string, track TrackContext) ParseResult {
	text := stripMarkupNoise(markup)
	res := ParseResult{}

	if section, ok := findSection(text, trackListingHeadings); ok {
		res.TrackListing = ParseTrackListing(section)
	}

	res.MatchedTrackNumber = track.TrackNumber
	if res.MatchedTrackNumber <= 0 && strings.TrimSpace(track.Title) != "" {
		res.MatchedTrackNumber = InferTrackNumber(res.TrackListing, track.Title)
	}

	section, ok := findSection(text, personnelHeadings)
	if !ok {
		return res
	}

	var entries []Entry
	if hasTable(section) {
		res.Tabular = true
		entries = p.parseTableCredits(section)
	} else {
		entries = p.parseBulletCredits(section)
	}

	res.Entries = FilterByTrack(dedupEntries(entries), res.MatchedTrackNumber)
	return res
}
