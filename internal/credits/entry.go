// Package credits builds the deduplicated, scope-aware list of people who
// performed on, produced, wrote or engineered a track. It combines
// music-graph relationships with credits parsed from encyclopedia markup.
package credits

import (
	"strings"

	"github.com/sydlexius/linernotes/internal/resolve"
)

// RoleGroup is the coarse category of a credit.
type RoleGroup string

// Role groups.
const (
	GroupMusicians   RoleGroup = "musicians"
	GroupProduction  RoleGroup = "production"
	GroupWriting     RoleGroup = "writing"
	GroupEngineering RoleGroup = "engineering"
	GroupMisc        RoleGroup = "misc"
)

// GroupOrder is the display order of role groups.
var GroupOrder = []RoleGroup{GroupMusicians, GroupProduction, GroupWriting, GroupEngineering, GroupMisc}

// Title returns the display heading of the group.
func (g RoleGroup) Title() string {
	switch g {
	case GroupMusicians:
		return "Musicians"
	case GroupProduction:
		return "Production"
	case GroupWriting:
		return "Writing"
	case GroupEngineering:
		return "Engineering"
	default:
		return "Miscellaneous"
	}
}

// SourceLevel is the entity a music-graph relationship was read from.
// Lower levels are more specific and win on conflict.
type SourceLevel int

// Source levels.
const (
	LevelRecording SourceLevel = 0
	LevelWork      SourceLevel = 1
	LevelRelease   SourceLevel = 2
)

func (l SourceLevel) String() string {
	switch l {
	case LevelRecording:
		return "recording"
	case LevelWork:
		return "work"
	default:
		return "release"
	}
}

// Source is the provider an entry came from.
type Source string

// Sources.
const (
	SourceEncyclopedia Source = "wikipedia"
	SourceMusicGraph   Source = "musicbrainz"
)

// DisplayName returns the human-readable provider name.
func (s Source) DisplayName() string {
	switch s {
	case SourceEncyclopedia:
		return "Wikipedia"
	case SourceMusicGraph:
		return "MusicBrainz"
	default:
		return string(s)
	}
}

// Entry is one credited person in one role.
type Entry struct {
	Name        string      `json:"name"`
	PersonID    string      `json:"person_id,omitempty"`
	Role        string      `json:"role"`
	Group       RoleGroup   `json:"group"`
	Level       SourceLevel `json:"source_level"`
	Instrument  string      `json:"instrument,omitempty"`
	Source      Source      `json:"source"`
	Scope       Scope       `json:"scope"`
	Attribution string      `json:"attribution,omitempty"`
}

// Bundle is the full credits answer for one playing track.
type Bundle struct {
	Resolution         *resolve.ResolutionResult `json:"resolution,omitempty"`
	Entries            []Entry                   `json:"entries"`
	Provenance         string                    `json:"provenance"`
	Attribution        string                    `json:"attribution,omitempty"`
	MatchedTrackNumber int                       `json:"matched_track_number,omitempty"`
	PageTitle          string                    `json:"page_title,omitempty"`
	PageURL            string                    `json:"page_url,omitempty"`
}

// Section is the entries of one role group.
type Section struct {
	Group   RoleGroup `json:"group"`
	Title   string    `json:"title"`
	Entries []Entry   `json:"entries"`
}

// Grouped returns the non-empty role groups in display order.
func (b *Bundle) Grouped() []Section {
	byGroup := make(map[RoleGroup][]Entry)
	for _, e := range b.Entries {
		byGroup[e.Group] = append(byGroup[e.Group], e)
	}
	var out []Section
	for _, g := range GroupOrder {
		if es := byGroup[g]; len(es) > 0 {
			out = append(out, Section{Group: g, Title: g.Title(), Entries: es})
		}
	}
	return out
}

// joinProvenance joins distinct non-empty parts with " + ".
func joinProvenance(parts ...string) string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return strings.Join(out, " + ")
}
