package credits

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sydlexius/linernotes/internal/provider"
	"github.com/sydlexius/linernotes/internal/textmatch"
)

// MapRelations converts music-graph artist relationships read at level
// into credit entries. Relations without an artist are skipped.
func (k RoleKeywords) MapRelations(rels []provider.Relation, level SourceLevel) []Entry {
	out := make([]Entry, 0, len(rels))
	for _, rel := range rels {
		if rel.Artist == nil || strings.TrimSpace(rel.Artist.Name) == "" {
			continue
		}
		group := k.Classify(rel.Type)
		e := Entry{
			Name:     rel.Artist.Name,
			PersonID: rel.Artist.ID,
			Role:     rel.Type,
			Group:    group,
			Level:    level,
			Source:   SourceMusicGraph,
			Scope:    AlbumScope(),
		}
		if group == GroupMusicians {
			e.Instrument = instrumentFor(rel)
		}
		out = append(out, e)
	}
	return out
}

// MapRelations maps relationships with the built-in role keywords.
func MapRelations(rels []provider.Relation, level SourceLevel) []Entry {
	return DefaultRoleKeywords().MapRelations(rels, level)
}

// roleKey is the role part of the dedup key. When an instrument is known
// it stands in for the role, so "instrument: guitar" from one source and
// "guitar" from another collapse.
func roleKey(e Entry) string {
	if inst := textmatch.Key(e.Instrument); inst != "" {
		return "i:" + inst
	}
	return "r:" + textmatch.Key(e.Role)
}

// precedenceKey identifies an entry within one source: person identity,
// role group, role and instrument.
func precedenceKey(e Entry) string {
	person := e.PersonID
	if person == "" {
		person = "n:" + textmatch.Key(e.Name)
	}
	return person + "|" + string(e.Group) + "|" + roleKey(e)
}

// nameKey identifies an entry across sources, where one side may lack a
// person identifier.
func nameKey(e Entry) string {
	return textmatch.Key(e.Name) + "|" + string(e.Group) + "|" + roleKey(e)
}

// MergeWithPrecedence collapses entries with the same person, group, role
// and instrument, keeping the one from the most specific source level.
// The result is sorted by group title, then name, then role.
func MergeWithPrecedence(entries []Entry) []Entry {
	return mergeBy(entries, precedenceKey, func(cur, next Entry) bool {
		return next.Level < cur.Level
	})
}

// MergeSources combines encyclopedia and music-graph entries. On a
// collision an entry carrying a person identifier beats one without;
// otherwise the more specific source level wins.
func MergeSources(encyclopedia, musicGraph []Entry) []Entry {
	all := make([]Entry, 0, len(encyclopedia)+len(musicGraph))
	all = append(all, encyclopedia...)
	all = append(all, musicGraph...)
	return mergeBy(all, nameKey, func(cur, next Entry) bool {
		if (cur.PersonID == "") != (next.PersonID == "") {
			return next.PersonID != ""
		}
		return next.Level < cur.Level
	})
}

// dedupEntries drops exact duplicates from one parse, keyed on person,
// group, role, instrument and scope. First occurrence wins.
func dedupEntries(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		k := precedenceKey(e) + "|" + e.Scope.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func mergeBy(entries []Entry, key func(Entry) string, replace func(cur, next Entry) bool) []Entry {
	idx := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		k := key(e)
		if i, ok := idx[k]; ok {
			if replace(out[i], e) {
				out[i] = e
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// sortEntries orders by group title, then name, then role, case-insensitively.
func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmpOr(
			cmp.Compare(a.Group.Title(), b.Group.Title()),
			cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)),
			cmp.Compare(strings.ToLower(a.Role), strings.ToLower(b.Role)),
		)
	})
}

// FilterByTrack keeps entries whose scope covers track. A zero track keeps
// everything.
func FilterByTrack(entries []Entry, track int) []Entry {
	if track <= 0 {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Scope.Applies(track) {
			out = append(out, e)
		}
	}
	return out
}
