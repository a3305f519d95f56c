package credits

import (
	"strings"
	"unicode"

	"github.com/sydlexius/linernotes/internal/provider"
)

// RoleKeywordsVersion identifies the built-in keyword sets. Bump it when
// the sets change so cached classifications can be told apart.
const RoleKeywordsVersion = 3

// RoleKeywords are the keyword prefixes used to classify free-text roles.
// A role matches a group when any of its words starts with one of the
// group's keywords. Groups are checked in the order writing, production,
// engineering, musicians; no match means misc.
type RoleKeywords struct {
	Version     int      `yaml:"version" json:"version"`
	Writing     []string `yaml:"writing" json:"writing"`
	Production  []string `yaml:"production" json:"production"`
	Engineering []string `yaml:"engineering" json:"engineering"`
	Musicians   []string `yaml:"musicians" json:"musicians"`
}

// DefaultRoleKeywords returns the built-in keyword sets.
func DefaultRoleKeywords() RoleKeywords {
	return RoleKeywords{
		Version: RoleKeywordsVersion,
		Writing: []string{
			"compos", "lyric", "writ", "songwrit", "librett", "arrang", "orchestrat", "words", "music by",
		},
		Production: []string{
			"produc", "programm",
		},
		Engineering: []string{
			"engineer", "mix", "remix", "master", "record", "sound", "audio", "edit", "balance", "tracking",
		},
		Musicians: []string{
			"instrument", "vocal", "voice", "sing", "perform", "musician", "member",
			"guitar", "bass", "drum", "percussion", "piano", "keyboard", "organ", "synth",
			"sax", "trumpet", "trombone", "horn", "tuba", "cornet", "flugelhorn",
			"violin", "viola", "cello", "fiddle", "string", "harp",
			"banjo", "mandolin", "ukulele", "sitar", "lute", "dobro",
			"harmonica", "accordion", "flute", "clarinet", "oboe", "bassoon",
			"tabla", "conga", "bongo", "timpani", "vibraphone", "marimba", "glockenspiel", "xylophone",
			"mellotron", "moog", "clavinet", "rhodes", "wurlitzer", "theremin",
			"turntable", "scratch", "rap", "beatbox", "whistl",
			"choir", "chorus", "backing", "lead", "rhythm", "orchestra", "ensemble",
			"conduct", "concertmaster", "soloist", "tambourine", "shaker", "handclap", "cymbal",
		},
	}
}

// Classify returns the role group of a free-text role.
func (k RoleKeywords) Classify(role string) RoleGroup {
	words := roleWords(role)
	if len(words) == 0 {
		return GroupMisc
	}
	lower := strings.ToLower(role)
	for _, set := range []struct {
		group    RoleGroup
		keywords []string
	}{
		{GroupWriting, k.Writing},
		{GroupProduction, k.Production},
		{GroupEngineering, k.Engineering},
		{GroupMusicians, k.Musicians},
	} {
		if matchesAny(words, lower, set.keywords) {
			return set.group
		}
	}
	return GroupMisc
}

// matchesAny reports whether a word of the role starts with a keyword.
// Multi-word keywords match against the whole lowercased role.
func matchesAny(words []string, lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(lower, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

// roleWords splits a role into lowercase letter runs, so "co-producer"
// yields "co" and "producer".
func roleWords(role string) []string {
	return strings.FieldsFunc(strings.ToLower(role), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// instrumentFor returns the instrument label of a music-graph musician
// relationship: vocal relationships are labeled "vocals", instrument and
// performance relationships use their first attribute.
func instrumentFor(rel provider.Relation) string {
	t := strings.ToLower(rel.Type)
	switch {
	case strings.Contains(t, "vocal"):
		return "vocals"
	case strings.Contains(t, "instrument"), strings.Contains(t, "perform"):
		if len(rel.Attributes) > 0 {
			return strings.TrimSpace(rel.Attributes[0])
		}
	}
	return ""
}
