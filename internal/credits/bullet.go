package credits

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// bulletDelimiters split "Name – role" lines, tried in order.
var bulletDelimiters = []string{" – ", " — ", " - ", " : ", ": "}

// inlineScopeRe finds "on track 2", "on tracks 1, 3 and 7" and "on all
// tracks except 4" outside parentheses, so they can be rewritten as a
// trailing "(…)" scope. The lookahead skips text already inside a
// parenthetical. Go's regexp has no lookahead, hence regexp2.
var inlineScopeRe = func() *regexp2.Regexp {
	const nums = `\d+(?:\s*(?:-|–|—|,|&|and|to)\s*\d+)*`
	re := regexp2.MustCompile(
		`\s*\bon\s+(all\s+(?:tracks|songs)(?:\s+except\s+`+nums+`)?|(?:tracks?|songs?)\s+`+nums+`)\b(?![^(]*\))`,
		regexp2.IgnoreCase)
	re.MatchTimeout = 100 * time.Millisecond
	return re
}()

// rewriteInlineScopes turns "guitar on tracks 1 and 3" into
// "guitar (tracks 1 and 3)".
func rewriteInlineScopes(s string) string {
	out, err := inlineScopeRe.ReplaceFunc(s, func(m regexp2.Match) string {
		return " (" + m.GroupByNumber(1).String() + ")"
	}, -1, -1)
	if err != nil {
		return s
	}
	return out
}

// parseBulletCredits reads "* Name – role, role (tracks)" lines.
func (p *Parser) parseBulletCredits(section string) []Entry {
	var out []Entry
	for _, raw := range strings.Split(section, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || !strings.ContainsAny(line[:1], "*#:;") {
			continue
		}
		marker := line[0]
		line = cleanInline(strings.TrimLeft(line, "*#:; "))
		if line == "" {
			continue
		}

		name, roleText, found := splitBulletLine(line)
		if !found {
			// A bare ";" line is a definition-list subheading ("; Musicians").
			if marker == ';' {
				continue
			}
			out = append(out, p.nameOnlyEntry(line))
			continue
		}

		name, nameScope, hasNameScope := extractScope(name)
		if name == "" {
			continue
		}
		defaultScope := AlbumScope()
		if hasNameScope {
			defaultScope = nameScope
		}
		out = append(out, p.roleEntries(name, roleText, defaultScope)...)
	}
	return out
}

func splitBulletLine(line string) (name, role string, ok bool) {
	for _, d := range bulletDelimiters {
		if i := strings.Index(line, d); i > 0 {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+len(d):]), true
		}
	}
	return line, "", false
}

// nameOnlyEntry keeps a line without a role as an album-wide performer
// credit unless it carries a trailing track list, e.g. "Full Name (1, 3, 7)".
func (p *Parser) nameOnlyEntry(line string) Entry {
	name, sc, ok := extractScope(line)
	if !ok {
		name, sc = line, AlbumScope()
	}
	return Entry{
		Name:   name,
		Role:   "performer",
		Group:  GroupMusicians,
		Level:  LevelRelease,
		Source: SourceEncyclopedia,
		Scope:  sc,
	}
}

// roleEntries splits role text into semicolon groups and then into items.
// An item without its own scope inherits the scope of the last item in its
// group when that item has one, else fallback.
func (p *Parser) roleEntries(name, roleText string, fallback Scope) []Entry {
	roleText = rewriteInlineScopes(roleText)
	var out []Entry
	for _, group := range splitTopLevel(roleText, ";") {
		items := splitTopLevel(group, ",", " and ", " & ")
		if len(items) == 0 {
			continue
		}

		groupScope := fallback
		if _, sc, ok := extractScope(items[len(items)-1]); ok {
			groupScope = sc
		}

		for _, item := range items {
			role, sc, ok := extractScope(item)
			if !ok {
				sc = groupScope
			}
			if role = trimLeadingAnd(role); role == "" {
				continue
			}
			out = append(out, p.entry(name, role, sc))
		}
	}
	return out
}

// entry builds an encyclopedia entry, using the role itself as the
// instrument label for musicians.
func (p *Parser) entry(name, role string, sc Scope) Entry {
	group := p.keywords.Classify(role)
	e := Entry{
		Name:   name,
		Role:   role,
		Group:  group,
		Level:  LevelRelease,
		Source: SourceEncyclopedia,
		Scope:  sc,
	}
	if group == GroupMusicians {
		e.Instrument = strings.ToLower(role)
	}
	return e
}

// trimLeadingAnd unwraps the "and " left on the last item of "a, b, and c".
func trimLeadingAnd(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 4 && strings.EqualFold(s[:4], "and ") {
		return strings.TrimSpace(s[4:])
	}
	return s
}
