package credits

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultDenyRoles are role prefixes that are not music credits.
func DefaultDenyRoles() []string {
	return []string{"a&r", "management", "legal", "art direction", "design", "photography"}
}

var (
	byLineRe    = regexp.MustCompile(`(?i)^(.+?)\s+by\s+(.+)$`)
	colonLineRe = regexp.MustCompile(`^([^:]+):\s*(.+)$`)
	atSuffixRe  = regexp.MustCompile(`(?i)\s+at\s+.+$`)
	trackCellRe = regexp.MustCompile(`^(\d+)\.?$`)
)

// hasTable reports whether a section uses the wiki table syntax.
func hasTable(section string) bool {
	return strings.Contains(section, "{|")
}

// parseTableCredits reads a personnel table. Each row's first cell is the
// track number when numeric; the last cell holds "<br>"-separated credit
// lines such as "Guitar by Bob Power".
func (p *Parser) parseTableCredits(section string) []Entry {
	var out []Entry
	for _, row := range tableRows(section) {
		cells := rowCells(row)
		if len(cells) == 0 {
			continue
		}

		sc := AlbumScope()
		if len(cells) > 1 {
			if m := trackCellRe.FindStringSubmatch(cleanInline(cells[0])); m != nil {
				n, _ := strconv.Atoi(m[1])
				sc = TrackScope(n)
			}
		}

		last := breakRe.ReplaceAllString(cells[len(cells)-1], "\n")
		for _, frag := range strings.Split(last, "\n") {
			out = append(out, p.invertedCredits(cleanInline(frag), sc)...)
		}
	}
	return out
}

// tableRows returns the raw rows of every table in section, without the
// table attribute lines, captions and header rows.
func tableRows(section string) []string {
	var rows []string
	for _, body := range tableBodies(section) {
		for _, chunk := range strings.Split(body, "\n|-") {
			var kept []string
			for _, line := range strings.Split(chunk, "\n") {
				t := strings.TrimSpace(line)
				if strings.HasPrefix(t, "|+") || strings.HasPrefix(t, "|-") {
					continue
				}
				kept = append(kept, line)
			}
			row := strings.TrimSpace(strings.Join(kept, "\n"))
			if row == "" || strings.HasPrefix(row, "!") {
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// tableBodies returns the text between each "{|" line and its "|}".
func tableBodies(section string) []string {
	var out []string
	for {
		i := strings.Index(section, "{|")
		if i < 0 {
			return out
		}
		section = section[i+2:]
		// The rest of the opening line holds table attributes.
		if nl := strings.IndexByte(section, '\n'); nl >= 0 {
			section = section[nl:]
		} else {
			return out
		}
		j := strings.Index(section, "\n|}")
		if j < 0 {
			return append(out, section)
		}
		out = append(out, section[:j])
		section = section[j+3:]
	}
}

// rowCells splits a row into cells: inline "||" separators when present,
// otherwise one cell per line starting with "|", with unmarked lines
// continuing the previous cell.
func rowCells(row string) []string {
	if strings.Contains(row, "||") {
		var cells []string
		for _, c := range strings.Split(strings.TrimPrefix(row, "|"), "||") {
			cells = append(cells, cellContent(c))
		}
		return cells
	}

	var cells []string
	for _, line := range strings.Split(row, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "|") {
			cells = append(cells, cellContent(t[1:]))
			continue
		}
		if len(cells) == 0 {
			cells = append(cells, t)
			continue
		}
		cells[len(cells)-1] += "\n" + t
	}
	return cells
}

// cellContent drops a leading attribute block (`style="…" | text`).
func cellContent(c string) string {
	c = strings.TrimSpace(c)
	depth := 0
	for i := 0; i < len(c); i++ {
		switch c[i] {
		case '[', '{':
			depth++
		case ']', '}':
			if depth > 0 {
				depth--
			}
		case '|':
			if depth == 0 && strings.Contains(c[:i], "=") {
				return strings.TrimSpace(c[i+1:])
			}
		}
	}
	return c
}

// invertedCredits parses "Role by A, B and C" or "Role: A, B".
func (p *Parser) invertedCredits(line string, sc Scope) []Entry {
	line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), "."))
	if line == "" || p.denied(line) {
		return nil
	}

	var role, names string
	if m := byLineRe.FindStringSubmatch(line); m != nil {
		role, names = m[1], m[2]
	} else if m := colonLineRe.FindStringSubmatch(line); m != nil {
		role, names = m[1], m[2]
	} else {
		return nil
	}
	role = strings.TrimSpace(role)
	if role == "" || p.denied(role) {
		return nil
	}

	var out []Entry
	for _, n := range splitTopLevel(names, ", ", " and ", " & ") {
		n = atSuffixRe.ReplaceAllString(n, "")
		if n = trimLeadingAnd(n); n != "" {
			out = append(out, p.entry(n, role, sc))
		}
	}
	return out
}

func (p *Parser) denied(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, d := range p.denyRoles {
		if strings.HasPrefix(lower, d) {
			return true
		}
	}
	return false
}
