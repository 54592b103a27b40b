package action

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	json "github.com/json-iterator/go"
)

// ClickForm selects which CLICK shape a grammar accepts.
type ClickForm int

const (
	// ClickDisabled rejects both CLICK shapes.
	ClickDisabled ClickForm = iota
	// ClickAtPoint accepts `CLICK x,y "reason"`.
	ClickAtPoint
	// ClickInPlace accepts `CLICK "reason"` at the current pointer position.
	ClickInPlace
)

func (f ClickForm) String() string {
	switch f {
	case ClickAtPoint:
		return "at-point"
	case ClickInPlace:
		return "in-place"
	default:
		return "disabled"
	}
}

// Grammar is the set of command shapes accepted at a given moment. The two
// CLICK shapes are never active together.
type Grammar struct {
	Click ClickForm
}

// DirectGrammar accepts coordinate-bearing clicks.
var DirectGrammar = Grammar{Click: ClickAtPoint}

// ForBatch returns the grammar applied to the elements of a COMMANDS batch.
// A position-free click has no confirmed placement inside a batch, so it is
// not accepted there.
func (g Grammar) ForBatch() Grammar {
	if g.Click == ClickInPlace {
		return Grammar{Click: ClickDisabled}
	}
	return g
}

const (
	coord  = `(-?\d+)\s*,\s*(-?\d+)`
	quoted = `"(.*)"`
)

var (
	typePattern         = regexp.MustCompile(`(?i)^TYPE\s+` + quoted + `\s*$`)
	pressPattern        = regexp.MustCompile(`(?i)^PRESS\s+` + quoted + `\s*$`)
	clickAtPattern      = regexp.MustCompile(`(?i)^CLICK\s+` + coord + `\s+` + quoted + `\s*$`)
	clickInPlacePattern = regexp.MustCompile(`(?i)^CLICK\s+` + quoted + `\s*$`)
	movePattern         = regexp.MustCompile(`(?i)^MOVE\s+` + coord + `\s+` + quoted + `\s*$`)
	dragPattern         = regexp.MustCompile(`(?i)^DRAG\s+` + coord + `\s+TO\s+` + coord + `\s+` + quoted + `\s*$`)
	donePattern         = regexp.MustCompile(`(?i)^DONE\s+` + quoted + `\s*$`)
	commandsPrefix      = regexp.MustCompile(`(?i)^COMMANDS\s*\[`)
)

// Parse turns oracle text into an Action. Only the first non-empty line is
// considered, except for a COMMANDS batch whose bracketed array may span
// several lines. Parse never fails: text that fits no command comes back as
// Unknown.
func Parse(text string, g Grammar) Action {
	line, rest := firstLine(text)
	if line == "" {
		return Unknown{Raw: strings.TrimSpace(text)}
	}

	if loc := commandsPrefix.FindStringIndex(line); loc != nil {
		// The array starts on this line and may continue onto the next ones.
		body := line[loc[1]-1:]
		if rest != "" {
			body += "\n" + rest
		}
		if lines, ok := decodeBatch(body); ok {
			return CommandList{Lines: lines}
		}
		return Unknown{Raw: line}
	}

	return parseLine(line, g)
}

func parseLine(line string, g Grammar) Action {
	if m := typePattern.FindStringSubmatch(line); m != nil {
		return Type{Text: m[1]}
	}
	if m := pressPattern.FindStringSubmatch(line); m != nil {
		return Press{KeySpec: m[1]}
	}
	if m := donePattern.FindStringSubmatch(line); m != nil {
		return Done{Reason: m[1]}
	}
	if m := movePattern.FindStringSubmatch(line); m != nil {
		if p, ok := point(m[1], m[2]); ok {
			return Move{To: p, Reason: m[3]}
		}
		return Unknown{Raw: line}
	}
	if m := dragPattern.FindStringSubmatch(line); m != nil {
		from, okFrom := point(m[1], m[2])
		to, okTo := point(m[3], m[4])
		if okFrom && okTo {
			return Drag{From: from, To: to, Reason: m[5]}
		}
		return Unknown{Raw: line}
	}

	switch g.Click {
	case ClickAtPoint:
		if m := clickAtPattern.FindStringSubmatch(line); m != nil {
			if p, ok := point(m[1], m[2]); ok {
				return Click{At: &p, Reason: m[3]}
			}
		}
	case ClickInPlace:
		if m := clickInPlacePattern.FindStringSubmatch(line); m != nil {
			return Click{Reason: m[1]}
		}
	}

	return Unknown{Raw: line}
}

// firstLine returns the first meaningful line of text and everything after it.
// Blank lines and bare markdown fences are skipped.
func firstLine(text string) (string, string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		l = cleanLine(l)
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		return l, strings.Join(lines[i+1:], "\n")
	}
	return "", ""
}

// cleanLine trims whitespace and a single pair of wrapping backticks.
func cleanLine(l string) string {
	l = strings.TrimSpace(l)
	if len(l) >= 2 && strings.HasPrefix(l, "`") && strings.HasSuffix(l, "`") && !strings.HasPrefix(l, "```") {
		l = strings.TrimSpace(l[1 : len(l)-1])
	}
	return l
}

// decodeBatch reads the first JSON array of strings from body. Trailing text
// after the closing bracket is ignored. Elements that are not valid UTF-8
// are rejected, since re-encoding would replace their bytes.
func decodeBatch(body string) ([]string, bool) {
	var lines []string
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&lines); err != nil {
		return nil, false
	}
	for _, l := range lines {
		if !utf8.ValidString(l) {
			return nil, false
		}
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, true
}

func point(xs, ys string) (Point, bool) {
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return Point{}, false
	}
	return Point{X: x, Y: y}, true
}
