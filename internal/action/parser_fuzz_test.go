package action

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

// FuzzParse checks that arbitrary text never panics and always yields a
// variant.
func FuzzParse(f *testing.F) {
	f.Add([]byte(`CLICK 12,34 "open menu"`))
	f.Add([]byte(`COMMANDS ["PRESS \"tab\"", "TYPE \"hi\""]`))
	f.Add([]byte("DRAG 1,2 TO 3,4 \"x\"\nDONE \"y\""))
	f.Add([]byte(`COMMANDS [`))

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, g := range []Grammar{DirectGrammar, {Click: ClickInPlace}, {Click: ClickDisabled}} {
			if got := Parse(string(data), g); got == nil {
				t.Fatalf("Parse returned nil for %q", data)
			}
		}
	})
}

// FuzzParse_Structured builds grammar-shaped lines from fuzzed parts and
// checks that whatever parses also survives a serialization round trip.
func FuzzParse_Structured(f *testing.F) {
	verbs := []string{"TYPE", "PRESS", "CLICK", "MOVE", "DRAG", "DONE", "COMMANDS", "NOPE"}

	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		verbIdx, err := c.GetInt()
		if err != nil {
			return
		}
		body, err := c.GetString()
		if err != nil {
			return
		}
		idx := verbIdx % len(verbs)
		if idx < 0 {
			idx += len(verbs)
		}
		line := verbs[idx] + " " + body

		got := Parse(line, DirectGrammar)
		if got == nil {
			t.Fatalf("Parse returned nil for %q", line)
		}
		if got.Kind() == KindUnknown || strings.ContainsAny(got.String(), "\r\n") {
			return
		}
		again := Parse(got.String(), DirectGrammar)
		if again.String() != got.String() {
			t.Fatalf("round trip drifted: %q -> %q -> %q", line, got.String(), again.String())
		}
		if list, ok := got.(CommandList); ok {
			relisted, ok := again.(CommandList)
			if !ok || len(relisted.Lines) != len(list.Lines) {
				t.Fatalf("batch did not survive round trip: %q -> %q", line, again.String())
			}
			for i := range list.Lines {
				if list.Lines[i] != relisted.Lines[i] {
					t.Fatalf("batch element %d changed: %q -> %q", i, list.Lines[i], relisted.Lines[i])
				}
			}
		}
	})
}
