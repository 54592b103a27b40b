// Package action defines the typed commands an oracle can issue, the parser
// that recovers them from free-form text, and the bounds checks applied before
// any of them reach an input device.
package action

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// Kind identifies the variant of an Action.
type Kind string

const (
	KindType     Kind = "TYPE"
	KindPress    Kind = "PRESS"
	KindClick    Kind = "CLICK"
	KindMove     Kind = "MOVE"
	KindDrag     Kind = "DRAG"
	KindCommands Kind = "COMMANDS"
	KindDone     Kind = "DONE"
	KindUnknown  Kind = "UNKNOWN"
)

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

// Action is one parsed unit of work. The set of implementations is closed.
type Action interface {
	Kind() Kind
	// String renders the action back into the command grammar.
	String() string
	isAction()
}

// Type enters literal text.
type Type struct {
	Text string
}

// Press taps a single key or a '+'-joined chord such as "ctrl+c".
type Press struct {
	KeySpec string
}

// Click presses the primary button. When At is nil the click happens at the
// current pointer position.
type Click struct {
	At     *Point
	Reason string
}

// Move relocates the pointer without clicking.
type Move struct {
	To     Point
	Reason string
}

// Drag holds the primary button while moving From -> To.
type Drag struct {
	From   Point
	To     Point
	Reason string
}

// CommandList is a batch of raw command lines. Elements are parsed only when
// the executor reaches them.
type CommandList struct {
	Lines []string
}

// Done marks the current unit of work complete.
type Done struct {
	Reason string
}

// Unknown carries text that matched no command.
type Unknown struct {
	Raw string
}

func (Type) Kind() Kind        { return KindType }
func (Press) Kind() Kind       { return KindPress }
func (Click) Kind() Kind       { return KindClick }
func (Move) Kind() Kind        { return KindMove }
func (Drag) Kind() Kind        { return KindDrag }
func (CommandList) Kind() Kind { return KindCommands }
func (Done) Kind() Kind        { return KindDone }
func (Unknown) Kind() Kind     { return KindUnknown }

func (Type) isAction()        {}
func (Press) isAction()       {}
func (Click) isAction()       {}
func (Move) isAction()        {}
func (Drag) isAction()        {}
func (CommandList) isAction() {}
func (Done) isAction()        {}
func (Unknown) isAction()     {}

func quote(s string) string { return `"` + s + `"` }

func (a Type) String() string  { return "TYPE " + quote(a.Text) }
func (a Press) String() string { return "PRESS " + quote(a.KeySpec) }
func (a Done) String() string  { return "DONE " + quote(a.Reason) }
func (a Unknown) String() string {
	return a.Raw
}

func (a Click) String() string {
	if a.At == nil {
		return "CLICK " + quote(a.Reason)
	}
	return fmt.Sprintf("CLICK %s %s", a.At, quote(a.Reason))
}

func (a Move) String() string {
	return fmt.Sprintf("MOVE %s %s", a.To, quote(a.Reason))
}

func (a Drag) String() string {
	return fmt.Sprintf("DRAG %s TO %s %s", a.From, a.To, quote(a.Reason))
}

func (a CommandList) String() string {
	lines := a.Lines
	if lines == nil {
		lines = []string{}
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		return "COMMANDS []"
	}
	return "COMMANDS " + string(encoded)
}

// Keys splits a key spec into lower-cased, trimmed key names. Empty segments
// are dropped.
func (a Press) Keys() []string {
	parts := strings.Split(strings.ToLower(a.KeySpec), "+")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// IsPointer reports whether the action touches the pointer device.
func IsPointer(a Action) bool {
	switch a.(type) {
	case Click, Move, Drag:
		return true
	}
	return false
}

// Points returns every coordinate the action carries, in execution order.
func Points(a Action) []Point {
	switch v := a.(type) {
	case Click:
		if v.At != nil {
			return []Point{*v.At}
		}
	case Move:
		return []Point{v.To}
	case Drag:
		return []Point{v.From, v.To}
	}
	return nil
}
