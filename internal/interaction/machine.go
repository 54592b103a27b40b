// internal/interaction/machine.go
package interaction

import (
	"fmt"

	"github.com/xkilldash9x/deskpilot/internal/action"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// State is the position of the move/confirm protocol.
type State int

const (
	// AwaitingMove is the initial state. Pointer placement must come from a
	// MOVE before anything can be clicked.
	AwaitingMove State = iota
	// AwaitingConfirmation follows a successful MOVE. The oracle either
	// commits with a position-free CLICK, corrects with another MOVE, or
	// leaves the protocol with a non-pointer action.
	AwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case AwaitingMove:
		return "AWAITING_MOVE"
	case AwaitingConfirmation:
		return "AWAITING_CONFIRMATION"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Context is the protocol information handed to the oracle on each query.
type Context struct {
	State State
	// Hover is the description given with the last MOVE.
	Hover string
	// Position is where the last MOVE left the pointer. Nil until a MOVE has
	// succeeded in the current placement round.
	Position *action.Point
}

// Confirming reports whether a placement is waiting to be confirmed.
func (c Context) Confirming() bool { return c.State == AwaitingConfirmation }

// Machine tracks the move/confirm protocol for one session. It is not safe
// for concurrent use; a session drives it from a single goroutine.
type Machine struct {
	mode     config.ProtocolMode
	state    State
	hover    string
	position *action.Point
}

// NewMachine returns a machine in AwaitingMove for the given mode. In direct
// mode the machine never leaves AwaitingMove and only selects the grammar.
func NewMachine(mode config.ProtocolMode) *Machine {
	return &Machine{mode: mode}
}

// Mode returns the protocol mode the machine was built for.
func (m *Machine) Mode() config.ProtocolMode { return m.mode }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Context snapshots the state for prompt construction.
func (m *Machine) Context() Context {
	c := Context{State: m.state, Hover: m.hover}
	if m.position != nil {
		p := *m.position
		c.Position = &p
	}
	return c
}

// Grammar returns the command shapes the parser should accept right now.
// Coordinate clicks belong to direct mode only. In confirm mode a click is
// accepted only once a placement is awaiting confirmation, and then only in
// its position-free shape.
func (m *Machine) Grammar() action.Grammar {
	if m.mode != config.ModeConfirm {
		return action.DirectGrammar
	}
	if m.state == AwaitingConfirmation {
		return action.Grammar{Click: action.ClickInPlace}
	}
	return action.Grammar{Click: action.ClickDisabled}
}

// Observe advances the protocol after a top-level action has been executed.
// ok reports whether the action completed on the device.
func (m *Machine) Observe(a action.Action, ok bool) {
	if m.mode != config.ModeConfirm {
		return
	}
	switch v := a.(type) {
	case action.Move:
		// A rejected or failed move placed nothing, so the previous
		// placement (if any) still stands.
		if !ok {
			return
		}
		to := v.To
		m.state = AwaitingConfirmation
		m.hover = v.Reason
		m.position = &to
	case action.Click:
		m.Reset()
	case action.Unknown, action.Done:
		// Mismatched text changes nothing; DONE ends the unit of work and
		// the caller resets when the step changes.
	default:
		// TYPE, PRESS, DRAG and batches leave the protocol.
		m.Reset()
	}
}

// Reset returns the machine to AwaitingMove and forgets the placement.
func (m *Machine) Reset() {
	m.state = AwaitingMove
	m.hover = ""
	m.position = nil
}
