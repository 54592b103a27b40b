package action

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is matched by every BoundsError.
var ErrOutOfBounds = errors.New("coordinates outside screen bounds")

// Bounds are the screen dimensions an action is checked against.
type Bounds struct {
	Width  int
	Height int
}

// Contains reports whether 0 <= x < Width and 0 <= y < Height.
func (b Bounds) Contains(p Point) bool {
	return p.X >= 0 && p.X < b.Width && p.Y >= 0 && p.Y < b.Height
}

func (b Bounds) String() string { return fmt.Sprintf("%dx%d", b.Width, b.Height) }

// BoundsError reports the first coordinate pair that fell outside the screen.
type BoundsError struct {
	Kind   Kind
	Point  Point
	Bounds Bounds
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s: (%d, %d) outside screen bounds (0-%d, 0-%d)",
		e.Kind, e.Point.X, e.Point.Y, e.Bounds.Width-1, e.Bounds.Height-1)
}

func (e *BoundsError) Unwrap() error { return ErrOutOfBounds }

// Validate checks every coordinate pair the action carries against b.
// Actions without coordinates always pass.
func Validate(a Action, b Bounds) error {
	for _, p := range Points(a) {
		if !b.Contains(p) {
			return &BoundsError{Kind: a.Kind(), Point: p, Bounds: b}
		}
	}
	return nil
}
