// internal/humanoid/interface.go
package humanoid

import (
	"context"
	"time"
)

// Executor defines the low-level device operations the Humanoid drives. All
// coordinates are absolute screen pixels.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	MovePointer(ctx context.Context, x, y int) error
	PointerPosition(ctx context.Context) (x, y int, err error)
	ButtonDown(ctx context.Context) error
	ButtonUp(ctx context.Context) error
	TypeRune(ctx context.Context, r rune) error
	KeyTap(ctx context.Context, key string) error
	// KeyChord presses keys in order, then releases them in reverse.
	KeyChord(ctx context.Context, keys []string) error
}

// Bounds is the screen area every emitted pointer position is clamped to.
type Bounds struct {
	Width  int
	Height int
}

func (b Bounds) clamp(v Vector2D) (int, int) {
	return clampInt(int(v.X+0.5), 0, b.Width-1), clampInt(int(v.Y+0.5), 0, b.Height-1)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
