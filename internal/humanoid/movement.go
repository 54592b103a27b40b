// internal/humanoid/movement.go
package humanoid

import (
	"context"
	"fmt"
)

// MoveTo moves the pointer from wherever it currently is to target. With the
// simulation disabled the pointer jumps directly.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D, bounds Bounds) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveTo(ctx, target, bounds, nil)
}

// moveTo is the non-locking counterpart of MoveTo.
func (h *Humanoid) moveTo(ctx context.Context, target Vector2D, bounds Bounds, field *PotentialField) error {
	if !h.cfg.Enabled {
		x, y := bounds.clamp(target)
		return h.executor.MovePointer(ctx, x, y)
	}

	sx, sy, err := h.executor.PointerPosition(ctx)
	if err != nil {
		return fmt.Errorf("humanoid: failed to read pointer position: %w", err)
	}
	return h.simulateTrajectory(ctx, Point(sx, sy), target, bounds, field)
}

// Position returns the device's current pointer position.
func (h *Humanoid) Position(ctx context.Context) (Vector2D, error) {
	x, y, err := h.executor.PointerPosition(ctx)
	if err != nil {
		return Vector2D{}, err
	}
	return Point(x, y), nil
}
