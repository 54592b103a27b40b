// internal/humanoid/drag.go
package humanoid

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Drag moves to from, presses the primary button, moves to to with the button
// held, and releases. The button is released on every exit path.
func (h *Humanoid) Drag(ctx context.Context, from, to Vector2D, bounds Bounds) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveTo(ctx, from, bounds, nil); err != nil {
		return fmt.Errorf("drag: could not reach start position: %w", err)
	}
	if err := h.pause(ctx, 80, 30); err != nil {
		return err
	}

	if err := h.executor.ButtonDown(ctx); err != nil {
		return err
	}
	h.pressed = true

	if err := h.dragBody(ctx, from, to, bounds); err != nil {
		h.logger.Warn("Drag interrupted, releasing button", zap.Error(err))
		// The caller's context may already be done; release regardless.
		_ = h.releaseButton(context.Background())
		return err
	}
	return h.releaseButton(ctx)
}

func (h *Humanoid) dragBody(ctx context.Context, from, to Vector2D, bounds Bounds) error {
	if err := h.pause(ctx, 100, 40); err != nil {
		return err
	}

	field := NewPotentialField()
	strength := h.persona.fittsA
	if strength <= 0 {
		strength = 100.0
	}
	field.AddSource(to, strength, 150.0)
	field.AddSource(from, -strength*0.2, 100.0)

	if err := h.moveTo(ctx, to, bounds, field); err != nil {
		return err
	}
	return h.pause(ctx, 70, 30)
}

// pause sleeps for a short Gaussian-distributed interval when the simulation
// is enabled.
func (h *Humanoid) pause(ctx context.Context, meanMs, stdDevMs float64) error {
	if !h.cfg.Enabled {
		return nil
	}
	return h.executor.Sleep(ctx, h.sampleDuration(meanMs, stdDevMs, 0))
}
