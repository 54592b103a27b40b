// internal/humanoid/clickmodel.go
package humanoid

import (
	"context"
	"time"
)

// Click presses and releases the primary button at the current position.
func (h *Humanoid) Click(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.click(ctx)
}

// ClickAt moves to target and clicks there.
func (h *Humanoid) ClickAt(ctx context.Context, target Vector2D, bounds Bounds) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveTo(ctx, target, bounds, nil); err != nil {
		return err
	}
	return h.click(ctx)
}

func (h *Humanoid) click(ctx context.Context) error {
	if err := h.executor.ButtonDown(ctx); err != nil {
		return err
	}
	h.pressed = true

	// A failed hold still releases the button.
	holdErr := h.executor.Sleep(ctx, h.clickHoldDuration())
	if err := h.releaseButton(ctx); err != nil {
		return err
	}
	return holdErr
}

// clickHoldDuration is uniform in [ClickHoldMinMs, ClickHoldMaxMs].
func (h *Humanoid) clickHoldDuration() time.Duration {
	lo, hi := h.cfg.ClickHoldMinMs, h.cfg.ClickHoldMaxMs
	ms := lo
	if hi > lo {
		ms += h.rng.Intn(hi - lo + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// releaseButton releases the button if held. State is reset even if the
// device call fails, so a failure never leaves the model thinking the button
// is still down.
func (h *Humanoid) releaseButton(ctx context.Context) error {
	if !h.pressed {
		return nil
	}
	err := h.executor.ButtonUp(ctx)
	h.pressed = false
	return err
}
