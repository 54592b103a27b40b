// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoKeys is returned by Press when the key list is empty.
var ErrNoKeys = errors.New("humanoid: no keys to press")

// Type emits text one character at a time with a sampled inter-key delay.
// Text already emitted stays emitted if the context ends part way through.
func (h *Humanoid) Type(ctx context.Context, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, r := range []rune(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := h.executor.Sleep(ctx, h.keyInterval()); err != nil {
				return err
			}
		}
		if err := h.executor.TypeRune(ctx, r); err != nil {
			return fmt.Errorf("humanoid: failed to type %q: %w", r, err)
		}
	}
	return nil
}

// Press taps one key, or presses several together as a chord.
func (h *Humanoid) Press(ctx context.Context, keys []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch len(keys) {
	case 0:
		return ErrNoKeys
	case 1:
		if err := h.executor.KeyTap(ctx, keys[0]); err != nil {
			return fmt.Errorf("humanoid: key '%s' failed: %w", keys[0], err)
		}
	default:
		if err := h.executor.KeyChord(ctx, keys); err != nil {
			return fmt.Errorf("humanoid: chord %v failed: %w", keys, err)
		}
	}
	if !h.cfg.Enabled {
		return nil
	}
	return h.executor.Sleep(ctx, h.sampleDuration(h.persona.keyHoldMean, h.cfg.KeyHoldStdDevMs, 20))
}

// keyInterval is fixed at KeyIntervalMs with the simulation disabled.
func (h *Humanoid) keyInterval() time.Duration {
	if !h.cfg.Enabled {
		return time.Duration(h.cfg.KeyIntervalMs * float64(time.Millisecond))
	}
	return h.sampleDuration(h.cfg.KeyIntervalMs, h.cfg.KeyIntervalStdDev, h.cfg.KeyIntervalMinMs)
}
