// internal/humanoid/trajectory.go
package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// stepInterval is the nominal spacing between emitted pointer positions.
const stepInterval = 10 * time.Millisecond

// computeEaseInOutCubic gives smooth acceleration and deceleration.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// movementDuration applies Fitts's law with +/-15% variation and clamps the
// result to the configured range.
func (h *Humanoid) movementDuration(distance float64) time.Duration {
	const targetWidth = 30.0
	id := math.Log2(1.0 + distance/targetWidth)
	mt := h.persona.fittsA + h.persona.fittsB*id
	mt += mt * (h.rng.Float64()*0.3 - 0.15)

	d := time.Duration(mt * float64(time.Millisecond))
	if d < h.cfg.MinMoveDuration {
		d = h.cfg.MinMoveDuration
	}
	if h.cfg.MaxMoveDuration > 0 && d > h.cfg.MaxMoveDuration {
		d = h.cfg.MaxMoveDuration
	}
	return d
}

// idealPath returns a cubic Bezier from start to end. Control points are bent
// sideways by a random arc and by the potential field, if any.
func (h *Humanoid) idealPath(start, end Vector2D, field *PotentialField) func(t float64) Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	dir := mainVec.Normalize()
	normal := dir.Perp()

	arc := (h.rng.Float64()*2 - 1) * dist * 0.1
	p1 := start.Add(dir.Mul(dist / 3)).Add(normal.Mul(arc))
	p2 := start.Add(dir.Mul(dist * 2 / 3)).Add(normal.Mul(arc * 0.5))
	p1 = p1.Add(field.NetForce(p1).Mul(dist * 0.1))
	p2 = p2.Add(field.NetForce(p2).Mul(dist * 0.1))

	return func(t float64) Vector2D {
		omt := 1 - t
		return start.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * t)).
			Add(p2.Mul(3 * omt * t * t)).
			Add(end.Mul(t * t * t))
	}
}

// jitter returns independent per-axis noise: low-frequency Perlin drift plus
// Gaussian tremor. envelope scales it to zero at both ends of the path.
func (h *Humanoid) jitter(elapsed, envelope float64) Vector2D {
	const perlinFrequency = 0.8
	strength := h.persona.gaussianStrength * (0.5 + h.rng.Float64())
	return Vector2D{
		X: (h.noiseX.Noise1D(elapsed*perlinFrequency)*h.persona.perlinAmplitude + h.rng.NormFloat64()*strength) * envelope,
		Y: (h.noiseY.Noise1D(elapsed*perlinFrequency)*h.persona.perlinAmplitude + h.rng.NormFloat64()*strength) * envelope,
	}
}

// simulateTrajectory moves the pointer from start to end within bounds. The
// summed sleeps equal the sampled duration, and the final position is exactly
// end. Caller must hold h.mu.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end Vector2D, bounds Bounds, field *PotentialField) error {
	dist := start.Dist(end)
	duration := h.movementDuration(dist)

	steps := int(duration / stepInterval)
	if steps < 2 {
		steps = 2
	}
	stepSleep := duration / time.Duration(steps)
	path := h.idealPath(start, end, field)
	endX, endY := bounds.clamp(end)

	h.logger.Debug("Simulating pointer trajectory",
		zap.Float64("distance", dist),
		zap.Duration("duration", duration),
		zap.Int("steps", steps))

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.executor.Sleep(ctx, stepSleep); err != nil {
			return err
		}

		x, y := endX, endY
		if i < steps {
			t := float64(i) / float64(steps)
			pos := path(computeEaseInOutCubic(t))
			pos = pos.Add(h.jitter(t*duration.Seconds(), math.Sin(math.Pi*t)))
			x, y = bounds.clamp(pos)
		}
		if err := h.executor.MovePointer(ctx, x, y); err != nil {
			return err
		}
	}
	return nil
}
