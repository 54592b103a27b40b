// internal/humanoid/humanoid.go
package humanoid

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// persona holds the per-session values sampled from the configured
// distributions.
type persona struct {
	fittsA           float64
	fittsB           float64
	gaussianStrength float64
	perlinAmplitude  float64
	keyHoldMean      float64
}

// Humanoid turns discrete pointer and keyboard intents into eased, jittered,
// time-bounded device operations.
type Humanoid struct {
	// mu serialises actions and guards rng and the noise generators.
	mu       sync.Mutex
	cfg      config.HumanoidConfig
	persona  persona
	logger   *zap.Logger
	executor Executor
	rng      *rand.Rand
	noiseX   *perlin.Perlin
	noiseY   *perlin.Perlin
	pressed  bool
}

// New creates a Humanoid seeded from the clock.
func New(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor) *Humanoid {
	return NewWithSeed(cfg, logger, executor, time.Now().UnixNano())
}

// NewWithSeed creates a Humanoid whose randomness is fully determined by seed.
func NewWithSeed(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor, seed int64) *Humanoid {
	rng := rand.New(rand.NewSource(seed))

	// Standard Perlin noise parameters; the two axes use different seeds so
	// their drift is independent.
	alpha, beta, n := 2.0, 2.0, int32(3)

	return &Humanoid{
		cfg:      cfg,
		persona:  samplePersona(cfg, rng),
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rng,
		noiseX:   perlin.NewPerlin(alpha, beta, n, seed),
		noiseY:   perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

func samplePersona(cfg config.HumanoidConfig, rng *rand.Rand) persona {
	p := persona{
		fittsA:           sampleGaussian(rng, cfg.FittsAMean, cfg.FittsAStdDev),
		fittsB:           sampleGaussian(rng, cfg.FittsBMean, cfg.FittsBStdDev),
		gaussianStrength: sampleGaussian(rng, cfg.GaussianStrengthMean, cfg.GaussianStrengthStdDev),
		perlinAmplitude:  sampleGaussian(rng, cfg.PerlinAmplitudeMean, cfg.PerlinAmplitudeStdDev),
		keyHoldMean:      sampleGaussian(rng, cfg.KeyHoldMeanMs, cfg.KeyHoldStdDevMs),
	}
	p.fittsA = math.Max(0, p.fittsA)
	p.fittsB = math.Max(0, p.fittsB)
	p.gaussianStrength = math.Max(0, p.gaussianStrength)
	p.perlinAmplitude = math.Max(0, p.perlinAmplitude)
	p.keyHoldMean = math.Max(20, p.keyHoldMean)
	return p
}

func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	if rng == nil {
		return mean
	}
	return mean + rng.NormFloat64()*stdDev
}

// sampleDuration draws a millisecond delay from N(mean, stdDev), floored at min.
func (h *Humanoid) sampleDuration(mean, stdDev, min float64) time.Duration {
	ms := math.Max(min, sampleGaussian(h.rng, mean, stdDev))
	return time.Duration(ms * float64(time.Millisecond))
}
