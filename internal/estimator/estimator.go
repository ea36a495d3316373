// Package estimator defines the contract of the algorithm under study and the
// built-in estimators used for dry runs and tests.
package estimator

import (
	"context"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/config"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/utils"
)

// Estimator recovers (a, B, lambda) from one trial's oracle inputs.
// Implementations must be safe for concurrent use by several workers.
type Estimator interface {
	Estimate(ctx context.Context, cfg models.Configuration, input models.TrialInput, tol float64) (models.Estimate, error)
}

// Func adapts a plain function to the Estimator interface
type Func func(ctx context.Context, cfg models.Configuration, input models.TrialInput, tol float64) (models.Estimate, error)

// Estimate calls f
func (f Func) Estimate(ctx context.Context, cfg models.Configuration, input models.TrialInput, tol float64) (models.Estimate, error) {
	return f(ctx, cfg, input, tol)
}

// Identity returns the ground truth unchanged
type Identity struct{}

// Estimate returns a copy of the trial target
func (Identity) Estimate(_ context.Context, _ models.Configuration, input models.TrialInput, _ float64) (models.Estimate, error) {
	t := input.Target.Clone()
	return models.Estimate{A: t.A, B: t.B, Lambda: t.Lambda}, nil
}

// Perturbed returns the ground truth plus Gaussian noise with standard deviation Scale*tol.
// The noise stream is derived from (Seed, ng, nc, trial id), so results do not depend
// on which worker runs the trial.
type Perturbed struct {
	Seed  int64
	Scale float64
}

// Estimate returns a perturbed copy of the trial target
func (p Perturbed) Estimate(ctx context.Context, cfg models.Configuration, input models.TrialInput, tol float64) (models.Estimate, error) {
	if err := ctx.Err(); err != nil {
		return models.Estimate{}, err
	}

	rng := utils.NewRandSource(utils.DeriveSeed(p.Seed, cfg.NG, cfg.NC, input.TrialID))
	sigma := p.Scale * tol
	t := input.Target.Clone()

	// a stays on the unit sphere
	norm := 0.0
	for i := range t.A {
		t.A[i] += rng.NormFloat64(0, sigma)
		norm += t.A[i] * t.A[i]
	}
	if norm = math.Sqrt(norm); norm > 0 {
		for i := range t.A {
			t.A[i] /= norm
		}
	}

	for _, m := range t.B {
		for i := range m.Data {
			m.Data[i] += rng.NormFloat64(0, sigma)
		}
	}

	lambda := t.Lambda + rng.NormFloat64(0, sigma)
	lambda = math.Min(1, math.Max(0, lambda))

	return models.Estimate{A: t.A, B: t.B, Lambda: lambda}, nil
}

// FromConfig builds the built-in estimator selected in the configuration
func FromConfig(cfg config.Estimator, seed int64) (Estimator, error) {
	switch cfg.Kind {
	case config.EstimatorIdentity:
		return Identity{}, nil
	case config.EstimatorPerturbed:
		return Perturbed{Seed: seed, Scale: cfg.NoiseScale}, nil
	default:
		return nil, fmt.Errorf("unknown estimator kind: %s", cfg.Kind)
	}
}
