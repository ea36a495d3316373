// Package provider supplies per-configuration geometry and per-trial ground truth.
package provider

import (
	"context"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/utils"
)

// Provider loads the inputs of one configuration
type Provider interface {
	// LoadGeometry returns the search geometry shared by every trial of cfg
	LoadGeometry(ctx context.Context, cfg models.Configuration) (*models.Geometry, error)
	// LoadTarget returns the ground truth of one trial
	LoadTarget(ctx context.Context, cfg models.Configuration, trialID int) (models.Target, error)
}

// Synthetic generates reproducible random ground truth from a seed.
// The same (Seed, ng, nc, trial id) always yields the same target.
type Synthetic struct {
	Seed int64
}

// NewSynthetic creates a synthetic provider
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{Seed: seed}
}

// LoadGeometry returns a sphere of dimension Q centered in the probability simplex
func (s *Synthetic) LoadGeometry(ctx context.Context, cfg models.Configuration) (*models.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Q <= 0 {
		return nil, fmt.Errorf("configuration %s has no free dimensions", cfg.Key())
	}

	center := make([]float64, cfg.Q)
	for i := range center {
		center[i] = 1 / float64(cfg.NC*cfg.NC)
	}
	return &models.Geometry{
		Dim:    cfg.Q,
		Center: center,
		Radius: 1 / float64(2*cfg.NC*cfg.NC),
	}, nil
}

// LoadTarget draws a unit-norm a, NG symmetric QxQ matrices with unit Frobenius norm,
// lambda in [0, 1) and an NG x NC x NC tensor of row-stochastic blocks
func (s *Synthetic) LoadTarget(ctx context.Context, cfg models.Configuration, trialID int) (models.Target, error) {
	if err := ctx.Err(); err != nil {
		return models.Target{}, err
	}
	if trialID < 0 {
		return models.Target{}, fmt.Errorf("invalid trial id %d", trialID)
	}

	rng := utils.NewRandSource(utils.DeriveSeed(s.Seed, cfg.NG, cfg.NC, trialID))

	a := rng.UnitVector(cfg.Q)

	b := make([]models.Matrix, cfg.NG)
	for g := range b {
		b[g] = symmetricUnit(rng, cfg.Q)
	}

	lambda := rng.Float64()

	t := models.Tensor{
		Shape: []int{cfg.NG, cfg.NC, cfg.NC},
		Data:  make([]float64, cfg.NG*cfg.NC*cfg.NC),
	}
	for row := 0; row < cfg.NG*cfg.NC; row++ {
		base := row * cfg.NC
		sum := 0.0
		for j := 0; j < cfg.NC; j++ {
			v := rng.UniformFloat64(0.05, 1)
			t.Data[base+j] = v
			sum += v
		}
		for j := 0; j < cfg.NC; j++ {
			t.Data[base+j] /= sum
		}
	}

	return models.Target{A: a, B: b, Lambda: lambda, T: t}, nil
}

func symmetricUnit(rng *utils.RandSource, n int) models.Matrix {
	m := models.NewMatrix(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := rng.NormFloat64(0, 1)
			m.Data[i*n+j] = v
			m.Data[j*n+i] = v
		}
	}
	norm := 0.0
	for _, v := range m.Data {
		norm += v * v
	}
	if norm = math.Sqrt(norm); norm > 0 {
		for i := range m.Data {
			m.Data[i] /= norm
		}
	}
	return m
}
