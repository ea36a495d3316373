package utils

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RandSource is a thread-safe random number generator
type RandSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// DeriveSeed mixes a base seed with a list of integers (e.g. ng, nc, trial id)
// so every trial gets its own reproducible stream regardless of scheduling.
func DeriveSeed(base int64, parts ...int) int64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	}
	write(uint64(base))
	for _, p := range parts {
		write(uint64(int64(p)))
	}
	seed := int64(h.Sum64() &^ (1 << 63))
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.NormFloat64()*stddev + mean
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rng.Float64()*(max-min)
}

// UnitVector returns a uniformly distributed point on the unit sphere in n dimensions
func (r *RandSource) UnitVector(n int) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := make([]float64, n)
	if n == 0 {
		return v
	}
	for {
		norm := 0.0
		for i := range v {
			v[i] = r.rng.NormFloat64()
			norm += v[i] * v[i]
		}
		norm = math.Sqrt(norm)
		// Resample the (practically impossible) zero vector
		if norm > 0 {
			for i := range v {
				v[i] /= norm
			}
			return v
		}
	}
}
