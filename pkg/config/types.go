package config

import "time"

// Config represents the trial sweep configuration
type Config struct {
	LogLevel     string    `yaml:"log_level"`
	Workers      int       `yaml:"workers"`
	Trials       int       `yaml:"trials"`
	Tolerance    float64   `yaml:"tolerance"`
	Seed         int64     `yaml:"seed"`
	DrainTimeout string    `yaml:"drain_timeout"` // e.g. "30m"; empty or "0" disables the bound
	Grid         Grid      `yaml:"grid"`
	Storage      Storage   `yaml:"storage"`
	Estimator    Estimator `yaml:"estimator"`
	Status       Status    `yaml:"status"`
}

// Grid bounds the two configuration parameters. Both ranges are half-open: [min, max).
type Grid struct {
	MinNG int `yaml:"min_ng"`
	MaxNG int `yaml:"max_ng"`
	MinNC int `yaml:"min_nc"`
	MaxNC int `yaml:"max_nc"`
}

// Storage selects the persistence backend
type Storage struct {
	Backend string `yaml:"backend"` // file or sqlite
	Path    string `yaml:"path"`    // directory for file, database file for sqlite
}

// Estimator selects the built-in estimator used by the binary
type Estimator struct {
	Kind       string  `yaml:"kind"` // identity or perturbed
	NoiseScale float64 `yaml:"noise_scale,omitempty"`
}

// Status configures the optional status surfaces. Empty addresses disable them.
type Status struct {
	GRPCAddr    string `yaml:"grpc_addr,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	EstimatorIdentity  = "identity"
	EstimatorPerturbed = "perturbed"
)

// Default returns the configuration used when a field is not set in YAML
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		Workers:      6,
		Trials:       100,
		Tolerance:    1e-2,
		DrainTimeout: "",
		Grid: Grid{
			MinNG: 2,
			MaxNG: 6,
			MinNC: 2,
			MaxNC: 6,
		},
		Storage: Storage{
			Backend: BackendFile,
			Path:    "trials/fpme",
		},
		Estimator: Estimator{
			Kind:       EstimatorPerturbed,
			NoiseScale: 1.0,
		},
	}
}

// GetDrainTimeout parses the drain timeout. Zero means the drain is unbounded.
func (c *Config) GetDrainTimeout() (time.Duration, error) {
	if c.DrainTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.DrainTimeout)
}

// Size returns the number of configurations in the grid
func (g Grid) Size() int {
	if g.MaxNG <= g.MinNG || g.MaxNC <= g.MinNC {
		return 0
	}
	return (g.MaxNG - g.MinNG) * (g.MaxNC - g.MinNC)
}
