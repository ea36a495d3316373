package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate re-runs validation, e.g. after flags overrode loaded values
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", cfg.Trials)
	}
	if cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %f", cfg.Tolerance)
	}

	timeout, err := cfg.GetDrainTimeout()
	if err != nil {
		return fmt.Errorf("invalid drain_timeout %s: %w", cfg.DrainTimeout, err)
	}
	if timeout < 0 {
		return fmt.Errorf("drain_timeout cannot be negative, got %s", cfg.DrainTimeout)
	}

	if err := validateGrid(cfg.Grid); err != nil {
		return fmt.Errorf("grid validation failed: %w", err)
	}

	if err := validateStorage(cfg.Storage); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}

	if err := validateEstimator(cfg.Estimator); err != nil {
		return fmt.Errorf("estimator validation failed: %w", err)
	}

	return nil
}

// validateGrid validates the configuration grid bounds
func validateGrid(g Grid) error {
	if g.MinNG < 1 {
		return fmt.Errorf("min_ng must be at least 1, got %d", g.MinNG)
	}
	// q = nc^2 - nc is zero for nc = 1
	if g.MinNC < 2 {
		return fmt.Errorf("min_nc must be at least 2, got %d", g.MinNC)
	}
	if g.MaxNG <= g.MinNG {
		return fmt.Errorf("max_ng (%d) must be greater than min_ng (%d)", g.MaxNG, g.MinNG)
	}
	if g.MaxNC <= g.MinNC {
		return fmt.Errorf("max_nc (%d) must be greater than min_nc (%d)", g.MaxNC, g.MinNC)
	}
	return nil
}

// validateStorage validates the persistence backend selection
func validateStorage(s Storage) error {
	switch s.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("invalid backend: %s (must be file or sqlite)", s.Backend)
	}
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// validateEstimator validates the built-in estimator selection
func validateEstimator(e Estimator) error {
	switch e.Kind {
	case EstimatorIdentity:
	case EstimatorPerturbed:
		if e.NoiseScale < 0 {
			return fmt.Errorf("noise_scale cannot be negative, got %f", e.NoiseScale)
		}
	default:
		return fmt.Errorf("invalid kind: %s (must be identity or perturbed)", e.Kind)
	}
	return nil
}
