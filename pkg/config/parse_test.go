package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseConfigYAMLStringAppliesDefaults(t *testing.T) {
	cfg, err := ParseConfigYAMLString(`trials: 5`)
	if err != nil {
		t.Fatalf("ParseConfigYAMLString failed: %v", err)
	}
	if cfg.Trials != 5 {
		t.Fatalf("expected 5 trials, got %d", cfg.Trials)
	}
	if cfg.Workers != 6 {
		t.Fatalf("expected default 6 workers, got %d", cfg.Workers)
	}
	if cfg.Tolerance != 1e-2 {
		t.Fatalf("expected default tolerance 0.01, got %f", cfg.Tolerance)
	}
	if cfg.Grid != (Grid{MinNG: 2, MaxNG: 6, MinNC: 2, MaxNC: 6}) {
		t.Fatalf("unexpected default grid: %+v", cfg.Grid)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Fatalf("expected file backend, got %q", cfg.Storage.Backend)
	}
	timeout, err := cfg.GetDrainTimeout()
	if err != nil || timeout != 0 {
		t.Fatalf("expected unbounded drain, got %v (%v)", timeout, err)
	}
}

func TestParseConfigYAMLStringOverrides(t *testing.T) {
	yamlText := `
log_level: debug
workers: 3
trials: 7
tolerance: 0.5
drain_timeout: 90s
grid: {min_ng: 2, max_ng: 3, min_nc: 2, max_nc: 3}
storage: {backend: sqlite, path: /tmp/trials.db}
estimator: {kind: identity}
`
	cfg, err := ParseConfigYAMLString(yamlText)
	if err != nil {
		t.Fatalf("ParseConfigYAMLString failed: %v", err)
	}
	if cfg.Workers != 3 || cfg.Trials != 7 || cfg.Tolerance != 0.5 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.Grid.Size() != 1 {
		t.Fatalf("expected a single configuration, got %d", cfg.Grid.Size())
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", cfg.Storage.Backend)
	}
	timeout, err := cfg.GetDrainTimeout()
	if err != nil {
		t.Fatalf("GetDrainTimeout failed: %v", err)
	}
	if timeout != 90*time.Second {
		t.Fatalf("expected 90s, got %v", timeout)
	}
}

func TestParseConfigYAMLStringInvalid(t *testing.T) {
	tests := []struct {
		name     string
		yamlText string
		wantErr  string
	}{
		{"Bad log level", `log_level: loud`, "log_level"},
		{"Zero workers", `workers: 0`, "workers"},
		{"Negative trials", `trials: -1`, "trials"},
		{"Zero tolerance", `tolerance: 0`, "tolerance"},
		{"Bad drain timeout", `drain_timeout: soon`, "drain_timeout"},
		{"Negative drain timeout", `drain_timeout: -1s`, "drain_timeout"},
		{"Empty ng range", `grid: {min_ng: 3, max_ng: 3, min_nc: 2, max_nc: 6}`, "max_ng"},
		{"Empty nc range", `grid: {min_ng: 2, max_ng: 6, min_nc: 4, max_nc: 2}`, "max_nc"},
		{"Zero min ng", `grid: {min_ng: 0, max_ng: 6, min_nc: 2, max_nc: 6}`, "min_ng"},
		{"Min nc without free dimensions", `grid: {min_ng: 2, max_ng: 6, min_nc: 1, max_nc: 6}`, "min_nc"},
		{"Unknown backend", `storage: {backend: s3, path: x}`, "backend"},
		{"Empty path", `storage: {backend: file, path: ""}`, "path"},
		{"Unknown estimator", `estimator: {kind: oracle}`, "kind"},
		{"Negative noise", `estimator: {kind: perturbed, noise_scale: -1}`, "noise_scale"},
		{"Malformed yaml", `workers: [`, "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfigYAMLString(tt.yamlText)
			if err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGridSize(t *testing.T) {
	tests := []struct {
		grid Grid
		want int
	}{
		{Grid{MinNG: 2, MaxNG: 6, MinNC: 2, MaxNC: 6}, 16},
		{Grid{MinNG: 2, MaxNG: 3, MinNC: 2, MaxNC: 5}, 3},
		{Grid{MinNG: 2, MaxNG: 2, MinNC: 2, MaxNC: 5}, 0},
	}
	for _, tt := range tests {
		if got := tt.grid.Size(); got != tt.want {
			t.Errorf("Size(%+v) = %d, expected %d", tt.grid, got, tt.want)
		}
	}
}
