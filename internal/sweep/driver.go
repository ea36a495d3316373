// Package sweep walks the configuration grid, running the trial coordinator
// once per configuration, and shuts the worker pool down when it is done.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/trialsweep/internal/trials"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/config"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/logger"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/utils"
)

// Runner processes one configuration; *trials.Coordinator implements it
type Runner interface {
	Run(ctx context.Context, cfg models.Configuration) (*trials.Outcome, error)
}

// Shutdowner signals the worker pool to stop; *pool.Pool implements it
type Shutdowner interface {
	Shutdown()
}

// Report summarizes a sweep
type Report struct {
	RunID     string
	Processed []models.Configuration
	Skipped   []models.Configuration
	// Failed counts failed trials over the processed configurations
	Failed   int
	Duration time.Duration
}

// Option configures a Driver
type Option func(*Driver)

// WithRunID overrides the generated sweep run id
func WithRunID(id string) Option {
	return func(d *Driver) {
		if id != "" {
			d.runID = id
		}
	}
}

// WithLogger sets the driver logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// Driver runs the grid sequentially
type Driver struct {
	runner Runner
	pool   Shutdowner
	grid   config.Grid
	runID  string
	logger *slog.Logger
}

// NewDriver creates a driver over grid
func NewDriver(runner Runner, pool Shutdowner, grid config.Grid, opts ...Option) *Driver {
	d := &Driver{
		runner: runner,
		pool:   pool,
		grid:   grid,
		runID:  utils.GenerateRunID(),
		logger: logger.Default,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunID returns the sweep run id
func (d *Driver) RunID() string {
	return d.runID
}

// Configurations lists the grid in run order: ng outer, nc inner, both half-open
func Configurations(grid config.Grid) []models.Configuration {
	var out []models.Configuration
	for ng := grid.MinNG; ng < grid.MaxNG; ng++ {
		for nc := grid.MinNC; nc < grid.MaxNC; nc++ {
			out = append(out, models.NewConfiguration(ng, nc))
		}
	}
	return out
}

// Run processes every configuration in order and stops at the first error.
// The pool is shut down exactly once on every return path; Run does not wait
// for the workers to terminate.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	defer d.pool.Shutdown()

	start := time.Now()
	report := &Report{RunID: d.runID}
	configs := Configurations(d.grid)
	log := d.logger.With("run_id", d.runID)
	log.Info("sweep started", "configurations", len(configs))

	for i, cfg := range configs {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("sweep interrupted before %s: %w", cfg.Key(), err)
		}

		out, err := d.runner.Run(ctx, cfg)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("configuration %s failed: %w", cfg.Key(), err)
		}
		if out.Skipped {
			report.Skipped = append(report.Skipped, cfg)
		} else {
			report.Processed = append(report.Processed, cfg)
			if out.Summary != nil {
				report.Failed += len(out.Summary.Failed)
			}
		}
		log.Debug("sweep progress", "done", i+1, "configurations", len(configs))
	}

	report.Duration = time.Since(start)
	log.Info("sweep finished",
		"processed", len(report.Processed),
		"skipped", len(report.Skipped),
		"failed_trials", report.Failed,
		"elapsed", report.Duration)
	return report, nil
}
