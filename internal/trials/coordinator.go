// Package trials runs the trials of one configuration: idempotency check,
// input loading, batch submission, drain, correlation by trial id, scoring
// and persistence.
package trials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/trialsweep/internal/provider"
	"github.com/GoSim-25-26J-441/trialsweep/internal/queue"
	"github.com/GoSim-25-26J-441/trialsweep/internal/storage"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/logger"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

const (
	DefaultTrials    = 100
	DefaultTolerance = 1e-2
)

var (
	ErrDrainTimeout      = errors.New("timed out waiting for trial results")
	ErrUnexpectedResult  = errors.New("unexpected trial result")
	ErrInvalidTrialCount = errors.New("trial count must be positive")
)

// Outcome reports what Run did for one configuration
type Outcome struct {
	Config  models.Configuration
	Skipped bool
	Scores  []models.TrialScore
	Summary *models.ConfigurationSummary
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithTrials sets the number of trials per configuration
func WithTrials(n int) Option {
	return func(c *Coordinator) {
		c.trials = n
	}
}

// WithTolerance sets the tolerance handed to the estimator
func WithTolerance(tol float64) Option {
	return func(c *Coordinator) {
		c.tolerance = tol
	}
}

// WithDrainTimeout bounds the wait for results. Zero waits until ctx is done.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.drainTimeout = d
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the coordinator logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// Coordinator owns the lifecycle of one configuration at a time.
// It must not be shared by concurrent Run calls on the same queues.
type Coordinator struct {
	work     *queue.Queue[models.WorkItem]
	results  *queue.Queue[models.TrialResult]
	provider provider.Provider
	store    storage.Store

	trials       int
	tolerance    float64
	drainTimeout time.Duration
	metrics      *Metrics
	logger       *slog.Logger
}

// NewCoordinator creates a coordinator submitting to work and draining results
func NewCoordinator(
	work *queue.Queue[models.WorkItem],
	results *queue.Queue[models.TrialResult],
	p provider.Provider,
	store storage.Store,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		work:      work,
		results:   results,
		provider:  p,
		store:     store,
		trials:    DefaultTrials,
		tolerance: DefaultTolerance,
		logger:    logger.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trials returns the number of trials run per configuration
func (c *Coordinator) Trials() int {
	return c.trials
}

// Run processes one configuration. It returns a skipped Outcome without
// submitting anything if the configuration's summary already exists.
func (c *Coordinator) Run(ctx context.Context, cfg models.Configuration) (*Outcome, error) {
	if c.trials <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTrialCount, c.trials)
	}
	log := c.logger.With("ng", cfg.NG, "nc", cfg.NC, "q", cfg.Q)

	done, err := c.store.TrialDone(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to check configuration %s: %w", cfg.Key(), err)
	}
	if done {
		log.Info("configuration already run, skipping")
		if c.metrics != nil {
			c.metrics.ConfigurationsSkipped.Inc()
		}
		return &Outcome{Config: cfg, Skipped: true}, nil
	}

	inputs, err := c.load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := c.submit(cfg, inputs); err != nil {
		return nil, err
	}
	log.Debug("trials submitted", "trials", len(inputs))

	results, err := c.drain(ctx, cfg, log)
	if err != nil {
		if n := c.discardPending(); n > 0 {
			log.Warn("discarded unstarted trials", "trials", n)
		}
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.DrainDuration.Observe(time.Since(start).Seconds())
	}

	scores := make([]models.TrialScore, len(inputs))
	for id, res := range results {
		scores[id] = Score(inputs[id].Target, res)
	}
	summary := Summarize(cfg, scores)

	// a partially completed earlier run may have left more trials than this one
	if err := c.store.ClearTrials(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to clear stale trials of %s: %w", cfg.Key(), err)
	}
	for _, res := range results {
		if err := c.store.WriteTrialResult(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to persist trial %d of %s: %w", res.TrialID, cfg.Key(), err)
		}
	}
	summary.CompletedAt = time.Now().UTC()
	if err := c.store.WriteSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to persist summary of %s: %w", cfg.Key(), err)
	}

	if c.metrics != nil {
		c.metrics.ConfigurationsCompleted.Inc()
	}
	log.Info("configuration completed",
		"trials", len(scores),
		"failed", len(summary.Failed),
		"a_err_mean", summary.Stats[models.StatsA].Mean,
		"b_err_mean", summary.Stats[models.StatsB].Mean,
		"lambda_err_mean", summary.Stats[models.StatsLambda].Mean,
		"elapsed", time.Since(start))

	return &Outcome{Config: cfg, Scores: scores, Summary: summary}, nil
}

// load reads the geometry once and one target per trial, indexed by trial id
func (c *Coordinator) load(ctx context.Context, cfg models.Configuration) ([]models.TrialInput, error) {
	geom, err := c.provider.LoadGeometry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load geometry of %s: %w", cfg.Key(), err)
	}

	inputs := make([]models.TrialInput, c.trials)
	for id := range inputs {
		target, err := c.provider.LoadTarget(ctx, cfg, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load trial %d of %s: %w", id, cfg.Key(), err)
		}
		inputs[id] = models.TrialInput{TrialID: id, Geometry: geom, Target: target}
	}
	return inputs, nil
}

// submit enqueues every trial. Workers receive copies of the targets so the
// ground truth kept here is never shared.
func (c *Coordinator) submit(cfg models.Configuration, inputs []models.TrialInput) error {
	for _, in := range inputs {
		item := models.WorkItem{
			Config:    cfg,
			Tolerance: c.tolerance,
			Input: models.TrialInput{
				TrialID:  in.TrialID,
				Geometry: in.Geometry,
				Target:   in.Target.Clone(),
			},
		}
		if err := c.work.Put(item); err != nil {
			return fmt.Errorf("failed to submit trial %d of %s: %w", in.TrialID, cfg.Key(), err)
		}
		if c.metrics != nil {
			c.metrics.TrialsSubmitted.Inc()
		}
	}
	return nil
}

// drain collects exactly c.trials results in arrival order and files them by trial id
func (c *Coordinator) drain(ctx context.Context, cfg models.Configuration, log *slog.Logger) ([]models.TrialResult, error) {
	drainCtx := ctx
	if c.drainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, c.drainTimeout)
		defer cancel()
	}

	results := make([]models.TrialResult, c.trials)
	seen := make([]bool, c.trials)
	step := max(1, c.trials/10)

	for received := 0; received < c.trials; received++ {
		res, err := c.results.Get(drainCtx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %d of %d results missing for %s after %s",
					ErrDrainTimeout, c.trials-received, c.trials, cfg.Key(), c.drainTimeout)
			}
			return nil, fmt.Errorf("failed to drain results of %s: %w", cfg.Key(), err)
		}

		if res.Config != cfg {
			return nil, fmt.Errorf("%w: trial %d belongs to %s, draining %s",
				ErrUnexpectedResult, res.TrialID, res.Config.Key(), cfg.Key())
		}
		if res.TrialID < 0 || res.TrialID >= c.trials {
			return nil, fmt.Errorf("%w: unknown trial id %d for %s", ErrUnexpectedResult, res.TrialID, cfg.Key())
		}
		if seen[res.TrialID] {
			return nil, fmt.Errorf("%w: duplicate trial id %d for %s", ErrUnexpectedResult, res.TrialID, cfg.Key())
		}
		seen[res.TrialID] = true
		results[res.TrialID] = res

		if (received+1)%step == 0 {
			log.Debug("drain progress", "received", received+1, "trials", c.trials)
		}
	}
	return results, nil
}

// discardPending empties both queues after a failed drain so a shut down pool
// does not go on to run the remaining trials. It returns the number of work
// items dropped.
func (c *Coordinator) discardPending() int {
	n := 0
	for _, ok := c.work.TryGet(); ok; _, ok = c.work.TryGet() {
		n++
	}
	for _, ok := c.results.TryGet(); ok; _, ok = c.results.TryGet() {
	}
	return n
}
