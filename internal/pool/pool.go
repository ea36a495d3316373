// Package pool runs a fixed number of workers that pull trials off the work
// queue, run the estimator and publish tagged results.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/trialsweep/internal/estimator"
	"github.com/GoSim-25-26J-441/trialsweep/internal/queue"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/logger"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

// DefaultWorkers is the pool size used when none is configured
const DefaultWorkers = 6

var (
	ErrAlreadyStarted = errors.New("pool already started")
	ErrNotStarted     = errors.New("pool not started")
	ErrEstimatorPanic = errors.New("estimator panicked")
)

// Option configures a Pool
type Option func(*Pool)

// WithWorkers sets the number of workers. Non-positive values keep the default.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithLogger sets the pool logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pool is a fixed-size set of interchangeable workers.
// Each worker is RUNNING until it observes the closed work queue, then TERMINATED.
type Pool struct {
	work    *queue.Queue[models.WorkItem]
	results *queue.Queue[models.TrialResult]
	est     estimator.Estimator
	workers int
	metrics *Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	eg      *errgroup.Group
	done    chan struct{}
	err     error

	running atomic.Int32
}

// New creates a pool reading from work and writing to results
func New(work *queue.Queue[models.WorkItem], results *queue.Queue[models.TrialResult], est estimator.Estimator, opts ...Option) *Pool {
	p := &Pool{
		work:    work,
		results: results,
		est:     est,
		workers: DefaultWorkers,
		logger:  logger.Default,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Cancelling ctx stops idle workers; a trial already
// inside the estimator runs to completion.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	eg, egCtx := errgroup.WithContext(ctx)
	p.eg = eg
	for i := 0; i < p.workers; i++ {
		idx := i
		p.running.Add(1)
		if p.metrics != nil {
			p.metrics.ActiveWorkers.Inc()
		}
		eg.Go(func() error {
			return p.runWorker(egCtx, idx)
		})
	}

	go func() {
		err := eg.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	p.logger.Info("worker pool started", "workers", p.workers)
	return nil
}

// Shutdown signals every worker to terminate once the work queued so far is consumed.
// It does not wait; use Wait or Done for that.
func (p *Pool) Shutdown() {
	p.work.Close()
}

// Wait blocks until every worker has terminated
func (p *Pool) Wait() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once every worker has terminated
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Running returns the number of workers still in the RUNNING state
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Workers returns the configured pool size
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) runWorker(ctx context.Context, idx int) error {
	log := p.logger.With("worker", idx)
	defer func() {
		p.running.Add(-1)
		if p.metrics != nil {
			p.metrics.ActiveWorkers.Dec()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			log.Debug("worker stopped", "error", err)
			return err
		}
		item, err := p.work.Get(ctx)
		if errors.Is(err, queue.ErrClosed) {
			log.Debug("worker terminated")
			return nil
		}
		if err != nil {
			log.Debug("worker stopped", "error", err)
			return err
		}

		res := p.execute(ctx, item)
		if !res.OK() {
			log.Warn("trial failed",
				"ng", item.Config.NG,
				"nc", item.Config.NC,
				"trial_id", item.Input.TrialID,
				"error", res.Err)
		}

		if err := p.results.Put(res); err != nil {
			return fmt.Errorf("worker %d: failed to publish result of trial %d: %w", idx, res.TrialID, err)
		}
	}
}

// execute runs the estimator on one item; a panic becomes a failed result
func (p *Pool) execute(ctx context.Context, item models.WorkItem) (res models.TrialResult) {
	start := time.Now()
	res = models.TrialResult{
		Config:  item.Config,
		TrialID: item.Input.TrialID,
	}

	defer func() {
		if r := recover(); r != nil {
			res.Estimate = models.Estimate{}
			res.Err = fmt.Errorf("%w: %v", ErrEstimatorPanic, r)
		}
		res.Elapsed = time.Since(start)
		p.observe(res)
	}()

	est, err := p.est.Estimate(ctx, item.Config, item.Input, item.Tolerance)
	if err != nil {
		res.Err = fmt.Errorf("estimator failed on trial %d: %w", item.Input.TrialID, err)
		return res
	}
	res.Estimate = est
	return res
}

func (p *Pool) observe(res models.TrialResult) {
	if p.metrics == nil {
		return
	}
	p.metrics.TrialDuration.Observe(res.Elapsed.Seconds())
	if res.OK() {
		p.metrics.TrialsCompleted.Inc()
	} else {
		p.metrics.TrialsFailed.Inc()
	}
}
