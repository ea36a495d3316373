package pool

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/GoSim-25-26J-441/trialsweep/internal/estimator"
	"github.com/GoSim-25-26J-441/trialsweep/internal/queue"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/logger"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

func newQueues() (*queue.Queue[models.WorkItem], *queue.Queue[models.TrialResult]) {
	return queue.New[models.WorkItem](), queue.New[models.TrialResult]()
}

func workItem(cfg models.Configuration, id int) models.WorkItem {
	return models.WorkItem{
		Config:    cfg,
		Tolerance: 0.01,
		Input: models.TrialInput{
			TrialID: id,
			Target:  models.Target{A: []float64{float64(id)}, Lambda: float64(id) / 10},
		},
	}
}

func waitDone(t *testing.T, p *Pool) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not terminate, %d workers still running", p.Running())
	}
}

func quietLogger() Option {
	return WithLogger(logger.New("error", io.Discard))
}

func TestPoolProcessesAllItemsAndTagsResults(t *testing.T) {
	work, results := newQueues()
	p := New(work, results, estimator.Identity{}, WithWorkers(4), quietLogger())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cfg := models.NewConfiguration(2, 2)
	const n = 50
	for i := 0; i < n; i++ {
		if err := work.Put(workItem(cfg, i)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	seen := make(map[int]bool)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		res, err := results.Get(ctx)
		if err != nil {
			t.Fatalf("Get result %d failed: %v", i, err)
		}
		if !res.OK() {
			t.Fatalf("unexpected failed result: %v", res.Err)
		}
		if seen[res.TrialID] {
			t.Fatalf("trial %d delivered twice", res.TrialID)
		}
		seen[res.TrialID] = true
		if res.Estimate.Lambda != float64(res.TrialID)/10 {
			t.Fatalf("result for trial %d carries another trial's estimate: %v", res.TrialID, res.Estimate.Lambda)
		}
		if res.Config != cfg {
			t.Fatalf("result lost its configuration: %+v", res.Config)
		}
	}

	p.Shutdown()
	waitDone(t, p)
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
}

func TestPoolShutdownTerminatesEveryWorker(t *testing.T) {
	for _, workers := range []int{1, 2, 6, 16} {
		work, results := newQueues()
		p := New(work, results, estimator.Identity{}, WithWorkers(workers), quietLogger())
		if err := p.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if p.Workers() != workers {
			t.Fatalf("expected %d workers, got %d", workers, p.Workers())
		}

		p.Shutdown()
		waitDone(t, p)
		if p.Running() != 0 {
			t.Fatalf("expected 0 running workers, got %d", p.Running())
		}
	}
}

func TestPoolDrainsWorkQueuedBeforeShutdown(t *testing.T) {
	work, results := newQueues()
	cfg := models.NewConfiguration(2, 3)
	for i := 0; i < 20; i++ {
		_ = work.Put(workItem(cfg, i))
	}

	p := New(work, results, estimator.Identity{}, WithWorkers(3), quietLogger())
	p.Shutdown()
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, p)

	if results.Len() != 20 {
		t.Fatalf("expected 20 results, got %d", results.Len())
	}
}

func TestPoolPanicBecomesFailedResult(t *testing.T) {
	work, results := newQueues()
	var calls atomic.Int32
	est := estimator.Func(func(_ context.Context, _ models.Configuration, in models.TrialInput, _ float64) (models.Estimate, error) {
		calls.Add(1)
		if in.TrialID == 1 {
			panic("singular matrix")
		}
		return models.Estimate{Lambda: 1}, nil
	})

	p := New(work, results, est, WithWorkers(1), quietLogger())
	_ = p.Start(context.Background())

	cfg := models.NewConfiguration(2, 2)
	for i := 0; i < 3; i++ {
		_ = work.Put(workItem(cfg, i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	failed := 0
	for i := 0; i < 3; i++ {
		res, err := results.Get(ctx)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !res.OK() {
			failed++
			if res.TrialID != 1 {
				t.Fatalf("unexpected failed trial %d", res.TrialID)
			}
			if !errors.Is(res.Err, ErrEstimatorPanic) {
				t.Fatalf("expected ErrEstimatorPanic, got %v", res.Err)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("expected 1 failed result, got %d", failed)
	}
	// The single worker survived the panic
	if p.Running() != 1 {
		t.Fatalf("expected worker to keep running, got %d", p.Running())
	}

	p.Shutdown()
	waitDone(t, p)
}

func TestPoolEstimatorErrorBecomesFailedResult(t *testing.T) {
	work, results := newQueues()
	diverged := errors.New("search diverged")
	est := estimator.Func(func(context.Context, models.Configuration, models.TrialInput, float64) (models.Estimate, error) {
		return models.Estimate{}, diverged
	})

	p := New(work, results, est, WithWorkers(2), quietLogger())
	_ = p.Start(context.Background())
	_ = work.Put(workItem(models.NewConfiguration(2, 2), 9))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := results.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if res.TrialID != 9 || !errors.Is(res.Err, diverged) {
		t.Fatalf("expected failed trial 9 wrapping diverged, got %d %v", res.TrialID, res.Err)
	}
	if res.Status() != models.TrialStatusFailed {
		t.Fatalf("expected failed status, got %s", res.Status())
	}

	p.Shutdown()
	waitDone(t, p)
}

func TestPoolStartTwice(t *testing.T) {
	work, results := newQueues()
	p := New(work, results, estimator.Identity{}, quietLogger())
	if err := p.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if p.Workers() != DefaultWorkers {
		t.Fatalf("expected default %d workers, got %d", DefaultWorkers, p.Workers())
	}
	p.Shutdown()
	waitDone(t, p)
}

func TestPoolContextCancelStopsIdleWorkers(t *testing.T) {
	work, results := newQueues()
	p := New(work, results, estimator.Identity{}, WithWorkers(3), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	_ = p.Start(ctx)

	cancel()
	waitDone(t, p)
	if err := p.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPoolMetrics(t *testing.T) {
	work, results := newQueues()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	est := estimator.Func(func(_ context.Context, _ models.Configuration, in models.TrialInput, _ float64) (models.Estimate, error) {
		if in.TrialID%2 == 1 {
			return models.Estimate{}, errors.New("odd")
		}
		return models.Estimate{}, nil
	})
	p := New(work, results, est, WithWorkers(2), WithMetrics(m), quietLogger())
	_ = p.Start(context.Background())

	if got := testutil.ToFloat64(m.ActiveWorkers); got != 2 {
		t.Fatalf("expected 2 active workers, got %v", got)
	}

	cfg := models.NewConfiguration(2, 2)
	for i := 0; i < 6; i++ {
		_ = work.Put(workItem(cfg, i))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 6; i++ {
		if _, err := results.Get(ctx); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	p.Shutdown()
	waitDone(t, p)

	if got := testutil.ToFloat64(m.TrialsCompleted); got != 3 {
		t.Errorf("expected 3 completed trials, got %v", got)
	}
	if got := testutil.ToFloat64(m.TrialsFailed); got != 3 {
		t.Errorf("expected 3 failed trials, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveWorkers); got != 0 {
		t.Errorf("expected 0 active workers after shutdown, got %v", got)
	}
	if got := testutil.CollectAndCount(m.TrialDuration); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}
