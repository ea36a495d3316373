package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GoSim-25-26J-441/trialsweep/internal/estimator"
	"github.com/GoSim-25-26J-441/trialsweep/internal/pool"
	"github.com/GoSim-25-26J-441/trialsweep/internal/provider"
	"github.com/GoSim-25-26J-441/trialsweep/internal/queue"
	"github.com/GoSim-25-26J-441/trialsweep/internal/status"
	"github.com/GoSim-25-26J-441/trialsweep/internal/storage"
	"github.com/GoSim-25-26J-441/trialsweep/internal/sweep"
	"github.com/GoSim-25-26J-441/trialsweep/internal/trials"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/config"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/logger"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/utils"
)

const (
	workerGrace       = time.Minute
	failedWorkerGrace = 10 * time.Second
)

var errWorkersStuck = errors.New("workers did not terminate")

type flags struct {
	configPath  string
	logLevel    string
	workers     int
	trials      int
	storagePath string
	backend     string
	grpcAddr    string
	metricsAddr string
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("trialsweep", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to sweep YAML (defaults are used when empty)")
	fs.StringVar(&f.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	fs.IntVar(&f.workers, "workers", 0, "worker pool size override")
	fs.IntVar(&f.trials, "trials", 0, "trials per configuration override")
	fs.StringVar(&f.backend, "storage-backend", "", "storage backend override (file, sqlite)")
	fs.StringVar(&f.storagePath, "storage-path", "", "storage path override")
	fs.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC health listen address (disabled when empty)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "HTTP metrics listen address (disabled when empty)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// loadConfig reads the YAML file, if any, and applies flag overrides
func loadConfig(f *flags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if f.trials > 0 {
		cfg.Trials = f.trials
	}
	if f.backend != "" {
		cfg.Storage.Backend = f.backend
	}
	if f.storagePath != "" {
		cfg.Storage.Path = f.storagePath
	}
	if f.grpcAddr != "" {
		cfg.Status.GRPCAddr = f.grpcAddr
	}
	if f.metricsAddr != "" {
		cfg.Status.MetricsAddr = f.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("sweep failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	drainTimeout, err := cfg.GetDrainTimeout()
	if err != nil {
		return err
	}
	est, err := estimator.FromConfig(cfg.Estimator, cfg.Seed)
	if err != nil {
		return err
	}

	runID := utils.GenerateRunID()
	store, err := storage.Open(cfg.Storage, runID)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	state := status.NewState()
	statusSrv := status.NewServer(cfg.Status, state,
		status.NewHTTPServer(state, store, reg, runID).Handler(), logger.Default)
	if err := statusSrv.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status shutdown error", "error", err)
		}
	}()

	work := queue.New[models.WorkItem]()
	results := queue.New[models.TrialResult]()

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()

	workers := pool.New(work, results, est,
		pool.WithWorkers(cfg.Workers),
		pool.WithMetrics(pool.NewMetrics(reg)))
	if err := workers.Start(poolCtx); err != nil {
		return err
	}

	coordinator := trials.NewCoordinator(work, results, provider.NewSynthetic(cfg.Seed), store,
		trials.WithTrials(cfg.Trials),
		trials.WithTolerance(cfg.Tolerance),
		trials.WithDrainTimeout(drainTimeout),
		trials.WithMetrics(trials.NewMetrics(reg)))

	driver := sweep.NewDriver(coordinator, workers, cfg.Grid, sweep.WithRunID(runID))

	logger.Info("starting sweep",
		"run_id", runID,
		"workers", workers.Workers(),
		"trials", cfg.Trials,
		"tolerance", cfg.Tolerance,
		"configurations", cfg.Grid.Size(),
		"storage", cfg.Storage.Backend,
		"estimator", cfg.Estimator.Kind)
	state.Set(status.PhaseRunning)

	report, sweepErr := driver.Run(ctx)
	if sweepErr != nil {
		state.Set(status.PhaseFailed)
	} else {
		state.Set(status.PhaseFinished)
	}

	// The driver only signals shutdown; wait here so the process exits cleanly.
	// After a failed sweep idle workers are stopped and a stuck estimator
	// call is abandoned after the grace period.
	grace := workerGrace
	if sweepErr != nil {
		cancelPool()
		grace = failedWorkerGrace
	}
	if err := waitWorkers(workers, grace); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("worker pool stopped with error", "error", err)
	}
	if sweepErr != nil {
		return sweepErr
	}

	logger.Info("sweep complete",
		"run_id", report.RunID,
		"processed", len(report.Processed),
		"skipped", len(report.Skipped),
		"failed_trials", report.Failed,
		"elapsed", report.Duration)
	return nil
}

// waitWorkers waits for the pool to terminate, giving up after grace
func waitWorkers(p *pool.Pool, grace time.Duration) error {
	select {
	case <-p.Done():
		return p.Wait()
	case <-time.After(grace):
		return fmt.Errorf("%w after %s, %d still running", errWorkersStuck, grace, p.Running())
	}
}
