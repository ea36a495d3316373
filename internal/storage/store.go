// Package storage persists trial results and configuration summaries.
//
// Two backends are provided:
//   - FileStore: one protojson document per trial plus summary.json per configuration
//   - SQLiteStore: the same documents in a single SQLite database
//
// In both, the summary is written last and its presence is the completion
// artifact probed by TrialDone.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/config"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract of the trial coordinator
type Store interface {
	// TrialDone reports whether the completion artifact of cfg exists
	TrialDone(ctx context.Context, cfg models.Configuration) (bool, error)
	// ClearTrials removes every trial record of cfg, so a redone configuration
	// holds exactly the trials of the latest run
	ClearTrials(ctx context.Context, cfg models.Configuration) error
	WriteTrialResult(ctx context.Context, res models.TrialResult) error
	WriteSummary(ctx context.Context, summary *models.ConfigurationSummary) error
	ReadTrialResult(ctx context.Context, cfg models.Configuration, trialID int) (*TrialRecord, error)
	ReadSummary(ctx context.Context, cfg models.Configuration) (*models.ConfigurationSummary, error)
	CountTrialResults(ctx context.Context, cfg models.Configuration) (int, error)
	Close() error
}

// TrialRecord is the persisted form of a TrialResult
type TrialRecord struct {
	Config   models.Configuration
	TrialID  int
	RunID    string
	Status   models.TrialStatus
	Error    string
	Estimate models.Estimate
	Elapsed  time.Duration
}

func newTrialRecord(runID string, res models.TrialResult) *TrialRecord {
	rec := &TrialRecord{
		Config:   res.Config,
		TrialID:  res.TrialID,
		RunID:    runID,
		Status:   res.Status(),
		Estimate: res.Estimate,
		Elapsed:  res.Elapsed,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// Open creates the backend selected in the configuration
func Open(cfg config.Storage, runID string) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Path, runID)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.Path, runID)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
