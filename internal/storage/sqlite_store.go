package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trial_results (
	ng          INTEGER NOT NULL,
	nc          INTEGER NOT NULL,
	trial_id    INTEGER NOT NULL,
	run_id      TEXT NOT NULL,
	status      TEXT NOT NULL,
	record_json TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (ng, nc, trial_id)
);

CREATE TABLE IF NOT EXISTS summaries (
	ng           INTEGER NOT NULL,
	nc           INTEGER NOT NULL,
	q            INTEGER NOT NULL,
	run_id       TEXT NOT NULL,
	summary_json TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	PRIMARY KEY (ng, nc)
);
`

// SQLiteStore keeps trial records and summaries in one SQLite database
type SQLiteStore struct {
	db    *sql.DB
	runID string
}

// NewSQLiteStore opens a SQLite database and runs migrations
func NewSQLiteStore(dbPath, runID string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, runID: runID}, nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// TrialDone reports whether a summary row exists for cfg
func (s *SQLiteStore) TrialDone(ctx context.Context, cfg models.Configuration) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM summaries WHERE ng = ? AND nc = ?`, cfg.NG, cfg.NC,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe summary %s: %w", cfg.Key(), err)
	}
	return true, nil
}

// ClearTrials deletes the trial rows of cfg
func (s *SQLiteStore) ClearTrials(ctx context.Context, cfg models.Configuration) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM trial_results WHERE ng = ? AND nc = ?`, cfg.NG, cfg.NC,
	)
	if err != nil {
		return fmt.Errorf("delete trials of %s: %w", cfg.Key(), err)
	}
	return nil
}

// WriteTrialResult upserts one trial row
func (s *SQLiteStore) WriteTrialResult(ctx context.Context, res models.TrialResult) error {
	rec := newTrialRecord(s.runID, res)
	data, err := encodeTrial(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trial_results (ng, nc, trial_id, run_id, status, record_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ng, nc, trial_id) DO UPDATE SET
			run_id = excluded.run_id,
			status = excluded.status,
			record_json = excluded.record_json,
			created_at = excluded.created_at`,
		res.Config.NG, res.Config.NC, res.TrialID, s.runID, string(rec.Status), string(data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert trial %d of %s: %w", res.TrialID, res.Config.Key(), err)
	}
	return nil
}

// WriteSummary upserts the summary row, the completion artifact of the configuration
func (s *SQLiteStore) WriteSummary(ctx context.Context, summary *models.ConfigurationSummary) error {
	data, err := encodeSummary(s.runID, summary)
	if err != nil {
		return err
	}
	cfg := summary.Config
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO summaries (ng, nc, q, run_id, summary_json, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ng, nc) DO UPDATE SET
			q = excluded.q,
			run_id = excluded.run_id,
			summary_json = excluded.summary_json,
			completed_at = excluded.completed_at`,
		cfg.NG, cfg.NC, cfg.Q, s.runID, string(data),
		summary.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert summary %s: %w", cfg.Key(), err)
	}
	return nil
}

// ReadTrialResult loads one trial record; ErrNotFound if it was never written
func (s *SQLiteStore) ReadTrialResult(ctx context.Context, cfg models.Configuration, trialID int) (*TrialRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record_json FROM trial_results WHERE ng = ? AND nc = ? AND trial_id = ?`,
		cfg.NG, cfg.NC, trialID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trial %d of %s", ErrNotFound, trialID, cfg.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("get trial %d of %s: %w", trialID, cfg.Key(), err)
	}
	return decodeTrial([]byte(data))
}

// ReadSummary loads the summary of cfg; ErrNotFound until it completed
func (s *SQLiteStore) ReadSummary(ctx context.Context, cfg models.Configuration) (*models.ConfigurationSummary, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary_json FROM summaries WHERE ng = ? AND nc = ?`, cfg.NG, cfg.NC,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: summary of %s", ErrNotFound, cfg.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("get summary %s: %w", cfg.Key(), err)
	}
	return decodeSummary([]byte(data))
}

// CountTrialResults counts the trial rows of cfg
func (s *SQLiteStore) CountTrialResults(ctx context.Context, cfg models.Configuration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trial_results WHERE ng = ? AND nc = ?`, cfg.NG, cfg.NC,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trials of %s: %w", cfg.Key(), err)
	}
	return n, nil
}
