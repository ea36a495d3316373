package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

const summaryFile = "summary.json"

// FileStore lays results out as <root>/m=<ng>,k=<nc>/trial_<id>.json and summary.json
type FileStore struct {
	root  string
	runID string
}

// NewFileStore creates the root directory if needed
func NewFileStore(root, runID string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &FileStore{root: root, runID: runID}, nil
}

// Root returns the storage root directory
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) configDir(cfg models.Configuration) string {
	return filepath.Join(s.root, cfg.Key())
}

func trialFile(trialID int) string {
	return fmt.Sprintf("trial_%04d.json", trialID)
}

// TrialDone reports whether summary.json exists for cfg
func (s *FileStore) TrialDone(ctx context.Context, cfg models.Configuration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.configDir(cfg), summaryFile))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to probe %s: %w", cfg.Key(), err)
}

// ClearTrials removes the trial files of cfg
func (s *FileStore) ClearTrials(ctx context.Context, cfg models.Configuration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(s.configDir(cfg))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", cfg.Key(), err)
	}
	for _, e := range entries {
		if e.IsDir() || !isTrialFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.configDir(cfg), e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s of %s: %w", e.Name(), cfg.Key(), err)
		}
	}
	return nil
}

// WriteTrialResult writes trial_<id>.json atomically
func (s *FileStore) WriteTrialResult(ctx context.Context, res models.TrialResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeTrial(newTrialRecord(s.runID, res))
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.configDir(res.Config), trialFile(res.TrialID)), data)
}

// WriteSummary writes summary.json, the completion artifact of the configuration
func (s *FileStore) WriteSummary(ctx context.Context, summary *models.ConfigurationSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeSummary(s.runID, summary)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.configDir(summary.Config), summaryFile), data)
}

// ReadTrialResult loads one trial record; ErrNotFound if it was never written
func (s *FileStore) ReadTrialResult(ctx context.Context, cfg models.Configuration, trialID int) (*TrialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.configDir(cfg), trialFile(trialID)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: trial %d of %s", ErrNotFound, trialID, cfg.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trial %d of %s: %w", trialID, cfg.Key(), err)
	}
	return decodeTrial(data)
}

// ReadSummary loads the summary of cfg; ErrNotFound until it completed
func (s *FileStore) ReadSummary(ctx context.Context, cfg models.Configuration) (*models.ConfigurationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.configDir(cfg), summaryFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: summary of %s", ErrNotFound, cfg.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary of %s: %w", cfg.Key(), err)
	}
	return decodeSummary(data)
}

// CountTrialResults counts the trial files of cfg
func (s *FileStore) CountTrialResults(ctx context.Context, cfg models.Configuration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(s.configDir(cfg))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", cfg.Key(), err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && isTrialFile(e.Name()) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the file backend
func (s *FileStore) Close() error {
	return nil
}

func isTrialFile(name string) bool {
	return strings.HasPrefix(name, "trial_") && strings.HasSuffix(name, ".json")
}

// writeFileAtomic writes to a temp file in the same directory and renames it into place
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}
