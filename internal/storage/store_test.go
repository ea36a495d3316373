package storage

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/config"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fs, err := NewFileStore(filepath.Join(dir, "files"), "run-1")
	require.NoError(t, err)
	db, err := NewSQLiteStore(filepath.Join(dir, "trials.db"), "run-1")
	require.NoError(t, err)
	t.Cleanup(func() {
		fs.Close()
		db.Close()
	})
	return map[string]Store{"file": fs, "sqlite": db}
}

func sampleResult(cfg models.Configuration, id int) models.TrialResult {
	return models.TrialResult{
		Config:  cfg,
		TrialID: id,
		Estimate: models.Estimate{
			A:      []float64{0.6, 0.8},
			B:      []models.Matrix{models.NewMatrix(2, 2, []float64{1, 0, 0, 1})},
			Lambda: 0.25,
		},
		Elapsed: 1500 * time.Millisecond,
	}
}

func sampleSummary(cfg models.Configuration) *models.ConfigurationSummary {
	return &models.ConfigurationSummary{
		Config:    cfg,
		AErr:      []float64{0.1, math.NaN(), math.Inf(1)},
		BErr:      []float64{0.2, math.NaN(), 0.4},
		LambdaErr: []float64{0.01, math.NaN(), 0.02},
		Failed:    []int{1},
		Stats: map[string]models.ErrorStats{
			models.StatsA: {Mean: 0.2, StdDev: 0.1, P50: 0.2, P95: 0.29, Max: 0.3},
		},
		CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTrialResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := models.NewConfiguration(2, 3)

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.WriteTrialResult(ctx, sampleResult(cfg, 7)))

			rec, err := s.ReadTrialResult(ctx, cfg, 7)
			require.NoError(t, err)
			require.Equal(t, cfg, rec.Config)
			require.Equal(t, 7, rec.TrialID)
			require.Equal(t, "run-1", rec.RunID)
			require.Equal(t, models.TrialStatusCompleted, rec.Status)
			require.Empty(t, rec.Error)
			require.Equal(t, []float64{0.6, 0.8}, rec.Estimate.A)
			require.Len(t, rec.Estimate.B, 1)
			require.Equal(t, 1.0, rec.Estimate.B[0].At(1, 1))
			require.Equal(t, 0.25, rec.Estimate.Lambda)
			require.Equal(t, 1500*time.Millisecond, rec.Elapsed)
		})
	}
}

func TestFailedTrialRecordsError(t *testing.T) {
	ctx := context.Background()
	cfg := models.NewConfiguration(3, 2)

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			res := models.TrialResult{Config: cfg, TrialID: 0, Err: errors.New("diverged")}
			res.Estimate.Lambda = math.NaN()
			require.NoError(t, s.WriteTrialResult(ctx, res))

			rec, err := s.ReadTrialResult(ctx, cfg, 0)
			require.NoError(t, err)
			require.Equal(t, models.TrialStatusFailed, rec.Status)
			require.Equal(t, "diverged", rec.Error)
			require.True(t, math.IsNaN(rec.Estimate.Lambda))
			require.Empty(t, rec.Estimate.A)
		})
	}
}

func TestSummaryMarksConfigurationDone(t *testing.T) {
	ctx := context.Background()
	cfg := models.NewConfiguration(4, 5)

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			done, err := s.TrialDone(ctx, cfg)
			require.NoError(t, err)
			require.False(t, done)

			require.NoError(t, s.WriteTrialResult(ctx, sampleResult(cfg, 0)))
			done, err = s.TrialDone(ctx, cfg)
			require.NoError(t, err)
			require.False(t, done, "trial records alone must not mark completion")

			require.NoError(t, s.WriteSummary(ctx, sampleSummary(cfg)))
			done, err = s.TrialDone(ctx, cfg)
			require.NoError(t, err)
			require.True(t, done)

			other, err := s.TrialDone(ctx, models.NewConfiguration(4, 4))
			require.NoError(t, err)
			require.False(t, other)
		})
	}
}

func TestSummaryRoundTripKeepsNaN(t *testing.T) {
	ctx := context.Background()
	cfg := models.NewConfiguration(2, 2)

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.WriteSummary(ctx, sampleSummary(cfg)))

			got, err := s.ReadSummary(ctx, cfg)
			require.NoError(t, err)
			require.Equal(t, cfg, got.Config)
			require.Equal(t, 3, got.Trials())
			require.Equal(t, 0.1, got.AErr[0])
			require.True(t, math.IsNaN(got.AErr[1]))
			require.True(t, math.IsInf(got.AErr[2], 1), "a shape mismatch must not read back as a failed trial")
			require.True(t, math.IsNaN(got.BErr[1]))
			require.True(t, math.IsNaN(got.LambdaErr[1]))
			require.Equal(t, 0.4, got.BErr[2])
			require.Equal(t, []int{1}, got.Failed)
			require.Equal(t, 0.29, got.Stats[models.StatsA].P95)
			require.True(t, got.CompletedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
		})
	}
}

func TestMissingRecords(t *testing.T) {
	ctx := context.Background()
	cfg := models.NewConfiguration(5, 5)

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.ReadTrialResult(ctx, cfg, 3)
			require.ErrorIs(t, err, ErrNotFound)

			_, err = s.ReadSummary(ctx, cfg)
			require.ErrorIs(t, err, ErrNotFound)

			n, err := s.CountTrialResults(ctx, cfg)
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestRewriteOverwritesTrial(t *testing.T) {
	ctx := context.Background()
	cfg := models.NewConfiguration(2, 4)

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.NoError(t, s.WriteTrialResult(ctx, sampleResult(cfg, i)))
			}
			res := sampleResult(cfg, 1)
			res.Estimate.Lambda = 0.75
			require.NoError(t, s.WriteTrialResult(ctx, res))

			n, err := s.CountTrialResults(ctx, cfg)
			require.NoError(t, err)
			require.Equal(t, 3, n)

			rec, err := s.ReadTrialResult(ctx, cfg, 1)
			require.NoError(t, err)
			require.Equal(t, 0.75, rec.Estimate.Lambda)
		})
	}
}

func TestClearTrialsDropsRecordsOfEarlierRun(t *testing.T) {
	ctx := context.Background()
	cfg := models.NewConfiguration(3, 3)
	other := models.NewConfiguration(3, 4)

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 8; i++ {
				require.NoError(t, s.WriteTrialResult(ctx, sampleResult(cfg, i)))
			}
			require.NoError(t, s.WriteTrialResult(ctx, sampleResult(other, 0)))

			require.NoError(t, s.ClearTrials(ctx, cfg))
			for i := 0; i < 5; i++ {
				require.NoError(t, s.WriteTrialResult(ctx, sampleResult(cfg, i)))
			}

			n, err := s.CountTrialResults(ctx, cfg)
			require.NoError(t, err)
			require.Equal(t, 5, n)
			_, err = s.ReadTrialResult(ctx, cfg, 7)
			require.ErrorIs(t, err, ErrNotFound)

			n, err = s.CountTrialResults(ctx, other)
			require.NoError(t, err)
			require.Equal(t, 1, n, "other configurations keep their trials")

			require.NoError(t, s.ClearTrials(ctx, models.NewConfiguration(9, 9)))
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "trials", "fpme")
	s, err := NewFileStore(root, "run-1")
	require.NoError(t, err)

	cfg := models.NewConfiguration(3, 4)
	require.NoError(t, s.WriteTrialResult(ctx, sampleResult(cfg, 12)))
	require.NoError(t, s.WriteSummary(ctx, sampleSummary(cfg)))

	require.FileExists(t, filepath.Join(root, "m=3,k=4", "trial_0012.json"))
	require.FileExists(t, filepath.Join(root, "m=3,k=4", "summary.json"))

	entries, err := os.ReadDir(filepath.Join(root, "m=3,k=4"))
	require.NoError(t, err)
	require.Len(t, entries, 2, "no temp files should be left behind")
}

func TestFileStoreHonorsCancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "run-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.WriteTrialResult(ctx, sampleResult(models.NewConfiguration(2, 2), 0))
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	fs, err := Open(config.Storage{Backend: config.BackendFile, Path: filepath.Join(dir, "f")}, "run")
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, fs)
	require.NoError(t, fs.Close())

	db, err := Open(config.Storage{Backend: config.BackendSQLite, Path: filepath.Join(dir, "t.db")}, "run")
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, db)
	require.NoError(t, db.Close())

	_, err = Open(config.Storage{Backend: "s3"}, "run")
	require.Error(t, err)
}

func TestFloatValueEncodesNonFinite(t *testing.T) {
	require.Equal(t, "Infinity", floatValue(math.Inf(1)).GetStringValue())
	require.Equal(t, "-Infinity", floatValue(math.Inf(-1)).GetStringValue())
	require.True(t, math.IsInf(valueFloat(floatValue(math.Inf(-1))), -1))
	require.True(t, math.IsNaN(valueFloat(floatValue(math.NaN()))))
	require.Equal(t, 2.5, valueFloat(floatValue(2.5)))
}

func TestDecodeRejectsBadMatrixShape(t *testing.T) {
	doc := []byte(`{"config":{"ng":2,"nc":2,"q":2},"b_hat":[{"rows":2,"cols":2,"data":[1,2,3]}]}`)
	_, err := decodeTrial(doc)
	require.Error(t, err)
}
