package trials

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
	"github.com/GoSim-25-26J-441/trialsweep/pkg/utils"
)

// VectorError is the Euclidean norm of aHat - a. Vectors of different length score +Inf.
func VectorError(aHat, a []float64) float64 {
	if len(aHat) != len(a) {
		return math.Inf(1)
	}
	if len(a) == 0 {
		return 0
	}
	return floats.Distance(aHat, a, 2)
}

// StructuralError is the mean Frobenius norm of the elementwise differences
// of two matrix lists. Lists or matrices of different shape score +Inf.
func StructuralError(bHat, b []models.Matrix) float64 {
	if len(bHat) != len(b) {
		return math.Inf(1)
	}
	if len(b) == 0 {
		return 0
	}

	var total float64
	for i := range b {
		got, want := bHat[i], b[i]
		if got.Rows != want.Rows || got.Cols != want.Cols ||
			len(got.Data) != got.Rows*got.Cols || len(want.Data) != want.Rows*want.Cols {
			return math.Inf(1)
		}
		if want.Rows == 0 || want.Cols == 0 {
			continue
		}
		var diff mat.Dense
		diff.Sub(
			mat.NewDense(got.Rows, got.Cols, got.Data),
			mat.NewDense(want.Rows, want.Cols, want.Data),
		)
		total += mat.Norm(&diff, 2)
	}
	return total / float64(len(b))
}

// AbsError is |x - y|
func AbsError(x, y float64) float64 {
	return math.Abs(x - y)
}

// Score computes the three errors of a result against the ground truth of the same trial.
// A failed result scores NaN in every component.
func Score(target models.Target, res models.TrialResult) models.TrialScore {
	if !res.OK() {
		nan := math.NaN()
		return models.TrialScore{TrialID: res.TrialID, AErr: nan, BErr: nan, LambdaErr: nan, Failed: true}
	}
	return models.TrialScore{
		TrialID:   res.TrialID,
		AErr:      VectorError(res.Estimate.A, target.A),
		BErr:      StructuralError(res.Estimate.B, target.B),
		LambdaErr: AbsError(res.Estimate.Lambda, target.Lambda),
	}
}

// Summarize builds the per-configuration error arrays. scores must be indexed by trial id.
func Summarize(cfg models.Configuration, scores []models.TrialScore) *models.ConfigurationSummary {
	sum := &models.ConfigurationSummary{
		Config:    cfg,
		AErr:      make([]float64, len(scores)),
		BErr:      make([]float64, len(scores)),
		LambdaErr: make([]float64, len(scores)),
	}
	for i, s := range scores {
		sum.AErr[i] = s.AErr
		sum.BErr[i] = s.BErr
		sum.LambdaErr[i] = s.LambdaErr
		if s.Failed {
			sum.Failed = append(sum.Failed, s.TrialID)
		}
	}
	sum.Stats = map[string]models.ErrorStats{
		models.StatsA:      errorStats(sum.AErr),
		models.StatsB:      errorStats(sum.BErr),
		models.StatsLambda: errorStats(sum.LambdaErr),
	}
	return sum
}

// errorStats ignores failed (NaN) and mismatched (+Inf) entries
func errorStats(errs []float64) models.ErrorStats {
	ok := utils.Finite(errs)
	return models.ErrorStats{
		Mean:   utils.Mean(ok),
		StdDev: utils.StdDev(ok),
		P50:    utils.P50(ok),
		P95:    utils.P95(ok),
		Max:    utils.MaxOf(ok),
	}
}
