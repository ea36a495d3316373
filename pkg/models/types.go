package models

import (
	"fmt"
	"time"
)

// Configuration identifies one batch of trials: a grid pair plus the scalar derived from it
type Configuration struct {
	NG int `json:"ng"`
	NC int `json:"nc"`
	Q  int `json:"q"`
}

// NewConfiguration builds a configuration for a grid pair, deriving Q = nc^2 - nc
func NewConfiguration(ng, nc int) Configuration {
	return Configuration{NG: ng, NC: nc, Q: nc*nc - nc}
}

// Key is the storage key of the configuration
func (c Configuration) Key() string {
	return fmt.Sprintf("m=%d,k=%d", c.NG, c.NC)
}

func (c Configuration) String() string {
	return fmt.Sprintf("m=%d k=%d q=%d", c.NG, c.NC, c.Q)
}

// Matrix is a dense row-major matrix
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// NewMatrix creates a rows x cols matrix. A nil data slice allocates zeros.
func NewMatrix(rows, cols int, data []float64) Matrix {
	if data == nil {
		data = make([]float64, rows*cols)
	}
	return Matrix{Rows: rows, Cols: cols, Data: data}
}

// At returns the element at row i, column j
func (m Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

// Clone returns a deep copy
func (m Matrix) Clone() Matrix {
	return Matrix{Rows: m.Rows, Cols: m.Cols, Data: cloneFloats(m.Data)}
}

// Tensor is a dense n-dimensional array stored flat in row-major order
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Clone returns a deep copy
func (t Tensor) Clone() Tensor {
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	return Tensor{Shape: shape, Data: cloneFloats(t.Data)}
}

// Geometry is the per-configuration search region: a sphere in Q dimensions
type Geometry struct {
	Dim    int       `json:"dim"`
	Center []float64 `json:"center"`
	Radius float64   `json:"radius"`
}

// Target is the ground truth an estimator tries to recover
type Target struct {
	A      []float64 `json:"a"`
	B      []Matrix  `json:"b"`
	Lambda float64   `json:"lambda"`
	T      Tensor    `json:"t"`
}

// Clone returns a deep copy
func (t Target) Clone() Target {
	b := make([]Matrix, len(t.B))
	for i, m := range t.B {
		b[i] = m.Clone()
	}
	return Target{A: cloneFloats(t.A), B: b, Lambda: t.Lambda, T: t.T.Clone()}
}

// TrialInput is one randomized trial. Immutable once created.
type TrialInput struct {
	TrialID  int
	Geometry *Geometry
	Target   Target
}

// WorkItem is what a worker pulls off the work queue
type WorkItem struct {
	Config    Configuration
	Tolerance float64
	Input     TrialInput
}

// Estimate is the estimator's output triple
type Estimate struct {
	A      []float64 `json:"a_hat"`
	B      []Matrix  `json:"b_hat"`
	Lambda float64   `json:"lambda_hat"`
}

// TrialStatus represents the outcome of a trial
type TrialStatus string

const (
	TrialStatusCompleted TrialStatus = "completed"
	TrialStatusFailed    TrialStatus = "failed"
)

// TrialResult is produced exactly once per WorkItem and carries the original trial id
type TrialResult struct {
	Config   Configuration
	TrialID  int
	Estimate Estimate
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the estimator produced an estimate
func (r TrialResult) OK() bool {
	return r.Err == nil
}

// Status returns the trial status
func (r TrialResult) Status() TrialStatus {
	if r.Err != nil {
		return TrialStatusFailed
	}
	return TrialStatusCompleted
}

// TrialScore holds the estimation errors of one trial
type TrialScore struct {
	TrialID   int     `json:"trial_id"`
	AErr      float64 `json:"a_err"`
	BErr      float64 `json:"b_err"`
	LambdaErr float64 `json:"lambda_err"`
	Failed    bool    `json:"failed"`
}

// ErrorStats summarizes one error array over the successful trials
type ErrorStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// Keys of ConfigurationSummary.Stats
const (
	StatsA      = "a"
	StatsB      = "b"
	StatsLambda = "lambda"
)

// ConfigurationSummary holds per-trial error arrays aligned by trial id
type ConfigurationSummary struct {
	Config      Configuration         `json:"config"`
	AErr        []float64             `json:"a_err"`
	BErr        []float64             `json:"b_err"`
	LambdaErr   []float64             `json:"lambda_err"`
	Failed      []int                 `json:"failed,omitempty"`
	Stats       map[string]ErrorStats `json:"stats,omitempty"`
	CompletedAt time.Time             `json:"completed_at"`
}

// Trials returns the number of trials in the summary
func (s *ConfigurationSummary) Trials() int {
	return len(s.AErr)
}

func cloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}
