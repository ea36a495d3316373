package storage

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/trialsweep/pkg/models"
)

// Documents are google.protobuf.Struct values rendered with protojson.
// JSON has no NaN or infinities: NaN is written as null, and infinities as the
// strings "Infinity" and "-Infinity" that protojson uses for doubles.

var marshalOpts = protojson.MarshalOptions{Multiline: true, Indent: "  "}

func encodeTrial(rec *TrialRecord) ([]byte, error) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"config":     configValue(rec.Config),
		"trial_id":   structpb.NewNumberValue(float64(rec.TrialID)),
		"run_id":     structpb.NewStringValue(rec.RunID),
		"status":     structpb.NewStringValue(string(rec.Status)),
		"error":      structpb.NewStringValue(rec.Error),
		"elapsed_ms": structpb.NewNumberValue(float64(rec.Elapsed) / float64(time.Millisecond)),
		"a_hat":      floatsValue(rec.Estimate.A),
		"b_hat":      matricesValue(rec.Estimate.B),
		"lambda_hat": floatValue(rec.Estimate.Lambda),
	}}
	data, err := marshalOpts.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trial %d: %w", rec.TrialID, err)
	}
	return data, nil
}

func decodeTrial(data []byte) (*TrialRecord, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode trial record: %w", err)
	}
	f := s.GetFields()

	cfg, err := valueConfig(f["config"])
	if err != nil {
		return nil, err
	}
	b, err := valueMatrices(f["b_hat"])
	if err != nil {
		return nil, err
	}
	return &TrialRecord{
		Config:  cfg,
		TrialID: int(f["trial_id"].GetNumberValue()),
		RunID:   f["run_id"].GetStringValue(),
		Status:  models.TrialStatus(f["status"].GetStringValue()),
		Error:   f["error"].GetStringValue(),
		Estimate: models.Estimate{
			A:      valueFloats(f["a_hat"]),
			B:      b,
			Lambda: valueFloat(f["lambda_hat"]),
		},
		Elapsed: time.Duration(f["elapsed_ms"].GetNumberValue() * float64(time.Millisecond)),
	}, nil
}

func encodeSummary(runID string, sum *models.ConfigurationSummary) ([]byte, error) {
	failed := make([]float64, len(sum.Failed))
	for i, id := range sum.Failed {
		failed[i] = float64(id)
	}

	stats := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for name, st := range sum.Stats {
		stats.Fields[name] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"mean":    floatValue(st.Mean),
			"std_dev": floatValue(st.StdDev),
			"p50":     floatValue(st.P50),
			"p95":     floatValue(st.P95),
			"max":     floatValue(st.Max),
		}})
	}

	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"config":       configValue(sum.Config),
		"run_id":       structpb.NewStringValue(runID),
		"a_err":        floatsValue(sum.AErr),
		"b_err":        floatsValue(sum.BErr),
		"lambda_err":   floatsValue(sum.LambdaErr),
		"failed":       floatsValue(failed),
		"stats":        structpb.NewStructValue(stats),
		"completed_at": structpb.NewStringValue(sum.CompletedAt.UTC().Format(time.RFC3339Nano)),
	}}
	data, err := marshalOpts.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary %s: %w", sum.Config.Key(), err)
	}
	return data, nil
}

func decodeSummary(data []byte) (*models.ConfigurationSummary, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	f := s.GetFields()

	cfg, err := valueConfig(f["config"])
	if err != nil {
		return nil, err
	}

	sum := &models.ConfigurationSummary{
		Config:    cfg,
		AErr:      valueFloats(f["a_err"]),
		BErr:      valueFloats(f["b_err"]),
		LambdaErr: valueFloats(f["lambda_err"]),
	}
	for _, id := range valueFloats(f["failed"]) {
		sum.Failed = append(sum.Failed, int(id))
	}
	if stats := f["stats"].GetStructValue(); stats != nil && len(stats.Fields) > 0 {
		sum.Stats = make(map[string]models.ErrorStats, len(stats.Fields))
		for name, v := range stats.Fields {
			sf := v.GetStructValue().GetFields()
			sum.Stats[name] = models.ErrorStats{
				Mean:   valueFloat(sf["mean"]),
				StdDev: valueFloat(sf["std_dev"]),
				P50:    valueFloat(sf["p50"]),
				P95:    valueFloat(sf["p95"]),
				Max:    valueFloat(sf["max"]),
			}
		}
	}
	if ts := f["completed_at"].GetStringValue(); ts != "" {
		sum.CompletedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at: %w", err)
		}
	}
	return sum, nil
}

func configValue(cfg models.Configuration) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"ng": structpb.NewNumberValue(float64(cfg.NG)),
		"nc": structpb.NewNumberValue(float64(cfg.NC)),
		"q":  structpb.NewNumberValue(float64(cfg.Q)),
	}})
}

func valueConfig(v *structpb.Value) (models.Configuration, error) {
	s := v.GetStructValue()
	if s == nil {
		return models.Configuration{}, fmt.Errorf("record has no config")
	}
	f := s.GetFields()
	return models.Configuration{
		NG: int(f["ng"].GetNumberValue()),
		NC: int(f["nc"].GetNumberValue()),
		Q:  int(f["q"].GetNumberValue()),
	}, nil
}

const (
	posInf = "Infinity"
	negInf = "-Infinity"
)

func floatValue(x float64) *structpb.Value {
	switch {
	case math.IsNaN(x):
		return structpb.NewNullValue()
	case math.IsInf(x, 1):
		return structpb.NewStringValue(posInf)
	case math.IsInf(x, -1):
		return structpb.NewStringValue(negInf)
	}
	return structpb.NewNumberValue(x)
}

func valueFloat(v *structpb.Value) float64 {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return k.NumberValue
	case *structpb.Value_StringValue:
		switch k.StringValue {
		case posInf:
			return math.Inf(1)
		case negInf:
			return math.Inf(-1)
		}
	}
	return math.NaN()
}

func floatsValue(xs []float64) *structpb.Value {
	values := make([]*structpb.Value, len(xs))
	for i, x := range xs {
		values[i] = floatValue(x)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func valueFloats(v *structpb.Value) []float64 {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]float64, len(list.Values))
	for i, x := range list.Values {
		out[i] = valueFloat(x)
	}
	return out
}

func matricesValue(ms []models.Matrix) *structpb.Value {
	values := make([]*structpb.Value, len(ms))
	for i, m := range ms {
		values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"rows": structpb.NewNumberValue(float64(m.Rows)),
			"cols": structpb.NewNumberValue(float64(m.Cols)),
			"data": floatsValue(m.Data),
		}})
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func valueMatrices(v *structpb.Value) ([]models.Matrix, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, nil
	}
	out := make([]models.Matrix, len(list.Values))
	for i, x := range list.Values {
		f := x.GetStructValue().GetFields()
		m := models.Matrix{
			Rows: int(f["rows"].GetNumberValue()),
			Cols: int(f["cols"].GetNumberValue()),
			Data: valueFloats(f["data"]),
		}
		if len(m.Data) != m.Rows*m.Cols {
			return nil, fmt.Errorf("matrix %d: %d elements for shape %dx%d", i, len(m.Data), m.Rows, m.Cols)
		}
		out[i] = m
	}
	return out, nil
}

// MarshalSummary renders a summary in the same document format the stores persist
func MarshalSummary(runID string, sum *models.ConfigurationSummary) ([]byte, error) {
	return encodeSummary(runID, sum)
}
