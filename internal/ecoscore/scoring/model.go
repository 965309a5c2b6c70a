// Package scoring turns loan state plus a telemetry reading into an eco-score.
//
// A Model is loaded once at startup and never mutated afterwards, so a single
// instance is shared by every pipeline worker without locking.
package scoring

import (
	"context"
	"fmt"
	"math"
)

const (
	// SequenceLength is the number of steps fed to the model per prediction.
	SequenceLength = 12
	// FeatureCount is the width of each step.
	FeatureCount = 4
)

// Sequence is a [step][feature] model input.
type Sequence [][]float64

// Model is a fixed-shape sequence regression function.
type Model interface {
	Predict(ctx context.Context, seq Sequence) (float64, error)
}

func checkShape(seq Sequence, width int) error {
	if len(seq) == 0 {
		return fmt.Errorf("empty sequence")
	}
	for i, step := range seq {
		if len(step) != width {
			return fmt.Errorf("step %d has %d features, want %d", i, len(step), width)
		}
		for j, v := range step {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("step %d feature %d is not finite", i, j)
			}
		}
	}
	return nil
}

func checkOutput(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("model produced non-finite output %v", v)
	}
	return v, nil
}

// scaledModel MinMax-scales every step before delegating.
type scaledModel struct {
	scaler *MinMaxScaler
	inner  Model
}

func (m *scaledModel) Predict(ctx context.Context, seq Sequence) (float64, error) {
	scaled, err := m.scaler.Transform(seq)
	if err != nil {
		return 0, err
	}
	return m.inner.Predict(ctx, scaled)
}
