package scoring

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Linear scores the final step as weights·x + bias.
type Linear struct {
	weights []float64
	bias    float64
}

// NewLinear copies the weights.
func NewLinear(weights []float64, bias float64) (*Linear, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("linear model needs weights")
	}
	return &Linear{weights: append([]float64(nil), weights...), bias: bias}, nil
}

func (m *Linear) Predict(ctx context.Context, seq Sequence) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkShape(seq, len(m.weights)); err != nil {
		return 0, err
	}
	return checkOutput(floats.Dot(m.weights, seq[len(seq)-1]) + m.bias)
}
