package scoring

import "fmt"

// MinMaxScaler maps each feature to (x - min) / (max - min). Values outside the
// fitted range are not clipped. A constant feature (max == min) scales to 0.
type MinMaxScaler struct {
	min []float64
	max []float64
}

// NewMinMaxScaler validates the fitted ranges.
func NewMinMaxScaler(min, max []float64) (*MinMaxScaler, error) {
	if len(min) == 0 || len(min) != len(max) {
		return nil, fmt.Errorf("scaler needs matching min/max, got %d and %d", len(min), len(max))
	}
	for i := range min {
		if max[i] < min[i] {
			return nil, fmt.Errorf("scaler feature %d has max %v below min %v", i, max[i], min[i])
		}
	}
	return &MinMaxScaler{
		min: append([]float64(nil), min...),
		max: append([]float64(nil), max...),
	}, nil
}

// Transform returns a scaled copy of seq.
func (s *MinMaxScaler) Transform(seq Sequence) (Sequence, error) {
	if err := checkShape(seq, len(s.min)); err != nil {
		return nil, err
	}

	out := make(Sequence, len(seq))
	for t, step := range seq {
		row := make([]float64, len(step))
		for j, v := range step {
			span := s.max[j] - s.min[j]
			if span == 0 {
				continue
			}
			row[j] = (v - s.min[j]) / span
		}
		out[t] = row
	}
	return out, nil
}
