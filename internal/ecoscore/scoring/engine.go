package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
)

var greenProjectTypes = map[string]bool{
	"solar":             true,
	"wind":              true,
	"hydro":             true,
	"geothermal":        true,
	"green":             true,
	"biomass":           true,
	"energy_efficiency": true,
	"reforestation":     true,
}

// Reading is the telemetry measurement a recompute is based on.
type Reading struct {
	CarbonEst                float64
	PredictedCarbonReduction float64
}

// Score is the engine output.
type Score struct {
	EcoScore float64
	Raw      float64
}

// Engine builds model input, calls the model and maps the raw output onto [0,100].
type Engine struct {
	model  Model
	rawMin float64
	rawMax float64
}

// NewEngine creates an Engine. Raw outputs in [rawMin, rawMax] map linearly onto [0,100].
// An empty or inverted range makes every Recompute fail.
func NewEngine(model Model, rawMin, rawMax float64) *Engine {
	return &Engine{model: model, rawMin: rawMin, rawMax: rawMax}
}

// Recompute scores loan against reading. Model failures come back as a
// domain.PipelineError of kind ErrModelInference.
func (e *Engine) Recompute(ctx context.Context, loan *domain.Loan, reading Reading) (score Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Fail(domain.ErrModelInference, loan.LoanID, fmt.Errorf("model panic: %v", r))
		}
	}()

	if !(e.rawMin < e.rawMax) {
		return Score{}, domain.Fail(domain.ErrModelInference, loan.LoanID,
			fmt.Errorf("invalid raw output range [%v, %v]", e.rawMin, e.rawMax))
	}

	raw, err := e.model.Predict(ctx, BuildSequence(loan, reading))
	if err == nil {
		raw, err = checkOutput(raw)
	}
	if err != nil {
		return Score{}, domain.Fail(domain.ErrModelInference, loan.LoanID, err)
	}

	return Score{EcoScore: Rescale(raw, e.rawMin, e.rawMax), Raw: raw}, nil
}

// BuildFeatures derives one step: loan amount, carbon estimate, predicted
// carbon reduction, green factor.
func BuildFeatures(loan *domain.Loan, reading Reading) []float64 {
	green := 0.0
	if greenProjectTypes[strings.ToLower(strings.TrimSpace(loan.ProjectType))] {
		green = 1
	}
	return []float64{
		loan.LoanAmount,
		reading.CarbonEst,
		reading.PredictedCarbonReduction,
		green,
	}
}

// BuildSequence repeats the current feature vector SequenceLength times.
func BuildSequence(loan *domain.Loan, reading Reading) Sequence {
	features := BuildFeatures(loan, reading)
	seq := make(Sequence, SequenceLength)
	for i := range seq {
		seq[i] = append([]float64(nil), features...)
	}
	return seq
}

// Rescale maps raw from [rawMin, rawMax] onto [0,100], clamps, and rounds to
// two decimals.
func Rescale(raw, rawMin, rawMax float64) float64 {
	scaled := (raw - rawMin) / (rawMax - rawMin) * 100
	scaled = math.Max(0, math.Min(100, scaled))
	return math.Round(scaled*100) / 100
}
