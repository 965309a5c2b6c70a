package scoring

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Artifact kinds.
const (
	KindLSTM   = "lstm"
	KindLinear = "linear"
)

// Artifact is the on-disk model description. JSON artifacts parse too since
// YAML is a superset.
type Artifact struct {
	Kind       string         `yaml:"kind"`
	InputSize  int            `yaml:"input_size"`
	HiddenSize int            `yaml:"hidden_size"`
	Layers     []LayerWeights `yaml:"layers"`
	FC         *DenseWeights  `yaml:"fc"`
	Weights    []float64      `yaml:"weights"`
	Bias       float64        `yaml:"bias"`
	Scaler     *ScalerParams  `yaml:"scaler"`
}

type LayerWeights struct {
	WIH [][]float64 `yaml:"w_ih"`
	WHH [][]float64 `yaml:"w_hh"`
	BIH []float64   `yaml:"b_ih"`
	BHH []float64   `yaml:"b_hh"`
}

type DenseWeights struct {
	Weight []float64 `yaml:"weight"`
	Bias   float64   `yaml:"bias"`
}

type ScalerParams struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

// LoadModel reads and builds the artifact at path.
func LoadModel(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	art, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("parse model artifact %s: %w", path, err)
	}

	return art.Build()
}

// ParseArtifact decodes a YAML or JSON artifact.
func ParseArtifact(data []byte) (*Artifact, error) {
	var art Artifact
	if err := yaml.Unmarshal(data, &art); err != nil {
		return nil, err
	}
	return &art, nil
}

// Build validates the artifact and returns a ready, immutable Model whose
// input width is FeatureCount.
func (a *Artifact) Build() (Model, error) {
	var (
		model Model
		width int
	)

	switch a.Kind {
	case KindLSTM:
		m, err := newLSTM(a.InputSize, a.HiddenSize, a.Layers, a.FC)
		if err != nil {
			return nil, err
		}
		model, width = m, a.InputSize
	case KindLinear:
		m, err := NewLinear(a.Weights, a.Bias)
		if err != nil {
			return nil, err
		}
		model, width = m, len(a.Weights)
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}

	if width != FeatureCount {
		return nil, fmt.Errorf("model expects %d features, pipeline produces %d", width, FeatureCount)
	}

	if a.Scaler == nil {
		return model, nil
	}

	scaler, err := NewMinMaxScaler(a.Scaler.Min, a.Scaler.Max)
	if err != nil {
		return nil, err
	}
	if len(a.Scaler.Min) != width {
		return nil, fmt.Errorf("scaler covers %d features, model expects %d", len(a.Scaler.Min), width)
	}

	return &scaledModel{scaler: scaler, inner: model}, nil
}
