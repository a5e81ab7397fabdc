package model

import (
	"context"
)

// Predictor is a trained sequence model seen from the outside: one windowed
// context in, one step's distributions and scalars out. Implementations must
// be safe for concurrent use and must not keep per-call state.
type Predictor interface {
	// Predict runs one inference over window (WindowLength rows, one per note)
	Predict(ctx context.Context, window [][]float64) (*RawPrediction, error)

	// Name returns the model name (e.g., "lstm_attention")
	Name() string
}

// RawPrediction holds one model output for one step.
// Categorical fields carry logits, continuous fields carry a scalar.
type RawPrediction struct {
	Logits map[Field][]float64
	Values map[Field]float64
}

// NewRawPrediction returns an empty prediction ready to be filled
func NewRawPrediction() *RawPrediction {
	return &RawPrediction{
		Logits: make(map[Field][]float64),
		Values: make(map[Field]float64),
	}
}

// Scalar returns the continuous value for f. A single-element logits vector
// is accepted as a scalar.
func (p *RawPrediction) Scalar(f Field) (float64, bool) {
	if v, ok := p.Values[f]; ok {
		return v, true
	}
	if l, ok := p.Logits[f]; ok && len(l) == 1 {
		return l[0], true
	}
	return 0, false
}
