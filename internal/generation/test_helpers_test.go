package generation

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
)

const peakedLogit = 50.0

// stubPredictor returns the same shaped output on every call
type stubPredictor struct {
	pitch     int     // Peaked pitch class; -1 for flat logits
	step      float64 // Seconds
	duration  float64 // Seconds, for continuous variants
	durClass  int     // Peaked duration class, for categorical variants
	interval  float64
	velocity  float64
	polyphony int
	failAt    int32 // Fail on this call number (1-based); 0 never fails

	calls atomic.Int32
}

var errStubModel = errors.New("stub model failure")

func (p *stubPredictor) Name() string { return "stub" }

func (p *stubPredictor) Predict(_ context.Context, window [][]float64) (*model.RawPrediction, error) {
	n := p.calls.Add(1)
	if p.failAt > 0 && n >= p.failAt {
		return nil, errStubModel
	}

	pred := model.NewRawPrediction()
	pred.Logits[model.FieldPitch] = peaked(128, p.pitch)
	pred.Values[model.FieldStep] = p.step
	pred.Values[model.FieldDuration] = p.duration
	pred.Values[model.FieldInterval] = p.interval
	pred.Values[model.FieldVelocity] = p.velocity
	pred.Logits[model.FieldPolyphony] = peaked(4, p.polyphony)
	return pred, nil
}

// categoricalStub wraps stubPredictor with duration logits
type categoricalStub struct {
	*stubPredictor
	classes int
}

func (p *categoricalStub) Predict(ctx context.Context, window [][]float64) (*model.RawPrediction, error) {
	pred, err := p.stubPredictor.Predict(ctx, window)
	if err != nil {
		return nil, err
	}
	delete(pred.Values, model.FieldDuration)
	pred.Logits[model.FieldDuration] = peaked(p.classes, p.durClass)
	return pred, nil
}

func peaked(n, at int) []float64 {
	out := make([]float64, n)
	if at >= 0 && at < n {
		out[at] = peakedLogit
	}
	return out
}

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func seedNotes(pitches ...float64) []models.RawNote {
	notes := make([]models.RawNote, len(pitches))
	for i, p := range pitches {
		notes[i] = models.RawNote{Pitch: p, Step: 0.5, Duration: 0.5}
	}
	return notes
}
