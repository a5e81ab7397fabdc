package generation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
)

const (
	// MaxTemperature is the upper bound accepted for sampling temperature
	MaxTemperature = 2.0

	defaultVelocity = 100
	maxVelocity     = 127
)

// Step is one decoded prediction before it is placed on the timeline
type Step struct {
	Pitch         int     // Rounded pitch, not yet clamped
	RawPitch      float64 // Pitch as fed back to the window
	Step          float64 // Seconds since the previous onset
	Duration      float64 // Seconds
	DurationLabel string  // Set for categorical-duration variants
	DurationClass int
	Interval      float64
	Velocity      int
	Polyphony     int
}

// Decoder turns one model output into a Step using temperature-scaled
// sampling for categorical fields and clamping for continuous ones
type Decoder struct {
	variant     model.Variant
	predictor   model.Predictor
	temperature float64
	rng         *rand.Rand
	vocab       *Vocabulary
	table       *TempoTable
}

// ValidateTemperature rejects temperatures outside (0, MaxTemperature]
func ValidateTemperature(t float64) error {
	if !(t > 0) || t > MaxTemperature {
		return fmt.Errorf("%w: got %v", ErrInvalidTemperature, t)
	}
	return nil
}

// NewDecoder validates the sampling parameters. table is required for
// categorical-duration variants.
func NewDecoder(variant model.Variant, predictor model.Predictor, temperature float64, rng *rand.Rand, vocab *Vocabulary, table *TempoTable) (*Decoder, error) {
	if err := ValidateTemperature(temperature); err != nil {
		return nil, err
	}
	if variant.Duration == model.DurationCategorical && table == nil {
		return nil, ErrMissingTempo
	}
	return &Decoder{
		variant:     variant,
		predictor:   predictor,
		temperature: temperature,
		rng:         rng,
		vocab:       vocab,
		table:       table,
	}, nil
}

// Decode asks the model for the next note given the window. prevPitch is the
// previous absolute pitch, used by interval variants. The window is not
// modified.
func (d *Decoder) Decode(ctx context.Context, w *Window, prevPitch float64) (Step, error) {
	pred, err := d.predictor.Predict(ctx, w.Rows())
	if err != nil {
		return Step{}, err
	}
	return d.FromPrediction(pred, prevPitch)
}

// FromPrediction decodes an already obtained model output
func (d *Decoder) FromPrediction(pred *model.RawPrediction, prevPitch float64) (Step, error) {
	var s Step
	var err error

	if d.variant.Pitch == model.PitchInterval {
		interval, ok := pred.Scalar(model.FieldInterval)
		if !ok {
			return Step{}, fmt.Errorf("%w: %s", ErrEmptyPrediction, model.FieldInterval)
		}
		s.Interval = interval
		s.RawPitch = prevPitch + interval
	} else {
		class, err := d.sample(pred, model.FieldPitch)
		if err != nil {
			return Step{}, err
		}
		s.RawPitch = float64(class)
		if interval, ok := pred.Scalar(model.FieldInterval); ok {
			s.Interval = interval
		} else {
			s.Interval = s.RawPitch - prevPitch
		}
	}
	s.Pitch = int(math.Round(s.RawPitch))

	if s.Step, err = d.continuous(pred, model.FieldStep); err != nil {
		return Step{}, err
	}

	if d.variant.Duration == model.DurationCategorical {
		if s.DurationClass, err = d.sample(pred, model.FieldDuration); err != nil {
			return Step{}, err
		}
		if s.DurationLabel, err = d.vocab.Decode(s.DurationClass); err != nil {
			return Step{}, err
		}
		if s.Duration, err = d.table.Seconds(s.DurationLabel); err != nil {
			return Step{}, err
		}
	} else if s.Duration, err = d.continuous(pred, model.FieldDuration); err != nil {
		return Step{}, err
	}

	s.Velocity = defaultVelocity
	if d.variant.Has(model.FieldVelocity) {
		v, err := d.continuous(pred, model.FieldVelocity)
		if err != nil {
			return Step{}, err
		}
		s.Velocity = int(math.Round(math.Min(v, maxVelocity)))
	}

	if d.variant.Polyphonic {
		if s.Polyphony, err = d.sample(pred, model.FieldPolyphony); err != nil {
			return Step{}, err
		}
	}
	return s, nil
}

// Vector returns the raw feature vector pushed back into the window for s
func (d *Decoder) Vector(s Step) FeatureVector {
	row := make(FeatureVector, len(d.variant.Features))
	for i, f := range d.variant.Features {
		switch f {
		case model.FieldPitch:
			row[i] = s.RawPitch
		case model.FieldStep:
			row[i] = s.Step
		case model.FieldDuration:
			if d.variant.Duration == model.DurationCategorical {
				row[i] = float64(s.DurationClass)
			} else {
				row[i] = s.Duration
			}
		case model.FieldInterval:
			row[i] = s.Interval
		case model.FieldVelocity:
			row[i] = float64(s.Velocity)
		case model.FieldPolyphony:
			row[i] = float64(s.Polyphony)
		}
	}
	return row
}

func (d *Decoder) continuous(pred *model.RawPrediction, f model.Field) (float64, error) {
	v, ok := pred.Scalar(f)
	if !ok || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s", ErrEmptyPrediction, f)
	}
	return math.Max(0, v), nil
}

func (d *Decoder) sample(pred *model.RawPrediction, f model.Field) (int, error) {
	logits, ok := pred.Logits[f]
	if !ok || len(logits) == 0 {
		return 0, fmt.Errorf("%w: %s logits", ErrEmptyPrediction, f)
	}
	return SampleCategorical(logits, d.temperature, d.rng)
}

// SampleCategorical divides logits by temperature and draws one class from
// the resulting softmax distribution
func SampleCategorical(logits []float64, temperature float64, rng *rand.Rand) (int, error) {
	if err := ValidateTemperature(temperature); err != nil {
		return 0, err
	}
	if len(logits) == 0 {
		return 0, ErrEmptyPrediction
	}

	maxLogit := math.Inf(-1)
	for _, l := range logits {
		if math.IsNaN(l) {
			return 0, fmt.Errorf("%w: NaN logit", ErrEmptyPrediction)
		}
		maxLogit = math.Max(maxLogit, l/temperature)
	}

	weights := make([]float64, len(logits))
	var total float64
	for i, l := range logits {
		weights[i] = math.Exp(l/temperature - maxLogit)
		total += weights[i]
	}

	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i, nil
		}
	}
	return len(weights) - 1, nil
}
