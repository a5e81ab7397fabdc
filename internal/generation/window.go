package generation

import (
	"fmt"
	"math/rand/v2"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
)

const defaultSeedVelocity = 100

// FeatureVector is one note in the variant's field order
type FeatureVector []float64

// Window is the fixed-length context fed to the model. It always holds
// exactly WindowLength normalized vectors; Push evicts the oldest.
type Window struct {
	variant model.Variant
	rows    []FeatureVector
}

// NewWindow normalizes raw vectors into a window. len(raw) must equal the
// variant's window length.
func NewWindow(variant model.Variant, raw []FeatureVector) (*Window, error) {
	if len(raw) != variant.WindowLength {
		return nil, fmt.Errorf("window needs %d vectors, got %d", variant.WindowLength, len(raw))
	}

	w := &Window{variant: variant, rows: make([]FeatureVector, 0, variant.WindowLength)}
	for _, r := range raw {
		n, err := w.normalize(r)
		if err != nil {
			return nil, err
		}
		w.rows = append(w.rows, n)
	}
	return w, nil
}

// NewRandomWindow fills a window with independent U[0,1) values. Used when no
// seed is supplied; the output is unconditioned.
func NewRandomWindow(variant model.Variant, rng *rand.Rand) *Window {
	w := &Window{variant: variant, rows: make([]FeatureVector, variant.WindowLength)}
	for i := range w.rows {
		row := make(FeatureVector, len(variant.Features))
		for j := range row {
			row[j] = rng.Float64()
		}
		w.rows[i] = row
	}
	return w
}

// Push normalizes raw and appends it, evicting the oldest vector
func (w *Window) Push(raw FeatureVector) error {
	n, err := w.normalize(raw)
	if err != nil {
		return err
	}
	copy(w.rows, w.rows[1:])
	w.rows[len(w.rows)-1] = n
	return nil
}

// Len returns the number of vectors in the window
func (w *Window) Len() int {
	return len(w.rows)
}

// Rows returns a copy of the window for the predictor
func (w *Window) Rows() [][]float64 {
	out := make([][]float64, len(w.rows))
	for i, r := range w.rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}

// Last returns the denormalized value of field f in the newest vector
func (w *Window) Last(f model.Field) (float64, bool) {
	i := w.variant.Index(f)
	if i < 0 || len(w.rows) == 0 {
		return 0, false
	}
	return w.rows[len(w.rows)-1][i] * model.Normalization[f], true
}

func (w *Window) normalize(raw FeatureVector) (FeatureVector, error) {
	if len(raw) != len(w.variant.Features) {
		return nil, fmt.Errorf("vector has %d fields, variant %s expects %d", len(raw), w.variant.Name, len(w.variant.Features))
	}
	out := make(FeatureVector, len(raw))
	for i, f := range w.variant.Features {
		out[i] = raw[i] / model.Normalization[f]
	}
	return out, nil
}

// TileSeed repeats seed cyclically until it reaches length, then truncates.
// Seeds longer than length keep their first length notes.
func TileSeed(seed []models.RawNote, length int) []models.RawNote {
	if len(seed) == 0 || length <= 0 {
		return nil
	}
	out := make([]models.RawNote, length)
	for i := range out {
		out[i] = seed[i%len(seed)]
	}
	return out
}

// EncodeSeed converts seed notes to raw (unnormalized) vectors in the
// variant's field order. Categorical-duration variants store the duration
// class index; table is required for them.
func EncodeSeed(variant model.Variant, notes []models.RawNote, vocab *Vocabulary, table *TempoTable) ([]FeatureVector, error) {
	if variant.Duration == model.DurationCategorical && table == nil {
		return nil, ErrMissingTempo
	}

	out := make([]FeatureVector, 0, len(notes))
	for i, n := range notes {
		row := make(FeatureVector, len(variant.Features))
		for j, f := range variant.Features {
			switch f {
			case model.FieldPitch:
				row[j] = n.Pitch
			case model.FieldStep:
				row[j] = n.Step
			case model.FieldDuration:
				if variant.Duration == model.DurationCategorical {
					class, err := vocab.Encode(table.Classify(n.Duration))
					if err != nil {
						return nil, err
					}
					row[j] = float64(class)
				} else {
					row[j] = n.Duration
				}
			case model.FieldInterval:
				row[j] = seedInterval(notes, i)
			case model.FieldVelocity:
				row[j] = optional(n.Velocity, defaultSeedVelocity)
			case model.FieldPolyphony:
				row[j] = optional(n.Polyphony, 0)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// seedInterval uses the caller's interval when given, otherwise the distance
// from the previous seed pitch
func seedInterval(notes []models.RawNote, i int) float64 {
	if notes[i].Interval != nil {
		return *notes[i].Interval
	}
	if i == 0 {
		return 0
	}
	return notes[i].Pitch - notes[i-1].Pitch
}

func optional(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
