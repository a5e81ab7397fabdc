package generation

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
)

// DefaultPolyphonyMode is used when a request does not name one
const DefaultPolyphonyMode = ModeHarmonicIntervals

// Params are the per-request generation parameters
type Params struct {
	Seed           []models.RawNote // nil for a cold start
	NumPredictions int
	Temperature    float64
	Tempo          float64
	PolyphonyMode  PolyphonyMode // empty uses the generator default
	RandSeed       *int64        // fixes sampling for reproducible output
}

// Validate rejects configuration errors. It runs before any window is built
// or the model is called.
func (p Params) Validate() error {
	if p.NumPredictions <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidPredictionCount, p.NumPredictions)
	}
	if err := ValidateTemperature(p.Temperature); err != nil {
		return err
	}
	if p.Tempo <= 0 {
		return fmt.Errorf("%w: got %v", ErrMissingTempo, p.Tempo)
	}
	if p.PolyphonyMode != "" {
		if _, err := ParsePolyphonyMode(string(p.PolyphonyMode)); err != nil {
			return err
		}
	}
	return nil
}

// Generator runs the decoding loop. It holds only read-only configuration
// and may be shared by concurrent requests; every run owns its own window,
// timeline and output.
type Generator struct {
	vocab          *Vocabulary
	maxActiveNotes int
	polyphonyMode  PolyphonyMode
}

// NewGenerator creates a generator. Zero values fall back to the defaults.
func NewGenerator(vocab *Vocabulary, maxActiveNotes int, polyphonyMode PolyphonyMode) *Generator {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if maxActiveNotes <= 0 {
		maxActiveNotes = DefaultMaxActiveNotes
	}
	if polyphonyMode == "" {
		polyphonyMode = DefaultPolyphonyMode
	}
	return &Generator{
		vocab:          vocab,
		maxActiveNotes: maxActiveNotes,
		polyphonyMode:  polyphonyMode,
	}
}

// run is the state of one request: INIT → STEP×N → POST → DONE
type run struct {
	variant    model.Variant
	rng        *rand.Rand
	window     *Window
	decoder    *Decoder
	expander   Expander
	timeline   *Timeline
	primary    []models.NoteEvent
	pitches    []float64
	prevPitch  float64
	hasContext bool
	contextAvg float64
}

// Generate produces the note timeline for one request. Any failure aborts
// the remaining steps; no partial result is returned.
func (g *Generator) Generate(ctx context.Context, variant model.Variant, predictor model.Predictor, p Params) (*models.GenerationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	r, err := g.init(variant, predictor, p)
	if err != nil {
		return nil, fmt.Errorf("init failed: %w", err)
	}

	for i := 0; i < p.NumPredictions; i++ {
		if err := r.step(ctx); err != nil {
			return nil, fmt.Errorf("step %d/%d failed: %w", i+1, p.NumPredictions, err)
		}
	}

	result, err := r.post()
	if err != nil {
		return nil, err
	}

	log.Printf("🎹 Generated %d steps with %s (emitted %d, dropped %d, shift %+d) in %v",
		p.NumPredictions, variant.Name, len(result.Notes), result.Dropped, result.PitchShift, time.Since(start))
	return result, nil
}

func (g *Generator) init(variant model.Variant, predictor model.Predictor, p Params) (*run, error) {
	mode := p.PolyphonyMode
	if mode == "" {
		mode = g.polyphonyMode
	}
	expander, err := NewExpander(mode)
	if err != nil {
		return nil, err
	}

	table, err := NewTempoTable(g.vocab, p.Tempo)
	if err != nil {
		return nil, err
	}

	r := &run{
		variant:  variant,
		rng:      newRand(p.RandSeed),
		expander: expander,
		timeline: NewTimeline(g.maxActiveNotes),
		primary:  make([]models.NoteEvent, 0, p.NumPredictions),
		pitches:  make([]float64, 0, p.NumPredictions),
	}

	if r.decoder, err = NewDecoder(variant, predictor, p.Temperature, r.rng, g.vocab, table); err != nil {
		return nil, err
	}

	if len(p.Seed) == 0 {
		r.window = NewRandomWindow(variant, r.rng)
	} else {
		rows, err := EncodeSeed(variant, TileSeed(p.Seed, variant.WindowLength), g.vocab, table)
		if err != nil {
			return nil, err
		}
		if r.contextAvg, err = BridgeSeed(variant, rows, PreferredPitchCenter()); err != nil {
			return nil, err
		}
		r.hasContext = true
		if r.window, err = NewWindow(variant, rows); err != nil {
			return nil, err
		}
	}

	r.prevPitch, _ = r.window.Last(model.FieldPitch)
	return r, nil
}

func (r *run) step(ctx context.Context) error {
	s, err := r.decoder.Decode(ctx, r.window, r.prevPitch)
	if err != nil {
		return err
	}
	if err := r.window.Push(r.decoder.Vector(s)); err != nil {
		return err
	}

	root := r.timeline.Place(s)
	r.primary = append(r.primary, root)
	r.pitches = append(r.pitches, float64(s.Pitch))

	var aux []models.NoteEvent
	if r.variant.Polyphonic && s.Polyphony > 0 {
		aux = Expand(r.expander, root, s.Polyphony, r.rng)
	}
	r.timeline.Admit(root, aux)

	r.prevPitch = s.RawPitch
	return nil
}

func (r *run) post() (*models.GenerationResult, error) {
	shift := 0
	if r.hasContext {
		generatedAvg, err := MeanPitch(r.pitches)
		if err != nil {
			return nil, err
		}
		shift = PitchShift(r.contextAvg, generatedAvg)
	}

	notes := r.timeline.Notes()
	Transpose(notes, shift)
	Transpose(r.primary, shift)

	for i, n := range notes {
		if err := n.Validate(); err != nil {
			return nil, fmt.Errorf("note %d invalid: %w", i, err)
		}
	}

	return &models.GenerationResult{
		Primary:    r.primary,
		Notes:      notes,
		PitchShift: shift,
		Dropped:    r.timeline.Dropped(),
	}, nil
}

func newRand(seed *int64) *rand.Rand {
	s := uint64(time.Now().UnixNano())
	if seed != nil {
		s = uint64(*seed)
	}
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}
