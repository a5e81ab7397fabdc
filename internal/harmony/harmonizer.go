package harmony

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
)

const (
	// SequenceLength is the number of grid slots the model sees at once
	SequenceLength = 16
	// SlotsPerQuarter sets the grid to sixteenth notes
	SlotsPerQuarter = 4
	// MaxSlots bounds the melody length (128 bars of 4/4)
	MaxSlots = 2048

	DefaultVelocity = 80
)

var (
	ErrEmptyMelody   = errors.New("melody has no notes")
	ErrMelodyTooLong = fmt.Errorf("melody exceeds %d sixteenth-note slots", MaxSlots)
	ErrBadOutput     = errors.New("harmonizer output has the wrong shape")
)

// Line is the notes of one voice
type Line struct {
	Voice Voice
	Notes []models.NoteEvent
}

// Result is one harmonization
type Result struct {
	Lines   []Line // Top to bottom
	Slots   int
	Windows int // Model calls made
}

// NoteCount sums the notes of every line
func (r *Result) NoteCount() int {
	n := 0
	for _, l := range r.Lines {
		n += len(l.Notes)
	}
	return n
}

// Harmonizer adds alto, tenor and bass lines under a soprano melody using a
// feed-forward model. It holds no per-call state.
type Harmonizer struct {
	predictor model.Predictor
}

func NewHarmonizer(predictor model.Predictor) *Harmonizer {
	return &Harmonizer{predictor: predictor}
}

// Name returns the served model name
func (h *Harmonizer) Name() string {
	return h.predictor.Name()
}

// Harmonize quantizes notes to a sixteenth grid at tempoBPM, takes the
// highest sounding pitch per slot as the soprano and predicts the other
// three voices window by window.
func (h *Harmonizer) Harmonize(ctx context.Context, notes []models.RawNote, tempoBPM float64) (*Result, error) {
	if !(tempoBPM > 0) {
		return nil, fmt.Errorf("invalid tempo: %v", tempoBPM)
	}
	melody, err := Melody(notes, tempoBPM)
	if err != nil {
		return nil, err
	}

	windows := Windows(melody)
	lower := Voices()[1:]
	slots := make(map[string][]int, len(lower))
	for _, window := range windows {
		pred, err := h.predictor.Predict(ctx, window)
		if err != nil {
			return nil, err
		}
		for _, v := range lower {
			classes, err := argmaxColumns(pred.Logits[v.Output], v.Classes())
			if err != nil {
				return nil, fmt.Errorf("%w: voice %s: %v", ErrBadOutput, v.Name, err)
			}
			for _, c := range classes {
				slots[v.Name] = append(slots[v.Name], v.Decode(c))
			}
		}
	}

	slotSeconds := SlotSeconds(tempoBPM)
	lines := []Line{{Voice: Soprano, Notes: ToNotes(melody, slotSeconds, DefaultVelocity)}}
	for _, v := range lower {
		lines = append(lines, Line{Voice: v, Notes: ToNotes(slots[v.Name][:len(melody)], slotSeconds, DefaultVelocity)})
	}

	log.Printf("🎼 Harmonized %d slots in %d windows with %s", len(melody), len(windows), h.predictor.Name())
	return &Result{Lines: lines, Slots: len(melody), Windows: len(windows)}, nil
}

// SlotSeconds is the length of one grid slot at tempoBPM
func SlotSeconds(tempoBPM float64) float64 {
	return 60 / tempoBPM / SlotsPerQuarter
}

// Melody samples the highest sounding pitch at the middle of every grid slot.
// Slots with nothing sounding are Rest.
func Melody(notes []models.RawNote, tempoBPM float64) ([]int, error) {
	if len(notes) == 0 {
		return nil, ErrEmptyMelody
	}

	type span struct {
		pitch      int
		start, end float64
	}
	spans := make([]span, len(notes))
	var t, end float64
	for i, n := range notes {
		t += n.Step
		spans[i] = span{pitch: int(math.Round(n.Pitch)), start: t, end: t + n.Duration}
		end = math.Max(end, t+n.Duration)
	}

	slot := SlotSeconds(tempoBPM)
	count := int(math.Ceil(end/slot - 1e-9))
	if count <= 0 {
		return nil, ErrEmptyMelody
	}
	if count > MaxSlots {
		return nil, ErrMelodyTooLong
	}

	melody := make([]int, count)
	for i := range melody {
		at := (float64(i) + 0.5) * slot
		top := Rest
		for _, s := range spans {
			if s.start <= at && at < s.end && s.pitch > top {
				top = s.pitch
			}
		}
		melody[i] = top
	}
	return melody, nil
}

// Windows one-hot encodes the melody as soprano rows, SequenceLength rows per
// window. The last window is padded with rests.
func Windows(melody []int) [][][]float64 {
	var windows [][][]float64
	for from := 0; from < len(melody); from += SequenceLength {
		window := make([][]float64, SequenceLength)
		for i := range window {
			row := make([]float64, Soprano.Classes())
			pitch := Rest
			if from+i < len(melody) {
				pitch = melody[from+i]
			}
			row[Soprano.Encode(pitch)] = 1
			window[i] = row
		}
		windows = append(windows, window)
	}
	return windows
}

// argmaxColumns reads logits laid out as [class][position] and returns the
// best class per position
func argmaxColumns(logits []float64, classes int) ([]int, error) {
	if len(logits) != classes*SequenceLength {
		return nil, fmt.Errorf("got %d values, want %d", len(logits), classes*SequenceLength)
	}
	out := make([]int, SequenceLength)
	for pos := range out {
		best := math.Inf(-1)
		for c := 0; c < classes; c++ {
			if v := logits[c*SequenceLength+pos]; v > best {
				best, out[pos] = v, c
			}
		}
	}
	return out, nil
}

// ToNotes merges runs of the same pitch into held notes. Rests emit nothing.
func ToNotes(pitches []int, slotSeconds float64, velocity int) []models.NoteEvent {
	var notes []models.NoteEvent
	prevStart := 0.0
	for i := 0; i < len(pitches); {
		j := i + 1
		for j < len(pitches) && pitches[j] == pitches[i] {
			j++
		}
		if pitches[i] != Rest {
			start := float64(i) * slotSeconds
			notes = append(notes, models.NewNoteEvent(pitches[i], start-prevStart, float64(j-i)*slotSeconds, velocity, 0, start))
			prevStart = start
		}
		i = j
	}
	return notes
}
