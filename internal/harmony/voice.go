package harmony

import "github.com/Conceptual-Machines/melodygen-api/internal/model"

const (
	// SilenceClass is the one-hot position of a rest in every voice
	SilenceClass = 0
	// Rest marks a grid slot with no sounding pitch
	Rest = -1

	octave = 12
)

// Voice is one SATB part with its pitch range. Classes are the range plus a
// leading silence class.
type Voice struct {
	Name   string
	Min    int
	Max    int
	Output model.Field // Model output carrying this voice's logits; empty for the input voice
}

var (
	Soprano = Voice{Name: "soprano", Min: 61, Max: 81}
	Alto    = Voice{Name: "alto", Min: 56, Max: 76, Output: "alto"}
	Tenor   = Voice{Name: "tenor", Min: 51, Max: 71, Output: "tenor"}
	Bass    = Voice{Name: "bass", Min: 36, Max: 63, Output: "bass"}
)

// Voices lists the parts top to bottom
func Voices() []Voice {
	return []Voice{Soprano, Alto, Tenor, Bass}
}

// Classes is the size of the voice's one-hot encoding
func (v Voice) Classes() int {
	return v.Max - v.Min + 2
}

// Fold moves pitch by octaves into the voice range
func (v Voice) Fold(pitch int) int {
	for pitch < v.Min {
		pitch += octave
	}
	for pitch > v.Max {
		pitch -= octave
	}
	return pitch
}

// Encode maps a pitch (or Rest) to its class, folding out-of-range pitches
func (v Voice) Encode(pitch int) int {
	if pitch == Rest {
		return SilenceClass
	}
	return v.Fold(pitch) - v.Min + 1
}

// Decode maps a class back to a pitch, or Rest for the silence class
func (v Voice) Decode(class int) int {
	if class <= SilenceClass || class >= v.Classes() {
		return Rest
	}
	return v.Min + class - 1
}
