package generation

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/Conceptual-Machines/melodygen-api/internal/models"
)

// PolyphonyMode selects how auxiliary notes are built around a root
type PolyphonyMode string

const (
	ModeChordTones        PolyphonyMode = "chord_tones"
	ModeHarmonicIntervals PolyphonyMode = "harmonic_intervals"

	pitchClasses       = 128
	semitonesPerOctave = 12

	velocityJitter = 10
	durationJitter = 0.1
)

// Read-only interval sets shared by every request
var (
	CMajorScale       = []int{0, 2, 4, 5, 7, 9, 11}
	HarmonicIntervals = []int{4, 7, 12} // major third, perfect fifth, octave
)

// Expander is the closed set of polyphony strategies. New strategies live in
// this package; the timeline only sees the auxiliary notes they return.
type Expander interface {
	Mode() PolyphonyMode
	// Offsets draws up to count semitone offsets from the root
	Offsets(count int, rng *rand.Rand) []int
	sealed()
}

// ChordTones draws distinct scale degrees, spread over Octaves octaves
type ChordTones struct {
	Scale   []int
	Octaves int
}

func (ChordTones) Mode() PolyphonyMode { return ModeChordTones }
func (ChordTones) sealed()             {}

// Offsets samples without replacement and returns them in ascending order
func (c ChordTones) Offsets(count int, rng *rand.Rand) []int {
	extended := ExtendScale(c.Scale, c.Octaves)
	count = min(max(count, 0), len(extended))

	picked := make([]int, 0, count)
	for _, i := range rng.Perm(len(extended))[:count] {
		picked = append(picked, extended[i])
	}
	sort.Ints(picked)
	return picked
}

// IntervalSet draws fixed intervals with replacement
type IntervalSet struct {
	Intervals []int
}

func (IntervalSet) Mode() PolyphonyMode { return ModeHarmonicIntervals }
func (IntervalSet) sealed()             {}

// Offsets may repeat an interval
func (s IntervalSet) Offsets(count int, rng *rand.Rand) []int {
	count = min(max(count, 0), len(s.Intervals))

	picked := make([]int, count)
	for i := range picked {
		picked[i] = s.Intervals[rng.IntN(len(s.Intervals))]
	}
	return picked
}

// ParsePolyphonyMode validates a mode name
func ParsePolyphonyMode(s string) (PolyphonyMode, error) {
	switch m := PolyphonyMode(s); m {
	case ModeChordTones, ModeHarmonicIntervals:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolyphonyMode, s)
	}
}

// NewExpander returns the default strategy for mode
func NewExpander(mode PolyphonyMode) (Expander, error) {
	switch mode {
	case ModeChordTones:
		return ChordTones{Scale: CMajorScale, Octaves: 1}, nil
	case ModeHarmonicIntervals:
		return IntervalSet{Intervals: HarmonicIntervals}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPolyphonyMode, mode)
	}
}

// ExtendScale repeats scale once per octave, shifted by 12 semitones each time
func ExtendScale(scale []int, octaves int) []int {
	octaves = max(octaves, 1)
	out := make([]int, 0, len(scale)*octaves)
	for o := 0; o < octaves; o++ {
		for _, s := range scale {
			out = append(out, s+semitonesPerOctave*o)
		}
	}
	return out
}

// Expand builds the auxiliary notes for root. The root itself is not
// included. Each note gets its own velocity and duration jitter and starts
// with the root. Its end is start plus the jittered duration, so it can end
// before or after the root rather than sharing the root's end; End always
// agrees with Duration.
func Expand(e Expander, root models.NoteEvent, count int, rng *rand.Rand) []models.NoteEvent {
	if count <= 0 {
		return nil
	}

	offsets := e.Offsets(count, rng)
	notes := make([]models.NoteEvent, 0, len(offsets))
	for _, off := range offsets {
		velocity := max(models.MinMIDIValue, min(models.MaxMIDIValue, root.Velocity+rng.IntN(2*velocityJitter+1)-velocityJitter))
		duration := math.Max(0, root.Duration+(rng.Float64()*2-1)*durationJitter)
		notes = append(notes, models.NewNoteEvent(WrapPitch(root.Pitch+off), root.Step, duration, velocity, root.Polyphony, root.Start))
	}
	return notes
}

// WrapPitch folds p into [0,127]
func WrapPitch(p int) int {
	return ((p % pitchClasses) + pitchClasses) % pitchClasses
}
