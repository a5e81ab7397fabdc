package generation

import (
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
)

// DefaultMaxActiveNotes caps how many notes may sound at once
const DefaultMaxActiveNotes = 3

// Timeline places decoded steps on an absolute time axis and admits them
// under a simultaneous-note cap. A note arriving while the cap is reached is
// dropped, never delayed.
type Timeline struct {
	maxActive int
	prevStart float64
	active    []models.NoteEvent
	notes     []models.NoteEvent
	dropped   int
}

// NewTimeline creates an empty timeline; maxActive <= 0 uses the default
func NewTimeline(maxActive int) *Timeline {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveNotes
	}
	return &Timeline{maxActive: maxActive}
}

// Place turns s into a root note starting step seconds after the previous
// root. Every step advances the clock, whether or not the note is admitted.
func (t *Timeline) Place(s Step) models.NoteEvent {
	start := t.prevStart + s.Step
	t.prevStart = start
	return models.NewNoteEvent(s.Pitch, s.Step, s.Duration, s.Velocity, s.Polyphony, start)
}

// Admit adds root and its auxiliary notes if there is room. Notes that ended
// by root.Start are released first. If the cap is already reached, root and
// all of aux are dropped. Otherwise root is emitted and each auxiliary note
// is emitted while room remains. It reports whether root was emitted.
func (t *Timeline) Admit(root models.NoteEvent, aux []models.NoteEvent) bool {
	t.release(root.Start)

	if len(t.active) >= t.maxActive {
		t.dropped += 1 + len(aux)
		return false
	}
	t.emit(root)

	for _, n := range aux {
		if len(t.active) >= t.maxActive {
			t.dropped++
			continue
		}
		t.emit(n)
	}
	return true
}

// Notes returns the emitted notes in emission order
func (t *Timeline) Notes() []models.NoteEvent {
	return t.notes
}

// Dropped returns how many notes were refused by the cap
func (t *Timeline) Dropped() int {
	return t.dropped
}

func (t *Timeline) emit(n models.NoteEvent) {
	t.active = append(t.active, n)
	t.notes = append(t.notes, n)
}

func (t *Timeline) release(at float64) {
	kept := t.active[:0]
	for _, n := range t.active {
		if n.End > at {
			kept = append(kept, n)
		}
	}
	t.active = kept
}

// PeakActive returns the largest number of notes sounding at any note onset
func PeakActive(notes []models.NoteEvent) int {
	peak := 0
	for _, n := range notes {
		count := 0
		for _, m := range notes {
			if m.Start <= n.Start && m.End > n.Start {
				count++
			}
		}
		peak = max(peak, count)
	}
	return peak
}
