package models

import "fmt"

const (
	MinMIDIValue = 0
	MaxMIDIValue = 127
)

// NoteEvent represents a single placed note with absolute timing in seconds
type NoteEvent struct {
	Pitch     int     `json:"pitch"`
	Step      float64 `json:"step"`     // Seconds since the previous onset
	Duration  float64 `json:"duration"` // Seconds
	Velocity  int     `json:"velocity"`
	Polyphony int     `json:"polyphony"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// NewNoteEvent builds a note whose end is derived from start and duration
func NewNoteEvent(pitch int, step, duration float64, velocity, polyphony int, start float64) NoteEvent {
	return NoteEvent{
		Pitch:     pitch,
		Step:      step,
		Duration:  duration,
		Velocity:  velocity,
		Polyphony: polyphony,
		Start:     start,
		End:       start + duration,
	}
}

// Validate checks the field invariants of an emitted note
func (n NoteEvent) Validate() error {
	if n.Pitch < MinMIDIValue || n.Pitch > MaxMIDIValue {
		return fmt.Errorf("pitch %d out of range [0,127]", n.Pitch)
	}
	if n.Velocity < MinMIDIValue || n.Velocity > MaxMIDIValue {
		return fmt.Errorf("velocity %d out of range [0,127]", n.Velocity)
	}
	if n.Step < 0 || n.Duration < 0 || n.Start < 0 {
		return fmt.Errorf("negative timing (step=%.4f duration=%.4f start=%.4f)", n.Step, n.Duration, n.Start)
	}
	if n.Polyphony < 0 {
		return fmt.Errorf("negative polyphony %d", n.Polyphony)
	}
	if n.End < n.Start {
		return fmt.Errorf("end %.4f before start %.4f", n.End, n.Start)
	}
	return nil
}

// RawNote is one seed note as supplied by a caller or read from a MIDI file.
// Optional fields are nil when the caller did not provide them.
type RawNote struct {
	Pitch     float64  `json:"pitch"`
	Step      float64  `json:"step"`
	Duration  float64  `json:"duration"`
	Interval  *float64 `json:"interval,omitempty"`
	Velocity  *float64 `json:"velocity,omitempty"`
	Polyphony *float64 `json:"polyphony,omitempty"`
}

// GenerationResult is the outcome of one generation run
type GenerationResult struct {
	Primary    []NoteEvent `json:"primary"` // One per prediction step, before the admission cap
	Notes      []NoteEvent `json:"notes"`   // Emitted timeline, after the cap and transposition
	PitchShift int         `json:"pitch_shift"`
	Dropped    int         `json:"dropped"`
}
