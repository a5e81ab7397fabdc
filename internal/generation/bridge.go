package generation

import (
	"fmt"
	"math"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"github.com/montanaflynn/stats"
)

// The band the models were trained to generate in
const (
	PreferredPitchLow  = 50.0
	PreferredPitchHigh = 80.0
	MaxBridgeLength    = 8
)

// PreferredPitchCenter is the midpoint of the preferred band
func PreferredPitchCenter() float64 {
	return (PreferredPitchLow + PreferredPitchHigh) / 2
}

// BridgeLength is the number of trailing window slots blended toward the
// preferred band
func BridgeLength(windowLength int) int {
	return min(MaxBridgeLength, windowLength/2)
}

// MeanPitch averages pitches
func MeanPitch(pitches []float64) (float64, error) {
	mean, err := stats.Mean(pitches)
	if err != nil {
		return 0, fmt.Errorf("failed to average pitches: %w", err)
	}
	return mean, nil
}

// BridgeSeed blends the pitch of the last BridgeLength rows toward target.
// Slot i of the bridge becomes p*(1-i/B) + target*(i/B), so the first slot is
// untouched and the last lands one step short of target. rows are modified in
// place; the returned value is the mean pitch of the rows before blending.
func BridgeSeed(variant model.Variant, rows []FeatureVector, target float64) (float64, error) {
	pi := variant.Index(model.FieldPitch)
	if pi < 0 {
		return 0, fmt.Errorf("variant %s has no pitch field", variant.Name)
	}

	pitches := make([]float64, len(rows))
	for i, r := range rows {
		pitches[i] = r[pi]
	}
	originalAvg, err := MeanPitch(pitches)
	if err != nil {
		return 0, err
	}

	bridge := min(BridgeLength(variant.WindowLength), len(rows))
	offset := len(rows) - bridge
	for i := 0; i < bridge; i++ {
		ratio := float64(i) / float64(bridge)
		idx := offset + i
		rows[idx][pi] = pitches[idx]*(1-ratio) + target*ratio
	}
	return originalAvg, nil
}

// PitchShift is the whole-semitone shift that moves generatedAvg back to originalAvg
func PitchShift(originalAvg, generatedAvg float64) int {
	return int(math.Round(originalAvg - generatedAvg))
}

// Transpose shifts every note by shift semitones and clamps to the MIDI range
func Transpose(notes []models.NoteEvent, shift int) {
	for i := range notes {
		notes[i].Pitch = ClampPitch(notes[i].Pitch + shift)
	}
}

// ClampPitch limits p to [0,127]
func ClampPitch(p int) int {
	return max(models.MinMIDIValue, min(models.MaxMIDIValue, p))
}
