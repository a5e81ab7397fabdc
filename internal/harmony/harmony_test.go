package harmony

import (
	"context"
	"errors"
	"testing"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chordPredictor answers every window with one fixed class per lower voice
type chordPredictor struct {
	classes map[model.Field]int
	short   bool
	err     error
	calls   int
	windows [][][]float64
}

func (p *chordPredictor) Name() string { return "ffn_harmonizer" }

func (p *chordPredictor) Predict(_ context.Context, window [][]float64) (*model.RawPrediction, error) {
	p.calls++
	p.windows = append(p.windows, window)
	if p.err != nil {
		return nil, p.err
	}
	pred := model.NewRawPrediction()
	for _, v := range Voices()[1:] {
		n := v.Classes() * SequenceLength
		if p.short {
			n--
		}
		logits := make([]float64, n)
		for pos := 0; pos < SequenceLength && p.classes[v.Output]*SequenceLength+pos < n; pos++ {
			logits[p.classes[v.Output]*SequenceLength+pos] = 10
		}
		pred.Logits[v.Output] = logits
	}
	return pred, nil
}

func quarterNotes(pitches ...float64) []models.RawNote {
	notes := make([]models.RawNote, len(pitches))
	for i, p := range pitches {
		step := 0.5
		if i == 0 {
			step = 0
		}
		notes[i] = models.RawNote{Pitch: p, Step: step, Duration: 0.5}
	}
	return notes
}

func TestVoice_EncodeDecode(t *testing.T) {
	tests := []struct {
		voice Voice
		pitch int
		class int
	}{
		{Soprano, Rest, SilenceClass},
		{Soprano, 61, 1},
		{Soprano, 81, 21},
		{Soprano, 60, 12}, // folded up to 72
		{Soprano, 96, 12}, // folded down to 72
		{Bass, 36, 1},
		{Alto, 76, 21},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.class, tt.voice.Encode(tt.pitch), "%s %d", tt.voice.Name, tt.pitch)
	}

	assert.Equal(t, 22, Soprano.Classes())
	assert.Equal(t, 22, Alto.Classes())
	assert.Equal(t, 22, Tenor.Classes())
	assert.Equal(t, 29, Bass.Classes())

	assert.Equal(t, Rest, Tenor.Decode(SilenceClass))
	assert.Equal(t, 51, Tenor.Decode(1))
	assert.Equal(t, Rest, Tenor.Decode(Tenor.Classes()))
}

func TestMelody(t *testing.T) {
	// Two quarter notes at 120 bpm with a held lower note under the first
	notes := []models.RawNote{
		{Pitch: 72, Step: 0, Duration: 0.5},
		{Pitch: 48, Step: 0, Duration: 0.25},
		{Pitch: 74, Step: 0.5, Duration: 0.25},
	}
	melody, err := Melody(notes, 120)
	require.NoError(t, err)
	assert.Equal(t, []int{72, 72, 72, 72, 74, 74}, melody)

	_, err = Melody(nil, 120)
	assert.ErrorIs(t, err, ErrEmptyMelody)

	long := []models.RawNote{{Pitch: 60, Duration: float64(MaxSlots) * SlotSeconds(120) * 2}}
	_, err = Melody(long, 120)
	assert.ErrorIs(t, err, ErrMelodyTooLong)
}

func TestMelody_RestsBetweenNotes(t *testing.T) {
	notes := []models.RawNote{
		{Pitch: 70, Step: 0, Duration: 0.125},
		{Pitch: 70, Step: 0.375, Duration: 0.125},
	}
	melody, err := Melody(notes, 120)
	require.NoError(t, err)
	assert.Equal(t, []int{70, Rest, Rest, 70}, melody)
}

func TestWindows(t *testing.T) {
	melody := make([]int, SequenceLength+3)
	for i := range melody {
		melody[i] = 65
	}
	windows := Windows(melody)
	require.Len(t, windows, 2)
	for _, w := range windows {
		require.Len(t, w, SequenceLength)
		for _, row := range w {
			require.Len(t, row, Soprano.Classes())
			sum := 0.0
			for _, v := range row {
				sum += v
			}
			assert.Equal(t, 1.0, sum)
		}
	}
	assert.Equal(t, 1.0, windows[1][2][Soprano.Encode(65)])
	assert.Equal(t, 1.0, windows[1][3][SilenceClass], "padding is silence")
}

func TestToNotes(t *testing.T) {
	notes := ToNotes([]int{60, 60, Rest, 62, 64, 64, 64}, 0.125, 90)
	require.Len(t, notes, 3)

	assert.Equal(t, 60, notes[0].Pitch)
	assert.InDelta(t, 0.25, notes[0].Duration, 1e-9)
	assert.Equal(t, 62, notes[1].Pitch)
	assert.InDelta(t, 0.375, notes[1].Start, 1e-9)
	assert.InDelta(t, 0.375, notes[1].Step, 1e-9)
	assert.InDelta(t, 0.875, notes[2].End, 1e-9)
	for _, n := range notes {
		require.NoError(t, n.Validate())
		assert.Equal(t, 90, n.Velocity)
	}
}

func TestHarmonize(t *testing.T) {
	p := &chordPredictor{classes: map[model.Field]int{"alto": 9, "tenor": 6, "bass": 13}}
	h := NewHarmonizer(p)

	// Eight quarter notes at 120 bpm: 32 slots, two windows
	res, err := h.Harmonize(context.Background(), quarterNotes(72, 74, 76, 77, 79, 77, 76, 74), 120)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, 2, res.Windows)
	assert.Equal(t, 32, res.Slots)
	assert.Equal(t, 11, res.NoteCount())
	lines := res.Lines

	require.Len(t, lines, 4)
	assert.Equal(t, "soprano", lines[0].Voice.Name)
	assert.Len(t, lines[0].Notes, 8)

	want := map[string]int{"alto": 64, "tenor": 56, "bass": 48}
	for _, line := range lines[1:] {
		require.Len(t, line.Notes, 1, "constant %s is one held note", line.Voice.Name)
		n := line.Notes[0]
		assert.Equal(t, want[line.Voice.Name], n.Pitch)
		assert.InDelta(t, 4.0, n.Duration, 1e-9)
		assert.GreaterOrEqual(t, n.Pitch, line.Voice.Min)
		assert.LessOrEqual(t, n.Pitch, line.Voice.Max)
	}
}

func TestHarmonize_TrimsPadding(t *testing.T) {
	p := &chordPredictor{classes: map[model.Field]int{"alto": 1, "tenor": 1, "bass": 1}}
	res, err := NewHarmonizer(p).Harmonize(context.Background(), quarterNotes(72), 120)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
	for _, line := range res.Lines[1:] {
		require.Len(t, line.Notes, 1)
		assert.InDelta(t, 0.5, line.Notes[0].End, 1e-9, "%s stops with the melody", line.Voice.Name)
	}
}

func TestHarmonize_Errors(t *testing.T) {
	boom := errors.New("model down")
	_, err := NewHarmonizer(&chordPredictor{err: boom}).Harmonize(context.Background(), quarterNotes(72), 120)
	assert.ErrorIs(t, err, boom)

	_, err = NewHarmonizer(&chordPredictor{short: true, classes: map[model.Field]int{}}).Harmonize(context.Background(), quarterNotes(72), 120)
	assert.ErrorIs(t, err, ErrBadOutput)

	p := &chordPredictor{}
	_, err = NewHarmonizer(p).Harmonize(context.Background(), quarterNotes(72), 0)
	assert.Error(t, err)
	assert.Zero(t, p.calls)
}
