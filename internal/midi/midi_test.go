package midi

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickTolerance = 1.0 / TicksPerQuarter

func TestProgram(t *testing.T) {
	tests := []struct {
		name    string
		want    uint8
		wantErr bool
	}{
		{"", 0, false},
		{"Acoustic Grand Piano", 0, false},
		{"bright acoustic piano", 1, false},
		{"  Electric Grand Piano ", 2, false},
		{"Violin", 40, false},
		{"Gunshot", 127, false},
		{"Theremin", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Program(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, DefaultInstrument, InstrumentName(0))
}

func TestWriteRead_RoundTrip(t *testing.T) {
	notes := []models.NoteEvent{
		models.NewNoteEvent(60, 0, 0.5, 100, 0, 0),
		models.NewNoteEvent(64, 0.5, 0.25, 90, 0, 0.5),
		models.NewNoteEvent(67, 0, 1.0, 80, 0, 0.5),
		models.NewNoteEvent(72, 1.0, 0.5, 70, 0, 1.5),
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, notes, "Acoustic Grand Piano", 120))

	seq, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 120.0, seq.Tempo)
	require.Len(t, seq.Notes, len(notes))

	wantSteps := []float64{0, 0.5, 0, 1.0}
	for i, n := range seq.Notes {
		assert.Equal(t, float64(notes[i].Pitch), n.Pitch, "note %d", i)
		assert.InDelta(t, notes[i].Duration, n.Duration, tickTolerance, "note %d", i)
		assert.InDelta(t, wantSteps[i], n.Step, tickTolerance, "note %d", i)
		require.NotNil(t, n.Velocity)
		assert.Equal(t, float64(notes[i].Velocity), *n.Velocity)
	}
}

func TestWrite_RepeatedPitchReStrikes(t *testing.T) {
	notes := []models.NoteEvent{
		models.NewNoteEvent(60, 0, 0.5, 100, 0, 0),
		models.NewNoteEvent(60, 0.5, 0.5, 100, 0, 0.5),
	}

	msgs := noteMessages(0, notes, 120)
	require.Len(t, msgs, 4)
	assert.False(t, msgs[0].off)
	assert.True(t, msgs[1].off, "off at tick %d precedes the next on", msgs[1].tick)
	assert.Equal(t, msgs[1].tick, msgs[2].tick)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, notes, "", 120))
	seq, err := Read(&buf)
	require.NoError(t, err)
	assert.Len(t, seq.Notes, 2)
}

func TestWrite_Rejects(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, nil, "", 0))
	assert.Error(t, Write(&buf, nil, "Theremin", 120))
}

func TestRead_NoNotes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, "", 90))

	_, err := Read(&buf)
	assert.ErrorIs(t, err, ErrNoNotes)
}

func TestRead_Garbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not a midi file")))
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mid")
	notes := []models.NoteEvent{models.NewNoteEvent(48, 0, 2, 100, 0, 0)}

	require.NoError(t, WriteFile(path, notes, "Cello", 60))

	seq, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 60.0, seq.Tempo)
	require.Len(t, seq.Notes, 1)
	assert.InDelta(t, 2.0, seq.Notes[0].Duration, tickTolerance)
}

func TestSecondsToTicks(t *testing.T) {
	assert.Equal(t, uint32(480), SecondsToTicks(0.5, 120))
	assert.Equal(t, uint32(0), SecondsToTicks(-1, 120))
	assert.InDelta(t, 0.5, TicksToSeconds(480, 120), 1e-12)
}

func TestWrite_ZeroLengthNotesAreClosed(t *testing.T) {
	notes := []models.NoteEvent{
		models.NewNoteEvent(60, 0, 0.5, 100, 0, 0),
		models.NewNoteEvent(64, 1.0, 0, 90, 0, 1.0),
		models.NewNoteEvent(67, 0.5, 0.0005, 80, 0, 2.0),
	}

	msgs := noteMessages(0, notes, 120)
	require.Len(t, msgs, 6)
	for i := 1; i < len(msgs); i++ {
		assert.LessOrEqual(t, msgs[i-1].tick, msgs[i].tick)
	}
	on := map[uint32]bool{}
	for _, m := range msgs {
		if !m.off {
			on[m.tick] = true
			continue
		}
		assert.False(t, on[m.tick], "off at tick %d shares its tick with an on", m.tick)
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, notes, "", 120))
	seq, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, seq.Notes, len(notes), "every note is paired with its off")

	for i, n := range seq.Notes[1:] {
		assert.Equal(t, float64(notes[i+1].Pitch), n.Pitch)
		assert.Greater(t, n.Duration, 0.0)
		assert.InDelta(t, 0, n.Duration, tickTolerance+1e-9)
	}
}
