package generation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempoTable_At120BPM(t *testing.T) {
	table, err := NewTempoTable(DefaultVocabulary(), 120)
	require.NoError(t, err)

	tests := []struct {
		label   string
		seconds float64
	}{
		{"whole", 2.0},
		{"half", 1.0},
		{"quarter", 0.5},
		{"eighth", 0.25},
		{"16th", 0.125},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := table.Seconds(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.seconds, got)
		})
	}
}

func TestTempoTable_EntriesDecrease(t *testing.T) {
	table, err := NewTempoTable(DefaultVocabulary(), 120)
	require.NoError(t, err)

	entries := table.Entries()
	require.Len(t, entries, DefaultVocabulary().Size())
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i].Seconds, entries[i-1].Seconds, "entry %s", entries[i].Label)
	}
}

func TestNewTempoTable_MissingTempo(t *testing.T) {
	for _, bpm := range []float64{0, -60, math.NaN(), math.Inf(1)} {
		_, err := NewTempoTable(DefaultVocabulary(), bpm)
		assert.ErrorIs(t, err, ErrMissingTempo, "bpm %v", bpm)
	}
}

func TestClassify(t *testing.T) {
	table, err := NewTempoTable(DefaultVocabulary(), 120)
	require.NoError(t, err)

	assert.Equal(t, "quarter", table.Classify(0.48))
	assert.Equal(t, "whole", table.Classify(10))
	assert.Equal(t, "2048th", table.Classify(0))
	// 0.75 is exactly between half and quarter; the longer note wins
	assert.Equal(t, "half", table.Classify(0.75))
}

func TestClassify_RoundTripWithinGap(t *testing.T) {
	vocab := DefaultVocabulary()
	for _, bpm := range []float64{30, 60, 90, 120, 135, 200, 400} {
		table, err := NewTempoTable(vocab, bpm)
		require.NoError(t, err)

		entries := table.Entries()
		lo, hi := entries[len(entries)-1].Seconds, entries[0].Seconds
		for x := lo; x <= hi; x += (hi - lo) / 97 {
			label := table.Classify(x)
			back, err := ToSeconds(vocab, label, bpm)
			require.NoError(t, err)
			assert.LessOrEqual(t, math.Abs(back-x), table.MaxGap()+1e-4, "bpm %v seconds %v label %s", bpm, x, label)
		}
	}
}

func TestToSeconds_MatchesTable(t *testing.T) {
	vocab := DefaultVocabulary()
	table, err := NewTempoTable(vocab, 135)
	require.NoError(t, err)

	for _, e := range table.Entries() {
		got, err := ToSeconds(vocab, e.Label, 135)
		require.NoError(t, err)
		assert.Equal(t, e.Seconds, got, e.Label)
	}
}

func TestToSeconds_UnknownLabel(t *testing.T) {
	_, err := ToSeconds(DefaultVocabulary(), "breve", 120)
	assert.ErrorIs(t, err, ErrUnknownDurationLabel)

	table, err := NewTempoTable(DefaultVocabulary(), 120)
	require.NoError(t, err)
	_, err = table.Seconds("dotted-quarter")
	assert.ErrorIs(t, err, ErrUnknownDurationLabel)
}

func TestVocabulary_ClassOrder(t *testing.T) {
	vocab := DefaultVocabulary()

	first, err := vocab.Decode(0)
	require.NoError(t, err)
	assert.Equal(t, "1024th", first)

	class, err := vocab.Encode("whole")
	require.NoError(t, err)
	assert.Equal(t, vocab.Size()-1, class)

	for i := 0; i < vocab.Size(); i++ {
		label, err := vocab.Decode(i)
		require.NoError(t, err)
		back, err := vocab.Encode(label)
		require.NoError(t, err)
		assert.Equal(t, i, back)
	}

	_, err = vocab.Decode(vocab.Size())
	assert.Error(t, err)
}

func TestNewVocabulary_Rejects(t *testing.T) {
	_, err := NewVocabulary(nil)
	assert.Error(t, err)

	_, err = NewVocabulary([]DurationUnit{{Value: 1, Label: "whole"}, {Value: 2, Label: "whole"}})
	assert.Error(t, err)
}
