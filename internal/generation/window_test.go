package generation

import (
	"testing"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileSeed(t *testing.T) {
	seed := seedNotes(60, 64)

	tiled := TileSeed(seed, 50)
	require.Len(t, tiled, 50)
	for i, n := range tiled {
		if i%2 == 0 {
			assert.Equal(t, 60.0, n.Pitch)
		} else {
			assert.Equal(t, 64.0, n.Pitch)
		}
	}

	truncated := TileSeed(seedNotes(1, 2, 3, 4, 5), 3)
	require.Len(t, truncated, 3)
	assert.Equal(t, 3.0, truncated[2].Pitch)

	assert.Nil(t, TileSeed(nil, 50))
}

func TestNewWindow_Normalizes(t *testing.T) {
	v := model.VariantContinuous
	raw := make([]FeatureVector, v.WindowLength)
	for i := range raw {
		raw[i] = FeatureVector{64, 0.5, 0.25}
	}

	w, err := NewWindow(v, raw)
	require.NoError(t, err)
	assert.Equal(t, v.WindowLength, w.Len())

	rows := w.Rows()
	assert.Equal(t, 0.5, rows[0][0])
	assert.Equal(t, 0.5, rows[0][1])
	assert.Equal(t, 0.25, rows[0][2])

	last, ok := w.Last(model.FieldPitch)
	require.True(t, ok)
	assert.Equal(t, 64.0, last)
}

func TestNewWindow_WrongLength(t *testing.T) {
	_, err := NewWindow(model.VariantContinuous, make([]FeatureVector, 10))
	assert.Error(t, err)
}

func TestWindow_PushKeepsLength(t *testing.T) {
	v := model.VariantCategorical
	raw := make([]FeatureVector, v.WindowLength)
	for i := range raw {
		raw[i] = FeatureVector{float64(i), 0.1, 3}
	}
	w, err := NewWindow(v, raw)
	require.NoError(t, err)

	require.NoError(t, w.Push(FeatureVector{100, 0.2, 5}))
	assert.Equal(t, v.WindowLength, w.Len())

	rows := w.Rows()
	assert.InDelta(t, 1.0/128, rows[0][0], 1e-12, "oldest vector evicted")
	last, _ := w.Last(model.FieldPitch)
	assert.Equal(t, 100.0, last)

	assert.Error(t, w.Push(FeatureVector{1, 2}))
}

func TestWindow_RowsIsCopy(t *testing.T) {
	w := NewRandomWindow(model.VariantContinuous, testRand())
	rows := w.Rows()
	rows[0][0] = 99

	assert.NotEqual(t, 99.0, w.Rows()[0][0])
}

func TestNewRandomWindow(t *testing.T) {
	v := model.VariantPolyphonic
	w := NewRandomWindow(v, testRand())
	require.Equal(t, v.WindowLength, w.Len())

	for _, row := range w.Rows() {
		require.Len(t, row, len(v.Features))
		for _, x := range row {
			assert.GreaterOrEqual(t, x, 0.0)
			assert.Less(t, x, 1.0)
		}
	}
}

func TestEncodeSeed_Categorical(t *testing.T) {
	vocab := DefaultVocabulary()
	table, err := NewTempoTable(vocab, 120)
	require.NoError(t, err)

	rows, err := EncodeSeed(model.VariantCategorical, []models.RawNote{{Pitch: 60, Step: 0.5, Duration: 0.52}}, vocab, table)
	require.NoError(t, err)

	quarter, err := vocab.Encode("quarter")
	require.NoError(t, err)
	assert.Equal(t, FeatureVector{60, 0.5, float64(quarter)}, rows[0])

	_, err = EncodeSeed(model.VariantCategorical, seedNotes(60), vocab, nil)
	assert.ErrorIs(t, err, ErrMissingTempo)
}

func TestEncodeSeed_Polyphonic(t *testing.T) {
	vel := 80.0
	interval := -3.0
	notes := []models.RawNote{
		{Pitch: 60, Step: 0.5, Duration: 0.5},
		{Pitch: 64, Step: 0.5, Duration: 0.5, Velocity: &vel},
		{Pitch: 62, Step: 0.5, Duration: 0.5, Interval: &interval},
	}

	rows, err := EncodeSeed(model.VariantPolyphonic, notes, DefaultVocabulary(), nil)
	require.NoError(t, err)

	v := model.VariantPolyphonic
	iv, vi := v.Index(model.FieldInterval), v.Index(model.FieldVelocity)
	assert.Equal(t, 0.0, rows[0][iv])
	assert.Equal(t, 4.0, rows[1][iv])
	assert.Equal(t, -3.0, rows[2][iv])
	assert.Equal(t, 100.0, rows[0][vi])
	assert.Equal(t, 80.0, rows[1][vi])
}
