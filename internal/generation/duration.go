package generation

import (
	"fmt"
	"math"
	"sort"
)

const (
	// RoundPrecision is the number of decimals kept for table seconds
	RoundPrecision = 4

	secondsPerMinute = 60.0
	beatsPerWhole    = 4.0
)

// DurationUnit maps a rational note value to its name. Value 1 is a whole
// note, 2 a half, 4 a quarter and so on.
type DurationUnit struct {
	Value float64
	Label string
}

// defaultDurationUnits is the note-type table without breve, longa, maxima,
// duplex-maxima and zero, in ascending value order
var defaultDurationUnits = []DurationUnit{
	{Value: 1, Label: "whole"},
	{Value: 2, Label: "half"},
	{Value: 4, Label: "quarter"},
	{Value: 8, Label: "eighth"},
	{Value: 16, Label: "16th"},
	{Value: 32, Label: "32nd"},
	{Value: 64, Label: "64th"},
	{Value: 128, Label: "128th"},
	{Value: 256, Label: "256th"},
	{Value: 512, Label: "512th"},
	{Value: 1024, Label: "1024th"},
	{Value: 2048, Label: "2048th"},
}

// Vocabulary is the tempo-independent set of duration labels.
//
// Units are kept in ascending value order (longest note first); this is the
// total order used to break classification ties. Classes are the labels in
// lexicographic order, which is the class index order the categorical model
// was trained with.
type Vocabulary struct {
	units   []DurationUnit
	classes []string
	byLabel map[string]float64
}

// NewVocabulary builds a vocabulary from units. Labels must be unique and
// values positive.
func NewVocabulary(units []DurationUnit) (*Vocabulary, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("duration vocabulary is empty")
	}

	sorted := make([]DurationUnit, len(units))
	copy(sorted, units)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })

	v := &Vocabulary{
		units:   sorted,
		classes: make([]string, 0, len(sorted)),
		byLabel: make(map[string]float64, len(sorted)),
	}
	for _, u := range sorted {
		if u.Value <= 0 {
			return nil, fmt.Errorf("duration unit %s has non-positive value %v", u.Label, u.Value)
		}
		if _, dup := v.byLabel[u.Label]; dup {
			return nil, fmt.Errorf("duplicate duration label %s", u.Label)
		}
		v.byLabel[u.Label] = u.Value
		v.classes = append(v.classes, u.Label)
	}
	sort.Strings(v.classes)
	return v, nil
}

var defaultVocabulary = mustVocabulary(defaultDurationUnits)

func mustVocabulary(units []DurationUnit) *Vocabulary {
	v, err := NewVocabulary(units)
	if err != nil {
		panic(err)
	}
	return v
}

// DefaultVocabulary returns the shared read-only vocabulary
func DefaultVocabulary() *Vocabulary {
	return defaultVocabulary
}

// Units returns the units in ascending value order
func (v *Vocabulary) Units() []DurationUnit {
	out := make([]DurationUnit, len(v.units))
	copy(out, v.units)
	return out
}

// Size returns the number of labels
func (v *Vocabulary) Size() int {
	return len(v.units)
}

// Value returns the note value for label
func (v *Vocabulary) Value(label string) (float64, error) {
	value, ok := v.byLabel[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDurationLabel, label)
	}
	return value, nil
}

// Encode returns the model class index for label
func (v *Vocabulary) Encode(label string) (int, error) {
	i := sort.SearchStrings(v.classes, label)
	if i >= len(v.classes) || v.classes[i] != label {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDurationLabel, label)
	}
	return i, nil
}

// Decode returns the label for a model class index
func (v *Vocabulary) Decode(class int) (string, error) {
	if class < 0 || class >= len(v.classes) {
		return "", fmt.Errorf("%w: class %d", ErrUnknownDurationLabel, class)
	}
	return v.classes[class], nil
}

// SecondsPerWhole returns the length of a whole note at bpm
func SecondsPerWhole(bpm float64) (float64, error) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return 0, ErrMissingTempo
	}
	return secondsPerMinute / bpm * beatsPerWhole, nil
}

// TableEntry is one label with its absolute length
type TableEntry struct {
	Label   string
	Seconds float64
}

// TempoTable maps every vocabulary label to seconds for one tempo.
// Build a new table whenever the tempo changes.
type TempoTable struct {
	BPM     float64
	entries []TableEntry
	index   map[string]int
}

// NewTempoTable derives the label → seconds table for bpm
func NewTempoTable(vocab *Vocabulary, bpm float64) (*TempoTable, error) {
	whole, err := SecondsPerWhole(bpm)
	if err != nil {
		return nil, err
	}

	t := &TempoTable{
		BPM:     bpm,
		entries: make([]TableEntry, 0, vocab.Size()),
		index:   make(map[string]int, vocab.Size()),
	}
	for i, u := range vocab.units {
		t.entries = append(t.entries, TableEntry{Label: u.Label, Seconds: roundTo(whole/u.Value, RoundPrecision)})
		t.index[u.Label] = i
	}
	return t, nil
}

// Entries returns the table rows in vocabulary order (longest first)
func (t *TempoTable) Entries() []TableEntry {
	out := make([]TableEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Seconds returns the table length for label
func (t *TempoTable) Seconds(label string) (float64, error) {
	i, ok := t.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDurationLabel, label)
	}
	return t.entries[i].Seconds, nil
}

// Classify returns the label whose length is nearest to seconds. The input is
// rounded to RoundPrecision first. On a tie the label earlier in vocabulary
// order (the longer note) wins.
func (t *TempoTable) Classify(seconds float64) string {
	seconds = roundTo(seconds, RoundPrecision)

	best := 0
	bestDiff := math.Inf(1)
	for i, e := range t.entries {
		diff := math.Abs(e.Seconds - seconds)
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return t.entries[best].Label
}

// MaxGap returns the largest distance between neighbouring table lengths,
// the worst-case quantization error inside the representable range
func (t *TempoTable) MaxGap() float64 {
	var gap float64
	for i := 1; i < len(t.entries); i++ {
		gap = math.Max(gap, t.entries[i-1].Seconds-t.entries[i].Seconds)
	}
	return gap
}

// ToSeconds converts label to seconds at bpm, matching the table construction
func ToSeconds(vocab *Vocabulary, label string, bpm float64) (float64, error) {
	whole, err := SecondsPerWhole(bpm)
	if err != nil {
		return 0, err
	}
	value, err := vocab.Value(label)
	if err != nil {
		return 0, err
	}
	return roundTo(whole/value, RoundPrecision), nil
}

func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
