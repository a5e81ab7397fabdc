package midi

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultTempo is assumed when a file carries no tempo event
const DefaultTempo = 120.0

// ErrNoNotes is returned for files without any complete note
var ErrNoNotes = errors.New("MIDI file contains no notes")

// Sequence is a decoded file: notes in onset order plus the file tempo
type Sequence struct {
	Notes []models.RawNote
	Tempo float64
}

type sounding struct {
	tick     int64
	velocity uint8
}

type parsedNote struct {
	pitch    uint8
	velocity uint8
	start    int64
	end      int64
}

// Read decodes every note of every track. Times are converted with the first
// tempo in the file; later tempo changes are ignored. Each note's Step is its
// distance from the previous onset, the first note has Step 0.
func Read(r io.Reader) (*Sequence, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported MIDI time format: %v", s.TimeFormat)
	}

	tempo := DefaultTempo
	if changes := s.TempoChanges(); len(changes) > 0 && changes[0].BPM > 0 {
		tempo = changes[0].BPM
	}

	var parsed []parsedNote
	for _, track := range s.Tracks {
		parsed = append(parsed, trackNotes(track)...)
	}
	if len(parsed) == 0 {
		return nil, ErrNoNotes
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		if parsed[i].start != parsed[j].start {
			return parsed[i].start < parsed[j].start
		}
		return parsed[i].pitch < parsed[j].pitch
	})

	// Rescale to the writer resolution so one conversion serves both
	scale := float64(TicksPerQuarter) / float64(ticks)
	seconds := func(t int64) float64 {
		return TicksToSeconds(int64(float64(t)*scale+0.5), tempo)
	}

	notes := make([]models.RawNote, len(parsed))
	prevStart := seconds(parsed[0].start)
	for i, p := range parsed {
		start := seconds(p.start)
		vel := float64(p.velocity)
		notes[i] = models.RawNote{
			Pitch:    float64(p.pitch),
			Step:     start - prevStart,
			Duration: seconds(p.end) - start,
			Velocity: &vel,
		}
		prevStart = start
	}

	return &Sequence{Notes: notes, Tempo: tempo}, nil
}

// ReadFile decodes the file at path
func ReadFile(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// trackNotes pairs note starts with note ends per channel and key. Overlapping
// notes on the same key are closed first in, first out.
func trackNotes(track smf.Track) []parsedNote {
	open := make(map[[2]uint8][]sounding)
	var out []parsedNote

	var abs int64
	for _, ev := range track {
		abs += int64(ev.Delta)
		msg := midi.Message(ev.Message)

		var ch, key, vel uint8
		switch {
		case msg.GetNoteOn(&ch, &key, &vel) && vel > 0:
			k := [2]uint8{ch, key}
			open[k] = append(open[k], sounding{tick: abs, velocity: vel})
		case msg.GetNoteOn(&ch, &key, &vel), msg.GetNoteOff(&ch, &key, &vel):
			k := [2]uint8{ch, key}
			queue := open[k]
			if len(queue) == 0 {
				continue
			}
			out = append(out, parsedNote{pitch: key, velocity: queue[0].velocity, start: queue[0].tick, end: abs})
			open[k] = queue[1:]
		}
	}
	return out
}
