package midi

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// TicksPerQuarter is the file resolution
const TicksPerQuarter = 480

// maxParts keeps parts off the GM percussion channel
const maxParts = 9

type timedMessage struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// Part is one instrument track of a file
type Part struct {
	Name  string // Track name; the instrument name when empty
	Notes []models.NoteEvent
}

// Write encodes notes as a format 1 SMF: a tempo track followed by one
// instrument track. Note times are seconds at tempoBPM.
func Write(w io.Writer, notes []models.NoteEvent, instrument string, tempoBPM float64) error {
	return WriteParts(w, []Part{{Notes: notes}}, instrument, tempoBPM)
}

// WriteParts encodes each part as its own track on its own channel, all
// with the same instrument.
func WriteParts(w io.Writer, parts []Part, instrument string, tempoBPM float64) error {
	if !(tempoBPM > 0) {
		return fmt.Errorf("invalid tempo: %v", tempoBPM)
	}
	if len(parts) == 0 || len(parts) > maxParts {
		return fmt.Errorf("part count %d out of range [1,%d]", len(parts), maxParts)
	}
	program, err := Program(instrument)
	if err != nil {
		return err
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(tempoBPM))
	tempo.Close(0)
	if err := s.Add(tempo); err != nil {
		return fmt.Errorf("error adding tempo track: %w", err)
	}

	for i, part := range parts {
		ch := uint8(i)
		name := part.Name
		if name == "" {
			name = InstrumentName(program)
		}

		var track smf.Track
		track.Add(0, smf.MetaTrackSequenceName(name))
		track.Add(0, smf.MetaInstrument(InstrumentName(program)))
		track.Add(0, midi.ProgramChange(ch, program))

		var last uint32
		for _, e := range noteMessages(ch, part.Notes, tempoBPM) {
			track.Add(e.tick-last, e.msg)
			last = e.tick
		}
		track.Close(0)
		if err := s.Add(track); err != nil {
			return fmt.Errorf("error adding track %s: %w", name, err)
		}
	}

	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("error writing MIDI: %w", err)
	}
	return nil
}

// WriteFile writes notes to path
func WriteFile(path string, notes []models.NoteEvent, instrument string, tempoBPM float64) error {
	return WritePartsFile(path, []Part{{Notes: notes}}, instrument, tempoBPM)
}

// WritePartsFile writes parts to path
func WritePartsFile(path string, parts []Part, instrument string, tempoBPM float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := WriteParts(bw, parts, instrument, tempoBPM); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

// noteMessages returns note on/off pairs sorted by tick. At equal ticks
// note offs come first so a repeated pitch is re-struck. Every note lasts at
// least one tick so its own off never sorts ahead of its on.
func noteMessages(ch uint8, notes []models.NoteEvent, tempoBPM float64) []timedMessage {
	out := make([]timedMessage, 0, 2*len(notes))
	for _, n := range notes {
		key := uint8(max(models.MinMIDIValue, min(models.MaxMIDIValue, n.Pitch)))
		vel := uint8(max(1, min(models.MaxMIDIValue, n.Velocity)))
		on := SecondsToTicks(n.Start, tempoBPM)
		off := max(on+1, SecondsToTicks(n.End, tempoBPM))
		out = append(out,
			timedMessage{tick: on, msg: midi.NoteOn(ch, key, vel)},
			timedMessage{tick: off, off: true, msg: midi.NoteOff(ch, key)},
		)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].tick != out[j].tick {
			return out[i].tick < out[j].tick
		}
		return out[i].off && !out[j].off
	})
	return out
}

// SecondsToTicks converts a time in seconds to ticks at tempoBPM
func SecondsToTicks(seconds, tempoBPM float64) uint32 {
	if seconds <= 0 {
		return 0
	}
	return uint32(math.Round(seconds * tempoBPM / 60 * TicksPerQuarter))
}

// TicksToSeconds converts ticks to seconds at tempoBPM
func TicksToSeconds(ticks int64, tempoBPM float64) float64 {
	return float64(ticks) / TicksPerQuarter * 60 / tempoBPM
}
