package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Conceptual-Machines/melodygen-api/internal/config"
	"github.com/Conceptual-Machines/melodygen-api/internal/harmony"
	"github.com/Conceptual-Machines/melodygen-api/internal/logger"
	"github.com/Conceptual-Machines/melodygen-api/internal/metrics"
	"github.com/Conceptual-Machines/melodygen-api/internal/midi"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"github.com/Conceptual-Machines/melodygen-api/internal/storage"
	"github.com/Conceptual-Machines/melodygen-api/internal/workerpool"
	"github.com/gin-gonic/gin"
)

// harmonizeVariant tags harmonize runs in logs and metrics
const harmonizeVariant = "ffn"

type HarmonizeHandler struct {
	deps GenerationDeps
	cfg  *config.Config
}

func NewHarmonizeHandler(cfg *config.Config, deps GenerationDeps) *HarmonizeHandler {
	return &HarmonizeHandler{deps: deps, cfg: cfg}
}

// Harmonize handles GET /api/harmonize/:filename. The uploaded melody keeps
// its tempo; the result has one track per voice.
func (h *HarmonizeHandler) Harmonize(c *gin.Context) {
	startTime := time.Now()
	fields := logger.WithContext(c)
	fields["variant"] = harmonizeVariant

	if h.deps.Harmonizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "harmonizer not configured"})
		return
	}

	filename := c.Param("filename")
	path, err := h.deps.Store.UploadPath(filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "MIDI file not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seq, err := midi.ReadFile(path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fields["seed_file"] = filename

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	out, err := workerpool.Submit(ctx, h.deps.Pool, func(jobCtx context.Context) (harmonized, error) {
		return h.run(jobCtx, seq)
	})
	duration := time.Since(startTime)
	entry := &models.GenerationLog{
		Variant:    harmonizeVariant,
		Tempo:      int(seq.Tempo + 0.5),
		SeedNotes:  len(seq.Notes),
		DurationMS: int(duration.Milliseconds()),
	}

	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, harmony.ErrEmptyMelody), errors.Is(err, harmony.ErrMelodyTooLong):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case errors.Is(err, context.Canceled):
			status = statusClientClosedRequest
		}

		entry.Status, entry.Error = statusFailed, err.Error()
		h.deps.record(c, status, entry, metrics.Generation{Variant: harmonizeVariant, Duration: duration})

		switch status {
		case statusClientClosedRequest:
			log.Printf("⚠️  Client disconnected during harmonization (request %s)", c.GetString("request_id"))
			return
		case http.StatusInternalServerError:
			logger.Error("Harmonization failed", err, fields)
		default:
			logger.Warn("Harmonization rejected: "+err.Error(), fields)
		}
		c.JSON(status, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
		return
	}

	url := h.deps.mirror(c.Request.Context(), out.fileName, fields)

	out.voices["request_id"] = c.GetString("request_id")
	logger.Debug("Harmonized voices", out.voices)

	fields["emitted"] = out.notes
	fields["midi_file"] = out.fileName
	logger.LogGeneration(c.Request.Context(), harmonizeVariant, duration, fields)

	entry.Status = statusSuccess
	entry.NotesEmitted = out.notes
	entry.MIDIFile = out.fileName
	h.deps.record(c, http.StatusOK, entry, metrics.Generation{
		Variant:  harmonizeVariant,
		Steps:    out.windows,
		Emitted:  out.notes,
		Duration: duration,
		Success:  true,
	})

	c.JSON(http.StatusOK, models.GenerateResponse{
		Message:   "MIDI file harmonized successfully",
		MIDIFile:  out.fileName,
		URL:       url,
		RequestID: c.GetString("request_id"),
		Notes:     out.notes,
	})
}

type harmonized struct {
	fileName string
	notes    int
	windows  int
	voices   logger.Fields // Note count per voice
}

func (h *HarmonizeHandler) run(ctx context.Context, seq *midi.Sequence) (harmonized, error) {
	res, err := h.deps.Harmonizer.Harmonize(ctx, seq.Notes, seq.Tempo)
	if err != nil {
		return harmonized{}, err
	}

	parts := make([]midi.Part, len(res.Lines))
	voices := logger.Fields{}
	for i, line := range res.Lines {
		parts[i] = midi.Part{Name: line.Voice.Name, Notes: line.Notes}
		voices[line.Voice.Name] = len(line.Notes)
	}

	name := h.deps.Store.NewOutputName()
	path, err := h.deps.Store.OutputPath(name)
	if err != nil {
		return harmonized{}, err
	}
	if err := midi.WritePartsFile(path, parts, h.cfg.InstrumentName, seq.Tempo); err != nil {
		return harmonized{}, err
	}
	return harmonized{fileName: name, notes: res.NoteCount(), windows: res.Windows, voices: voices}, nil
}
