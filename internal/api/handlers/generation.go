package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/Conceptual-Machines/melodygen-api/internal/config"
	"github.com/Conceptual-Machines/melodygen-api/internal/database"
	"github.com/Conceptual-Machines/melodygen-api/internal/generation"
	"github.com/Conceptual-Machines/melodygen-api/internal/harmony"
	"github.com/Conceptual-Machines/melodygen-api/internal/logger"
	"github.com/Conceptual-Machines/melodygen-api/internal/metrics"
	"github.com/Conceptual-Machines/melodygen-api/internal/midi"
	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"github.com/Conceptual-Machines/melodygen-api/internal/storage"
	"github.com/Conceptual-Machines/melodygen-api/internal/workerpool"
	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"

	// statusClientClosedRequest is logged when the caller disconnects
	statusClientClosedRequest = 499
)

// GenerationDeps are the shared services the generation and harmonize
// handlers need. Harmonizer, Mirror, Logs and Metrics are optional.
type GenerationDeps struct {
	Registry   *model.Registry
	Generator  *generation.Generator
	Harmonizer *harmony.Harmonizer
	Pool       *workerpool.Pool
	Store      *storage.Store
	Mirror     storage.Mirror
	Logs       *database.GenerationLogStore
	Metrics    *metrics.Client
}

type GenerationHandler struct {
	deps GenerationDeps
	cfg  *config.Config
}

func NewGenerationHandler(cfg *config.Config, deps GenerationDeps) *GenerationHandler {
	return &GenerationHandler{deps: deps, cfg: cfg}
}

// generated is what a worker hands back to the request
type generated struct {
	result   *models.GenerationResult
	fileName string
}

// Generate handles POST /api/:variant/lstm/generate
func (h *GenerationHandler) Generate(c *gin.Context) {
	startTime := time.Now()
	fields := logger.WithContext(c)

	variant, predictor, err := h.deps.Registry.Get(c.Param("variant"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	fields["variant"] = variant.Name

	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seed, err := h.resolveSeed(req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": storage.ErrNotFound.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instrument := req.Instrument
	if instrument == "" {
		instrument = h.cfg.InstrumentName
	}
	if _, err := midi.Program(instrument); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := generation.Params{
		Seed:           seed,
		NumPredictions: req.NumPredictions,
		Temperature:    req.Temperature,
		Tempo:          float64(req.Tempo),
		PolyphonyMode:  generation.PolyphonyMode(req.PolyphonyMode),
		RandSeed:       req.Seed,
	}
	if err := params.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	out, err := workerpool.Submit(ctx, h.deps.Pool, func(jobCtx context.Context) (generated, error) {
		return h.run(jobCtx, variant, predictor, params, instrument)
	})
	duration := time.Since(startTime)
	if err != nil {
		h.fail(c, variant, req, len(seed), duration, err, fields)
		return
	}

	url := h.deps.mirror(c.Request.Context(), out.fileName, fields)

	if out.result.Dropped > 0 {
		logger.Debug("Active-note cap dropped notes", logger.Fields{
			"request_id": c.GetString("request_id"),
			"variant":    variant.Name,
			"primary":    len(out.result.Primary),
			"dropped":    out.result.Dropped,
		})
	}

	fields["emitted"] = len(out.result.Notes)
	fields["dropped"] = out.result.Dropped
	fields["pitch_shift"] = out.result.PitchShift
	fields["midi_file"] = out.fileName
	logger.LogGeneration(c.Request.Context(), variant.Name, duration, fields)

	h.deps.record(c, http.StatusOK, &models.GenerationLog{
		Variant:        variant.Name,
		NumPredictions: req.NumPredictions,
		Temperature:    req.Temperature,
		Tempo:          req.Tempo,
		SeedNotes:      len(seed),
		NotesEmitted:   len(out.result.Notes),
		NotesDropped:   out.result.Dropped,
		PitchShift:     out.result.PitchShift,
		MIDIFile:       out.fileName,
		DurationMS:     int(duration.Milliseconds()),
		Status:         statusSuccess,
	}, metrics.Generation{
		Variant:  variant.Name,
		Steps:    len(out.result.Primary),
		Emitted:  len(out.result.Notes),
		Dropped:  out.result.Dropped,
		Duration: duration,
		Success:  true,
	})

	c.JSON(http.StatusOK, models.GenerateResponse{
		Message:   "MIDI file generated successfully",
		MIDIFile:  out.fileName,
		URL:       url,
		RequestID: c.GetString("request_id"),
		Notes:     len(out.result.Notes),
	})
}

// run is the worker side of a request: decode, then write the file
func (h *GenerationHandler) run(ctx context.Context, variant model.Variant, predictor model.Predictor, params generation.Params, instrument string) (generated, error) {
	result, err := h.deps.Generator.Generate(ctx, variant, predictor, params)
	if err != nil {
		return generated{}, err
	}

	name := h.deps.Store.NewOutputName()
	path, err := h.deps.Store.OutputPath(name)
	if err != nil {
		return generated{}, err
	}
	if err := midi.WriteFile(path, result.Notes, instrument, params.Tempo); err != nil {
		return generated{}, err
	}
	return generated{result: result, fileName: name}, nil
}

// resolveSeed returns the request's seed notes, reading an uploaded file
// when one is named. No seed means a cold start.
func (h *GenerationHandler) resolveSeed(req models.GenerationRequest) ([]models.RawNote, error) {
	if req.SeedFile == "" {
		return req.StartNotes, nil
	}

	path, err := h.deps.Store.UploadPath(req.SeedFile)
	if err != nil {
		return nil, err
	}
	seq, err := midi.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", req.SeedFile, err)
	}
	return seq.Notes, nil
}

// mirror uploads the file when a mirror is configured. Failures are logged
// and the local file is still served.
func (d GenerationDeps) mirror(ctx context.Context, name string, fields logger.Fields) string {
	if d.Mirror == nil {
		return ""
	}
	path, err := d.Store.OpenOutput(name)
	if err != nil {
		logger.Warn("Generated file missing before upload", fields)
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("Failed to open generated file for upload", fields)
		return ""
	}
	defer f.Close()

	url, err := d.Mirror.Upload(ctx, name, f)
	if err != nil {
		logger.Error("Failed to mirror generated file", err, fields)
		return ""
	}
	return url
}

func (h *GenerationHandler) fail(c *gin.Context, variant model.Variant, req models.GenerationRequest, seedNotes int, duration time.Duration, err error, fields logger.Fields) {
	status := http.StatusInternalServerError
	switch {
	case generation.IsConfigError(err):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = statusClientClosedRequest
	}

	entry := &models.GenerationLog{
		Variant:        variant.Name,
		NumPredictions: req.NumPredictions,
		Temperature:    req.Temperature,
		Tempo:          req.Tempo,
		SeedNotes:      seedNotes,
		DurationMS:     int(duration.Milliseconds()),
		Status:         statusFailed,
		Error:          err.Error(),
	}
	g := metrics.Generation{Variant: variant.Name, Duration: duration}

	switch status {
	case statusClientClosedRequest:
		// Client went away; the run finishes in the background
		log.Printf("⚠️  Client disconnected during %s generation (request %s)", variant.Name, c.GetString("request_id"))
		h.deps.record(c, status, entry, g)
		return
	case http.StatusInternalServerError:
		logger.Error("Generation failed", err, fields)
	default:
		logger.Warn("Generation rejected: "+err.Error(), fields)
	}

	h.deps.record(c, status, entry, g)

	c.JSON(status, gin.H{
		"error":      err.Error(),
		"request_id": c.GetString("request_id"),
	})
}

// record writes the audit log and metrics. Neither may fail the request.
// The request context may already be cancelled, so writes use a detached one.
func (d GenerationDeps) record(c *gin.Context, statusCode int, entry *models.GenerationLog, g metrics.Generation) {
	ctx := context.WithoutCancel(c.Request.Context())
	endpoint := c.FullPath()
	entry.RequestID = c.GetString("request_id")

	logger.LogAPIRequest(c, g.Duration, statusCode, logger.Fields{"variant": g.Variant})

	if d.Logs != nil {
		if err := d.Logs.Record(ctx, entry); err != nil {
			log.Printf("⚠️  Failed to record generation log: %v", err)
		}
	}
	if d.Metrics != nil {
		d.Metrics.RecordAPIRequest(endpoint, statusCode, g.Duration)
		d.Metrics.RecordGeneration(g)
	}
	sentryMetrics.RecordAPIRequest(ctx, endpoint, statusCode, g.Duration)
	sentryMetrics.RecordGeneration(ctx, g)
}
