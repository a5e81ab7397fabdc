package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/Conceptual-Machines/melodygen-api/internal/logger"
	"github.com/Conceptual-Machines/melodygen-api/internal/models"
	"github.com/Conceptual-Machines/melodygen-api/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	midiContentType = "audio/midi"
	maxUploadBytes  = 10 << 20
)

type FileHandler struct {
	store *storage.Store
}

func NewFileHandler(store *storage.Store) *FileHandler {
	return &FileHandler{store: store}
}

// Upload handles POST /api/upload_midi (multipart field "file")
func (h *FileHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	name, err := h.store.SaveUpload(header.Filename, f)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidFileType) || errors.Is(err, storage.ErrInvalidName) {
			logger.Warn("Rejected upload "+header.Filename, logger.WithContext(c))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to save upload", err, logger.WithContext(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	log.Printf("📥 Uploaded seed file %s", name)
	c.JSON(http.StatusOK, models.GenerateResponse{
		Message:   "File uploaded successfully",
		MIDIFile:  name,
		RequestID: c.GetString("request_id"),
	})
}

// Download handles GET /api/download/:filename. The file is deleted once it
// has been sent.
func (h *FileHandler) Download(c *gin.Context) {
	name := c.Param("filename")
	path, ok := h.lookup(c, name)
	if !ok {
		return
	}

	c.Header("Content-Type", midiContentType)
	c.FileAttachment(path, name)

	if err := h.store.RemoveOutput(name); err != nil {
		log.Printf("⚠️  Failed to remove %s after download: %v", name, err)
	}
}

// Preview handles GET /api/preview/:filename
func (h *FileHandler) Preview(c *gin.Context) {
	name := c.Param("filename")
	path, ok := h.lookup(c, name)
	if !ok {
		return
	}

	c.Header("Content-Type", midiContentType)
	c.File(path)
}

func (h *FileHandler) lookup(c *gin.Context, name string) (string, bool) {
	path, err := h.store.OpenOutput(name)
	if err != nil {
		logger.Warn("File not found: "+name, logger.WithContext(c))
		c.JSON(http.StatusNotFound, gin.H{"error": storage.ErrNotFound.Error()})
		return "", false
	}
	return path, true
}
