package handlers

import (
	"net/http"
	"strconv"

	"github.com/Conceptual-Machines/melodygen-api/internal/database"
	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type HistoryHandler struct {
	logs *database.GenerationLogStore
}

// NewHistoryHandler creates a history handler. logs may be nil.
func NewHistoryHandler(logs *database.GenerationLogStore) *HistoryHandler {
	return &HistoryHandler{logs: logs}
}

// ListGenerations handles GET /api/generations?variant=v1&limit=20
func (h *HistoryHandler) ListGenerations(c *gin.Context) {
	if h.logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "generation log not configured"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.logs.Recent(c.Request.Context(), c.Query("variant"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load generation history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generations": entries,
		"count":       len(entries),
	})
}
