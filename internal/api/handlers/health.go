package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Conceptual-Machines/melodygen-api/internal/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const healthProbeTimeout = 3 * time.Second

type HealthHandler struct {
	registry *model.Registry
	db       *gorm.DB
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(registry *model.Registry, db *gorm.DB) *HealthHandler {
	return &HealthHandler{registry: registry, db: db}
}

// HealthCheck reports model server and database status
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	healthy := true
	modelStatus := gin.H{}
	for name, err := range h.registry.Check(ctx) {
		if err != nil {
			healthy = false
			modelStatus[name] = gin.H{"status": "unavailable", "error": err.Error()}
		} else {
			modelStatus[name] = gin.H{"status": "available"}
		}
	}

	dbStatus := "disabled"
	if h.db != nil {
		dbStatus = "connected"
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			dbStatus = "unreachable"
			healthy = false
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"models":   modelStatus,
		"database": dbStatus,
	})
}
