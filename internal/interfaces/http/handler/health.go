package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/erp/shipping/internal/infrastructure/logger"
	"github.com/erp/shipping/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the database and print queue respond
type HealthHandler struct {
	BaseHandler
	db      Pinger
	queue   PrintQueue
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger, queue PrintQueue) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, timeout: 2 * time.Second}
}

// Health responds 200 when every dependency is reachable and 503 otherwise.
//
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok", Database: "ok", Queue: "ok"}
	log := logger.GetGinLogger(c)

	if err := h.db.Ping(ctx); err != nil {
		log.Warn("Health check: database unreachable", zap.Error(err))
		resp.Status, resp.Database = "degraded", "unreachable"
	}
	if stats, err := h.queue.Stats(ctx); err != nil {
		log.Warn("Health check: print queue unreachable", zap.Error(err))
		resp.Status, resp.Queue = "degraded", "unreachable"
	} else {
		resp.Pending = stats.Pending
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.NewSuccessResponse(resp))
}
