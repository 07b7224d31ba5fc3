package handler

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/erp/shipping/internal/application/labeling"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReconciliationStreamer runs a reconciliation pass as an event sequence.
type ReconciliationStreamer interface {
	Stream(ctx context.Context) iter.Seq[shipping.ProgressEvent]
	Running() bool
}

// ReconciliationHandler streams reconciliation progress over SSE
type ReconciliationHandler struct {
	BaseHandler
	reconciler ReconciliationStreamer
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciler ReconciliationStreamer, verbose bool) *ReconciliationHandler {
	return &ReconciliationHandler{BaseHandler: BaseHandler{Verbose: verbose}, reconciler: reconciler}
}

// Stream starts a reconciliation pass and relays every ProgressEvent as an
// SSE event named after its kind (log, progress, done). Disconnecting the
// client cancels the pass.
//
// GET /reconciliation/stream
func (h *ReconciliationHandler) Stream(c *gin.Context) {
	if h.reconciler.Running() {
		h.HandleError(c, labeling.ErrReconciliationRunning)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	log := logger.GetGinLogger(c)
	// A pass can outlive the server write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("Write deadline not cleared", zap.Error(err))
	}
	log.Info("Reconciliation stream opened")

	sent := 0
	for ev := range h.reconciler.Stream(c.Request.Context()) {
		c.SSEvent(string(ev.Kind), ev)
		c.Writer.Flush()
		sent++
	}

	log.Info("Reconciliation stream closed",
		zap.Int("events", sent),
		zap.Bool("client_gone", c.Request.Context().Err() != nil))
}
