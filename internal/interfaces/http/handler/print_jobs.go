package handler

import (
	"context"
	"strings"

	printingapp "github.com/erp/shipping/internal/application/printing"
	"github.com/gin-gonic/gin"
)

// PrintQueue is the print spool used by printer agents.
type PrintQueue interface {
	Enqueue(ctx context.Context, req printingapp.EnqueueRequest) (*printingapp.PrintJobResponse, error)
	Next(ctx context.Context) (*printingapp.PrintJobResponse, error)
	Stats(ctx context.Context) (*printingapp.QueueStatsResponse, error)
}

// PrintJobHandler handles print queue endpoints
type PrintJobHandler struct {
	BaseHandler
	queue PrintQueue
}

// NewPrintJobHandler creates a new PrintJobHandler
func NewPrintJobHandler(queue PrintQueue, verbose bool) *PrintJobHandler {
	return &PrintJobHandler{BaseHandler: BaseHandler{Verbose: verbose}, queue: queue}
}

// Enqueue queues a raw ZPL payload, or the batch ZPL of a list of orders.
//
// POST /print-jobs
func (h *PrintJobHandler) Enqueue(c *gin.Context) {
	var req printingapp.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if strings.TrimSpace(req.Payload) == "" && len(req.OrderNumbers) == 0 {
		h.BadRequest(c, "payload or orderNumbers is required")
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, job)
}

// Next hands the oldest waiting job to a printer agent. Responds 204 when
// the queue is empty.
//
// GET /print-jobs/next
func (h *PrintJobHandler) Next(c *gin.Context) {
	job, err := h.queue.Next(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

// Stats reports the queue backend and length.
//
// GET /print-jobs/stats
func (h *PrintJobHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
