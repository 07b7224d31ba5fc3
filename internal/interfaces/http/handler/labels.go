package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/erp/shipping/internal/application/labeling"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// LabelService is the part of labeling.Compositor the label endpoints use.
type LabelService interface {
	EnsurePDF(ctx context.Context, orderNumber string) ([]byte, error)
	Compose(ctx context.Context, orderNumber string) ([]byte, error)
	BatchZPL(ctx context.Context, orderNumbers []string) (*labeling.BatchResult, error)
	RecordPrint(ctx context.Context, orderNumber string) (*shipping.LabelRecord, error)
}

// LabelHandler serves composed shipping labels
type LabelHandler struct {
	BaseHandler
	labels LabelService
}

// NewLabelHandler creates a new LabelHandler
func NewLabelHandler(labels LabelService, verbose bool) *LabelHandler {
	return &LabelHandler{BaseHandler: BaseHandler{Verbose: verbose}, labels: labels}
}

// PrintCountResponse is returned after a label was physically printed
type PrintCountResponse struct {
	OrderNumber string `json:"orderNumber"`
	PrintCount  int    `json:"printCount"`
	PrintState  string `json:"printState"`
}

func orderNumberParam(c *gin.Context) (string, bool) {
	n := strings.TrimSpace(c.Param("orderNumber"))
	return n, n != ""
}

func (h *LabelHandler) writePDF(c *gin.Context, orderNumber string, pdf []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", orderNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// GetPDF returns the composed label, composing it first when any derived
// artifact is missing.
//
// GET /labels/:orderNumber/pdf
func (h *LabelHandler) GetPDF(c *gin.Context) {
	orderNumber, ok := orderNumberParam(c)
	if !ok {
		h.BadRequest(c, "order number is required")
		return
	}
	pdf, err := h.labels.EnsurePDF(c.Request.Context(), orderNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.writePDF(c, orderNumber, pdf)
}

// Compose forces recomposition from the stored transport label.
//
// POST /labels/:orderNumber/compose
func (h *LabelHandler) Compose(c *gin.Context) {
	orderNumber, ok := orderNumberParam(c)
	if !ok {
		h.BadRequest(c, "order number is required")
		return
	}
	pdf, err := h.labels.Compose(c.Request.Context(), orderNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.writePDF(c, orderNumber, pdf)
}

// BatchZPL concatenates the ZPL of several orders sorted by SKU.
//
// POST /labels/zpl/batch
func (h *LabelHandler) BatchZPL(c *gin.Context) {
	var req dto.OrderNumbersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.labels.BatchZPL(c.Request.Context(), req.OrderNumbers)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RecordPrint increments the print counter of one label.
//
// POST /labels/:orderNumber/print-count
func (h *LabelHandler) RecordPrint(c *gin.Context) {
	orderNumber, ok := orderNumberParam(c)
	if !ok {
		h.BadRequest(c, "order number is required")
		return
	}
	record, err := h.labels.RecordPrint(c.Request.Context(), orderNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, PrintCountResponse{
		OrderNumber: record.OrderNumber,
		PrintCount:  record.PrintCount,
		PrintState:  record.PrintState,
	})
}
