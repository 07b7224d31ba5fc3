package handler

import (
	"context"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
)

// OutboxCounter reports outbox entries per status.
type OutboxCounter interface {
	CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error)
}

// OutboxHandler exposes the follow-up outbox for monitoring
type OutboxHandler struct {
	BaseHandler
	outbox OutboxCounter
}

// NewOutboxHandler creates a new outbox handler
func NewOutboxHandler(outbox OutboxCounter) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

// OutboxStatsResponse counts outbox entries by status
type OutboxStatsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
}

// GetStats returns the number of follow-up entries in each status.
//
// GET /outbox/stats
func (h *OutboxHandler) GetStats(c *gin.Context) {
	counts, err := h.outbox.CountByStatus(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, OutboxStatsResponse{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
	})
}

// OutboxRoutes creates the route group for outbox monitoring
func OutboxRoutes(h *OutboxHandler) *router.DomainGroup {
	return router.NewDomainGroup("outbox", "/outbox").GET("/stats", h.GetStats)
}
