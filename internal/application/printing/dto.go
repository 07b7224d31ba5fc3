package printing

import (
	"time"

	"github.com/erp/shipping/internal/domain/printing"
)

// =============================================================================
// Print Job DTOs
// =============================================================================

// EnqueueRequest represents a request to queue a print job. Either Payload
// (raw ZPL) or OrderNumbers must be set; order numbers are resolved to the
// batch ZPL of their stored labels.
type EnqueueRequest struct {
	Payload      string   `json:"payload"`
	OrderNumbers []string `json:"orderNumbers" binding:"omitempty,max=500"`
}

// PrintJobResponse represents a print job response
type PrintJobResponse struct {
	ID        string    `json:"id"`
	Payload   string    `json:"payload"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	// Included and Skipped are set for jobs built from order numbers.
	Included []string `json:"included,omitempty"`
	Skipped  []string `json:"skipped,omitempty"`
}

// QueueStatsResponse reports the state of the print queue
type QueueStatsResponse struct {
	Backend string `json:"backend"`
	Pending int    `json:"pending"`
}

func toJobResponse(j *printing.PrintJob) *PrintJobResponse {
	return &PrintJobResponse{
		ID:        j.ID.String(),
		Payload:   j.Payload,
		Status:    string(j.Status),
		CreatedAt: j.CreatedAt,
	}
}
