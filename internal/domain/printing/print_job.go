package printing

import (
	"strings"
	"time"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/google/uuid"
)

// JobStatus represents the delivery status of a print job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"   // waiting in the queue
	JobStatusDelivered JobStatus = "delivered" // popped by a printer agent
)

// PrintJob is a queue entry holding a ZPL payload for a printer agent.
// Jobs are delivered at most once; a popped job is gone.
type PrintJob struct {
	ID        uuid.UUID `json:"id"`
	Payload   string    `json:"payload"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPrintJob creates a pending job. Ids are UUIDv7 so they sort by creation time.
func NewPrintJob(payload string) (*PrintJob, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, shared.NewDomainError("INVALID_PAYLOAD", "Print payload cannot be empty")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &PrintJob{
		ID:        id,
		Payload:   payload,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}, nil
}

// MarkDelivered flags the job as handed to an agent.
func (j *PrintJob) MarkDelivered() {
	j.Status = JobStatusDelivered
}
