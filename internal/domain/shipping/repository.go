package shipping

import (
	"context"

	"github.com/erp/shipping/internal/domain/shared"
)

// OrderRepository reads and writes the local order projection.
type OrderRepository interface {
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)
	Items(ctx context.Context, orderID int64) ([]LineItem, error)
	Invoice(ctx context.Context, orderID int64) (*Invoice, error)
	InvoiceByOrderNumber(ctx context.Context, orderNumber string) (*Invoice, error)
	// Upsert stores the order with its items and invoice, replacing previous items.
	Upsert(ctx context.Context, order *Order, items []LineItem, invoice *Invoice) error
	ItemsByOrderNumbers(ctx context.Context, orderNumbers []string) (map[string][]LineItem, error)
}

// LabelRecordRepository persists LabelRecords.
type LabelRecordRepository interface {
	FindByOrderNumber(ctx context.Context, orderNumber string) (*LabelRecord, error)
	FindByOrderNumbers(ctx context.Context, orderNumbers []string) ([]*LabelRecord, error)
	// CreateIfAbsent inserts record unless one exists for the same order.
	CreateIfAbsent(ctx context.Context, record *LabelRecord) error
	// Save writes the download fields of record. Print counters are only
	// changed by IncrementPrintCount.
	Save(ctx context.Context, record *LabelRecord) error
	// Backlog lists records whose label is not saved yet, oldest first.
	Backlog(ctx context.Context, storeID int64, limit int) ([]*LabelRecord, error)
	// IncrementPrintCount atomically bumps the print counter of the given
	// orders and derives their print state in the same statement.
	IncrementPrintCount(ctx context.Context, orderNumbers ...string) (int64, error)
}

// LogoRepository returns the decoded logo image of a store.
type LogoRepository interface {
	FindByStore(ctx context.Context, storeID int64) ([]byte, error)
	// FindByOrderNumber returns the logo of the store owning orderNumber.
	FindByOrderNumber(ctx context.Context, orderNumber string) ([]byte, error)
	Save(ctx context.Context, storeID int64, image []byte) error
}

// Projection is the result of synchronizing one order from the carrier.
type Projection struct {
	Order   *Order
	Items   []LineItem
	Invoice *Invoice // nil when the order has no invoice yet
	// Record is created only if the order has none.
	Record *LabelRecord
	// FollowUp entries are appended to the outbox in the same transaction.
	FollowUp []*shared.OutboxEntry
}

// ProjectionWriter stores a Projection atomically.
type ProjectionWriter interface {
	SaveProjection(ctx context.Context, p Projection) error
}
