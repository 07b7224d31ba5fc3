package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/carrier"
	"go.uber.org/zap"
)

// TopicFollowUp is the outbox topic asking for an order to be processed
// after it was synchronized.
const TopicFollowUp = "label.follow_up"

// Syncer stores the local projection of carrier orders.
type Syncer struct {
	source   OrderSource
	writer   shipping.ProjectionWriter
	followUp bool
	logger   *zap.Logger
}

// NewSyncer creates a Syncer. When followUp is set every synchronized order
// also gets a TopicFollowUp outbox entry.
func NewSyncer(source OrderSource, writer shipping.ProjectionWriter, followUp bool, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		source:   source,
		writer:   writer,
		followUp: followUp,
		logger:   log.Named("syncer"),
	}
}

// SyncOrder fetches the invoice of detail and upserts the order, its items,
// the invoice and a fresh LabelRecord in one transaction. An order whose
// invoice is not issued yet is stored without one.
func (s *Syncer) SyncOrder(ctx context.Context, storeID int64, detail *carrier.OrderDetail) (*shipping.Order, error) {
	order, items := detail.ToDomain(storeID)
	if order.OrderNumber == "" {
		return nil, fmt.Errorf("%w: order %d has no number", shipping.ErrFormat, detail.ID)
	}

	var invoice *shipping.Invoice
	if detail.Invoice.ID > 0 {
		inv, err := s.source.Invoice(ctx, storeID, detail.Invoice.ID)
		switch {
		case err == nil:
			invoice = inv.ToDomain(order.OrderID)
		case errors.Is(err, shipping.ErrNotFound):
			s.logger.Info("Invoice not available yet",
				zap.String("order_number", order.OrderNumber),
				zap.Int64("invoice_id", detail.Invoice.ID))
		default:
			return nil, err
		}
	}

	projection := shipping.Projection{
		Order:   order,
		Items:   items,
		Invoice: invoice,
		Record:  shipping.NewLabelRecord(order.OrderID, storeID, order.OrderNumber),
	}
	if s.followUp {
		payload, err := json.Marshal(FollowUpPayload{OrderNumber: order.OrderNumber, StoreID: storeID})
		if err != nil {
			return nil, err
		}
		projection.FollowUp = []*shared.OutboxEntry{
			shared.NewOutboxEntry(TopicFollowUp, order.OrderNumber, payload),
		}
	}

	if err := s.writer.SaveProjection(ctx, projection); err != nil {
		return nil, fmt.Errorf("save order %s: %w", order.OrderNumber, err)
	}
	s.logger.Debug("Order synchronized",
		zap.Int64("store_id", storeID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("items", len(items)),
		zap.Bool("invoice", invoice != nil))
	return order, nil
}

// FetchAndSync fetches one order detail from the carrier and synchronizes it.
func (s *Syncer) FetchAndSync(ctx context.Context, storeID, orderID int64) (*shipping.Order, error) {
	detail, err := s.source.Order(ctx, storeID, orderID)
	if err != nil {
		return nil, err
	}
	return s.SyncOrder(ctx, storeID, detail)
}
