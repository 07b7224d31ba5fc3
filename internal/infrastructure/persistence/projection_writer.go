package persistence

import (
	"context"
	"fmt"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormProjectionWriter stores synchronized orders together with their label
// record and follow-up outbox entries in one transaction.
type GormProjectionWriter struct {
	db *gorm.DB
}

// NewGormProjectionWriter creates a new GormProjectionWriter
func NewGormProjectionWriter(db *gorm.DB) *GormProjectionWriter {
	return &GormProjectionWriter{db: db}
}

// SaveProjection implements ProjectionWriter
func (w *GormProjectionWriter) SaveProjection(ctx context.Context, p shipping.Projection) error {
	if p.Order == nil {
		return fmt.Errorf("projection without order")
	}
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertOrder(tx, p.Order, p.Items, p.Invoice); err != nil {
			return err
		}
		if p.Record != nil {
			if err := NewGormLabelRecordRepository(tx).CreateIfAbsent(ctx, p.Record); err != nil {
				return fmt.Errorf("failed to create label record of order %s: %w", p.Order.OrderNumber, err)
			}
		}
		if err := event.NewGormOutboxRepository(tx).Save(ctx, p.FollowUp...); err != nil {
			return fmt.Errorf("failed to append outbox entries of order %s: %w", p.Order.OrderNumber, err)
		}
		return nil
	})
}

// Ensure GormProjectionWriter implements ProjectionWriter
var _ shipping.ProjectionWriter = (*GormProjectionWriter)(nil)
