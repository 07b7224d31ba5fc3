package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PrintCountChunkSize is the number of orders updated per statement when
// print counts are bumped in bulk.
const PrintCountChunkSize = 50

// GormLabelRecordRepository implements LabelRecordRepository using GORM
type GormLabelRecordRepository struct {
	db *gorm.DB
}

// NewGormLabelRecordRepository creates a new GormLabelRecordRepository
func NewGormLabelRecordRepository(db *gorm.DB) *GormLabelRecordRepository {
	return &GormLabelRecordRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormLabelRecordRepository) WithTx(tx *gorm.DB) *GormLabelRecordRepository {
	return &GormLabelRecordRepository{db: tx}
}

// FindByOrderNumber finds the record of an order
func (r *GormLabelRecordRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*shipping.LabelRecord, error) {
	var model models.LabelRecordModel
	if err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: label record of order %s", shipping.ErrNotFound, orderNumber)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOrderNumbers returns the records found for the given orders
func (r *GormLabelRecordRepository) FindByOrderNumbers(ctx context.Context, orderNumbers []string) ([]*shipping.LabelRecord, error) {
	if len(orderNumbers) == 0 {
		return nil, nil
	}
	var rows []models.LabelRecordModel
	if err := r.db.WithContext(ctx).Where("order_number IN ?", orderNumbers).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*shipping.LabelRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CreateIfAbsent inserts the record unless the order already has one
func (r *GormLabelRecordRepository) CreateIfAbsent(ctx context.Context, record *shipping.LabelRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(models.LabelRecordModelFromDomain(record)).Error
}

// Save writes the download fields of the record
func (r *GormLabelRecordRepository) Save(ctx context.Context, record *shipping.LabelRecord) error {
	record.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.LabelRecordModel{}).
		Where("order_id = ?", record.OrderID).
		Updates(map[string]any{
			"label_id":         record.LabelID,
			"download_link":    record.DownloadLink,
			"downloaded_state": record.DownloadedState,
			"last_error":       record.LastError,
			"updated_at":       record.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: label record of order %s", shipping.ErrNotFound, record.OrderNumber)
	}
	return nil
}

// Backlog lists records of a store whose label is not saved yet, least
// recently touched first. storeID 0 lists every store.
func (r *GormLabelRecordRepository) Backlog(ctx context.Context, storeID int64, limit int) ([]*shipping.LabelRecord, error) {
	q := r.db.WithContext(ctx).
		Where("downloaded_state <> ?", shipping.DownloadStateLabelSaved).
		Order("updated_at ASC").
		Order("order_id ASC")
	if storeID != 0 {
		q = q.Where("store_id = ?", storeID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.LabelRecordModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*shipping.LabelRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CountBacklog counts records of every store whose label is not saved yet
func (r *GormLabelRecordRepository) CountBacklog(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.LabelRecordModel{}).
		Where("downloaded_state <> ?", shipping.DownloadStateLabelSaved).
		Count(&n).Error
	return n, err
}

// IncrementPrintCount adds one print to each order and derives the print
// state in the same UPDATE: the first print is "printed", later ones
// "reprinted". The right-hand side of SET sees the pre-update row on both
// PostgreSQL and SQLite, so concurrent calls never lose a count. Orders are
// updated PrintCountChunkSize at a time. Returns the number of rows updated.
func (r *GormLabelRecordRepository) IncrementPrintCount(ctx context.Context, orderNumbers ...string) (int64, error) {
	var total int64
	for start := 0; start < len(orderNumbers); start += PrintCountChunkSize {
		end := min(start+PrintCountChunkSize, len(orderNumbers))
		result := r.db.WithContext(ctx).
			Model(&models.LabelRecordModel{}).
			Where("order_number IN ?", orderNumbers[start:end]).
			Updates(map[string]any{
				"print_count": gorm.Expr("print_count + 1"),
				"print_state": gorm.Expr("CASE WHEN print_count + 1 = 1 THEN ? ELSE ? END",
					shipping.PrintStatePrinted, shipping.PrintStateReprinted),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return total, fmt.Errorf("failed to update print count: %w", result.Error)
		}
		total += result.RowsAffected
	}
	return total, nil
}

// Ensure GormLabelRecordRepository implements LabelRecordRepository
var _ shipping.LabelRecordRepository = (*GormLabelRecordRepository)(nil)
