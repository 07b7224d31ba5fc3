package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: tx}
}

// FindByNumber finds an order by its marketplace number
func (r *GormOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*shipping.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", shipping.ErrNotFound, orderNumber)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Items returns the lines of an order in insertion order
func (r *GormOrderRepository) Items(ctx context.Context, orderID int64) ([]shipping.LineItem, error) {
	var rows []models.OrderItemModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]shipping.LineItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items, nil
}

// Invoice returns the invoice of an order
func (r *GormOrderRepository) Invoice(ctx context.Context, orderID int64) (*shipping.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invoice of order %d", shipping.ErrNotFound, orderID)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// InvoiceByOrderNumber returns the invoice of an order by its number
func (r *GormOrderRepository) InvoiceByOrderNumber(ctx context.Context, orderNumber string) (*shipping.Invoice, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.order_id = invoices.order_id").
		Where("orders.order_number = ?", orderNumber).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: invoice of order %s", shipping.ErrNotFound, orderNumber)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Upsert stores the order, replaces its items and stores the invoice when given
func (r *GormOrderRepository) Upsert(ctx context.Context, order *shipping.Order, items []shipping.LineItem, invoice *shipping.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertOrder(tx, order, items, invoice)
	})
}

func upsertOrder(tx *gorm.DB, order *shipping.Order, items []shipping.LineItem, invoice *shipping.Invoice) error {
	m := models.OrderModelFromDomain(order)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns(orderUpdateColumns),
	}).Create(m).Error; err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", order.OrderNumber, err)
	}

	if err := tx.Where("order_id = ?", order.OrderID).Delete(&models.OrderItemModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear items of order %s: %w", order.OrderNumber, err)
	}
	if len(items) > 0 {
		rows := make([]models.OrderItemModel, len(items))
		for i, it := range items {
			rows[i] = models.OrderItemModel{OrderID: order.OrderID, SKU: it.SKU, Description: it.Description, Quantity: it.Quantity}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert items of order %s: %w", order.OrderNumber, err)
		}
	}

	if invoice != nil {
		inv := *invoice
		inv.OrderID = order.OrderID
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"number", "series", "access_key", "issue_date"}),
		}).Create(models.InvoiceModelFromDomain(&inv)).Error; err != nil {
			return fmt.Errorf("failed to upsert invoice of order %s: %w", order.OrderNumber, err)
		}
	}
	return nil
}

var orderUpdateColumns = []string{
	"store_id", "order_number",
	"etiqueta_nome", "etiqueta_endereco", "etiqueta_numero", "etiqueta_bairro",
	"etiqueta_complemento", "etiqueta_municipio", "etiqueta_uf", "etiqueta_cep",
	"updated_at",
}

// ItemsByOrderNumbers returns the items of several orders keyed by order number.
// Orders without items are absent from the map.
func (r *GormOrderRepository) ItemsByOrderNumbers(ctx context.Context, orderNumbers []string) (map[string][]shipping.LineItem, error) {
	out := make(map[string][]shipping.LineItem, len(orderNumbers))
	if len(orderNumbers) == 0 {
		return out, nil
	}

	type row struct {
		OrderNumber string
		models.OrderItemModel
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("orders.order_number, order_items.*").
		Joins("JOIN orders ON orders.order_id = order_items.order_id").
		Where("orders.order_number IN ?", orderNumbers).
		Order("order_items.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].OrderNumber] = append(out[rows[i].OrderNumber], rows[i].ToDomain())
	}
	return out, nil
}

// Ensure GormOrderRepository implements OrderRepository
var _ shipping.OrderRepository = (*GormOrderRepository)(nil)
