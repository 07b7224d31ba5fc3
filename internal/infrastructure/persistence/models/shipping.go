package models

import (
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
)

// OrderModel is the persistence model for the orders table. Recipient
// columns keep the carrier's etiqueta_* names.
type OrderModel struct {
	OrderID      int64  `gorm:"primaryKey;autoIncrement:false"`
	StoreID      int64  `gorm:"not null;index"`
	OrderNumber  string `gorm:"size:64;not null;uniqueIndex"`
	Name         string `gorm:"column:etiqueta_nome;size:255"`
	Street       string `gorm:"column:etiqueta_endereco;size:255"`
	Number       string `gorm:"column:etiqueta_numero;size:32"`
	Neighborhood string `gorm:"column:etiqueta_bairro;size:128"`
	Complement   string `gorm:"column:etiqueta_complemento;size:255"`
	City         string `gorm:"column:etiqueta_municipio;size:128"`
	State        string `gorm:"column:etiqueta_uf;size:2"`
	PostalCode   string `gorm:"column:etiqueta_cep;size:16"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts OrderModel to domain Order
func (m *OrderModel) ToDomain() *shipping.Order {
	return &shipping.Order{
		OrderID:     m.OrderID,
		StoreID:     m.StoreID,
		OrderNumber: m.OrderNumber,
		Recipient: shipping.Recipient{
			Name:         m.Name,
			Street:       m.Street,
			Number:       m.Number,
			Neighborhood: m.Neighborhood,
			Complement:   m.Complement,
			City:         m.City,
			State:        m.State,
			PostalCode:   m.PostalCode,
		},
		UpdatedAt: m.UpdatedAt,
	}
}

// OrderModelFromDomain creates an OrderModel from domain Order
func OrderModelFromDomain(o *shipping.Order) *OrderModel {
	r := o.Recipient
	return &OrderModel{
		OrderID:      o.OrderID,
		StoreID:      o.StoreID,
		OrderNumber:  o.OrderNumber,
		Name:         r.Name,
		Street:       r.Street,
		Number:       r.Number,
		Neighborhood: r.Neighborhood,
		Complement:   r.Complement,
		City:         r.City,
		State:        r.State,
		PostalCode:   r.PostalCode,
	}
}

// OrderItemModel is one line of an order
type OrderItemModel struct {
	ID          uint    `gorm:"primaryKey"`
	OrderID     int64   `gorm:"not null;index"`
	SKU         string  `gorm:"column:sku;size:100;not null"`
	Description string  `gorm:"size:500"`
	Quantity    float64 `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts OrderItemModel to domain LineItem
func (m *OrderItemModel) ToDomain() shipping.LineItem {
	return shipping.LineItem{SKU: m.SKU, Description: m.Description, Quantity: m.Quantity}
}

// InvoiceModel is the NF-e linked to an order
type InvoiceModel struct {
	OrderID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Number    string `gorm:"size:32"`
	Series    string `gorm:"size:8"`
	AccessKey string `gorm:"size:64"`
	IssueDate *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts InvoiceModel to domain Invoice
func (m *InvoiceModel) ToDomain() *shipping.Invoice {
	inv := &shipping.Invoice{
		OrderID:   m.OrderID,
		Number:    m.Number,
		Series:    m.Series,
		AccessKey: m.AccessKey,
	}
	if m.IssueDate != nil {
		inv.IssuedAt = *m.IssueDate
	}
	return inv
}

// InvoiceModelFromDomain creates an InvoiceModel from domain Invoice
func InvoiceModelFromDomain(i *shipping.Invoice) *InvoiceModel {
	m := &InvoiceModel{
		OrderID:   i.OrderID,
		Number:    i.Number,
		Series:    i.Series,
		AccessKey: i.AccessKey,
	}
	if !i.IssuedAt.IsZero() {
		t := i.IssuedAt
		m.IssueDate = &t
	}
	return m
}

// LabelRecordModel tracks the carrier label and print history of an order
type LabelRecordModel struct {
	OrderID         int64  `gorm:"primaryKey;autoIncrement:false"`
	StoreID         int64  `gorm:"not null;index"`
	OrderNumber     string `gorm:"size:64;not null;uniqueIndex"`
	LabelID         string `gorm:"size:64"`
	DownloadLink    string `gorm:"type:text"`
	DownloadedState string `gorm:"size:32;not null;default:'';index"`
	LastError       string `gorm:"type:text"`
	PrintCount      int    `gorm:"not null;default:0"`
	PrintState      string `gorm:"size:32;not null;default:''"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for GORM
func (LabelRecordModel) TableName() string {
	return "label_records"
}

// ToDomain converts LabelRecordModel to domain LabelRecord
func (m *LabelRecordModel) ToDomain() *shipping.LabelRecord {
	return &shipping.LabelRecord{
		OrderID:         m.OrderID,
		StoreID:         m.StoreID,
		OrderNumber:     m.OrderNumber,
		LabelID:         m.LabelID,
		DownloadLink:    m.DownloadLink,
		DownloadedState: m.DownloadedState,
		LastError:       m.LastError,
		PrintCount:      m.PrintCount,
		PrintState:      m.PrintState,
		UpdatedAt:       m.UpdatedAt,
	}
}

// LabelRecordModelFromDomain creates a LabelRecordModel from domain LabelRecord
func LabelRecordModelFromDomain(r *shipping.LabelRecord) *LabelRecordModel {
	return &LabelRecordModel{
		OrderID:         r.OrderID,
		StoreID:         r.StoreID,
		OrderNumber:     r.OrderNumber,
		LabelID:         r.LabelID,
		DownloadLink:    r.DownloadLink,
		DownloadedState: r.DownloadedState,
		LastError:       r.LastError,
		PrintCount:      r.PrintCount,
		PrintState:      r.PrintState,
		UpdatedAt:       r.UpdatedAt,
	}
}

// StoreLogoModel holds a store's slip logo, base64 encoded
type StoreLogoModel struct {
	StoreID     int64  `gorm:"primaryKey;autoIncrement:false"`
	ImageBase64 string `gorm:"column:image_base64;type:text;not null"`
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (StoreLogoModel) TableName() string {
	return "store_logos"
}

// All returns every model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&OrderModel{},
		&OrderItemModel{},
		&InvoiceModel{},
		&LabelRecordModel{},
		&StoreLogoModel{},
	}
}
