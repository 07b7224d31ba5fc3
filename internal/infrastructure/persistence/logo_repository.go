package persistence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLogoRepository implements LogoRepository using GORM
type GormLogoRepository struct {
	db *gorm.DB
}

// NewGormLogoRepository creates a new GormLogoRepository
func NewGormLogoRepository(db *gorm.DB) *GormLogoRepository {
	return &GormLogoRepository{db: db}
}

// FindByStore returns the decoded logo of a store. Values stored as data
// URLs ("data:image/png;base64,...") are accepted.
func (r *GormLogoRepository) FindByStore(ctx context.Context, storeID int64) ([]byte, error) {
	var model models.StoreLogoModel
	if err := r.db.WithContext(ctx).Where("store_id = ?", storeID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: logo of store %d", shipping.ErrNotFound, storeID)
		}
		return nil, err
	}

	return decodeLogo(model)
}

// FindByOrderNumber returns the logo of the store that owns orderNumber
func (r *GormLogoRepository) FindByOrderNumber(ctx context.Context, orderNumber string) ([]byte, error) {
	var model models.StoreLogoModel
	err := r.db.WithContext(ctx).
		Joins("JOIN label_records ON label_records.store_id = store_logos.store_id").
		Where("label_records.order_number = ?", orderNumber).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: logo for order %s", shipping.ErrNotFound, orderNumber)
		}
		return nil, err
	}
	return decodeLogo(model)
}

func decodeLogo(model models.StoreLogoModel) ([]byte, error) {
	encoded := model.ImageBase64
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	img, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: logo of store %d is not valid base64: %v", shipping.ErrFormat, model.StoreID, err)
	}
	return img, nil
}

// Save stores the logo of a store, replacing any previous one
func (r *GormLogoRepository) Save(ctx context.Context, storeID int64, image []byte) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"image_base64", "updated_at"}),
		}).
		Create(&models.StoreLogoModel{
			StoreID:     storeID,
			ImageBase64: base64.StdEncoding.EncodeToString(image),
			UpdatedAt:   time.Now(),
		}).Error
}

// Ensure GormLogoRepository implements LogoRepository
var _ shipping.LogoRepository = (*GormLogoRepository)(nil)
