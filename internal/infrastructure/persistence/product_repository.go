package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductRepository implements ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByID finds a product by its ID
func (r *GormProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Product, error) {
	return r.first(ctx, "id = ?", id)
}

// FindBySKU finds a product by merchant SKU within a channel
func (r *GormProductRepository) FindBySKU(ctx context.Context, channelID uuid.UUID, sku string) (*integration.Product, error) {
	return r.first(ctx, "channel_id = ? AND sku = ?", channelID, sku)
}

// FindByWarehouseSKU finds a product by its warehouse SKU within a channel
func (r *GormProductRepository) FindByWarehouseSKU(ctx context.Context, channelID uuid.UUID, jfsku string) (*integration.Product, error) {
	return r.first(ctx, "channel_id = ? AND warehouse_sku = ?", channelID, jfsku)
}

// ListUnlinked lists products of a channel without a warehouse SKU, ordered by SKU
func (r *GormProductRepository) ListUnlinked(ctx context.Context, channelID uuid.UUID) ([]*integration.Product, error) {
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND (warehouse_sku = '' OR warehouse_sku IS NULL)", channelID).
		Order("sku ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	products := make([]*integration.Product, 0, len(rows))
	for i := range rows {
		p, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// Save inserts or updates a product
func (r *GormProductRepository) Save(ctx context.Context, product *integration.Product) error {
	m, err := models.ProductModelFromDomain(product)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *GormProductRepository) first(ctx context.Context, query string, args ...any) (*integration.Product, error) {
	var m models.ProductModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrProductNotFound
		}
		return nil, err
	}
	return m.ToDomain()
}

// Ensure GormProductRepository implements ProductRepository
var _ integration.ProductRepository = (*GormProductRepository)(nil)
