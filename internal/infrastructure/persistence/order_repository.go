package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Order, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByExternalID finds an order by its storefront id within a channel
func (r *GormOrderRepository) FindByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (*integration.Order, error) {
	return r.first(ctx, "channel_id = ? AND external_id = ?", channelID, externalID)
}

// FindByOutboundID finds the order linked to a warehouse outbound
func (r *GormOrderRepository) FindByOutboundID(ctx context.Context, outboundID string) (*integration.Order, error) {
	return r.first(ctx, "warehouse_outbound_id = ?", outboundID)
}

// ListWithoutOutbound lists open orders of a channel that were never submitted to the warehouse
func (r *GormOrderRepository) ListWithoutOutbound(ctx context.Context, channelID uuid.UUID) ([]*integration.Order, error) {
	var rows []models.OrderModel
	if err := r.db.WithContext(ctx).
		Where("channel_id = ? AND (warehouse_outbound_id = '' OR warehouse_outbound_id IS NULL)", channelID).
		Where("status = ?", integration.OrderStatusOpen).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	orders := make([]*integration.Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// Save inserts or updates an order
func (r *GormOrderRepository) Save(ctx context.Context, order *integration.Order) error {
	m, err := models.OrderModelFromDomain(order)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *GormOrderRepository) first(ctx context.Context, query string, args ...any) (*integration.Order, error) {
	var m models.OrderModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrOrderNotFound
		}
		return nil, err
	}
	return m.ToDomain()
}

// Ensure GormOrderRepository implements OrderRepository
var _ integration.OrderRepository = (*GormOrderRepository)(nil)
