package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormChannelRepository implements ChannelRepository using GORM
type GormChannelRepository struct {
	db *gorm.DB
}

// NewGormChannelRepository creates a new GormChannelRepository
func NewGormChannelRepository(db *gorm.DB) *GormChannelRepository {
	return &GormChannelRepository{db: db}
}

// FindByID finds a channel by its ID
func (r *GormChannelRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Channel, error) {
	var m models.ChannelModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrChannelNotFound
		}
		return nil, err
	}
	return m.ToDomain()
}

// ListActive lists channels that finished onboarding
func (r *GormChannelRepository) ListActive(ctx context.Context) ([]*integration.Channel, error) {
	var rows []models.ChannelModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", integration.ChannelStatusActive).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	channels := make([]*integration.Channel, 0, len(rows))
	for i := range rows {
		c, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, nil
}

// Save inserts or updates a channel
func (r *GormChannelRepository) Save(ctx context.Context, channel *integration.Channel) error {
	m, err := models.ChannelModelFromDomain(channel)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(m).Error
}

// Ensure GormChannelRepository implements ChannelRepository
var _ integration.ChannelRepository = (*GormChannelRepository)(nil)
