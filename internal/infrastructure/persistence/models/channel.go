package models

import (
	"fmt"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ChannelModel is the persistence model for the Channel entity
type ChannelModel struct {
	ClientModel
	Name                   string `gorm:"type:varchar(255);not null"`
	Platform               string `gorm:"type:varchar(20);not null"`
	Status                 string `gorm:"type:varchar(20);not null;index"`
	ShippingMappingsJSON   string `gorm:"type:jsonb;column:shipping_mappings;not null"`
	FallbackShippingMethod string `gorm:"type:varchar(100)"`
	WarehouseAccountID     string `gorm:"type:varchar(100)"`
	LastWarehouseSyncAt    *time.Time
}

// TableName returns the table name for GORM
func (ChannelModel) TableName() string {
	return "channels"
}

// ChannelModelFromDomain creates a persistence model from a Channel
func ChannelModelFromDomain(c *integration.Channel) (*ChannelModel, error) {
	mappings, err := encodeJSON(c.ShippingMappings, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode shipping mappings: %w", err)
	}
	return &ChannelModel{
		ClientModel:            clientModelFrom(c.ClientEntity),
		Name:                   c.Name,
		Platform:               string(c.Platform),
		Status:                 string(c.Status),
		ShippingMappingsJSON:   mappings,
		FallbackShippingMethod: c.FallbackShippingMethod,
		WarehouseAccountID:     c.WarehouseAccountID,
		LastWarehouseSyncAt:    c.LastWarehouseSyncAt,
	}, nil
}

// ToDomain converts the persistence model to a Channel
func (m *ChannelModel) ToDomain() (*integration.Channel, error) {
	c := &integration.Channel{
		ClientEntity:           m.ClientModel.toDomain(),
		Name:                   m.Name,
		Platform:               integration.Origin(m.Platform),
		Status:                 integration.ChannelStatus(m.Status),
		ShippingMappings:       map[string]string{},
		FallbackShippingMethod: m.FallbackShippingMethod,
		WarehouseAccountID:     m.WarehouseAccountID,
		LastWarehouseSyncAt:    m.LastWarehouseSyncAt,
	}
	if err := decodeJSON(m.ShippingMappingsJSON, &c.ShippingMappings); err != nil {
		return nil, fmt.Errorf("decode shipping mappings of channel %s: %w", m.ID, err)
	}
	return c, nil
}
