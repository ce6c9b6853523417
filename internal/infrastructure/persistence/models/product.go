package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// ProductModel is the persistence model for the Product entity
type ProductModel struct {
	ClientModel
	ChannelID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_products_channel_sku,priority:1"`
	SKU          string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_products_channel_sku,priority:2"`
	ExternalID   string    `gorm:"type:varchar(100)"`
	WarehouseSKU string    `gorm:"type:varchar(100);index"`

	Name              string          `gorm:"type:varchar(255)"`
	Description       string          `gorm:"type:text"`
	Price             decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AvailableQuantity int64           `gorm:"not null;default:0"`
	WeightGrams       int64           `gorm:"not null;default:0"`
	Barcode           string          `gorm:"type:varchar(64)"`

	LastFieldUpdatesJSON string `gorm:"type:jsonb;column:last_field_updates;not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ProductModelFromDomain creates a persistence model from a Product
func ProductModelFromDomain(p *integration.Product) (*ProductModel, error) {
	updates, err := encodeJSON(p.LastFieldUpdates, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode field updates: %w", err)
	}
	return &ProductModel{
		ClientModel:          clientModelFrom(p.ClientEntity),
		ChannelID:            p.ChannelID,
		SKU:                  p.SKU,
		ExternalID:           p.ExternalID,
		WarehouseSKU:         p.WarehouseSKU,
		Name:                 p.Name,
		Description:          p.Description,
		Price:                p.Price,
		AvailableQuantity:    p.AvailableQuantity,
		WeightGrams:          p.WeightGrams,
		Barcode:              p.Barcode,
		LastFieldUpdatesJSON: updates,
	}, nil
}

// ToDomain converts the persistence model to a Product
func (m *ProductModel) ToDomain() (*integration.Product, error) {
	p := &integration.Product{
		ClientEntity:      m.ClientModel.toDomain(),
		ChannelID:         m.ChannelID,
		SKU:               m.SKU,
		ExternalID:        m.ExternalID,
		WarehouseSKU:      m.WarehouseSKU,
		Name:              m.Name,
		Description:       m.Description,
		Price:             m.Price,
		AvailableQuantity: m.AvailableQuantity,
		WeightGrams:       m.WeightGrams,
		Barcode:           m.Barcode,
		LastFieldUpdates:  map[integration.Field]integration.FieldUpdate{},
	}
	if err := decodeJSON(m.LastFieldUpdatesJSON, &p.LastFieldUpdates); err != nil {
		return nil, fmt.Errorf("decode field updates of product %s: %w", m.ID, err)
	}
	return p, nil
}
