package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// OrderModel is the persistence model for the Order entity
type OrderModel struct {
	ClientModel
	ChannelID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_orders_channel_external,priority:1"`
	Platform    string    `gorm:"type:varchar(20);not null"`
	ExternalID  string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_orders_channel_external,priority:2"`
	OrderNumber string    `gorm:"type:varchar(100)"`
	Status      string    `gorm:"type:varchar(20);not null;index"`
	HoldReason  string    `gorm:"type:varchar(100)"`
	IsTest      bool      `gorm:"not null;default:false"`
	TestRule    string    `gorm:"type:varchar(255)"`

	ParentOrderID           *uuid.UUID `gorm:"type:uuid;index"`
	WarehouseOutboundID     string     `gorm:"type:varchar(100);index"`
	WarehouseShippingMethod string     `gorm:"type:varchar(100)"`
	ItemsJSON               string     `gorm:"type:jsonb;column:items;not null"`

	CustomerName    string          `gorm:"type:varchar(255)"`
	CustomerEmail   string          `gorm:"type:varchar(255)"`
	ShippingAddress string          `gorm:"type:text"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency        string          `gorm:"type:varchar(3)"`
	ShippingMethod  string          `gorm:"type:varchar(100)"`

	FulfillmentState string `gorm:"type:varchar(30)"`
	Carrier          string `gorm:"type:varchar(100)"`
	TrackingNumber   string `gorm:"type:varchar(100)"`
	InternalNotes    string `gorm:"type:text"`
	Priority         int64  `gorm:"not null;default:0"`

	TagsJSON             string `gorm:"type:jsonb;column:tags;not null"`
	LastFieldUpdatesJSON string `gorm:"type:jsonb;column:last_field_updates;not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderModelFromDomain creates a persistence model from an Order
func OrderModelFromDomain(o *integration.Order) (*OrderModel, error) {
	items, err := encodeJSON(o.Items, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}
	tags, err := encodeJSON(o.Tags, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode order tags: %w", err)
	}
	updates, err := encodeJSON(o.LastFieldUpdates, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode field updates: %w", err)
	}
	return &OrderModel{
		ClientModel:             clientModelFrom(o.ClientEntity),
		ChannelID:               o.ChannelID,
		Platform:                string(o.Platform),
		ExternalID:              o.ExternalID,
		OrderNumber:             o.OrderNumber,
		Status:                  string(o.Status),
		HoldReason:              o.HoldReason,
		IsTest:                  o.IsTest,
		TestRule:                o.TestRule,
		ParentOrderID:           o.ParentOrderID,
		WarehouseOutboundID:     o.WarehouseOutboundID,
		WarehouseShippingMethod: o.WarehouseShippingMethod,
		ItemsJSON:               items,
		CustomerName:            o.CustomerName,
		CustomerEmail:           o.CustomerEmail,
		ShippingAddress:         o.ShippingAddress,
		TotalAmount:             o.TotalAmount,
		Currency:                o.Currency,
		ShippingMethod:          o.ShippingMethod,
		FulfillmentState:        o.FulfillmentState,
		Carrier:                 o.Carrier,
		TrackingNumber:          o.TrackingNumber,
		InternalNotes:           o.InternalNotes,
		Priority:                o.Priority,
		TagsJSON:                tags,
		LastFieldUpdatesJSON:    updates,
	}, nil
}

// ToDomain converts the persistence model to an Order
func (m *OrderModel) ToDomain() (*integration.Order, error) {
	o := &integration.Order{
		ClientEntity:            m.ClientModel.toDomain(),
		ChannelID:               m.ChannelID,
		Platform:                integration.Origin(m.Platform),
		ExternalID:              m.ExternalID,
		OrderNumber:             m.OrderNumber,
		Status:                  integration.OrderStatus(m.Status),
		HoldReason:              m.HoldReason,
		IsTest:                  m.IsTest,
		TestRule:                m.TestRule,
		ParentOrderID:           m.ParentOrderID,
		WarehouseOutboundID:     m.WarehouseOutboundID,
		WarehouseShippingMethod: m.WarehouseShippingMethod,
		CustomerName:            m.CustomerName,
		CustomerEmail:           m.CustomerEmail,
		ShippingAddress:         m.ShippingAddress,
		TotalAmount:             m.TotalAmount,
		Currency:                m.Currency,
		ShippingMethod:          m.ShippingMethod,
		FulfillmentState:        m.FulfillmentState,
		Carrier:                 m.Carrier,
		TrackingNumber:          m.TrackingNumber,
		InternalNotes:           m.InternalNotes,
		Priority:                m.Priority,
		LastFieldUpdates:        map[integration.Field]integration.FieldUpdate{},
	}
	if err := decodeJSON(m.ItemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", m.ID, err)
	}
	if err := decodeJSON(m.TagsJSON, &o.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of order %s: %w", m.ID, err)
	}
	if err := decodeJSON(m.LastFieldUpdatesJSON, &o.LastFieldUpdates); err != nil {
		return nil, fmt.Errorf("decode field updates of order %s: %w", m.ID, err)
	}
	return o, nil
}
