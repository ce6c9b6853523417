package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// Product is a catalog item mirrored between a storefront and the warehouse.
// SKU is the natural key; WarehouseSKU (JFSKU) is assigned by the warehouse.
type Product struct {
	shared.ClientEntity
	ChannelID    uuid.UUID
	SKU          string
	ExternalID   string
	WarehouseSKU string

	// commerce
	Name        string
	Description string
	Price       decimal.Decimal

	// stock
	AvailableQuantity int64

	// shared
	WeightGrams int64
	Barcode     string

	LastFieldUpdates map[Field]FieldUpdate
}

var productFields = fieldTable[*Product]{
	FieldName: {
		category: CategoryCommerce, kind: KindString,
		get: func(p *Product) FieldValue { return StringValue(p.Name) },
		set: func(p *Product, v FieldValue) { p.Name = v.Str },
	},
	FieldDescription: {
		category: CategoryCommerce, kind: KindString,
		get: func(p *Product) FieldValue { return StringValue(p.Description) },
		set: func(p *Product, v FieldValue) { p.Description = v.Str },
	},
	FieldPrice: {
		category: CategoryCommerce, kind: KindDecimal,
		get: func(p *Product) FieldValue { return DecimalValue(p.Price) },
		set: func(p *Product, v FieldValue) { p.Price = v.Dec },
	},
	FieldAvailableQuantity: {
		category: CategoryStock, kind: KindInt,
		get: func(p *Product) FieldValue { return IntValue(p.AvailableQuantity) },
		set: func(p *Product, v FieldValue) { p.AvailableQuantity = v.Int },
	},
	FieldWeightGrams: {
		category: CategoryShared, kind: KindInt,
		get: func(p *Product) FieldValue { return IntValue(p.WeightGrams) },
		set: func(p *Product, v FieldValue) { p.WeightGrams = v.Int },
	},
	FieldBarcode: {
		category: CategoryShared, kind: KindString,
		get: func(p *Product) FieldValue { return StringValue(p.Barcode) },
		set: func(p *Product, v FieldValue) { p.Barcode = v.Str },
	},
}

// NewProduct creates a product keyed by SKU. Initial values are recorded as written by origin.
func NewProduct(clientID, channelID uuid.UUID, sku string, values map[Field]FieldValue, origin Origin, at, now time.Time) (*Product, error) {
	if sku == "" {
		return nil, ErrProductMissingSKU
	}
	p := &Product{
		ClientEntity:     shared.NewClientEntity(clientID, now),
		ChannelID:        channelID,
		SKU:              sku,
		LastFieldUpdates: make(map[Field]FieldUpdate),
	}
	for f, v := range values {
		if err := p.SetField(f, v); err != nil {
			return nil, err
		}
		p.RecordUpdate(f, FieldUpdate{Origin: origin, At: at})
	}
	return p, nil
}

// SyncEntityType implements Syncable
func (p *Product) SyncEntityType() EntityType { return EntityTypeProduct }

// SyncEntityID implements Syncable
func (p *Product) SyncEntityID() string { return p.ID.String() }

// FieldCategory implements Syncable
func (p *Product) FieldCategory(f Field) (FieldCategory, bool) { return productFields.category(f) }

// GetField implements Syncable
func (p *Product) GetField(f Field) (FieldValue, error) { return productFields.get(p, f) }

// SetField implements Syncable
func (p *Product) SetField(f Field, v FieldValue) error { return productFields.set(p, f, v) }

// LastUpdate implements Syncable
func (p *Product) LastUpdate(f Field) (FieldUpdate, bool) {
	u, ok := p.LastFieldUpdates[f]
	return u, ok
}

// RecordUpdate implements Syncable
func (p *Product) RecordUpdate(f Field, u FieldUpdate) {
	if p.LastFieldUpdates == nil {
		p.LastFieldUpdates = make(map[Field]FieldUpdate)
	}
	p.LastFieldUpdates[f] = u
}

// IsLinked returns true once the product is known to the warehouse
func (p *Product) IsLinked() bool {
	return p.WarehouseSKU != ""
}

// LinkWarehouse stores the warehouse identifier of the product
func (p *Product) LinkWarehouse(jfsku string, now time.Time) {
	p.WarehouseSKU = jfsku
	p.Touch(now)
}
