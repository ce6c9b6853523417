package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Storefront Value Objects
// ---------------------------------------------------------------------------

// StorefrontOrder is an order as reported by a storefront platform
type StorefrontOrder struct {
	ExternalID      string          `json:"external_id"`
	OrderNumber     string          `json:"order_number"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	ShippingAddress string          `json:"shipping_address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	ShippingMethod  string          `json:"shipping_method"`
	Tags            []string        `json:"tags"`
	Items           []OrderItem     `json:"items"`
	Cancelled       bool            `json:"cancelled"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CommerceValues returns the storefront-owned values plus shared tags
func (o StorefrontOrder) CommerceValues() map[Field]FieldValue {
	values := map[Field]FieldValue{
		FieldCustomerName:    StringValue(o.CustomerName),
		FieldCustomerEmail:   StringValue(o.CustomerEmail),
		FieldShippingAddress: StringValue(o.ShippingAddress),
		FieldTotalAmount:     DecimalValue(o.TotalAmount),
		FieldCurrency:        StringValue(o.Currency),
		FieldShippingMethod:  StringValue(o.ShippingMethod),
	}
	if o.Tags != nil {
		values[FieldTags] = ListValue(o.Tags)
	}
	return values
}

func (o StorefrontOrder) timestamp(fallback time.Time) time.Time {
	if o.UpdatedAt.IsZero() {
		return fallback
	}
	return o.UpdatedAt
}

// StorefrontProduct is a product as reported by a storefront platform
type StorefrontProduct struct {
	ExternalID  string          `json:"external_id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	WeightGrams int64           `json:"weight_grams"`
	Barcode     string          `json:"barcode"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Values returns the fields a storefront reports for a product
func (p StorefrontProduct) Values() map[Field]FieldValue {
	values := map[Field]FieldValue{
		FieldName:        StringValue(p.Name),
		FieldDescription: StringValue(p.Description),
		FieldPrice:       DecimalValue(p.Price),
	}
	if p.WeightGrams != 0 {
		values[FieldWeightGrams] = IntValue(p.WeightGrams)
	}
	if p.Barcode != "" {
		values[FieldBarcode] = StringValue(p.Barcode)
	}
	return values
}

// FulfillmentRequest asks a storefront to mark an order fulfilled
type FulfillmentRequest struct {
	ExternalOrderID string `json:"external_order_id"`
	Carrier         string `json:"carrier"`
	TrackingNumber  string `json:"tracking_number"`
	NotifyCustomer  bool   `json:"notify_customer"`
}

// RefundRequest asks a storefront to refund an order
type RefundRequest struct {
	ExternalOrderID string          `json:"external_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reason          string          `json:"reason"`
}

// ---------------------------------------------------------------------------
// Warehouse Value Objects
// ---------------------------------------------------------------------------

// OutboundItem is a line of a warehouse outbound
type OutboundItem struct {
	JFSKU    string `json:"jfsku"`
	SKU      string `json:"merchant_sku"`
	Quantity int    `json:"quantity"`
}

// OutboundRequest submits an order for fulfillment
type OutboundRequest struct {
	// MerchantOutboundNumber is our order number, used for linking and duplicate detection
	MerchantOutboundNumber string         `json:"merchant_outbound_number"`
	ShippingMethod         string         `json:"shipping_method"`
	ShippingAddress        string         `json:"shipping_address"`
	CustomerName           string         `json:"customer_name"`
	Priority               int64          `json:"priority"`
	Items                  []OutboundItem `json:"items"`
	Note                   string         `json:"note,omitempty"`
}

// WarehouseOutbound is an outbound as known to the warehouse
type WarehouseOutbound struct {
	OutboundID             string    `json:"outbound_id"`
	MerchantOutboundNumber string    `json:"merchant_outbound_number"`
	Status                 string    `json:"status"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// WarehouseStatusChange is a fulfillment status delta reported by the warehouse
type WarehouseStatusChange struct {
	OutboundID             string    `json:"outbound_id"`
	MerchantOutboundNumber string    `json:"merchant_outbound_number"`
	Status                 string    `json:"status"`
	Carrier                string    `json:"carrier,omitempty"`
	TrackingNumber         string    `json:"tracking_number,omitempty"`
	ChangedAt              time.Time `json:"changed_at"`
}

// ShippingNotification announces that parcels left the warehouse
type ShippingNotification struct {
	OutboundID     string    `json:"outbound_id"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	ShippedAt      time.Time `json:"shipped_at"`
}

// WarehouseProduct is a product as known to the warehouse
type WarehouseProduct struct {
	JFSKU       string          `json:"jfsku"`
	SKU         string          `json:"merchant_sku"`
	Name        string          `json:"name"`
	Barcode     string          `json:"ean,omitempty"`
	WeightGrams int64           `json:"weight_grams,omitempty"`
	NetPrice    decimal.Decimal `json:"net_price"`
}

// StockLevel is the warehouse stock of one product
type StockLevel struct {
	JFSKU     string    `json:"jfsku"`
	SKU       string    `json:"merchant_sku"`
	Available int64     `json:"stock_level_available"`
	At        time.Time `json:"at"`
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// StorefrontAdapter talks to one storefront platform. Implementations live in the
// infrastructure layer and are only called from queue handlers and pipeline steps.
type StorefrontAdapter interface {
	// Platform returns the storefront this adapter handles
	Platform() Origin

	GetOrder(ctx context.Context, channel *Channel, externalID string) (*StorefrontOrder, error)
	ListOrders(ctx context.Context, channel *Channel, since *time.Time) ([]StorefrontOrder, error)
	GetProduct(ctx context.Context, channel *Channel, externalID string) (*StorefrontProduct, error)
	ListProducts(ctx context.Context, channel *Channel) ([]StorefrontProduct, error)

	CreateFulfillment(ctx context.Context, channel *Channel, req FulfillmentRequest) error
	CancelOrder(ctx context.Context, channel *Channel, externalID, reason string) error
	CreateRefund(ctx context.Context, channel *Channel, req RefundRequest) error
}

// StorefrontRegistry returns the adapter for a platform
type StorefrontRegistry interface {
	Storefront(platform Origin) (StorefrontAdapter, error)
}

// WarehouseAdapter talks to the fulfillment warehouse on behalf of an account.
// CreateProduct returns ErrDuplicate when the merchant SKU already exists.
type WarehouseAdapter interface {
	CreateOutbound(ctx context.Context, accountID string, req OutboundRequest) (string, error)
	HoldOutbound(ctx context.Context, accountID, outboundID, reason string) error
	ReleaseOutbound(ctx context.Context, accountID, outboundID string) error
	CancelOutbound(ctx context.Context, accountID, outboundID string) error
	ListOutbounds(ctx context.Context, accountID string, since *time.Time) ([]WarehouseOutbound, error)
	PollStatusChanges(ctx context.Context, accountID string, since time.Time) ([]WarehouseStatusChange, error)
	GetShippingNotifications(ctx context.Context, accountID string, since time.Time) ([]ShippingNotification, error)

	ListProducts(ctx context.Context, accountID string) ([]WarehouseProduct, error)
	CreateProduct(ctx context.Context, accountID string, product WarehouseProduct) (string, error)
	FindProductBySKU(ctx context.Context, accountID, sku string) (*WarehouseProduct, error)
	GetStockLevels(ctx context.Context, accountID string) ([]StockLevel, error)
}
