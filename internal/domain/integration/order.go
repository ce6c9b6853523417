package integration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// OrderStatus
// ---------------------------------------------------------------------------

// OrderStatus represents the lifecycle state of a synced order
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusOnHold    OrderStatus = "ON_HOLD"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusSplit     OrderStatus = "SPLIT"
	OrderStatusShipped   OrderStatus = "SHIPPED"
)

// IsFinal returns true if no further transitions are possible
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusCancelled || s == OrderStatusSplit || s == OrderStatusShipped
}

// Fulfillment states written to FieldFulfillmentState
const (
	FulfillmentPending   = "PENDING"
	FulfillmentPicking   = "PICKING"
	FulfillmentPacked    = "PACKED"
	FulfillmentShipped   = "SHIPPED"
	FulfillmentDelivered = "DELIVERED"
	FulfillmentCancelled = "CANCELLED"
)

// Hold reasons
const (
	HoldReasonUnmappedShipping = "unmapped_shipping_method"
	HoldReasonOperator         = "operator"
)

// OrderItem is a line of an order
type OrderItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity times unit price
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ---------------------------------------------------------------------------
// Order Entity
// ---------------------------------------------------------------------------

// Order is an order jointly owned by the storefront, operations and the warehouse.
// Only a storefront event may create one.
type Order struct {
	shared.ClientEntity
	ChannelID   uuid.UUID
	Platform    Origin
	ExternalID  string
	OrderNumber string
	Status      OrderStatus
	HoldReason  string

	// IsTest orders never reach the warehouse; TestRule names the policy rule that matched
	IsTest   bool
	TestRule string

	ParentOrderID           *uuid.UUID
	WarehouseOutboundID     string
	WarehouseShippingMethod string
	Items                   []OrderItem

	// commerce
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	TotalAmount     decimal.Decimal
	Currency        string
	ShippingMethod  string

	// ops
	FulfillmentState string
	Carrier          string
	TrackingNumber   string
	InternalNotes    string
	Priority         int64

	// shared
	Tags []string

	LastFieldUpdates map[Field]FieldUpdate
}

var orderFields = fieldTable[*Order]{
	FieldCustomerName: {
		category: CategoryCommerce, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.CustomerName) },
		set: func(o *Order, v FieldValue) { o.CustomerName = v.Str },
	},
	FieldCustomerEmail: {
		category: CategoryCommerce, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.CustomerEmail) },
		set: func(o *Order, v FieldValue) { o.CustomerEmail = v.Str },
	},
	FieldShippingAddress: {
		category: CategoryCommerce, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.ShippingAddress) },
		set: func(o *Order, v FieldValue) { o.ShippingAddress = v.Str },
	},
	FieldTotalAmount: {
		category: CategoryCommerce, kind: KindDecimal,
		get: func(o *Order) FieldValue { return DecimalValue(o.TotalAmount) },
		set: func(o *Order, v FieldValue) { o.TotalAmount = v.Dec },
	},
	FieldCurrency: {
		category: CategoryCommerce, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.Currency) },
		set: func(o *Order, v FieldValue) { o.Currency = v.Str },
	},
	FieldShippingMethod: {
		category: CategoryCommerce, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.ShippingMethod) },
		set: func(o *Order, v FieldValue) { o.ShippingMethod = v.Str },
	},
	FieldFulfillmentState: {
		category: CategoryOps, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.FulfillmentState) },
		set: func(o *Order, v FieldValue) { o.FulfillmentState = v.Str },
	},
	FieldCarrier: {
		category: CategoryOps, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.Carrier) },
		set: func(o *Order, v FieldValue) { o.Carrier = v.Str },
	},
	FieldTrackingNumber: {
		category: CategoryOps, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.TrackingNumber) },
		set: func(o *Order, v FieldValue) { o.TrackingNumber = v.Str },
	},
	FieldInternalNotes: {
		category: CategoryOps, kind: KindString,
		get: func(o *Order) FieldValue { return StringValue(o.InternalNotes) },
		set: func(o *Order, v FieldValue) { o.InternalNotes = v.Str },
	},
	FieldPriority: {
		category: CategoryOps, kind: KindInt,
		get: func(o *Order) FieldValue { return IntValue(o.Priority) },
		set: func(o *Order, v FieldValue) { o.Priority = v.Int },
	},
	FieldTags: {
		category: CategoryShared, kind: KindList,
		get: func(o *Order) FieldValue { return ListValue(o.Tags) },
		set: func(o *Order, v FieldValue) { o.Tags = ListValue(v.List).List },
	},
}

// NewOrderFromStorefront creates an order from a storefront event.
// The creating origin must be a storefront.
func NewOrderFromStorefront(clientID, channelID uuid.UUID, origin Origin, src StorefrontOrder, now time.Time) (*Order, error) {
	if !origin.IsStorefront() {
		return nil, ErrCreationNotAllowed
	}
	if src.ExternalID == "" {
		return nil, ErrOrderMissingExternalID
	}

	o := &Order{
		ClientEntity:     shared.NewClientEntity(clientID, now),
		ChannelID:        channelID,
		Platform:         origin,
		ExternalID:       src.ExternalID,
		OrderNumber:      src.OrderNumber,
		Status:           OrderStatusOpen,
		Items:            append([]OrderItem(nil), src.Items...),
		FulfillmentState: FulfillmentPending,
		LastFieldUpdates: make(map[Field]FieldUpdate),
	}

	stamp := FieldUpdate{Origin: origin, At: src.timestamp(now)}
	for f, v := range src.CommerceValues() {
		if err := o.SetField(f, v); err != nil {
			return nil, fmt.Errorf("set %s: %w", f, err)
		}
		o.RecordUpdate(f, stamp)
	}
	o.RecordUpdate(FieldFulfillmentState, FieldUpdate{Origin: OriginSystem, At: now})
	return o, nil
}

// SyncEntityType implements Syncable
func (o *Order) SyncEntityType() EntityType { return EntityTypeOrder }

// SyncEntityID implements Syncable
func (o *Order) SyncEntityID() string { return o.ID.String() }

// FieldCategory implements Syncable
func (o *Order) FieldCategory(f Field) (FieldCategory, bool) { return orderFields.category(f) }

// GetField implements Syncable
func (o *Order) GetField(f Field) (FieldValue, error) { return orderFields.get(o, f) }

// SetField implements Syncable
func (o *Order) SetField(f Field, v FieldValue) error { return orderFields.set(o, f, v) }

// LastUpdate implements Syncable
func (o *Order) LastUpdate(f Field) (FieldUpdate, bool) {
	u, ok := o.LastFieldUpdates[f]
	return u, ok
}

// RecordUpdate implements Syncable
func (o *Order) RecordUpdate(f Field, u FieldUpdate) {
	if o.LastFieldUpdates == nil {
		o.LastFieldUpdates = make(map[Field]FieldUpdate)
	}
	o.LastFieldUpdates[f] = u
}

// HasOutbound returns true once the order was submitted to the warehouse
func (o *Order) HasOutbound() bool {
	return o.WarehouseOutboundID != ""
}

// CanPropagateToWarehouse returns true when warehouse jobs may be enqueued for the order
func (o *Order) CanPropagateToWarehouse() bool {
	return !o.IsTest && o.Status == OrderStatusOpen
}

// MarkTest flags the order as a test order
func (o *Order) MarkTest(rule string) {
	o.IsTest = true
	o.TestRule = rule
}

// Hold puts the order on hold
func (o *Order) Hold(reason string, now time.Time) error {
	if o.Status == OrderStatusOnHold {
		return ErrOrderAlreadyOnHold
	}
	if o.Status != OrderStatusOpen {
		return ErrOrderInvalidTransition
	}
	o.Status = OrderStatusOnHold
	o.HoldReason = reason
	o.Touch(now)
	return nil
}

// Release lifts a hold. An order whose shipping method is still unmapped stays on hold.
func (o *Order) Release(now time.Time) error {
	if o.Status != OrderStatusOnHold {
		return ErrOrderNotOnHold
	}
	if o.WarehouseShippingMethod == "" {
		return ErrShippingMethodUnmapped
	}
	o.Status = OrderStatusOpen
	o.HoldReason = ""
	o.Touch(now)
	return nil
}

// Cancel cancels an open or held order
func (o *Order) Cancel(now time.Time) error {
	if o.Status != OrderStatusOpen && o.Status != OrderStatusOnHold {
		return ErrOrderInvalidTransition
	}
	o.Status = OrderStatusCancelled
	o.HoldReason = ""
	o.FulfillmentState = FulfillmentCancelled
	o.RecordUpdate(FieldFulfillmentState, FieldUpdate{Origin: OriginOps, At: now})
	o.Touch(now)
	return nil
}

// MarkShipped records that the warehouse shipped the order
func (o *Order) MarkShipped(now time.Time) {
	if o.Status == OrderStatusOpen || o.Status == OrderStatusOnHold {
		o.Status = OrderStatusShipped
		o.HoldReason = ""
		o.Touch(now)
	}
}

// SplitPart describes the items of one child order
type SplitPart struct {
	Items []SplitItem `json:"items"`
}

// SplitItem is a SKU quantity assigned to a split part
type SplitItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Split divides the order into child orders. The parts must account for every item
// quantity exactly. Splitting is only possible before the warehouse received the order
// or while it is on hold.
func (o *Order) Split(parts []SplitPart, now time.Time) ([]*Order, error) {
	if o.Status != OrderStatusOpen && o.Status != OrderStatusOnHold {
		return nil, ErrOrderInvalidTransition
	}
	if o.HasOutbound() && o.Status != OrderStatusOnHold {
		return nil, ErrSplitNotAllowed
	}
	if len(parts) < 2 {
		return nil, ErrInvalidSplit
	}

	remaining := make(map[string]int, len(o.Items))
	bySKU := make(map[string]OrderItem, len(o.Items))
	for _, item := range o.Items {
		remaining[item.SKU] += item.Quantity
		bySKU[item.SKU] = item
	}

	children := make([]*Order, 0, len(parts))
	for i, part := range parts {
		if len(part.Items) == 0 {
			return nil, ErrInvalidSplit
		}
		child := o.newChild(i+1, now)
		total := decimal.Zero
		for _, si := range part.Items {
			src, ok := bySKU[si.SKU]
			if !ok || si.Quantity <= 0 || remaining[si.SKU] < si.Quantity {
				return nil, ErrInvalidSplit
			}
			remaining[si.SKU] -= si.Quantity
			line := OrderItem{SKU: si.SKU, Name: src.Name, Quantity: si.Quantity, UnitPrice: src.UnitPrice}
			child.Items = append(child.Items, line)
			total = total.Add(line.LineTotal())
		}
		child.TotalAmount = total
		children = append(children, child)
	}
	for _, qty := range remaining {
		if qty != 0 {
			return nil, ErrInvalidSplit
		}
	}

	o.Status = OrderStatusSplit
	o.Touch(now)
	return children, nil
}

func (o *Order) newChild(index int, now time.Time) *Order {
	parentID := o.ID
	child := &Order{
		ClientEntity:            shared.NewClientEntity(o.ClientID, now),
		ChannelID:               o.ChannelID,
		Platform:                o.Platform,
		ExternalID:              fmt.Sprintf("%s#%d", o.ExternalID, index),
		OrderNumber:             fmt.Sprintf("%s-%d", o.OrderNumber, index),
		Status:                  o.Status,
		HoldReason:              o.HoldReason,
		IsTest:                  o.IsTest,
		TestRule:                o.TestRule,
		ParentOrderID:           &parentID,
		WarehouseShippingMethod: o.WarehouseShippingMethod,
		CustomerName:            o.CustomerName,
		CustomerEmail:           o.CustomerEmail,
		ShippingAddress:         o.ShippingAddress,
		Currency:                o.Currency,
		ShippingMethod:          o.ShippingMethod,
		FulfillmentState:        FulfillmentPending,
		Carrier:                 o.Carrier,
		InternalNotes:           o.InternalNotes,
		Priority:                o.Priority,
		Tags:                    append([]string(nil), o.Tags...),
		LastFieldUpdates:        make(map[Field]FieldUpdate, len(o.LastFieldUpdates)),
	}
	for f, u := range o.LastFieldUpdates {
		child.LastFieldUpdates[f] = u
	}
	return child
}
