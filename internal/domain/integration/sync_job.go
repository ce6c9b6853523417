package integration

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Queue names used by the sync engine
const (
	// QueueWarehouse carries outbound and product propagation to the warehouse
	QueueWarehouse = "warehouse"
	// QueueStorefront carries fulfillment, cancellation and refund propagation to storefronts
	QueueStorefront = "storefront"
	// QueueStorefrontEvents carries webhook notifications waiting to be fetched and applied
	QueueStorefrontEvents = "storefront-events"
	// QueueWarehousePoll carries periodic warehouse status polls
	QueueWarehousePoll = "warehouse-poll"
)

// SyncOperation is the kind of work a sync job performs
type SyncOperation string

const (
	OpCreateOutbound    SyncOperation = "create_outbound"
	OpHoldOutbound      SyncOperation = "hold_outbound"
	OpReleaseOutbound   SyncOperation = "release_outbound"
	OpCancelOutbound    SyncOperation = "cancel_outbound"
	OpPushProduct       SyncOperation = "push_product"
	OpCreateFulfillment SyncOperation = "create_fulfillment"
	OpCancelOrder       SyncOperation = "cancel_order"
	OpCreateRefund      SyncOperation = "create_refund"
	OpOrderEvent        SyncOperation = "order_event"
	OpProductEvent      SyncOperation = "product_event"
	OpPollWarehouse     SyncOperation = "poll_warehouse"
)

// QueueFor returns the queue an operation is dispatched on
func (op SyncOperation) QueueFor() string {
	switch op {
	case OpCreateOutbound, OpHoldOutbound, OpReleaseOutbound, OpCancelOutbound, OpPushProduct:
		return QueueWarehouse
	case OpCreateFulfillment, OpCancelOrder, OpCreateRefund:
		return QueueStorefront
	case OpOrderEvent, OpProductEvent:
		return QueueStorefrontEvents
	case OpPollWarehouse:
		return QueueWarehousePoll
	}
	return ""
}

// SyncJobPayload is the payload of every sync job. EntityID or ExternalID is the natural key
// handlers use to stay idempotent under redelivery.
type SyncJobPayload struct {
	Operation  SyncOperation    `json:"operation"`
	EntityType EntityType       `json:"entity_type,omitempty"`
	EntityID   uuid.UUID        `json:"entity_id,omitempty"`
	ChannelID  uuid.UUID        `json:"channel_id"`
	ExternalID string           `json:"external_id,omitempty"`
	OutboundID string           `json:"outbound_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}
