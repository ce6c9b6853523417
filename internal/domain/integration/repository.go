package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderRepository persists orders
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// FindByExternalID looks an order up by its storefront natural key
	FindByExternalID(ctx context.Context, channelID uuid.UUID, externalID string) (*Order, error)
	FindByOutboundID(ctx context.Context, outboundID string) (*Order, error)
	// ListWithoutOutbound lists orders of a channel not yet linked to a warehouse outbound
	ListWithoutOutbound(ctx context.Context, channelID uuid.UUID) ([]*Order, error)
	Save(ctx context.Context, order *Order) error
}

// ProductRepository persists products
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindBySKU(ctx context.Context, channelID uuid.UUID, sku string) (*Product, error)
	FindByWarehouseSKU(ctx context.Context, channelID uuid.UUID, jfsku string) (*Product, error)
	// ListUnlinked lists products of a channel without a warehouse SKU
	ListUnlinked(ctx context.Context, channelID uuid.UUID) ([]*Product, error)
	Save(ctx context.Context, product *Product) error
}

// ChannelRepository persists channels
type ChannelRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Channel, error)
	ListActive(ctx context.Context) ([]*Channel, error)
	Save(ctx context.Context, channel *Channel) error
}

// SyncLogRepository persists the audit trail
type SyncLogRepository interface {
	Save(ctx context.Context, entries ...*SyncLogEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLogEntry, error)
	// ExistsForExternalIDSince reports whether any record for the external id of the
	// given entity type was written on the channel at or after since. External ids are
	// only unique per channel and entity type.
	ExistsForExternalIDSince(ctx context.Context, channelID uuid.UUID, entityType EntityType, externalID string, since time.Time) (bool, error)
	// FindUnresolvedConflicts lists conflicts awaiting review, optionally for one client
	FindUnresolvedConflicts(ctx context.Context, entityType EntityType, clientID *uuid.UUID) ([]*SyncLogEntry, error)
	// MarkResolved persists the resolve transition of a conflict entry
	MarkResolved(ctx context.Context, entry *SyncLogEntry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]*SyncLogEntry, error)
}
