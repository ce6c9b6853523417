package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// ChannelStatus represents whether a storefront channel is live
type ChannelStatus string

const (
	ChannelStatusPending ChannelStatus = "PENDING"
	ChannelStatusActive  ChannelStatus = "ACTIVE"
)

// Channel is one storefront connected to the warehouse account of a client
type Channel struct {
	shared.ClientEntity
	Name     string
	Platform Origin
	Status   ChannelStatus

	// ShippingMappings maps storefront shipping method names to warehouse methods
	ShippingMappings       map[string]string
	FallbackShippingMethod string

	WarehouseAccountID  string
	LastWarehouseSyncAt *time.Time
}

// NewChannel creates a pending channel
func NewChannel(clientID uuid.UUID, name string, platform Origin, warehouseAccountID string, now time.Time) (*Channel, error) {
	if !platform.IsStorefront() {
		return nil, ErrPlatformNotConfigured
	}
	return &Channel{
		ClientEntity:       shared.NewClientEntity(clientID, now),
		Name:               name,
		Platform:           platform,
		Status:             ChannelStatusPending,
		ShippingMappings:   make(map[string]string),
		WarehouseAccountID: warehouseAccountID,
	}, nil
}

// ResolveShippingMethod maps a storefront method to a warehouse method.
// Matching ignores case and surrounding whitespace; the fallback is used when no mapping exists.
func (c *Channel) ResolveShippingMethod(method string) (string, bool) {
	key := strings.TrimSpace(method)
	for from, to := range c.ShippingMappings {
		if strings.EqualFold(strings.TrimSpace(from), key) {
			return to, true
		}
	}
	if c.FallbackShippingMethod != "" {
		return c.FallbackShippingMethod, true
	}
	return "", false
}

// IsActive returns true once the channel finished its first data pull
func (c *Channel) IsActive() bool {
	return c.Status == ChannelStatusActive
}

// Activate marks the channel live
func (c *Channel) Activate(now time.Time) {
	c.Status = ChannelStatusActive
	c.Touch(now)
}

// RecordWarehouseSync advances the warehouse polling watermark. It never moves backwards.
func (c *Channel) RecordWarehouseSync(at time.Time) {
	if c.LastWarehouseSyncAt != nil && !at.After(*c.LastWarehouseSyncAt) {
		return
	}
	c.LastWarehouseSyncAt = &at
	c.Touch(at)
}
