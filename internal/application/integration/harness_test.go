package integration

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// harness wires the sync services over the in-memory store with one active Shopify channel
type harness struct {
	store     *memStore
	clock     *fakeClock
	channel   *integration.Channel
	conflicts *ConflictService
	orders    *OrderSyncService
	products  *ProductSyncService
}

type harnessOptions struct {
	resolver []integration.ResolverOption
	policy   integration.TestOrderPolicySource
}

type harnessOption func(*harnessOptions)

func withTiePolicy(p integration.TiePolicy) harnessOption {
	return func(o *harnessOptions) { o.resolver = append(o.resolver, integration.WithTiePolicy(p)) }
}

func withPolicy(p integration.TestOrderPolicy) harnessOption {
	return func(o *harnessOptions) { o.policy = integration.StaticTestOrderPolicy(p) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	var o harnessOptions
	for _, opt := range opts {
		opt(&o)
	}

	store := newMemStore()
	clock := newFakeClock()
	channel, err := integration.NewChannel(uuid.New(), "Demo Shop", integration.OriginShopify, "acct-1", clock.Now())
	require.NoError(t, err)
	channel.ShippingMappings["Standard"] = "DHL_PAKET"
	channel.Activate(clock.Now())
	store.addChannel(channel)

	resolver := integration.NewConflictResolver(append(o.resolver, integration.WithResolverClock(clock.Now))...)
	tx := memTxScope{store}
	conflicts := NewConflictService(resolver, tx, memSyncLogs{store}, nil, zap.NewNop()).WithClock(clock.Now)
	enq := memEnqueuer{s: store, now: clock.Now}

	orders := NewOrderSyncService(OrderSyncDeps{
		TxScope:   tx,
		Channels:  memChannels{store},
		Orders:    memOrders{store},
		SyncLogs:  memSyncLogs{store},
		Conflicts: conflicts,
		Jobs:      enq,
		Policy:    o.policy,
	}, time.Minute).WithClock(clock.Now)
	products := NewProductSyncService(ProductSyncDeps{
		TxScope:   tx,
		Channels:  memChannels{store},
		Products:  memProducts{store},
		SyncLogs:  memSyncLogs{store},
		Conflicts: conflicts,
		Jobs:      enq,
	}, time.Minute).WithClock(clock.Now)

	return &harness{
		store:     store,
		clock:     clock,
		channel:   store.channel(channel.ID),
		conflicts: conflicts,
		orders:    orders,
		products:  products,
	}
}

// storefrontOrder builds a Shopify order with random customer data
func (h *harness) storefrontOrder(externalID string) integration.StorefrontOrder {
	return integration.StorefrontOrder{
		ExternalID:      externalID,
		OrderNumber:     "#" + externalID,
		CustomerName:    gofakeit.Name(),
		CustomerEmail:   gofakeit.Email(),
		ShippingAddress: gofakeit.Address().Address,
		TotalAmount:     decimal.RequireFromString("49.90"),
		Currency:        "EUR",
		ShippingMethod:  "Standard",
		Items: []integration.OrderItem{
			{SKU: "SKU-1", Name: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("12.45")},
			{SKU: "SKU-2", Name: "Plate", Quantity: 1, UnitPrice: decimal.RequireFromString("25.00")},
		},
		UpdatedAt: h.clock.Now().Add(-time.Minute),
	}
}

func (h *harness) storefrontProduct(sku string) integration.StorefrontProduct {
	return integration.StorefrontProduct{
		ExternalID:  "gid-" + sku,
		SKU:         sku,
		Name:        gofakeit.ProductName(),
		Description: gofakeit.Sentence(8),
		Price:       decimal.RequireFromString("19.99"),
		WeightGrams: 350,
		UpdatedAt:   h.clock.Now().Add(-time.Minute),
	}
}

// secondChannel registers another active channel for the same client
func (h *harness) secondChannel(t *testing.T, platform integration.Origin) *integration.Channel {
	t.Helper()
	channel, err := integration.NewChannel(h.channel.ClientID, "Second Shop", platform, "acct-2", h.clock.Now())
	require.NoError(t, err)
	channel.ShippingMappings["Standard"] = "DHL_PAKET"
	channel.Activate(h.clock.Now())
	h.store.addChannel(channel)
	return h.store.channel(channel.ID)
}

// importOrder stores an order without propagation or echo checks
func (h *harness) importOrder(t *testing.T, externalID string) *integration.Order {
	t.Helper()
	res, err := h.orders.ImportStorefrontOrder(context.Background(), h.channel, h.storefrontOrder(externalID), h.clock.Now())
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Order
}

// pastEchoWindow moves the clock beyond the echo and conflict windows
func (h *harness) pastEchoWindow() {
	h.clock.Advance(10 * time.Minute)
}
