package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

func newTestWoo(t *testing.T, handler http.HandlerFunc) *WooCommerceAdapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck_1", key)
		assert.Equal(t, "cs_1", secret)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	a, err := NewWooCommerceAdapter(config.StorefrontConfig{BaseURL: server.URL, APIToken: "ck_1:cs_1"}, server.Client())
	require.NoError(t, err)
	return a
}

func TestNewWooCommerceAdapter(t *testing.T) {
	for _, token := range []string{"", "ck_only", ":cs", "ck:"} {
		_, err := NewWooCommerceAdapter(config.StorefrontConfig{BaseURL: "https://shop.test", APIToken: token}, nil)
		assert.ErrorIs(t, err, ErrWooConfigInvalidToken, token)
	}
}

func TestWooCommerceAdapter_ListOrders(t *testing.T) {
	since := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pages := 0
	a := newTestWoo(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		assert.Equal(t, "/wp-json/wc/v3/orders", r.URL.Path)
		assert.Equal(t, "2026-05-01T12:00:00", r.URL.Query().Get("modified_after"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		w.Header().Set("X-WP-TotalPages", "2")
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(`[{
				"id": 55, "number": "55", "status": "processing", "currency": "EUR", "total": "30.00",
				"date_modified_gmt": "2026-05-02T09:30:00",
				"billing": {"first_name": "Grace", "last_name": "Hopper", "address_1": "Bill St 2", "city": "Köln", "postcode": "50667", "country": "DE", "email": "grace@example.com"},
				"shipping": {"first_name": "Grace", "last_name": "Hopper", "address_1": "Ship St 3", "city": "Bonn", "postcode": "53111", "country": "DE"},
				"shipping_lines": [{"method_title": "Express"}],
				"line_items": [{"sku": "SKU-9", "name": "Lamp", "quantity": 1, "price": 30}],
				"meta_data": [{"key": "_tags", "value": "b2b"}]
			}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id": 56, "status": "cancelled"}]`))
	})

	orders, err := a.ListOrders(context.Background(), nil, &since)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	require.Len(t, orders, 2)

	o := orders[0]
	assert.Equal(t, "55", o.ExternalID)
	assert.Equal(t, "#55", o.OrderNumber)
	assert.Equal(t, "Grace Hopper", o.CustomerName)
	assert.Equal(t, "grace@example.com", o.CustomerEmail)
	assert.Equal(t, "Ship St 3, 53111 Bonn, DE", o.ShippingAddress)
	assert.Equal(t, "Express", o.ShippingMethod)
	assert.Equal(t, []string{"b2b"}, o.Tags)
	assert.Equal(t, time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC), o.UpdatedAt)
	require.Len(t, o.Items, 1)
	assert.True(t, decimal.NewFromInt(30).Equal(o.Items[0].UnitPrice))

	assert.Equal(t, "#56", orders[1].OrderNumber)
	assert.True(t, orders[1].Cancelled)
}

func TestWooCommerceAdapter_ListProducts(t *testing.T) {
	a := newTestWoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 9, "name": "Lamp", "sku": "SKU-9", "regular_price": "30.00", "weight": "1.25", "global_unique_id": "4006"}]`))
	})

	products, err := a.ListProducts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "9", products[0].ExternalID)
	assert.Equal(t, int64(1250), products[0].WeightGrams)
	assert.Equal(t, "4006", products[0].Barcode)
}

func TestWooCommerceAdapter_Writes(t *testing.T) {
	ctx := context.Background()
	var got wooStatusUpdate
	a := newTestWoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/wp-json/wc/v3/orders/55", r.URL.Path)
		got = wooStatusUpdate{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, a.CreateFulfillment(ctx, nil, integration.FulfillmentRequest{ExternalOrderID: "55", Carrier: "DHL", TrackingNumber: "TRK"}))
	assert.Equal(t, "completed", got.Status)
	require.Len(t, got.MetaData, 2)
	assert.Equal(t, "TRK", got.MetaData[0].Value)

	require.NoError(t, a.CancelOrder(ctx, nil, "55", "customer request"))
	assert.Equal(t, "cancelled", got.Status)
	assert.Equal(t, "customer request", got.CustomerNote)
}
