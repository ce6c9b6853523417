package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
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

const shopifyPrefix = "/admin/api/" + ShopifyAPIVersion

func newTestShopify(t *testing.T, handler http.HandlerFunc) *ShopifyAdapter {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	a, err := NewShopifyAdapter(config.StorefrontConfig{BaseURL: server.URL, APIToken: "shpat_test", Timeout: 5 * time.Second}, server.Client())
	require.NoError(t, err)
	return a
}

func TestNewShopifyAdapter(t *testing.T) {
	_, err := NewShopifyAdapter(config.StorefrontConfig{APIToken: "x"}, nil)
	assert.ErrorIs(t, err, integration.ErrPlatformNotConfigured)

	_, err = NewShopifyAdapter(config.StorefrontConfig{BaseURL: "https://shop.test"}, nil)
	assert.ErrorIs(t, err, ErrShopifyConfigMissingToken)

	a, err := NewShopifyAdapter(config.StorefrontConfig{BaseURL: "https://shop.test", APIToken: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, integration.OriginShopify, a.Platform())
}

func TestShopifyAdapter_ListOrders(t *testing.T) {
	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var serverURL string
	calls := 0
	a := newTestShopify(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, shopifyPrefix+"/orders.json", r.URL.Path)
		if r.URL.Query().Get("page_info") == "" {
			assert.Equal(t, "any", r.URL.Query().Get("status"))
			assert.Equal(t, "2026-05-01T00:00:00Z", r.URL.Query().Get("updated_at_min"))
			w.Header().Set("Link", fmt.Sprintf(`<%s%s/orders.json?page_info=p2&limit=250>; rel="next"`, serverURL, shopifyPrefix))
			_, _ = w.Write([]byte(`{"orders":[{
				"id": 820982911946154500,
				"name": "#1001",
				"email": "ada@example.com",
				"currency": "EUR",
				"total_price": "49.90",
				"tags": "vip, wholesale",
				"updated_at": "2026-05-02T10:00:00+02:00",
				"customer": {"first_name": "Ada", "last_name": "Lovelace"},
				"shipping_address": {"address1": "Hauptstr. 1", "city": "Berlin", "zip": "10115", "country_code": "DE"},
				"shipping_lines": [{"title": "Standard"}],
				"line_items": [{"sku": "SKU-1", "title": "Mug", "quantity": 2, "price": "12.45"}]
			}]}`))
			return
		}
		assert.Empty(t, r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"orders":[{"id": 2, "name": "#1002", "cancelled_at": "2026-05-03T00:00:00Z"}]}`))
	})
	serverURL = a.client.baseURL[:len(a.client.baseURL)-len(shopifyPrefix)]

	orders, err := a.ListOrders(context.Background(), nil, &since)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, orders, 2)

	first := orders[0]
	assert.Equal(t, "820982911946154500", first.ExternalID)
	assert.Equal(t, "#1001", first.OrderNumber)
	assert.Equal(t, "Ada Lovelace", first.CustomerName)
	assert.Equal(t, "Hauptstr. 1, 10115 Berlin, DE", first.ShippingAddress)
	assert.True(t, decimal.RequireFromString("49.90").Equal(first.TotalAmount))
	assert.Equal(t, "Standard", first.ShippingMethod)
	assert.Equal(t, []string{"vip", "wholesale"}, first.Tags)
	assert.Equal(t, time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC), first.UpdatedAt)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 2, first.Items[0].Quantity)
	assert.False(t, first.Cancelled)

	assert.True(t, orders[1].Cancelled)
}

func TestShopifyAdapter_GetProduct(t *testing.T) {
	a := newTestShopify(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case shopifyPrefix + "/variants/42.json":
			_, _ = w.Write([]byte(`{"variant":{"id":42,"product_id":7,"title":"Blue","sku":"MUG-B","price":"9.50","grams":350,"barcode":"400"}}`))
		case shopifyPrefix + "/products/7.json":
			_, _ = w.Write([]byte(`{"product":{"id":7,"title":"Mug","body_html":"<p>mug</p>","variants":[{"id":42},{"id":43}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p, err := a.GetProduct(context.Background(), nil, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", p.ExternalID)
	assert.Equal(t, "MUG-B", p.SKU)
	assert.Equal(t, "Mug - Blue", p.Name)
	assert.Equal(t, int64(350), p.WeightGrams)

	_, err = a.GetProduct(context.Background(), nil, "99")
	assert.ErrorIs(t, err, integration.ErrRemoteNotFound)
}

func TestShopifyAdapter_Writes(t *testing.T) {
	ctx := context.Background()

	t.Run("fulfillment carries tracking", func(t *testing.T) {
		a := newTestShopify(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, shopifyPrefix+"/orders/1001/fulfillments.json", r.URL.Path)
			var body shopifyFulfillmentRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "TRK-1", body.Fulfillment.TrackingNumber)
			assert.Equal(t, "DHL", body.Fulfillment.TrackingCompany)
			w.WriteHeader(http.StatusCreated)
		})
		err := a.CreateFulfillment(ctx, nil, integration.FulfillmentRequest{ExternalOrderID: "1001", Carrier: "DHL", TrackingNumber: "TRK-1"})
		assert.NoError(t, err)
	})

	t.Run("cancelling an already cancelled order succeeds", func(t *testing.T) {
		a := newTestShopify(t, func(w http.ResponseWriter, r *http.Request) {
			var body shopifyCancelRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "other", body.Reason)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"Cannot cancel a cancelled order"}`))
		})
		assert.NoError(t, a.CancelOrder(ctx, nil, "1001", "duplicate order"))
	})

	t.Run("refund amount is sent with two decimals", func(t *testing.T) {
		a := newTestShopify(t, func(w http.ResponseWriter, r *http.Request) {
			var body shopifyRefundRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Refund.Transactions, 1)
			assert.Equal(t, "12.50", body.Refund.Transactions[0].Amount)
			assert.Equal(t, "EUR", body.Refund.Currency)
			w.WriteHeader(http.StatusCreated)
		})
		err := a.CreateRefund(ctx, nil, integration.RefundRequest{ExternalOrderID: "1001", Amount: decimal.RequireFromString("12.5"), Currency: "EUR"})
		assert.NoError(t, err)

		err = a.CreateRefund(ctx, nil, integration.RefundRequest{ExternalOrderID: "1001"})
		assert.Error(t, err)
	})

	t.Run("rate limit is transient", func(t *testing.T) {
		a := newTestShopify(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		err := a.CreateFulfillment(ctx, nil, integration.FulfillmentRequest{ExternalOrderID: "1"})
		assert.True(t, integration.IsTransient(err))
	})
}
