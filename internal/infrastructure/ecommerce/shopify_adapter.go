package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// shopifyPageSize is the largest page the Admin API returns
const shopifyPageSize = 250

// ErrShopifyConfigMissingToken indicates the admin API token is missing
var ErrShopifyConfigMissingToken = errors.New("shopify: admin API token is required")

// ShopifyAdapter implements StorefrontAdapter for the Shopify Admin REST API
type ShopifyAdapter struct {
	client *restClient
	token  string
}

// NewShopifyAdapter creates a Shopify adapter. client may be nil.
func NewShopifyAdapter(cfg config.StorefrontConfig, client *http.Client) (*ShopifyAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: shopify base URL is required", integration.ErrPlatformNotConfigured)
	}
	if cfg.APIToken == "" {
		return nil, ErrShopifyConfigMissingToken
	}
	a := &ShopifyAdapter{
		client: newRESTClient("shopify", cfg.BaseURL+"/admin/api/"+ShopifyAPIVersion, cfg.Timeout, cfg.RequestsPerSecond, client),
		token:  cfg.APIToken,
	}
	a.client.authorize = func(req *http.Request) {
		req.Header.Set("X-Shopify-Access-Token", a.token)
	}
	return a, nil
}

// Platform returns the storefront this adapter handles
func (a *ShopifyAdapter) Platform() integration.Origin {
	return integration.OriginShopify
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// GetOrder retrieves one order
func (a *ShopifyAdapter) GetOrder(ctx context.Context, _ *integration.Channel, externalID string) (*integration.StorefrontOrder, error) {
	var env shopifyOrderEnvelope
	if _, err := a.client.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(externalID)+".json", nil, nil, &env, nil); err != nil {
		return nil, err
	}
	order := env.Order.toStorefrontOrder()
	return &order, nil
}

// ListOrders lists orders updated since since, following cursor pagination
func (a *ShopifyAdapter) ListOrders(ctx context.Context, _ *integration.Channel, since *time.Time) ([]integration.StorefrontOrder, error) {
	query := url.Values{}
	query.Set("status", "any")
	query.Set("limit", fmt.Sprint(shopifyPageSize))
	if since != nil {
		query.Set("updated_at_min", since.UTC().Format(time.RFC3339))
	}

	var orders []integration.StorefrontOrder
	path := "/orders.json"
	for path != "" {
		var env shopifyOrdersEnvelope
		resp, err := a.client.do(ctx, http.MethodGet, path, query, nil, &env, nil)
		if err != nil {
			return nil, err
		}
		for _, o := range env.Orders {
			orders = append(orders, o.toStorefrontOrder())
		}
		// the next link carries the cursor and every filter
		path, query = nextLink(resp.Header.Get("Link")), nil
	}
	return orders, nil
}

// CreateFulfillment marks an order fulfilled with tracking details
func (a *ShopifyAdapter) CreateFulfillment(ctx context.Context, _ *integration.Channel, req integration.FulfillmentRequest) error {
	body := shopifyFulfillmentRequest{Fulfillment: shopifyFulfillment{
		TrackingNumber:  req.TrackingNumber,
		TrackingCompany: req.Carrier,
		NotifyCustomer:  req.NotifyCustomer,
	}}
	_, err := a.client.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(req.ExternalOrderID)+"/fulfillments.json", nil, body, nil, nil)
	return err
}

// CancelOrder cancels an order. An order Shopify already cancelled is rejected with 422,
// which is treated as success.
func (a *ShopifyAdapter) CancelOrder(ctx context.Context, _ *integration.Channel, externalID, reason string) error {
	body := shopifyCancelRequest{Reason: shopifyCancelReason(reason)}
	resp, err := a.client.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(externalID)+"/cancel.json", nil, body, nil, nil)
	if err != nil && resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
		return nil
	}
	return err
}

// CreateRefund refunds an amount of an order
func (a *ShopifyAdapter) CreateRefund(ctx context.Context, _ *integration.Channel, req integration.RefundRequest) error {
	if !req.Amount.IsPositive() {
		return shared.Permanent(fmt.Errorf("shopify: refund amount must be positive, got %s", req.Amount))
	}
	body := shopifyRefundRequest{Refund: shopifyRefund{
		Currency: req.Currency,
		Note:     req.Reason,
		Notify:   true,
		Transactions: []shopifyRefundTransaction{
			{Kind: "refund", Amount: req.Amount.StringFixed(2)},
		},
	}}
	_, err := a.client.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(req.ExternalOrderID)+"/refunds.json", nil, body, nil, nil)
	return err
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

// GetProduct retrieves the variant externalID together with its product
func (a *ShopifyAdapter) GetProduct(ctx context.Context, _ *integration.Channel, externalID string) (*integration.StorefrontProduct, error) {
	var variant shopifyVariantEnvelope
	if _, err := a.client.do(ctx, http.MethodGet, "/variants/"+url.PathEscape(externalID)+".json", nil, nil, &variant, nil); err != nil {
		return nil, err
	}
	var product shopifyProductEnvelope
	path := fmt.Sprintf("/products/%d.json", variant.Variant.ProductID)
	if _, err := a.client.do(ctx, http.MethodGet, path, nil, nil, &product, nil); err != nil {
		return nil, err
	}
	sp := product.Product.variantProduct(variant.Variant)
	return &sp, nil
}

// ListProducts lists every variant of every product
func (a *ShopifyAdapter) ListProducts(ctx context.Context, _ *integration.Channel) ([]integration.StorefrontProduct, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(shopifyPageSize))

	var products []integration.StorefrontProduct
	path := "/products.json"
	for path != "" {
		var env shopifyProductsEnvelope
		resp, err := a.client.do(ctx, http.MethodGet, path, query, nil, &env, nil)
		if err != nil {
			return nil, err
		}
		for _, p := range env.Products {
			products = append(products, p.toStorefrontProducts()...)
		}
		path, query = nextLink(resp.Header.Get("Link")), nil
	}
	return products, nil
}

// shopifyCancelReason maps a free-text reason onto the reasons Shopify accepts
func shopifyCancelReason(reason string) string {
	switch reason {
	case "customer", "fraud", "inventory", "declined":
		return reason
	default:
		return "other"
	}
}

// Ensure ShopifyAdapter implements StorefrontAdapter interface
var _ integration.StorefrontAdapter = (*ShopifyAdapter)(nil)
