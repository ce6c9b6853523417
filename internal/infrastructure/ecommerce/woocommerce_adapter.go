package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

const wooPageSize = 100

// ErrWooConfigInvalidToken indicates the API token is not a "key:secret" pair
var ErrWooConfigInvalidToken = errors.New("woocommerce: API token must be consumer_key:consumer_secret")

// WooCommerceAdapter implements StorefrontAdapter for the WooCommerce REST API v3
type WooCommerceAdapter struct {
	client *restClient
}

// NewWooCommerceAdapter creates a WooCommerce adapter. The API token holds the consumer
// key and secret separated by a colon. client may be nil.
func NewWooCommerceAdapter(cfg config.StorefrontConfig, client *http.Client) (*WooCommerceAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: woocommerce base URL is required", integration.ErrPlatformNotConfigured)
	}
	key, secret, ok := strings.Cut(cfg.APIToken, ":")
	if !ok || key == "" || secret == "" {
		return nil, ErrWooConfigInvalidToken
	}
	c := newRESTClient("woocommerce", cfg.BaseURL+"/wp-json/wc/v3", cfg.Timeout, cfg.RequestsPerSecond, client)
	c.authorize = func(req *http.Request) {
		req.SetBasicAuth(key, secret)
	}
	return &WooCommerceAdapter{client: c}, nil
}

// Platform returns the storefront this adapter handles
func (a *WooCommerceAdapter) Platform() integration.Origin {
	return integration.OriginWooCommerce
}

// GetOrder retrieves one order
func (a *WooCommerceAdapter) GetOrder(ctx context.Context, _ *integration.Channel, externalID string) (*integration.StorefrontOrder, error) {
	var o WooOrder
	if _, err := a.client.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(externalID), nil, nil, &o, nil); err != nil {
		return nil, err
	}
	order := o.toStorefrontOrder()
	return &order, nil
}

// ListOrders lists orders modified since since
func (a *WooCommerceAdapter) ListOrders(ctx context.Context, _ *integration.Channel, since *time.Time) ([]integration.StorefrontOrder, error) {
	query := url.Values{}
	query.Set("orderby", "modified")
	query.Set("order", "asc")
	if since != nil {
		query.Set("modified_after", since.UTC().Format(wooTimeLayout))
		query.Set("dates_are_gmt", "true")
	}

	var orders []integration.StorefrontOrder
	err := a.paginate(ctx, "/orders", query, func() any { return &[]WooOrder{} }, func(page any) {
		for _, o := range *page.(*[]WooOrder) {
			orders = append(orders, o.toStorefrontOrder())
		}
	})
	return orders, err
}

// GetProduct retrieves one product
func (a *WooCommerceAdapter) GetProduct(ctx context.Context, _ *integration.Channel, externalID string) (*integration.StorefrontProduct, error) {
	var p WooProduct
	if _, err := a.client.do(ctx, http.MethodGet, "/products/"+url.PathEscape(externalID), nil, nil, &p, nil); err != nil {
		return nil, err
	}
	product := p.toStorefrontProduct()
	return &product, nil
}

// ListProducts lists every product
func (a *WooCommerceAdapter) ListProducts(ctx context.Context, _ *integration.Channel) ([]integration.StorefrontProduct, error) {
	var products []integration.StorefrontProduct
	err := a.paginate(ctx, "/products", url.Values{}, func() any { return &[]WooProduct{} }, func(page any) {
		for _, p := range *page.(*[]WooProduct) {
			products = append(products, p.toStorefrontProduct())
		}
	})
	return products, err
}

// CreateFulfillment completes the order and stores the tracking details as order meta
func (a *WooCommerceAdapter) CreateFulfillment(ctx context.Context, _ *integration.Channel, req integration.FulfillmentRequest) error {
	body := wooStatusUpdate{Status: "completed"}
	if req.TrackingNumber != "" {
		body.MetaData = []WooMeta{
			{Key: "_tracking_number", Value: req.TrackingNumber},
			{Key: "_tracking_provider", Value: req.Carrier},
		}
	}
	_, err := a.client.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(req.ExternalOrderID), nil, body, nil, nil)
	return err
}

// CancelOrder sets the order status to cancelled
func (a *WooCommerceAdapter) CancelOrder(ctx context.Context, _ *integration.Channel, externalID, reason string) error {
	body := wooStatusUpdate{Status: "cancelled", CustomerNote: reason}
	_, err := a.client.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(externalID), nil, body, nil, nil)
	return err
}

// CreateRefund refunds an amount through the payment gateway
func (a *WooCommerceAdapter) CreateRefund(ctx context.Context, _ *integration.Channel, req integration.RefundRequest) error {
	if !req.Amount.IsPositive() {
		return shared.Permanent(fmt.Errorf("woocommerce: refund amount must be positive, got %s", req.Amount))
	}
	body := wooRefundRequest{Amount: req.Amount.StringFixed(2), Reason: req.Reason, APIRefund: true}
	_, err := a.client.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(req.ExternalOrderID)+"/refunds", nil, body, nil, nil)
	return err
}

// paginate walks numbered pages until X-WP-TotalPages is reached
func (a *WooCommerceAdapter) paginate(ctx context.Context, path string, query url.Values, newPage func() any, collect func(any)) error {
	query.Set("per_page", strconv.Itoa(wooPageSize))
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		out := newPage()
		resp, err := a.client.do(ctx, http.MethodGet, path, query, nil, out, nil)
		if err != nil {
			return err
		}
		collect(out)
		total, err := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
		if err != nil || page >= total {
			return nil
		}
	}
}

// Ensure WooCommerceAdapter implements StorefrontAdapter interface
var _ integration.StorefrontAdapter = (*WooCommerceAdapter)(nil)
