package ecommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
)

const warehousePageSize = 200

// TokenSource hands out warehouse access tokens per account. credential.Registry
// implements it; Refresh is called with the token the warehouse rejected.
type TokenSource interface {
	Token(ctx context.Context, accountID string) (integration.TokenData, error)
	Refresh(ctx context.Context, accountID string, stale integration.TokenData) (integration.TokenData, error)
}

// WarehouseAdapter implements integration.WarehouseAdapter for the fulfillment
// provider's merchant API. A 401 triggers one coordinated token refresh and a retry.
type WarehouseAdapter struct {
	client *restClient
	tokens TokenSource
}

// NewWarehouseAdapter creates a warehouse adapter. client may be nil.
func NewWarehouseAdapter(cfg config.WarehouseConfig, tokens TokenSource, client *http.Client) (*WarehouseAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: warehouse base URL is required", integration.ErrPlatformNotConfigured)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: warehouse token source is required", integration.ErrPlatformNotConfigured)
	}
	return &WarehouseAdapter{
		client: newRESTClient("warehouse", cfg.BaseURL+"/api/v1/merchant", cfg.Timeout, cfg.RequestsPerSecond, client),
		tokens: tokens,
	}, nil
}

// call sends an authorized request on behalf of accountID
func (a *WarehouseAdapter) call(ctx context.Context, accountID, method, path string, query url.Values, in, out any) (*response, error) {
	token, err := a.tokens.Token(ctx, accountID)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.do(ctx, method, path, query, in, out, bearer(token))
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	logger.L(ctx).Info("Warehouse rejected access token, refreshing",
		zap.String("account_id", accountID), zap.String("path", path))
	token, err = a.tokens.Refresh(ctx, accountID, token)
	if err != nil {
		return nil, err
	}
	return a.client.do(ctx, method, path, query, in, out, bearer(token))
}

func bearer(token integration.TokenData) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}
}

// listAll follows offset pagination until the warehouse reports no more data
func listAll[T any](ctx context.Context, a *WarehouseAdapter, accountID, path string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("limit", strconv.Itoa(warehousePageSize))
	var all []T
	for offset := 0; ; {
		query.Set("offset", strconv.Itoa(offset))
		var page warehousePage[T]
		if _, err := a.call(ctx, accountID, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if !page.MoreDataAvailable || len(page.Items) == 0 {
			return all, nil
		}
		offset += len(page.Items)
	}
}

func sinceQuery(since time.Time) url.Values {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("fromDate", since.UTC().Format(time.RFC3339))
	}
	return query
}

// ---------------------------------------------------------------------------
// Outbound Operations
// ---------------------------------------------------------------------------

// CreateOutbound submits an order for fulfillment. A merchant outbound number the
// warehouse already knows yields ErrDuplicate.
func (a *WarehouseAdapter) CreateOutbound(ctx context.Context, accountID string, req integration.OutboundRequest) (string, error) {
	var created whOutboundCreated
	if _, err := a.call(ctx, accountID, http.MethodPost, "/outbounds", nil, toOutboundRequest(req), &created); err != nil {
		return "", err
	}
	if created.OutboundID == "" {
		return "", fmt.Errorf("%w: outbound created without id", integration.ErrPlatformInvalidResponse)
	}
	return created.OutboundID, nil
}

// HoldOutbound stops an outbound from being picked
func (a *WarehouseAdapter) HoldOutbound(ctx context.Context, accountID, outboundID, reason string) error {
	_, err := a.call(ctx, accountID, http.MethodPost, "/outbounds/"+url.PathEscape(outboundID)+"/hold", nil, whHoldRequest{Reason: reason}, nil)
	return err
}

// ReleaseOutbound releases a held outbound
func (a *WarehouseAdapter) ReleaseOutbound(ctx context.Context, accountID, outboundID string) error {
	_, err := a.call(ctx, accountID, http.MethodPost, "/outbounds/"+url.PathEscape(outboundID)+"/release", nil, nil, nil)
	return err
}

// CancelOutbound cancels an outbound
func (a *WarehouseAdapter) CancelOutbound(ctx context.Context, accountID, outboundID string) error {
	_, err := a.call(ctx, accountID, http.MethodPost, "/outbounds/"+url.PathEscape(outboundID)+"/cancel", nil, nil, nil)
	return err
}

// ListOutbounds lists outbounds modified since since, or all when since is nil
func (a *WarehouseAdapter) ListOutbounds(ctx context.Context, accountID string, since *time.Time) ([]integration.WarehouseOutbound, error) {
	query := url.Values{}
	if since != nil {
		query = sinceQuery(*since)
	}
	items, err := listAll[whOutbound](ctx, a, accountID, "/outbounds", query)
	if err != nil {
		return nil, err
	}
	out := make([]integration.WarehouseOutbound, 0, len(items))
	for _, ob := range items {
		out = append(out, integration.WarehouseOutbound{
			OutboundID:             ob.OutboundID,
			MerchantOutboundNumber: ob.MerchantOutboundNumber,
			Status:                 mapWarehouseStatus(ob.Status),
			UpdatedAt:              ob.ModificationDate.UTC(),
		})
	}
	return out, nil
}

// PollStatusChanges reads the outbound update feed since since
func (a *WarehouseAdapter) PollStatusChanges(ctx context.Context, accountID string, since time.Time) ([]integration.WarehouseStatusChange, error) {
	items, err := listAll[whOutboundUpdate](ctx, a, accountID, "/outbounds/updates", sinceQuery(since))
	if err != nil {
		return nil, err
	}
	out := make([]integration.WarehouseStatusChange, 0, len(items))
	for _, u := range items {
		out = append(out, integration.WarehouseStatusChange{
			OutboundID:             u.OutboundID,
			MerchantOutboundNumber: u.MerchantOutboundNumber,
			Status:                 mapWarehouseStatus(u.Status),
			Carrier:                u.Carrier,
			TrackingNumber:         u.TrackingNumber,
			ChangedAt:              u.Timestamp.UTC(),
		})
	}
	return out, nil
}

// GetShippingNotifications lists parcels that left the warehouse since since
func (a *WarehouseAdapter) GetShippingNotifications(ctx context.Context, accountID string, since time.Time) ([]integration.ShippingNotification, error) {
	items, err := listAll[whShippingNotification](ctx, a, accountID, "/shipping-notifications", sinceQuery(since))
	if err != nil {
		return nil, err
	}
	out := make([]integration.ShippingNotification, 0, len(items))
	for _, n := range items {
		out = append(out, integration.ShippingNotification{
			OutboundID:     n.OutboundID,
			Carrier:        n.Carrier,
			TrackingNumber: n.TrackingNumber,
			ShippedAt:      n.ShippedAt.UTC(),
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Product Operations
// ---------------------------------------------------------------------------

// ListProducts lists every product of the account
func (a *WarehouseAdapter) ListProducts(ctx context.Context, accountID string) ([]integration.WarehouseProduct, error) {
	items, err := listAll[whProduct](ctx, a, accountID, "/products", nil)
	if err != nil {
		return nil, err
	}
	out := make([]integration.WarehouseProduct, 0, len(items))
	for _, p := range items {
		out = append(out, toWarehouseProduct(p))
	}
	return out, nil
}

// CreateProduct creates a product and returns its JFSKU. An existing merchant SKU
// yields ErrDuplicate.
func (a *WarehouseAdapter) CreateProduct(ctx context.Context, accountID string, product integration.WarehouseProduct) (string, error) {
	var created whProductCreated
	if _, err := a.call(ctx, accountID, http.MethodPost, "/products", nil, fromWarehouseProduct(product), &created); err != nil {
		return "", err
	}
	if created.JFSKU == "" {
		return "", fmt.Errorf("%w: product created without jfsku", integration.ErrPlatformInvalidResponse)
	}
	return created.JFSKU, nil
}

// FindProductBySKU looks a product up by merchant SKU
func (a *WarehouseAdapter) FindProductBySKU(ctx context.Context, accountID, sku string) (*integration.WarehouseProduct, error) {
	query := url.Values{}
	query.Set("merchantSku", sku)
	var page warehousePage[whProduct]
	if _, err := a.call(ctx, accountID, http.MethodGet, "/products", query, nil, &page); err != nil {
		return nil, err
	}
	for _, p := range page.Items {
		if p.MerchantSKU == sku {
			wp := toWarehouseProduct(p)
			return &wp, nil
		}
	}
	return nil, fmt.Errorf("%w: warehouse product %s", integration.ErrRemoteNotFound, sku)
}

// GetStockLevels lists the available stock of every product
func (a *WarehouseAdapter) GetStockLevels(ctx context.Context, accountID string) ([]integration.StockLevel, error) {
	items, err := listAll[whStock](ctx, a, accountID, "/stocks", nil)
	if err != nil {
		return nil, err
	}
	out := make([]integration.StockLevel, 0, len(items))
	for _, s := range items {
		out = append(out, integration.StockLevel{
			JFSKU:     s.JFSKU,
			SKU:       s.MerchantSKU,
			Available: s.StockAvailable,
			At:        s.Timestamp.UTC(),
		})
	}
	return out, nil
}

// Ensure WarehouseAdapter implements WarehouseAdapter interface
var _ integration.WarehouseAdapter = (*WarehouseAdapter)(nil)
