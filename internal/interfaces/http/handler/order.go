package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// OrderOperations are the operator actions on synchronized orders
type OrderOperations interface {
	UpdateOperationalFields(ctx context.Context, orderID uuid.UUID, changes map[integration.Field]integration.FieldValue, opts appintegration.OpsUpdateOptions) (*integration.Resolution, error)
	HoldOrder(ctx context.Context, orderID uuid.UUID, reason string) (*integration.Order, error)
	ReleaseOrder(ctx context.Context, orderID uuid.UUID) (*integration.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, opts appintegration.CancelOptions) (*integration.Order, error)
	SplitOrder(ctx context.Context, orderID uuid.UUID, parts []integration.SplitPart) ([]*integration.Order, error)
}

// StockOperations adjusts stock on behalf of an operator
type StockOperations interface {
	AdjustStock(ctx context.Context, channelID uuid.UUID, sku string, available int64) (*integration.Resolution, error)
}

// OrderHandler serves operator order actions and stock adjustments
type OrderHandler struct {
	BaseHandler
	orders   OrderOperations
	products StockOperations
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderOperations, products StockOperations) *OrderHandler {
	return &OrderHandler{orders: orders, products: products}
}

// UpdateFields writes operational fields. Fields owned by the storefront or the
// warehouse come back as rejected in the resolution.
//
// PATCH /api/v1/orders/:id/fields
func (h *OrderHandler) UpdateFields(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateOrderFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	changes := make(map[integration.Field]integration.FieldValue, len(req.Changes))
	for name, raw := range req.Changes {
		v, err := dto.ParseFieldValue(integration.EntityTypeOrder, integration.Field(name), raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		changes[integration.Field(name)] = v
	}

	res, err := h.orders.UpdateOperationalFields(c.Request.Context(), id, changes, appintegration.OpsUpdateOptions{
		PropagateToWarehouse:  req.PropagateToWarehouse,
		PropagateToStorefront: req.PropagateToStorefront,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToResolutionResponse(res))
}

// Hold puts an order on hold
//
// POST /api/v1/orders/:id/hold
func (h *OrderHandler) Hold(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.HoldOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	order, err := h.orders.HoldOrder(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToOrderResponse(order))
}

// Release lifts a hold
//
// POST /api/v1/orders/:id/release
func (h *OrderHandler) Release(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.ReleaseOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToOrderResponse(order))
}

// Cancel cancels an order, optionally on the storefront and with a refund
//
// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	if req.RefundAmount != nil && !req.RefundAmount.IsPositive() {
		h.BadRequest(c, "refund_amount must be positive")
		return
	}
	order, err := h.orders.CancelOrder(c.Request.Context(), id, appintegration.CancelOptions{
		Reason:           req.Reason,
		NotifyStorefront: req.NotifyStorefront,
		RefundAmount:     req.RefundAmount,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToOrderResponse(order))
}

// Split divides an order into child orders
//
// POST /api/v1/orders/:id/split
func (h *OrderHandler) Split(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.SplitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	children, err := h.orders.SplitOrder(c.Request.Context(), id, req.Parts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.OrderResponse, 0, len(children))
	for _, child := range children {
		out = append(out, dto.ToOrderResponse(child))
	}
	h.Created(c, out)
}

// AdjustStock sets the available quantity of a product. The warehouse stays the stock
// authority, so inside the conflict window the adjustment may be rejected.
//
// POST /api/v1/products/stock
func (h *OrderHandler) AdjustStock(c *gin.Context) {
	var req dto.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	res, err := h.products.AdjustStock(c.Request.Context(), uuid.MustParse(req.ChannelID), req.SKU, *req.Available)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToResolutionResponse(res))
}
