package ecommerce

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Warehouse API Types
// ---------------------------------------------------------------------------

// warehousePage is the envelope of every list endpoint
type warehousePage[T any] struct {
	Items             []T  `json:"items"`
	MoreDataAvailable bool `json:"moreDataAvailable"`
}

type whOutboundRequest struct {
	MerchantOutboundNumber string           `json:"merchantOutboundNumber"`
	ShippingMethodID       string           `json:"shippingMethodId"`
	Priority               int64            `json:"priority"`
	Note                   string           `json:"note,omitempty"`
	ShippingAddress        whAddress        `json:"shippingAddress"`
	Items                  []whOutboundItem `json:"items"`
}

type whAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type whOutboundItem struct {
	JFSKU       string `json:"jfsku"`
	MerchantSKU string `json:"merchantSku,omitempty"`
	Quantity    int    `json:"quantity"`
}

type whOutboundCreated struct {
	OutboundID string `json:"outboundId"`
}

type whHoldRequest struct {
	Reason string `json:"reason"`
}

// whOutbound is an outbound as listed by the warehouse
type whOutbound struct {
	OutboundID             string    `json:"outboundId"`
	MerchantOutboundNumber string    `json:"merchantOutboundNumber"`
	Status                 string    `json:"status"`
	ModificationDate       time.Time `json:"modificationDate"`
}

// whOutboundUpdate is one status change of the update feed
type whOutboundUpdate struct {
	OutboundID             string    `json:"outboundId"`
	MerchantOutboundNumber string    `json:"merchantOutboundNumber"`
	Status                 string    `json:"status"`
	Carrier                string    `json:"carrier"`
	TrackingNumber         string    `json:"trackingNumber"`
	Timestamp              time.Time `json:"timestamp"`
}

type whShippingNotification struct {
	OutboundID     string    `json:"outboundId"`
	Carrier        string    `json:"freightOption"`
	TrackingNumber string    `json:"trackingNumber"`
	ShippedAt      time.Time `json:"shippedAt"`
}

type whProduct struct {
	JFSKU       string          `json:"jfsku,omitempty"`
	MerchantSKU string          `json:"merchantSku"`
	Name        string          `json:"name"`
	EAN         string          `json:"ean,omitempty"`
	WeightKg    decimal.Decimal `json:"weight"`
	NetPrice    decimal.Decimal `json:"netRetailPrice"`
}

type whProductCreated struct {
	JFSKU string `json:"jfsku"`
}

type whStock struct {
	JFSKU          string    `json:"jfsku"`
	MerchantSKU    string    `json:"merchantSku"`
	StockAvailable int64     `json:"stockLevelAvailable"`
	Timestamp      time.Time `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// mapWarehouseStatus maps warehouse outbound states to fulfillment states. Unknown
// states pass through upper-cased so they show up in the audit log.
func mapWarehouseStatus(status string) string {
	switch strings.ToLower(status) {
	case "pending", "preparation", "acknowledged":
		return integration.FulfillmentPending
	case "pickprocess", "picking", "partiallyshipped":
		return integration.FulfillmentPicking
	case "packed", "readyforshipping":
		return integration.FulfillmentPacked
	case "shipped":
		return integration.FulfillmentShipped
	case "delivered":
		return integration.FulfillmentDelivered
	case "canceled", "cancelled":
		return integration.FulfillmentCancelled
	default:
		return strings.ToUpper(status)
	}
}

func toWarehouseProduct(p whProduct) integration.WarehouseProduct {
	return integration.WarehouseProduct{
		JFSKU:       p.JFSKU,
		SKU:         p.MerchantSKU,
		Name:        p.Name,
		Barcode:     p.EAN,
		WeightGrams: p.WeightKg.Shift(3).Round(0).IntPart(),
		NetPrice:    p.NetPrice,
	}
}

func fromWarehouseProduct(p integration.WarehouseProduct) whProduct {
	return whProduct{
		JFSKU:       p.JFSKU,
		MerchantSKU: p.SKU,
		Name:        p.Name,
		EAN:         p.Barcode,
		WeightKg:    decimal.NewFromInt(p.WeightGrams).Shift(-3),
		NetPrice:    p.NetPrice,
	}
}

func toOutboundRequest(req integration.OutboundRequest) whOutboundRequest {
	out := whOutboundRequest{
		MerchantOutboundNumber: req.MerchantOutboundNumber,
		ShippingMethodID:       req.ShippingMethod,
		Priority:               req.Priority,
		Note:                   req.Note,
		ShippingAddress:        whAddress{Name: req.CustomerName, Address: req.ShippingAddress},
		Items:                  make([]whOutboundItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		out.Items = append(out.Items, whOutboundItem{JFSKU: item.JFSKU, MerchantSKU: item.SKU, Quantity: item.Quantity})
	}
	return out
}
