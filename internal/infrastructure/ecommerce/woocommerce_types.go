package ecommerce

import (
	"strconv"
	"strings"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// wooTimeLayout is the layout of WooCommerce *_gmt timestamps
const wooTimeLayout = "2006-01-02T15:04:05"

// ---------------------------------------------------------------------------
// WooCommerce API Types
// ---------------------------------------------------------------------------

// WooOrder is an order of the WooCommerce REST API v3
type WooOrder struct {
	ID              int64             `json:"id"`
	Number          string            `json:"number"`
	Status          string            `json:"status"`
	Currency        string            `json:"currency"`
	Total           string            `json:"total"`
	DateModifiedGMT string            `json:"date_modified_gmt"`
	Billing         WooAddress        `json:"billing"`
	Shipping        WooAddress        `json:"shipping"`
	ShippingLines   []WooShippingLine `json:"shipping_lines"`
	LineItems       []WooLineItem     `json:"line_items"`
	MetaData        []WooMeta         `json:"meta_data"`
}

// WooAddress is a billing or shipping address
type WooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
}

// WooShippingLine is the shipping method chosen at checkout
type WooShippingLine struct {
	MethodTitle string `json:"method_title"`
	MethodID    string `json:"method_id"`
}

// WooLineItem is one line of an order
type WooLineItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// WooMeta is a custom field. Tags are stored under the "_tags" key.
type WooMeta struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// WooProduct is a simple product
type WooProduct struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	SKU             string `json:"sku"`
	Description     string `json:"description"`
	RegularPrice    string `json:"regular_price"`
	Price           string `json:"price"`
	Weight          string `json:"weight"`
	DateModifiedGMT string `json:"date_modified_gmt"`
	GlobalUniqueID  string `json:"global_unique_id"`
}

type wooStatusUpdate struct {
	Status       string    `json:"status"`
	CustomerNote string    `json:"customer_note,omitempty"`
	MetaData     []WooMeta `json:"meta_data,omitempty"`
}

type wooRefundRequest struct {
	Amount     string `json:"amount"`
	Reason     string `json:"reason,omitempty"`
	APIRefund  bool   `json:"api_refund"`
	APIRestock bool   `json:"api_restock"`
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func (o WooOrder) toStorefrontOrder() integration.StorefrontOrder {
	number := o.Number
	if number == "" {
		number = strconv.FormatInt(o.ID, 10)
	}
	addr := o.Shipping
	if addr.Address1 == "" {
		addr = o.Billing
	}
	out := integration.StorefrontOrder{
		ExternalID:    strconv.FormatInt(o.ID, 10),
		OrderNumber:   "#" + number,
		CustomerName:  strings.TrimSpace(addr.FirstName + " " + addr.LastName),
		CustomerEmail: o.Billing.Email,
		ShippingAddress: joinAddress(addr.Address1, addr.Address2,
			strings.TrimSpace(addr.Postcode+" "+addr.City), addr.Country),
		TotalAmount: ParseDecimal(o.Total),
		Currency:    o.Currency,
		Tags:        o.tags(),
		Cancelled:   o.Status == "cancelled",
		UpdatedAt:   parseWooTime(o.DateModifiedGMT),
		Items:       make([]integration.OrderItem, 0, len(o.LineItems)),
	}
	if len(o.ShippingLines) > 0 {
		out.ShippingMethod = o.ShippingLines[0].MethodTitle
	}
	for _, li := range o.LineItems {
		out.Items = append(out.Items, integration.OrderItem{
			SKU:       li.SKU,
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitPrice: ParseDecimal(strconv.FormatFloat(li.Price, 'f', -1, 64)),
		})
	}
	return out
}

func (o WooOrder) tags() []string {
	for _, m := range o.MetaData {
		if m.Key != "_tags" {
			continue
		}
		if s, ok := m.Value.(string); ok {
			return splitTags(s)
		}
	}
	return nil
}

func (p WooProduct) toStorefrontProduct() integration.StorefrontProduct {
	price := p.RegularPrice
	if price == "" {
		price = p.Price
	}
	return integration.StorefrontProduct{
		ExternalID:  strconv.FormatInt(p.ID, 10),
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Price:       ParseDecimal(price),
		WeightGrams: wooWeightGrams(p.Weight),
		Barcode:     p.GlobalUniqueID,
		UpdatedAt:   parseWooTime(p.DateModifiedGMT),
	}
}

// wooWeightGrams converts the store weight, configured in kg, to grams
func wooWeightGrams(weight string) int64 {
	if weight == "" {
		return 0
	}
	return ParseDecimal(weight).Shift(3).Round(0).IntPart()
}

func parseWooTime(s string) time.Time {
	t, err := time.ParseInLocation(wooTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
