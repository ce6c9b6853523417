package ecommerce

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ShopifyAPIVersion is the Admin REST API version the adapter speaks
const ShopifyAPIVersion = "2024-07"

// ---------------------------------------------------------------------------
// Shopify API Types
// ---------------------------------------------------------------------------

// ShopifyOrder is an order of the Shopify Admin API
type ShopifyOrder struct {
	ID              int64                 `json:"id"`
	Name            string                `json:"name"`
	Email           string                `json:"email"`
	Currency        string                `json:"currency"`
	TotalPrice      string                `json:"total_price"`
	Tags            string                `json:"tags"`
	CancelledAt     *time.Time            `json:"cancelled_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Customer        *ShopifyCustomer      `json:"customer"`
	ShippingAddress *ShopifyAddress       `json:"shipping_address"`
	ShippingLines   []ShopifyShippingLine `json:"shipping_lines"`
	LineItems       []ShopifyLineItem     `json:"line_items"`
}

// ShopifyCustomer is the customer attached to an order
type ShopifyCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// ShopifyAddress is a postal address
type ShopifyAddress struct {
	Name        string `json:"name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Zip         string `json:"zip"`
	CountryCode string `json:"country_code"`
}

// ShopifyShippingLine is the shipping method chosen at checkout
type ShopifyShippingLine struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

// ShopifyLineItem is one line of an order
type ShopifyLineItem struct {
	SKU      string `json:"sku"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// ShopifyProduct is a product with its variants
type ShopifyProduct struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	BodyHTML  string           `json:"body_html"`
	UpdatedAt time.Time        `json:"updated_at"`
	Variants  []ShopifyVariant `json:"variants"`
}

// ShopifyVariant is a sellable variant; the SKU lives here
type ShopifyVariant struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Title     string    `json:"title"`
	SKU       string    `json:"sku"`
	Price     string    `json:"price"`
	Grams     int64     `json:"grams"`
	Barcode   string    `json:"barcode"`
	UpdatedAt time.Time `json:"updated_at"`
}

type shopifyOrderEnvelope struct {
	Order ShopifyOrder `json:"order"`
}

type shopifyOrdersEnvelope struct {
	Orders []ShopifyOrder `json:"orders"`
}

type shopifyProductEnvelope struct {
	Product ShopifyProduct `json:"product"`
}

type shopifyProductsEnvelope struct {
	Products []ShopifyProduct `json:"products"`
}

type shopifyVariantEnvelope struct {
	Variant ShopifyVariant `json:"variant"`
}

type shopifyFulfillmentRequest struct {
	Fulfillment shopifyFulfillment `json:"fulfillment"`
}

type shopifyFulfillment struct {
	TrackingNumber  string `json:"tracking_number,omitempty"`
	TrackingCompany string `json:"tracking_company,omitempty"`
	NotifyCustomer  bool   `json:"notify_customer"`
}

type shopifyCancelRequest struct {
	Reason string `json:"reason"`
	Email  bool   `json:"email"`
}

type shopifyRefundRequest struct {
	Refund shopifyRefund `json:"refund"`
}

type shopifyRefund struct {
	Currency     string                     `json:"currency"`
	Note         string                     `json:"note,omitempty"`
	Notify       bool                       `json:"notify"`
	Transactions []shopifyRefundTransaction `json:"transactions"`
}

type shopifyRefundTransaction struct {
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// toStorefrontOrder converts a Shopify order. The order name ("#1001") is the order number
// shared with the warehouse.
func (o ShopifyOrder) toStorefrontOrder() integration.StorefrontOrder {
	out := integration.StorefrontOrder{
		ExternalID:    strconv.FormatInt(o.ID, 10),
		OrderNumber:   o.Name,
		CustomerEmail: o.Email,
		TotalAmount:   ParseDecimal(o.TotalPrice),
		Currency:      o.Currency,
		Tags:          splitTags(o.Tags),
		Cancelled:     o.CancelledAt != nil,
		UpdatedAt:     o.UpdatedAt.UTC(),
		Items:         make([]integration.OrderItem, 0, len(o.LineItems)),
	}
	if o.Customer != nil {
		out.CustomerName = strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
		if out.CustomerEmail == "" {
			out.CustomerEmail = o.Customer.Email
		}
	}
	if o.ShippingAddress != nil {
		if out.CustomerName == "" {
			out.CustomerName = o.ShippingAddress.Name
		}
		out.ShippingAddress = joinAddress(o.ShippingAddress.Address1, o.ShippingAddress.Address2,
			strings.TrimSpace(o.ShippingAddress.Zip+" "+o.ShippingAddress.City), o.ShippingAddress.CountryCode)
	}
	if len(o.ShippingLines) > 0 {
		out.ShippingMethod = o.ShippingLines[0].Title
	}
	for _, li := range o.LineItems {
		out.Items = append(out.Items, integration.OrderItem{
			SKU:       li.SKU,
			Name:      li.Title,
			Quantity:  li.Quantity,
			UnitPrice: ParseDecimal(li.Price),
		})
	}
	return out
}

// toStorefrontProducts flattens a product into one record per variant. The variant id is
// the external id because the SKU lives on the variant.
func (p ShopifyProduct) toStorefrontProducts() []integration.StorefrontProduct {
	out := make([]integration.StorefrontProduct, 0, len(p.Variants))
	for _, v := range p.Variants {
		out = append(out, p.variantProduct(v))
	}
	return out
}

func (p ShopifyProduct) variantProduct(v ShopifyVariant) integration.StorefrontProduct {
	name := p.Title
	if len(p.Variants) > 1 && v.Title != "" {
		name += " - " + v.Title
	}
	updated := p.UpdatedAt
	if v.UpdatedAt.After(updated) {
		updated = v.UpdatedAt
	}
	return integration.StorefrontProduct{
		ExternalID:  strconv.FormatInt(v.ID, 10),
		SKU:         v.SKU,
		Name:        name,
		Description: p.BodyHTML,
		Price:       ParseDecimal(v.Price),
		WeightGrams: v.Grams,
		Barcode:     v.Barcode,
		UpdatedAt:   updated.UTC(),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseDecimal safely parses a string to decimal
func ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func splitTags(tags string) []string {
	out := []string{}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func joinAddress(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// nextLink extracts the rel="next" URL of a Link header
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		for _, attr := range segments[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return strings.Trim(strings.TrimSpace(segments[0]), "<>")
			}
		}
	}
	return ""
}
