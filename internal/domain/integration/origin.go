package integration

// ---------------------------------------------------------------------------
// Origin identifies which system produced a write
// ---------------------------------------------------------------------------

// Origin represents the system a change came from
type Origin string

const (
	// OriginShopify is the Shopify storefront
	OriginShopify Origin = "SHOPIFY"
	// OriginWooCommerce is the WooCommerce storefront
	OriginWooCommerce Origin = "WOOCOMMERCE"
	// OriginOps is the internal operations team, authoritative for ops fields
	OriginOps Origin = "OPS"
	// OriginWarehouse is the fulfillment warehouse
	OriginWarehouse Origin = "WAREHOUSE"
	// OriginSystem is the engine itself (onboarding, reconciliation)
	OriginSystem Origin = "SYSTEM"
)

// IsValid returns true if the origin is known
func (o Origin) IsValid() bool {
	switch o {
	case OriginShopify, OriginWooCommerce, OriginOps, OriginWarehouse, OriginSystem:
		return true
	}
	return false
}

// IsStorefront returns true for storefront platforms
func (o Origin) IsStorefront() bool {
	return o == OriginShopify || o == OriginWooCommerce
}

// IsStockAuthority returns true for origins allowed to write stock fields
func (o Origin) IsStockAuthority() bool {
	return o == OriginOps || o == OriginWarehouse
}

// String returns the string representation
func (o Origin) String() string {
	return string(o)
}

// StorefrontOrigins lists every storefront platform
func StorefrontOrigins() []Origin {
	return []Origin{OriginShopify, OriginWooCommerce}
}
