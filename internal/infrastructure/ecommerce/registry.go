package ecommerce

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// Registry maps storefront platforms to their adapters
type Registry struct {
	adapters map[integration.Origin]integration.StorefrontAdapter
}

// NewRegistry creates a registry holding adapters
func NewRegistry(adapters ...integration.StorefrontAdapter) *Registry {
	r := &Registry{adapters: make(map[integration.Origin]integration.StorefrontAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// NewRegistryFromConfig creates adapters for every storefront with a base URL. Platforms
// left unconfigured are logged and fail lookups with ErrPlatformNotConfigured.
func NewRegistryFromConfig(cfg *config.Config, client *http.Client, log *zap.Logger) (*Registry, error) {
	var adapters []integration.StorefrontAdapter
	if cfg.Shopify.BaseURL != "" {
		a, err := NewShopifyAdapter(cfg.Shopify, client)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	} else {
		log.Warn("Shopify adapter not configured")
	}
	if cfg.WooCommerce.BaseURL != "" {
		a, err := NewWooCommerceAdapter(cfg.WooCommerce, client)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	} else {
		log.Warn("WooCommerce adapter not configured")
	}
	return NewRegistry(adapters...), nil
}

// Storefront returns the adapter of platform
func (r *Registry) Storefront(platform integration.Origin) (integration.StorefrontAdapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrPlatformNotConfigured, platform)
	}
	return a, nil
}

// Platforms returns the configured platforms
func (r *Registry) Platforms() []integration.Origin {
	out := make([]integration.Origin, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

var _ integration.StorefrontRegistry = (*Registry)(nil)
