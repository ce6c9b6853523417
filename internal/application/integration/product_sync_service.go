package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ProductSyncResult describes what happened to an inbound product
type ProductSyncResult struct {
	Product     *integration.Product
	Created     bool
	EchoSkipped bool
	Resolution  *integration.Resolution
}

// ProductSyncDeps groups the collaborators of ProductSyncService
type ProductSyncDeps struct {
	TxScope   TransactionScope
	Channels  integration.ChannelRepository
	Products  integration.ProductRepository
	SyncLogs  integration.SyncLogRepository
	Conflicts *ConflictService
	Jobs      JobEnqueuer
	Metrics   *telemetry.SyncMetrics
	Logger    *zap.Logger
}

// ProductSyncService keeps products in step between storefronts and the warehouse
type ProductSyncService struct {
	ProductSyncDeps
	echoWindow time.Duration
	now        func() time.Time
}

// NewProductSyncService creates a ProductSyncService
func NewProductSyncService(deps ProductSyncDeps, echoWindow time.Duration) *ProductSyncService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if echoWindow <= 0 {
		echoWindow = DefaultEchoWindow
	}
	deps.Logger = deps.Logger.Named("product_sync")
	return &ProductSyncService{ProductSyncDeps: deps, echoWindow: echoWindow, now: time.Now}
}

// WithClock overrides the service clock
func (s *ProductSyncService) WithClock(now func() time.Time) *ProductSyncService {
	s.now = now
	return s
}

// HandleStorefrontProduct applies a product reported by a storefront. New products of an
// active channel are pushed to the warehouse.
func (s *ProductSyncService) HandleStorefrontProduct(ctx context.Context, channelID uuid.UUID, src integration.StorefrontProduct, receivedAt time.Time) (*ProductSyncResult, error) {
	channel, err := s.Channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	key := src.ExternalID
	if key == "" {
		key = src.SKU
	}
	echo, err := s.SyncLogs.ExistsForExternalIDSince(ctx, channel.ID, integration.EntityTypeProduct, key, s.now().UTC().Add(-s.echoWindow))
	if err != nil {
		return nil, fmt.Errorf("echo check: %w", err)
	}
	if echo {
		s.Metrics.RecordEcho(ctx, string(integration.EntityTypeProduct))
		logger.Enrich(ctx, s.Logger).Debug("Skipping echo of own write", zap.String("external_id", key))
		return &ProductSyncResult{EchoSkipped: true}, nil
	}
	return s.upsert(ctx, channel, src, receivedAt, channel.IsActive())
}

// ImportStorefrontProduct stores a product pulled during onboarding. No jobs are enqueued.
func (s *ProductSyncService) ImportStorefrontProduct(ctx context.Context, channel *integration.Channel, src integration.StorefrontProduct, receivedAt time.Time) (*ProductSyncResult, error) {
	return s.upsert(ctx, channel, src, receivedAt, false)
}

func (s *ProductSyncService) upsert(ctx context.Context, channel *integration.Channel, src integration.StorefrontProduct, receivedAt time.Time, propagate bool) (*ProductSyncResult, error) {
	at := src.UpdatedAt
	if at.IsZero() {
		at = receivedAt
	}
	at = at.UTC()

	result := &ProductSyncResult{}
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.Products().FindBySKU(ctx, channel.ID, src.SKU)
		if errors.Is(err, integration.ErrProductNotFound) {
			now := s.now().UTC()
			product, err = integration.NewProduct(channel.ClientID, channel.ID, src.SKU, src.Values(), channel.Platform, at, now)
			if err != nil {
				return err
			}
			product.ExternalID = src.ExternalID
			if err := repos.Products().Save(ctx, product); err != nil {
				return err
			}
			if err := repos.SyncLogs().Save(ctx, integration.NewSyncLogEntry(product.ClientID, product.ChannelID, integration.EntityTypeProduct,
				product.ID, productExternalID(product), integration.SyncActionCreate, channel.Platform,
				productDeltas(product, src.Values()), now)); err != nil {
				return err
			}
			s.Metrics.RecordWrite(ctx, string(integration.EntityTypeProduct), string(channel.Platform))
			result.Product, result.Created = product, true
			if propagate {
				return enqueueSync(ctx, s.Jobs, repos, productJob(product))
			}
			return nil
		}
		if err != nil {
			return err
		}

		if product.ExternalID == "" && src.ExternalID != "" {
			product.ExternalID = src.ExternalID
			if err := repos.Products().Save(ctx, product); err != nil {
				return err
			}
		}
		res, err := s.Conflicts.Apply(ctx, repos, product, src.Values(), channel.Platform, at)
		if err != nil {
			return err
		}
		result.Product, result.Resolution = product, res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ImportWarehouseProduct creates a local product for a warehouse-only product. A product
// already known by SKU is linked instead and reported as not created.
func (s *ProductSyncService) ImportWarehouseProduct(ctx context.Context, channel *integration.Channel, wp integration.WarehouseProduct) (bool, error) {
	created := false
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.Products().FindBySKU(ctx, channel.ID, wp.SKU)
		if err == nil {
			if product.IsLinked() {
				return nil
			}
			return s.linkInTx(ctx, repos, product, wp.JFSKU)
		}
		if !errors.Is(err, integration.ErrProductNotFound) {
			return err
		}

		now := s.now().UTC()
		values := map[integration.Field]integration.FieldValue{
			integration.FieldName:  integration.StringValue(wp.Name),
			integration.FieldPrice: integration.DecimalValue(wp.NetPrice),
		}
		if wp.WeightGrams != 0 {
			values[integration.FieldWeightGrams] = integration.IntValue(wp.WeightGrams)
		}
		if wp.Barcode != "" {
			values[integration.FieldBarcode] = integration.StringValue(wp.Barcode)
		}
		product, err = integration.NewProduct(channel.ClientID, channel.ID, wp.SKU, values, integration.OriginWarehouse, now, now)
		if err != nil {
			return err
		}
		product.LinkWarehouse(wp.JFSKU, now)
		if err := repos.Products().Save(ctx, product); err != nil {
			return err
		}
		created = true
		return repos.SyncLogs().Save(ctx, integration.NewSyncLogEntry(product.ClientID, product.ChannelID, integration.EntityTypeProduct,
			product.ID, productExternalID(product), integration.SyncActionCreate, integration.OriginWarehouse,
			productDeltas(product, values), now))
	})
	return created, err
}

// LinkWarehouseProduct stores the warehouse SKU of a product
func (s *ProductSyncService) LinkWarehouseProduct(ctx context.Context, productID uuid.UUID, jfsku string) error {
	return s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if product.WarehouseSKU == jfsku {
			return nil
		}
		return s.linkInTx(ctx, repos, product, jfsku)
	})
}

func (s *ProductSyncService) linkInTx(ctx context.Context, repos TransactionalRepositories, product *integration.Product, jfsku string) error {
	now := s.now().UTC()
	product.LinkWarehouse(jfsku, now)
	if err := repos.Products().Save(ctx, product); err != nil {
		return err
	}
	entry := integration.NewSyncLogEntry(product.ClientID, product.ChannelID, integration.EntityTypeProduct, product.ID,
		productExternalID(product), integration.SyncActionLink, integration.OriginWarehouse, nil, now).
		WithTarget(integration.OriginWarehouse)
	return repos.SyncLogs().Save(ctx, entry)
}

// ApplyWarehouseStock writes a warehouse stock level through the resolver
func (s *ProductSyncService) ApplyWarehouseStock(ctx context.Context, channelID uuid.UUID, level integration.StockLevel) (*integration.Resolution, error) {
	return s.applyStock(ctx, channelID, level, integration.OriginWarehouse)
}

// AdjustStock records a stock correction made by operations
func (s *ProductSyncService) AdjustStock(ctx context.Context, channelID uuid.UUID, sku string, available int64) (*integration.Resolution, error) {
	return s.applyStock(ctx, channelID, integration.StockLevel{SKU: sku, Available: available, At: s.now()}, integration.OriginOps)
}

func (s *ProductSyncService) applyStock(ctx context.Context, channelID uuid.UUID, level integration.StockLevel, origin integration.Origin) (*integration.Resolution, error) {
	at := level.At
	if at.IsZero() {
		at = s.now()
	}
	var res *integration.Resolution
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := s.findForStock(ctx, repos, channelID, level)
		if err != nil {
			return err
		}
		res, err = s.Conflicts.Apply(ctx, repos, product, map[integration.Field]integration.FieldValue{
			integration.FieldAvailableQuantity: integration.IntValue(level.Available),
		}, origin, at.UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ProductSyncService) findForStock(ctx context.Context, repos TransactionalRepositories, channelID uuid.UUID, level integration.StockLevel) (*integration.Product, error) {
	if level.JFSKU != "" {
		product, err := repos.Products().FindByWarehouseSKU(ctx, channelID, level.JFSKU)
		if err == nil || !errors.Is(err, integration.ErrProductNotFound) || level.SKU == "" {
			return product, err
		}
	}
	return repos.Products().FindBySKU(ctx, channelID, level.SKU)
}

func productJob(p *integration.Product) integration.SyncJobPayload {
	return integration.SyncJobPayload{
		Operation:  integration.OpPushProduct,
		EntityType: integration.EntityTypeProduct,
		EntityID:   p.ID,
		ChannelID:  p.ChannelID,
		ExternalID: productExternalID(p),
	}
}

func productDeltas(p *integration.Product, values map[integration.Field]integration.FieldValue) []integration.FieldDelta {
	deltas := make([]integration.FieldDelta, 0, len(values))
	for _, f := range sortedFields(values) {
		v, err := p.GetField(f)
		if err != nil {
			continue
		}
		deltas = append(deltas, integration.FieldDelta{Field: f, Before: integration.FieldValue{Kind: v.Kind}, After: v})
	}
	return deltas
}
