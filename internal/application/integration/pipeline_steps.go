package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// errItemsFailed fails a step after every item was attempted
var errItemsFailed = errors.New("items failed")

// OnboardingExecutors builds the executors of the five onboarding steps. Each step is
// idempotent: re-running it after a partial failure upserts by natural key.
type OnboardingExecutors struct {
	Storefronts integration.StorefrontRegistry
	Warehouse   integration.WarehouseAdapter
	Orders      integration.OrderRepository
	Products    integration.ProductRepository
	Channels    integration.ChannelRepository
	OrderSync   *OrderSyncService
	ProductSync *ProductSyncService
	Now         func() time.Time
}

// Executors returns the executor of every step keyed by step name
func (o *OnboardingExecutors) Executors() map[string]StepExecutor {
	if o.Now == nil {
		o.Now = time.Now
	}
	return map[string]StepExecutor{
		integration.StepPullStorefront:          StepFunc(o.pullStorefront),
		integration.StepImportWarehouseProducts: StepFunc(o.importWarehouseProducts),
		integration.StepPushLocalProducts:       StepFunc(o.pushLocalProducts),
		integration.StepReconcileFulfillment:    StepFunc(o.reconcileFulfillment),
		integration.StepReconcileStock:          StepFunc(o.reconcileStock),
	}
}

func finish(result integration.StepResult) (integration.StepResult, error) {
	if result.Failed > 0 {
		return result, fmt.Errorf("%d %w", result.Failed, errItemsFailed)
	}
	return result, nil
}

// pullStorefront fetches products and orders concurrently and stores them locally.
// Products go first so imported orders find their items.
func (o *OnboardingExecutors) pullStorefront(ctx context.Context, p *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error) {
	adapter, err := o.Storefronts.Storefront(channel.Platform)
	if err != nil {
		return integration.StepResult{}, err
	}

	var (
		products []integration.StorefrontProduct
		orders   []integration.StorefrontOrder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = adapter.ListProducts(gctx, channel)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = adapter.ListOrders(gctx, channel, p.SyncFromDate)
		return err
	})
	if err := g.Wait(); err != nil {
		return integration.StepResult{}, err
	}

	log := logger.L(ctx)
	var result integration.StepResult
	now := o.Now().UTC()
	for _, sp := range products {
		if _, err := o.ProductSync.ImportStorefrontProduct(ctx, channel, sp, now); err != nil {
			log.Warn("Product import failed", zap.String("sku", sp.SKU), zap.Error(err))
			result.Failed++
			continue
		}
		result.Processed++
	}
	for _, so := range orders {
		if _, err := o.OrderSync.ImportStorefrontOrder(ctx, channel, so, now); err != nil {
			log.Warn("Order import failed", zap.String("external_id", so.ExternalID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Processed++
	}
	return finish(result)
}

// importWarehouseProducts creates local products for warehouse products not known by SKU
func (o *OnboardingExecutors) importWarehouseProducts(ctx context.Context, _ *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error) {
	products, err := o.Warehouse.ListProducts(ctx, channel.WarehouseAccountID)
	if err != nil {
		return integration.StepResult{}, err
	}
	var result integration.StepResult
	for _, wp := range products {
		created, err := o.ProductSync.ImportWarehouseProduct(ctx, channel, wp)
		switch {
		case err != nil:
			logger.L(ctx).Warn("Warehouse product import failed", zap.String("sku", wp.SKU), zap.Error(err))
			result.Failed++
		case created:
			result.Processed++
		default:
			result.Skipped++
		}
	}
	return finish(result)
}

// pushLocalProducts creates unlinked local products at the warehouse. A SKU the warehouse
// already knows is linked and counted as skipped.
func (o *OnboardingExecutors) pushLocalProducts(ctx context.Context, _ *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error) {
	products, err := o.Products.ListUnlinked(ctx, channel.ID)
	if err != nil {
		return integration.StepResult{}, err
	}
	var result integration.StepResult
	for _, product := range products {
		jfsku, linked, err := PushProduct(ctx, o.Warehouse, channel.WarehouseAccountID, product)
		if err == nil {
			err = o.ProductSync.LinkWarehouseProduct(ctx, product.ID, jfsku)
		}
		switch {
		case err != nil:
			logger.L(ctx).Warn("Product push failed", zap.String("sku", product.SKU), zap.Error(err))
			result.Failed++
		case linked:
			logger.L(ctx).Debug("skippedAlreadyLinked", zap.String("sku", product.SKU), zap.String("jfsku", jfsku))
			result.Skipped++
		default:
			result.Processed++
		}
	}
	return finish(result)
}

// reconcileFulfillment links warehouse outbounds to local orders by order number, ignoring
// case, then applies status changes since the channel's last warehouse sync
func (o *OnboardingExecutors) reconcileFulfillment(ctx context.Context, p *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error) {
	started := o.Now().UTC()
	outbounds, err := o.Warehouse.ListOutbounds(ctx, channel.WarehouseAccountID, p.SyncFromDate)
	if err != nil {
		return integration.StepResult{}, err
	}
	orders, err := o.Orders.ListWithoutOutbound(ctx, channel.ID)
	if err != nil {
		return integration.StepResult{}, err
	}

	fold := cases.Fold()
	byNumber := make(map[string]*integration.Order, len(orders))
	for _, order := range orders {
		byNumber[fold.String(order.OrderNumber)] = order
	}

	var result integration.StepResult
	for _, ob := range outbounds {
		order, ok := byNumber[fold.String(ob.MerchantOutboundNumber)]
		if !ok {
			result.Skipped++
			continue
		}
		if _, err := o.OrderSync.LinkOutbound(ctx, order.ID, ob.OutboundID); err != nil {
			logger.L(ctx).Warn("Outbound link failed", zap.String("outbound_id", ob.OutboundID), zap.Error(err))
			result.Failed++
			continue
		}
		result.Processed++
	}

	since := time.Time{}
	switch {
	case channel.LastWarehouseSyncAt != nil:
		since = *channel.LastWarehouseSyncAt
	case p.SyncFromDate != nil:
		since = *p.SyncFromDate
	}
	changes, err := o.Warehouse.PollStatusChanges(ctx, channel.WarehouseAccountID, since)
	if err != nil {
		return result, err
	}
	for _, c := range changes {
		_, err := o.OrderSync.ApplyWarehouseStatus(ctx, c)
		switch {
		case errors.Is(err, integration.ErrOrderNotFound):
			result.Skipped++
		case err != nil:
			logger.L(ctx).Warn("Status change failed", zap.String("outbound_id", c.OutboundID), zap.Error(err))
			result.Failed++
		default:
			result.Processed++
		}
	}
	if result.Failed > 0 {
		return finish(result)
	}

	fresh, err := o.Channels.FindByID(ctx, channel.ID)
	if err != nil {
		return result, err
	}
	fresh.RecordWarehouseSync(started)
	if err := o.Channels.Save(ctx, fresh); err != nil {
		return result, err
	}
	return result, nil
}

// reconcileStock applies warehouse stock levels through the resolver
func (o *OnboardingExecutors) reconcileStock(ctx context.Context, _ *integration.Pipeline, channel *integration.Channel) (integration.StepResult, error) {
	levels, err := o.Warehouse.GetStockLevels(ctx, channel.WarehouseAccountID)
	if err != nil {
		return integration.StepResult{}, err
	}
	var result integration.StepResult
	for _, level := range levels {
		if level.At.IsZero() {
			level.At = o.Now()
		}
		_, err := o.ProductSync.ApplyWarehouseStock(ctx, channel.ID, level)
		switch {
		case errors.Is(err, integration.ErrProductNotFound):
			result.Skipped++
		case err != nil:
			logger.L(ctx).Warn("Stock update failed", zap.String("jfsku", level.JFSKU), zap.Error(err))
			result.Failed++
		default:
			result.Processed++
		}
	}
	return finish(result)
}
