package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultPollLookback bounds the first warehouse poll of a channel that has never synced
const DefaultPollLookback = 24 * time.Hour

// PropagationDeps groups the collaborators of PropagationHandlers
type PropagationDeps struct {
	TxScope     TransactionScope
	Channels    integration.ChannelRepository
	Orders      integration.OrderRepository
	Products    integration.ProductRepository
	Storefronts integration.StorefrontRegistry
	Warehouse   integration.WarehouseAdapter
	OrderSync   *OrderSyncService
	ProductSync *ProductSyncService
	Logger      *zap.Logger
}

// PropagationHandlers executes sync jobs against the external platforms. Every operation
// is idempotent by the natural key in its payload, so a redelivered job is harmless.
type PropagationHandlers struct {
	PropagationDeps
	now func() time.Time
}

// NewPropagationHandlers creates the job handlers
func NewPropagationHandlers(deps PropagationDeps) *PropagationHandlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("propagation")
	return &PropagationHandlers{PropagationDeps: deps, now: time.Now}
}

// WithClock overrides the handler clock
func (h *PropagationHandlers) WithClock(now func() time.Time) *PropagationHandlers {
	h.now = now
	return h
}

// Queues lists the queues served by Handle
func (h *PropagationHandlers) Queues() []string {
	return []string{
		integration.QueueWarehouse,
		integration.QueueStorefront,
		integration.QueueStorefrontEvents,
		integration.QueueWarehousePoll,
	}
}

// Handle decodes a sync job and runs its operation
func (h *PropagationHandlers) Handle(ctx context.Context, job *shared.Job) error {
	var p integration.SyncJobPayload
	if err := job.DecodePayload(&p); err != nil {
		return err
	}
	ctx = logger.WithChannelID(ctx, p.ChannelID.String())
	logger.Enrich(ctx, h.Logger).Debug("Handling sync job",
		zap.String("operation", string(p.Operation)),
		zap.String("external_id", p.ExternalID),
	)

	var err error
	switch p.Operation {
	case integration.OpCreateOutbound:
		err = h.createOutbound(ctx, p)
	case integration.OpHoldOutbound, integration.OpReleaseOutbound, integration.OpCancelOutbound:
		err = h.changeOutbound(ctx, p)
	case integration.OpPushProduct:
		err = h.pushProduct(ctx, p)
	case integration.OpCreateFulfillment:
		err = h.createFulfillment(ctx, p)
	case integration.OpCancelOrder:
		err = h.cancelOrder(ctx, p)
	case integration.OpCreateRefund:
		err = h.createRefund(ctx, p)
	case integration.OpOrderEvent:
		err = h.orderEvent(ctx, p)
	case integration.OpProductEvent:
		err = h.productEvent(ctx, p)
	case integration.OpPollWarehouse:
		err = h.pollWarehouse(ctx, p)
	default:
		return shared.Permanent(fmt.Errorf("unknown sync operation %q", p.Operation))
	}
	return classify(err)
}

// classify marks errors that a retry cannot fix as permanent
func classify(err error) error {
	switch {
	case err == nil, shared.IsPermanent(err), integration.IsTransient(err):
		return err
	case errors.Is(err, integration.ErrOrderNotFound),
		errors.Is(err, integration.ErrProductNotFound),
		errors.Is(err, integration.ErrChannelNotFound),
		errors.Is(err, integration.ErrReauthorizationRequired),
		errors.Is(err, integration.ErrPlatformNotConfigured),
		errors.Is(err, integration.ErrShippingMethodUnmapped):
		return shared.Permanent(err)
	}
	return err
}

func (h *PropagationHandlers) createOutbound(ctx context.Context, p integration.SyncJobPayload) error {
	order, err := h.Orders.FindByID(ctx, p.EntityID)
	if err != nil {
		return err
	}
	if order.HasOutbound() || !order.CanPropagateToWarehouse() {
		return nil
	}
	channel, err := h.Channels.FindByID(ctx, order.ChannelID)
	if err != nil {
		return err
	}
	if order.WarehouseShippingMethod == "" {
		return integration.ErrShippingMethodUnmapped
	}

	req := integration.OutboundRequest{
		MerchantOutboundNumber: order.OrderNumber,
		ShippingMethod:         order.WarehouseShippingMethod,
		ShippingAddress:        order.ShippingAddress,
		CustomerName:           order.CustomerName,
		Priority:               order.Priority,
		Note:                   order.InternalNotes,
	}
	for _, item := range order.Items {
		product, err := h.Products.FindBySKU(ctx, order.ChannelID, item.SKU)
		if err != nil {
			return fmt.Errorf("outbound item %s: %w", item.SKU, err)
		}
		if !product.IsLinked() {
			// the push_product job for this SKU has not run yet
			return fmt.Errorf("outbound item %s not yet known to the warehouse: %w", item.SKU, integration.ErrPlatformUnavailable)
		}
		req.Items = append(req.Items, integration.OutboundItem{JFSKU: product.WarehouseSKU, SKU: item.SKU, Quantity: item.Quantity})
	}

	outboundID, err := h.Warehouse.CreateOutbound(ctx, channel.WarehouseAccountID, req)
	if errors.Is(err, integration.ErrDuplicate) {
		outboundID, err = h.findOutbound(ctx, channel.WarehouseAccountID, order.OrderNumber)
	}
	if err != nil {
		return h.recordFailure(ctx, order, integration.OriginWarehouse, err)
	}

	if _, err := h.OrderSync.LinkOutbound(ctx, order.ID, outboundID); err != nil {
		return err
	}
	return h.recordPropagation(ctx, order, integration.OriginWarehouse)
}

func (h *PropagationHandlers) findOutbound(ctx context.Context, accountID, orderNumber string) (string, error) {
	outbounds, err := h.Warehouse.ListOutbounds(ctx, accountID, nil)
	if err != nil {
		return "", err
	}
	for _, o := range outbounds {
		if strings.EqualFold(o.MerchantOutboundNumber, orderNumber) {
			return o.OutboundID, nil
		}
	}
	return "", fmt.Errorf("outbound %s reported as duplicate but not listed: %w", orderNumber, integration.ErrRemoteNotFound)
}

func (h *PropagationHandlers) changeOutbound(ctx context.Context, p integration.SyncJobPayload) error {
	order, err := h.Orders.FindByID(ctx, p.EntityID)
	if err != nil {
		return err
	}
	channel, err := h.Channels.FindByID(ctx, order.ChannelID)
	if err != nil {
		return err
	}
	outboundID := p.OutboundID
	if outboundID == "" {
		outboundID = order.WarehouseOutboundID
	}
	if outboundID == "" {
		return nil
	}

	account := channel.WarehouseAccountID
	switch p.Operation {
	case integration.OpHoldOutbound:
		err = h.Warehouse.HoldOutbound(ctx, account, outboundID, p.Reason)
	case integration.OpReleaseOutbound:
		err = h.Warehouse.ReleaseOutbound(ctx, account, outboundID)
	case integration.OpCancelOutbound:
		err = h.Warehouse.CancelOutbound(ctx, account, outboundID)
		if errors.Is(err, integration.ErrRemoteNotFound) {
			err = nil
		}
	}
	if err != nil {
		return h.recordFailure(ctx, order, integration.OriginWarehouse, err)
	}
	return h.recordPropagation(ctx, order, integration.OriginWarehouse)
}

func (h *PropagationHandlers) pushProduct(ctx context.Context, p integration.SyncJobPayload) error {
	product, err := h.Products.FindByID(ctx, p.EntityID)
	if err != nil {
		return err
	}
	if product.IsLinked() {
		return nil
	}
	channel, err := h.Channels.FindByID(ctx, product.ChannelID)
	if err != nil {
		return err
	}
	jfsku, _, err := PushProduct(ctx, h.Warehouse, channel.WarehouseAccountID, product)
	if err != nil {
		return err
	}
	return h.ProductSync.LinkWarehouseProduct(ctx, product.ID, jfsku)
}

// PushProduct creates product at the warehouse. When the SKU already exists there the
// existing record is looked up instead; linked reports that case.
func PushProduct(ctx context.Context, warehouse integration.WarehouseAdapter, accountID string, product *integration.Product) (jfsku string, linked bool, err error) {
	jfsku, err = warehouse.CreateProduct(ctx, accountID, integration.WarehouseProduct{
		SKU:         product.SKU,
		Name:        product.Name,
		Barcode:     product.Barcode,
		WeightGrams: product.WeightGrams,
		NetPrice:    product.Price,
	})
	if err == nil {
		return jfsku, false, nil
	}
	if !errors.Is(err, integration.ErrDuplicate) {
		return "", false, err
	}
	existing, err := warehouse.FindProductBySKU(ctx, accountID, product.SKU)
	if err != nil {
		return "", false, fmt.Errorf("look up duplicate SKU %s: %w", product.SKU, err)
	}
	return existing.JFSKU, true, nil
}

func (h *PropagationHandlers) storefrontFor(ctx context.Context, order *integration.Order) (integration.StorefrontAdapter, *integration.Channel, error) {
	channel, err := h.Channels.FindByID(ctx, order.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := h.Storefronts.Storefront(channel.Platform)
	if err != nil {
		return nil, nil, err
	}
	return adapter, channel, nil
}

// storefrontOrderID returns the storefront id of an order. Split children are fulfilled
// against the order the customer placed.
func (h *PropagationHandlers) storefrontOrderID(ctx context.Context, order *integration.Order) (string, error) {
	if order.ParentOrderID == nil {
		return order.ExternalID, nil
	}
	parent, err := h.Orders.FindByID(ctx, *order.ParentOrderID)
	if err != nil {
		return "", err
	}
	return parent.ExternalID, nil
}

func (h *PropagationHandlers) createFulfillment(ctx context.Context, p integration.SyncJobPayload) error {
	order, err := h.Orders.FindByID(ctx, p.EntityID)
	if err != nil {
		return err
	}
	if order.IsTest {
		return nil
	}
	adapter, channel, err := h.storefrontFor(ctx, order)
	if err != nil {
		return err
	}
	externalID, err := h.storefrontOrderID(ctx, order)
	if err != nil {
		return err
	}
	err = adapter.CreateFulfillment(ctx, channel, integration.FulfillmentRequest{
		ExternalOrderID: externalID,
		Carrier:         order.Carrier,
		TrackingNumber:  order.TrackingNumber,
		NotifyCustomer:  true,
	})
	if errors.Is(err, integration.ErrDuplicate) {
		err = nil
	}
	if err != nil {
		return h.recordFailure(ctx, order, channel.Platform, err)
	}
	return h.recordPropagation(ctx, order, channel.Platform)
}

func (h *PropagationHandlers) cancelOrder(ctx context.Context, p integration.SyncJobPayload) error {
	order, err := h.Orders.FindByID(ctx, p.EntityID)
	if err != nil {
		return err
	}
	adapter, channel, err := h.storefrontFor(ctx, order)
	if err != nil {
		return err
	}
	if err := adapter.CancelOrder(ctx, channel, order.ExternalID, p.Reason); err != nil {
		return h.recordFailure(ctx, order, channel.Platform, err)
	}
	return h.recordPropagation(ctx, order, channel.Platform)
}

func (h *PropagationHandlers) createRefund(ctx context.Context, p integration.SyncJobPayload) error {
	if p.Amount == nil || !p.Amount.IsPositive() {
		return shared.Permanent(errors.New("refund amount must be positive"))
	}
	order, err := h.Orders.FindByID(ctx, p.EntityID)
	if err != nil {
		return err
	}
	adapter, channel, err := h.storefrontFor(ctx, order)
	if err != nil {
		return err
	}
	externalID, err := h.storefrontOrderID(ctx, order)
	if err != nil {
		return err
	}
	err = adapter.CreateRefund(ctx, channel, integration.RefundRequest{
		ExternalOrderID: externalID,
		Amount:          *p.Amount,
		Currency:        order.Currency,
		Reason:          p.Reason,
	})
	if err != nil {
		return h.recordFailure(ctx, order, channel.Platform, err)
	}
	return h.recordPropagation(ctx, order, channel.Platform)
}

func (h *PropagationHandlers) orderEvent(ctx context.Context, p integration.SyncJobPayload) error {
	channel, err := h.Channels.FindByID(ctx, p.ChannelID)
	if err != nil {
		return err
	}
	adapter, err := h.Storefronts.Storefront(channel.Platform)
	if err != nil {
		return err
	}
	src, err := adapter.GetOrder(ctx, channel, p.ExternalID)
	if err != nil {
		return err
	}
	_, err = h.OrderSync.HandleStorefrontOrder(ctx, channel.ID, *src, h.now().UTC())
	return err
}

func (h *PropagationHandlers) productEvent(ctx context.Context, p integration.SyncJobPayload) error {
	channel, err := h.Channels.FindByID(ctx, p.ChannelID)
	if err != nil {
		return err
	}
	adapter, err := h.Storefronts.Storefront(channel.Platform)
	if err != nil {
		return err
	}
	src, err := adapter.GetProduct(ctx, channel, p.ExternalID)
	if err != nil {
		return err
	}
	_, err = h.ProductSync.HandleStorefrontProduct(ctx, channel.ID, *src, h.now().UTC())
	return err
}

// pollWarehouse applies status changes and shipping notifications reported since the
// channel's last warehouse sync, then advances the watermark
func (h *PropagationHandlers) pollWarehouse(ctx context.Context, p integration.SyncJobPayload) error {
	channel, err := h.Channels.FindByID(ctx, p.ChannelID)
	if err != nil {
		return err
	}
	started := h.now().UTC()
	since := started.Add(-DefaultPollLookback)
	if channel.LastWarehouseSyncAt != nil {
		since = *channel.LastWarehouseSyncAt
	}

	applied, err := h.applyWarehouseChanges(ctx, channel, since)
	if err != nil {
		return err
	}
	notes, err := h.Warehouse.GetShippingNotifications(ctx, channel.WarehouseAccountID, since)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if _, err := h.OrderSync.ApplyShippingNotification(ctx, n); err != nil {
			if errors.Is(err, integration.ErrOrderNotFound) {
				continue
			}
			return err
		}
		applied++
	}

	channel.RecordWarehouseSync(started)
	if err := h.Channels.Save(ctx, channel); err != nil {
		return err
	}
	logger.Enrich(ctx, h.Logger).Debug("Warehouse poll complete",
		zap.Int("applied", applied),
		zap.Time("since", since),
	)
	return nil
}

// applyWarehouseChanges applies status deltas since the given time. Changes for outbounds
// that belong to no local order are ignored.
func (h *PropagationHandlers) applyWarehouseChanges(ctx context.Context, channel *integration.Channel, since time.Time) (int, error) {
	changes, err := h.Warehouse.PollStatusChanges(ctx, channel.WarehouseAccountID, since)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, c := range changes {
		if _, err := h.OrderSync.ApplyWarehouseStatus(ctx, c); err != nil {
			if errors.Is(err, integration.ErrOrderNotFound) {
				continue
			}
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (h *PropagationHandlers) recordPropagation(ctx context.Context, order *integration.Order, target integration.Origin) error {
	entry := integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID, order.ExternalID,
		integration.SyncActionPropagate, integration.OriginSystem, nil, h.now().UTC()).WithTarget(target)
	return h.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.SyncLogs().Save(ctx, entry)
	})
}

// recordFailure audits a failed propagation attempt and returns cause for the dispatcher
func (h *PropagationHandlers) recordFailure(ctx context.Context, order *integration.Order, target integration.Origin, cause error) error {
	entry := integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID, order.ExternalID,
		integration.SyncActionPropagate, integration.OriginSystem, nil, h.now().UTC()).
		WithTarget(target).
		WithError(cause.Error())
	err := h.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.SyncLogs().Save(ctx, entry)
	})
	if err != nil {
		logger.Enrich(ctx, h.Logger).Error("Failed to audit propagation failure", zap.Error(err))
	}
	return cause
}
