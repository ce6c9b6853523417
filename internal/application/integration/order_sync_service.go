package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultEchoWindow is how long after our own write an inbound event for the same
// external id is treated as the echo of that write
const DefaultEchoWindow = 5 * time.Minute

// OrderSyncResult describes what happened to an inbound storefront order
type OrderSyncResult struct {
	Order       *integration.Order
	Created     bool
	EchoSkipped bool
	Resolution  *integration.Resolution
}

// OpsUpdateOptions selects where an operational change is propagated
type OpsUpdateOptions struct {
	PropagateToWarehouse  bool
	PropagateToStorefront bool
}

// CancelOptions controls the side effects of a cancellation
type CancelOptions struct {
	Reason string
	// NotifyStorefront cancels the order on the storefront as well
	NotifyStorefront bool
	// RefundAmount, when set, refunds the customer through the storefront
	RefundAmount *decimal.Decimal
}

// OrderSyncDeps groups the collaborators of OrderSyncService
type OrderSyncDeps struct {
	TxScope   TransactionScope
	Channels  integration.ChannelRepository
	Orders    integration.OrderRepository
	SyncLogs  integration.SyncLogRepository
	Conflicts *ConflictService
	Jobs      JobEnqueuer
	Policy    integration.TestOrderPolicySource
	Metrics   *telemetry.SyncMetrics
	Logger    *zap.Logger
}

// OrderSyncService applies storefront, operator and warehouse changes to orders and
// enqueues the propagation jobs they imply
type OrderSyncService struct {
	OrderSyncDeps
	echoWindow time.Duration
	now        func() time.Time
}

// NewOrderSyncService creates an OrderSyncService
func NewOrderSyncService(deps OrderSyncDeps, echoWindow time.Duration) *OrderSyncService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy == nil {
		deps.Policy = integration.StaticTestOrderPolicy{}
	}
	if echoWindow <= 0 {
		echoWindow = DefaultEchoWindow
	}
	deps.Logger = deps.Logger.Named("order_sync")
	return &OrderSyncService{OrderSyncDeps: deps, echoWindow: echoWindow, now: time.Now}
}

// WithClock overrides the service clock
func (s *OrderSyncService) WithClock(now func() time.Time) *OrderSyncService {
	s.now = now
	return s
}

// HandleStorefrontOrder applies an order reported by a storefront. Events arriving shortly
// after we wrote to the same order are echoes of our own change and are skipped.
func (s *OrderSyncService) HandleStorefrontOrder(ctx context.Context, channelID uuid.UUID, src integration.StorefrontOrder, receivedAt time.Time) (*OrderSyncResult, error) {
	channel, err := s.Channels.FindByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	echo, err := s.SyncLogs.ExistsForExternalIDSince(ctx, channel.ID, integration.EntityTypeOrder, src.ExternalID, s.now().UTC().Add(-s.echoWindow))
	if err != nil {
		return nil, fmt.Errorf("echo check: %w", err)
	}
	if echo {
		s.Metrics.RecordEcho(ctx, string(integration.EntityTypeOrder))
		logger.Enrich(ctx, s.Logger).Debug("Skipping echo of own write",
			zap.String("external_id", src.ExternalID),
			zap.String("platform", string(channel.Platform)),
		)
		return &OrderSyncResult{EchoSkipped: true}, nil
	}
	return s.upsert(ctx, channel, src, receivedAt, true)
}

// ImportStorefrontOrder stores an order pulled during onboarding. No jobs are enqueued.
func (s *OrderSyncService) ImportStorefrontOrder(ctx context.Context, channel *integration.Channel, src integration.StorefrontOrder, receivedAt time.Time) (*OrderSyncResult, error) {
	return s.upsert(ctx, channel, src, receivedAt, false)
}

func (s *OrderSyncService) upsert(ctx context.Context, channel *integration.Channel, src integration.StorefrontOrder, receivedAt time.Time, propagate bool) (*OrderSyncResult, error) {
	result := &OrderSyncResult{}
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		order, err := repos.Orders().FindByExternalID(ctx, channel.ID, src.ExternalID)
		switch {
		case errors.Is(err, integration.ErrOrderNotFound):
			order, err = s.create(ctx, repos, channel, src, propagate)
			if err != nil {
				return err
			}
			result.Order, result.Created = order, true
			return nil
		case err != nil:
			return err
		}

		at := src.UpdatedAt
		if at.IsZero() {
			at = receivedAt
		}
		res, err := s.Conflicts.Apply(ctx, repos, order, src.CommerceValues(), channel.Platform, at.UTC())
		if err != nil {
			return err
		}
		result.Order, result.Resolution = order, res

		if accepted(res, integration.FieldShippingMethod) {
			if method, ok := channel.ResolveShippingMethod(order.ShippingMethod); ok && method != order.WarehouseShippingMethod {
				order.WarehouseShippingMethod = method
				if err := repos.Orders().Save(ctx, order); err != nil {
					return err
				}
			}
		}
		if src.Cancelled && !order.Status.IsFinal() {
			return s.cancelInTx(ctx, repos, order, channel.Platform, CancelOptions{Reason: "cancelled on storefront"}, propagate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *OrderSyncService) create(ctx context.Context, repos TransactionalRepositories, channel *integration.Channel, src integration.StorefrontOrder, propagate bool) (*integration.Order, error) {
	now := s.now().UTC()
	order, err := integration.NewOrderFromStorefront(channel.ClientID, channel.ID, channel.Platform, src, now)
	if err != nil {
		return nil, err
	}
	log := logger.Enrich(ctx, s.Logger).With(zap.String("external_id", src.ExternalID))

	if decision := s.Policy.Current().Classify(src); decision.IsTest {
		order.MarkTest(decision.Rule)
		log.Info("Order classified as test order", zap.String("rule", decision.Rule))
	}

	entries := []*integration.SyncLogEntry{
		integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID, order.ExternalID,
			integration.SyncActionCreate, channel.Platform, creationDeltas(order), now),
	}
	if method, ok := channel.ResolveShippingMethod(src.ShippingMethod); ok {
		order.WarehouseShippingMethod = method
	} else {
		if err := order.Hold(integration.HoldReasonUnmappedShipping, now); err != nil {
			return nil, err
		}
		entries = append(entries, integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID,
			order.ExternalID, integration.SyncActionHold, integration.OriginSystem, nil, now).
			WithError(integration.HoldReasonUnmappedShipping))
		log.Warn("Order held: shipping method not mapped", zap.String("shipping_method", src.ShippingMethod))
	}

	if err := repos.Orders().Save(ctx, order); err != nil {
		return nil, err
	}
	if err := repos.SyncLogs().Save(ctx, entries...); err != nil {
		return nil, err
	}
	s.Metrics.RecordWrite(ctx, string(integration.EntityTypeOrder), string(channel.Platform))

	if propagate && order.CanPropagateToWarehouse() {
		if err := enqueueSync(ctx, s.Jobs, repos, orderJob(integration.OpCreateOutbound, order)); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// UpdateOperationalFields writes ops fields with origin OPS and optionally propagates
// the order. Fields of any other category are refused.
func (s *OrderSyncService) UpdateOperationalFields(ctx context.Context, orderID uuid.UUID, changes map[integration.Field]integration.FieldValue, opts OpsUpdateOptions) (*integration.Resolution, error) {
	if len(changes) == 0 {
		return nil, shared.NewDomainError("EMPTY_CHANGES", "no fields to update")
	}
	for f := range changes {
		category, ok := integration.CategoryOf(integration.EntityTypeOrder, f)
		if !ok {
			return nil, fmt.Errorf("%w: %s", integration.ErrUnknownField, f)
		}
		if category != integration.CategoryOps {
			return nil, fmt.Errorf("%w: %s", integration.ErrFieldNotOperational, f)
		}
	}

	var res *integration.Resolution
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		order, err := repos.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		res, err = s.Conflicts.Apply(ctx, repos, order, changes, integration.OriginOps, s.now().UTC())
		if err != nil {
			return err
		}
		if !res.HasChanges() {
			return nil
		}

		if opts.PropagateToWarehouse && order.CanPropagateToWarehouse() && !order.HasOutbound() {
			if err := enqueueSync(ctx, s.Jobs, repos, orderJob(integration.OpCreateOutbound, order)); err != nil {
				return err
			}
		}
		if opts.PropagateToStorefront && order.TrackingNumber != "" && !order.IsTest {
			if err := enqueueSync(ctx, s.Jobs, repos, orderJob(integration.OpCreateFulfillment, order)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CancelOrder cancels an order on behalf of an operator
func (s *OrderSyncService) CancelOrder(ctx context.Context, orderID uuid.UUID, opts CancelOptions) (*integration.Order, error) {
	var order *integration.Order
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		if order, err = repos.Orders().FindByID(ctx, orderID); err != nil {
			return err
		}
		return s.cancelInTx(ctx, repos, order, integration.OriginOps, opts, true)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderSyncService) cancelInTx(ctx context.Context, repos TransactionalRepositories, order *integration.Order, origin integration.Origin, opts CancelOptions, propagate bool) error {
	now := s.now().UTC()
	before := order.FulfillmentState
	if err := order.Cancel(now); err != nil {
		return err
	}
	if err := repos.Orders().Save(ctx, order); err != nil {
		return err
	}
	entry := integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID, order.ExternalID,
		integration.SyncActionCancel, origin, []integration.FieldDelta{{
			Field:  integration.FieldFulfillmentState,
			Before: integration.StringValue(before),
			After:  integration.StringValue(order.FulfillmentState),
		}}, now)
	entry.ErrorMessage = opts.Reason
	if err := repos.SyncLogs().Save(ctx, entry); err != nil {
		return err
	}
	if !propagate {
		return nil
	}

	if order.HasOutbound() && !order.IsTest {
		job := orderJob(integration.OpCancelOutbound, order)
		job.OutboundID = order.WarehouseOutboundID
		if err := enqueueSync(ctx, s.Jobs, repos, job); err != nil {
			return err
		}
	}
	if opts.NotifyStorefront && order.ParentOrderID == nil {
		job := orderJob(integration.OpCancelOrder, order)
		job.Reason = opts.Reason
		if err := enqueueSync(ctx, s.Jobs, repos, job); err != nil {
			return err
		}
	}
	if opts.RefundAmount != nil && opts.RefundAmount.IsPositive() {
		job := orderJob(integration.OpCreateRefund, order)
		job.Reason = opts.Reason
		job.Amount = opts.RefundAmount
		if err := enqueueSync(ctx, s.Jobs, repos, job); err != nil {
			return err
		}
	}
	return nil
}

// SplitOrder divides an order into child orders, each fulfilled separately.
// A held order that was already submitted has its outbound cancelled.
func (s *OrderSyncService) SplitOrder(ctx context.Context, orderID uuid.UUID, parts []integration.SplitPart) ([]*integration.Order, error) {
	var children []*integration.Order
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		order, err := repos.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if children, err = order.Split(parts, now); err != nil {
			return err
		}
		if err := repos.Orders().Save(ctx, order); err != nil {
			return err
		}

		entries := []*integration.SyncLogEntry{
			integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID, order.ExternalID,
				integration.SyncActionSplit, integration.OriginOps, nil, now),
		}
		for _, child := range children {
			if err := repos.Orders().Save(ctx, child); err != nil {
				return err
			}
			entries = append(entries, integration.NewSyncLogEntry(child.ClientID, child.ChannelID, integration.EntityTypeOrder, child.ID,
				child.ExternalID, integration.SyncActionCreate, integration.OriginOps, creationDeltas(child), now))
		}
		if err := repos.SyncLogs().Save(ctx, entries...); err != nil {
			return err
		}

		if order.HasOutbound() && !order.IsTest {
			job := orderJob(integration.OpCancelOutbound, order)
			job.OutboundID = order.WarehouseOutboundID
			if err := enqueueSync(ctx, s.Jobs, repos, job); err != nil {
				return err
			}
		}
		for _, child := range children {
			if child.CanPropagateToWarehouse() {
				if err := enqueueSync(ctx, s.Jobs, repos, orderJob(integration.OpCreateOutbound, child)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// HoldOrder puts an order on hold and holds its outbound at the warehouse
func (s *OrderSyncService) HoldOrder(ctx context.Context, orderID uuid.UUID, reason string) (*integration.Order, error) {
	if reason == "" {
		reason = integration.HoldReasonOperator
	}
	var order *integration.Order
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		if order, err = repos.Orders().FindByID(ctx, orderID); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := order.Hold(reason, now); err != nil {
			return err
		}
		if err := repos.Orders().Save(ctx, order); err != nil {
			return err
		}
		entry := integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID, order.ExternalID,
			integration.SyncActionHold, integration.OriginOps, nil, now)
		entry.ErrorMessage = reason
		if err := repos.SyncLogs().Save(ctx, entry); err != nil {
			return err
		}
		if order.HasOutbound() && !order.IsTest {
			job := orderJob(integration.OpHoldOutbound, order)
			job.OutboundID = order.WarehouseOutboundID
			job.Reason = reason
			return enqueueSync(ctx, s.Jobs, repos, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ReleaseOrder lifts a hold. The shipping method is resolved again first, so a mapping
// added since the order arrived releases it; an order still unmapped stays held.
func (s *OrderSyncService) ReleaseOrder(ctx context.Context, orderID uuid.UUID) (*integration.Order, error) {
	var order *integration.Order
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		if order, err = repos.Orders().FindByID(ctx, orderID); err != nil {
			return err
		}
		channel, err := repos.Channels().FindByID(ctx, order.ChannelID)
		if err != nil {
			return err
		}
		if method, ok := channel.ResolveShippingMethod(order.ShippingMethod); ok {
			order.WarehouseShippingMethod = method
		}

		now := s.now().UTC()
		if err := order.Release(now); err != nil {
			return err
		}
		if err := repos.Orders().Save(ctx, order); err != nil {
			return err
		}
		if err := repos.SyncLogs().Save(ctx, integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder,
			order.ID, order.ExternalID, integration.SyncActionRelease, integration.OriginOps, nil, now)); err != nil {
			return err
		}

		switch {
		case order.IsTest:
			return nil
		case order.HasOutbound():
			job := orderJob(integration.OpReleaseOutbound, order)
			job.OutboundID = order.WarehouseOutboundID
			return enqueueSync(ctx, s.Jobs, repos, job)
		case order.CanPropagateToWarehouse():
			return enqueueSync(ctx, s.Jobs, repos, orderJob(integration.OpCreateOutbound, order))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ApplyWarehouseStatus writes a fulfillment status reported by the warehouse. A shipped
// status marks the order shipped and schedules the storefront fulfillment once.
func (s *OrderSyncService) ApplyWarehouseStatus(ctx context.Context, change integration.WarehouseStatusChange) (*integration.Order, error) {
	values := map[integration.Field]integration.FieldValue{
		integration.FieldFulfillmentState: integration.StringValue(change.Status),
	}
	if change.Carrier != "" {
		values[integration.FieldCarrier] = integration.StringValue(change.Carrier)
	}
	if change.TrackingNumber != "" {
		values[integration.FieldTrackingNumber] = integration.StringValue(change.TrackingNumber)
	}
	at := change.ChangedAt
	if at.IsZero() {
		at = s.now()
	}

	var order *integration.Order
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		if order, err = repos.Orders().FindByOutboundID(ctx, change.OutboundID); err != nil {
			return err
		}
		if _, err := s.Conflicts.Apply(ctx, repos, order, values, integration.OriginWarehouse, at.UTC()); err != nil {
			return err
		}

		// an ops value that won the field keeps the order open
		if order.FulfillmentState != integration.FulfillmentShipped || order.Status.IsFinal() {
			return nil
		}
		order.MarkShipped(s.now().UTC())
		if err := repos.Orders().Save(ctx, order); err != nil {
			return err
		}
		if order.IsTest {
			return nil
		}
		return enqueueSync(ctx, s.Jobs, repos, orderJob(integration.OpCreateFulfillment, order))
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ApplyShippingNotification records parcels leaving the warehouse
func (s *OrderSyncService) ApplyShippingNotification(ctx context.Context, n integration.ShippingNotification) (*integration.Order, error) {
	return s.ApplyWarehouseStatus(ctx, integration.WarehouseStatusChange{
		OutboundID:     n.OutboundID,
		Status:         integration.FulfillmentShipped,
		Carrier:        n.Carrier,
		TrackingNumber: n.TrackingNumber,
		ChangedAt:      n.ShippedAt,
	})
}

// LinkOutbound records that an outbound already existing at the warehouse belongs to order.
// Linking is idempotent; an order linked to a different outbound is left untouched.
func (s *OrderSyncService) LinkOutbound(ctx context.Context, orderID uuid.UUID, outboundID string) (bool, error) {
	linked := false
	err := s.TxScope.Execute(ctx, func(repos TransactionalRepositories) error {
		order, err := repos.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.HasOutbound() {
			return nil
		}
		now := s.now().UTC()
		order.WarehouseOutboundID = outboundID
		order.Touch(now)
		if err := repos.Orders().Save(ctx, order); err != nil {
			return err
		}
		linked = true
		entry := integration.NewSyncLogEntry(order.ClientID, order.ChannelID, integration.EntityTypeOrder, order.ID, order.ExternalID,
			integration.SyncActionLink, integration.OriginWarehouse, nil, now)
		return repos.SyncLogs().Save(ctx, entry)
	})
	return linked, err
}

func orderJob(op integration.SyncOperation, order *integration.Order) integration.SyncJobPayload {
	return integration.SyncJobPayload{
		Operation:  op,
		EntityType: integration.EntityTypeOrder,
		EntityID:   order.ID,
		ChannelID:  order.ChannelID,
		ExternalID: order.ExternalID,
	}
}

// creationDeltas lists the initial values of a new order for its create record
func creationDeltas(order *integration.Order) []integration.FieldDelta {
	fields := []integration.Field{
		integration.FieldCustomerName,
		integration.FieldCustomerEmail,
		integration.FieldShippingAddress,
		integration.FieldTotalAmount,
		integration.FieldCurrency,
		integration.FieldShippingMethod,
		integration.FieldTags,
	}
	deltas := make([]integration.FieldDelta, 0, len(fields))
	for _, f := range fields {
		v, err := order.GetField(f)
		if err != nil {
			continue
		}
		kind, _ := integration.KindOf(integration.EntityTypeOrder, f)
		deltas = append(deltas, integration.FieldDelta{Field: f, Before: integration.FieldValue{Kind: kind}, After: v})
	}
	return deltas
}

func accepted(res *integration.Resolution, field integration.Field) bool {
	for _, d := range res.Accepted {
		if d.Field == field {
			return true
		}
	}
	return false
}
