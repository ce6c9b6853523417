package integration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// JobEnqueuer persists propagation jobs. EnqueueWithTx writes through a repository bound
// to the caller's transaction so the job commits together with the business write.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any, opts shared.JobOptions) (*shared.Job, error)
	EnqueueWithTx(ctx context.Context, jobs shared.JobRepository, queue string, payload any, opts shared.JobOptions) (*shared.Job, error)
}

// Job priorities. Customer-visible propagation runs before bookkeeping work.
const (
	PriorityOutbound    = 10
	PriorityFulfillment = 20
	PriorityCancel      = 30
	PriorityEvent       = 5
	PriorityPoll        = 0
)

// jobOptionsFor returns the enqueue options used for an operation
func jobOptionsFor(op integration.SyncOperation) shared.JobOptions {
	opts := shared.DefaultJobOptions()
	switch op {
	case integration.OpCancelOutbound, integration.OpCancelOrder, integration.OpHoldOutbound:
		opts.Priority = PriorityCancel
	case integration.OpCreateFulfillment, integration.OpCreateRefund:
		opts.Priority = PriorityFulfillment
	case integration.OpCreateOutbound, integration.OpReleaseOutbound, integration.OpPushProduct:
		opts.Priority = PriorityOutbound
	case integration.OpOrderEvent, integration.OpProductEvent:
		opts.Priority = PriorityEvent
		opts.RetryDelay = 15 * time.Second
	case integration.OpPollWarehouse:
		opts.Priority = PriorityPoll
		opts.RetryLimit = 1
	}
	return opts
}

// enqueueSync schedules a sync job inside the transaction of repos
func enqueueSync(ctx context.Context, enq JobEnqueuer, repos TransactionalRepositories, payload integration.SyncJobPayload) error {
	_, err := enq.EnqueueWithTx(ctx, repos.Jobs(), payload.Operation.QueueFor(), payload, jobOptionsFor(payload.Operation))
	return err
}

// ScheduleWarehousePoll enqueues a warehouse poll for a channel
func ScheduleWarehousePoll(ctx context.Context, enq JobEnqueuer, channelID uuid.UUID) (*shared.Job, error) {
	payload := integration.SyncJobPayload{Operation: integration.OpPollWarehouse, ChannelID: channelID}
	return enq.Enqueue(ctx, payload.Operation.QueueFor(), payload, jobOptionsFor(payload.Operation))
}

// ScheduleStorefrontEvent enqueues the fetch of an order or product a storefront announced.
// The handler re-reads the record from the storefront, so the webhook body is never trusted.
func ScheduleStorefrontEvent(ctx context.Context, enq JobEnqueuer, channelID uuid.UUID, entity integration.EntityType, externalID string) (*shared.Job, error) {
	payload := integration.SyncJobPayload{ChannelID: channelID, EntityType: entity, ExternalID: externalID}
	switch entity {
	case integration.EntityTypeOrder:
		payload.Operation = integration.OpOrderEvent
	case integration.EntityTypeProduct:
		payload.Operation = integration.OpProductEvent
	default:
		return nil, shared.NewDomainError("INVALID_ENTITY_TYPE", fmt.Sprintf("entity type must be order or product, got %q", entity))
	}
	if externalID == "" {
		return nil, integration.ErrOrderMissingExternalID
	}
	return enq.Enqueue(ctx, payload.Operation.QueueFor(), payload, jobOptionsFor(payload.Operation))
}

func sortedFields(values map[integration.Field]integration.FieldValue) []integration.Field {
	fields := make([]integration.Field, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}
