package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// StartPipelineRequest starts or resumes the onboarding of a channel
type StartPipelineRequest struct {
	ChannelID    string     `json:"channel_id" binding:"required,uuid"`
	ClientID     string     `json:"client_id" binding:"required,uuid"`
	SyncType     string     `json:"sync_type" binding:"omitempty,sync_type"`
	SyncFromDate *time.Time `json:"sync_from_date"`
}

// PipelineStatusQuery selects the pipeline of a channel
type PipelineStatusQuery struct {
	ChannelID string `form:"channel_id" binding:"required,uuid"`
	SyncType  string `form:"sync_type" binding:"omitempty,sync_type"`
}

// ConflictListQuery filters the review queue
type ConflictListQuery struct {
	EntityType string `form:"entity_type" binding:"required,entity_type"`
	ClientID   string `form:"client_id" binding:"omitempty,uuid"`
}

// ResolveConflictRequest carries an operator decision on a conflict. Field names the
// conflicting field and is needed to decode CustomValue.
type ResolveConflictRequest struct {
	EntityType  string          `json:"entity_type" binding:"required,entity_type"`
	Choice      string          `json:"choice" binding:"required,oneof=accept_local accept_incoming custom"`
	Field       string          `json:"field" binding:"required_if=Choice custom"`
	CustomValue json.RawMessage `json:"custom_value"`
}

// UpdateOrderFieldsRequest changes operational fields of an order
type UpdateOrderFieldsRequest struct {
	Changes               map[string]json.RawMessage `json:"changes" binding:"required,min=1"`
	PropagateToWarehouse  bool                       `json:"propagate_to_warehouse"`
	PropagateToStorefront bool                       `json:"propagate_to_storefront"`
}

// HoldOrderRequest puts an order on hold
type HoldOrderRequest struct {
	Reason string `json:"reason" binding:"required,max=100"`
}

// CancelOrderRequest cancels an order
type CancelOrderRequest struct {
	Reason           string           `json:"reason" binding:"max=255"`
	NotifyStorefront bool             `json:"notify_storefront"`
	RefundAmount     *decimal.Decimal `json:"refund_amount"`
}

// SplitOrderRequest splits an order into child orders
type SplitOrderRequest struct {
	Parts []integration.SplitPart `json:"parts" binding:"required,min=2,dive"`
}

// AdjustStockRequest sets the available quantity of a product
type AdjustStockRequest struct {
	ChannelID string `json:"channel_id" binding:"required,uuid"`
	SKU       string `json:"sku" binding:"required"`
	Available *int64 `json:"available" binding:"required,min=0"`
}

// WebhookEnvelope is the part of a storefront webhook body the engine reads. Both
// storefronts send the record id as "id".
type WebhookEnvelope struct {
	ID json.Number `json:"id"`
}

// ParseFieldValue decodes raw JSON into the typed value field f expects
func ParseFieldValue(entityType integration.EntityType, f integration.Field, raw json.RawMessage) (integration.FieldValue, error) {
	kind, ok := integration.KindOf(entityType, f)
	if !ok {
		return integration.FieldValue{}, fmt.Errorf("%w: %s", integration.ErrUnknownField, f)
	}
	if len(raw) == 0 {
		return integration.FieldValue{}, fmt.Errorf("%w: %s has no value", integration.ErrFieldKindMismatch, f)
	}
	var err error
	switch kind {
	case integration.KindString:
		var s string
		if err = json.Unmarshal(raw, &s); err == nil {
			return integration.StringValue(s), nil
		}
	case integration.KindDecimal:
		var d decimal.Decimal
		if err = json.Unmarshal(raw, &d); err == nil {
			return integration.DecimalValue(d), nil
		}
	case integration.KindInt:
		var i int64
		if err = json.Unmarshal(raw, &i); err == nil {
			return integration.IntValue(i), nil
		}
	case integration.KindList:
		var l []string
		if err = json.Unmarshal(raw, &l); err == nil {
			return integration.ListValue(l), nil
		}
	}
	return integration.FieldValue{}, fmt.Errorf("%w: %s expects %s", integration.ErrFieldKindMismatch, f, kind)
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// PipelineStepResponse is one step of a pipeline
type PipelineStepResponse struct {
	StepNumber     int        `json:"step_number"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsFailed    int        `json:"items_failed"`
	ItemsSkipped   int        `json:"items_skipped"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// PipelineResponse is the status of an onboarding pipeline
type PipelineResponse struct {
	ID           uuid.UUID              `json:"id"`
	ChannelID    uuid.UUID              `json:"channel_id"`
	ClientID     uuid.UUID              `json:"client_id"`
	SyncType     string                 `json:"sync_type"`
	Status       string                 `json:"status"`
	CurrentStep  int                    `json:"current_step"`
	TotalSteps   int                    `json:"total_steps"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
	LastError    string                 `json:"last_error,omitempty"`
	SyncFromDate *time.Time             `json:"sync_from_date,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	Steps        []PipelineStepResponse `json:"steps"`
}

// ToPipelineResponse converts a pipeline
func ToPipelineResponse(p *integration.Pipeline) PipelineResponse {
	resp := PipelineResponse{
		ID:           p.ID,
		ChannelID:    p.ChannelID,
		ClientID:     p.ClientID,
		SyncType:     string(p.SyncType),
		Status:       string(p.Status),
		CurrentStep:  p.CurrentStep,
		TotalSteps:   p.TotalSteps,
		RetryCount:   p.RetryCount,
		MaxRetries:   p.MaxRetries,
		LastError:    p.LastError,
		SyncFromDate: p.SyncFromDate,
		StartedAt:    p.StartedAt,
		CompletedAt:  p.CompletedAt,
		Steps:        make([]PipelineStepResponse, 0, len(p.Steps)),
	}
	for _, s := range p.Steps {
		resp.Steps = append(resp.Steps, PipelineStepResponse{
			StepNumber:     s.StepNumber,
			Name:           s.Name,
			Status:         string(s.Status),
			ItemsProcessed: s.ItemsProcessed,
			ItemsFailed:    s.ItemsFailed,
			ItemsSkipped:   s.ItemsSkipped,
			ErrorMessage:   s.ErrorMessage,
			StartedAt:      s.StartedAt,
			CompletedAt:    s.CompletedAt,
		})
	}
	return resp
}

// FieldDeltaResponse renders one changed field
type FieldDeltaResponse struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

func toDeltas(deltas []integration.FieldDelta) []FieldDeltaResponse {
	out := make([]FieldDeltaResponse, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, FieldDeltaResponse{Field: string(d.Field), Before: d.Before.String(), After: d.After.String()})
	}
	return out
}

// SyncLogResponse is an audit entry, conflicts included
type SyncLogResponse struct {
	ID             uuid.UUID            `json:"id"`
	ClientID       uuid.UUID            `json:"client_id"`
	EntityType     string               `json:"entity_type"`
	EntityID       uuid.UUID            `json:"entity_id"`
	ExternalID     string               `json:"external_id,omitempty"`
	Action         string               `json:"action"`
	Origin         string               `json:"origin"`
	LocalOrigin    string               `json:"local_origin,omitempty"`
	Outcome        string               `json:"outcome,omitempty"`
	Changes        []FieldDeltaResponse `json:"changes"`
	RequiresReview bool                 `json:"requires_review"`
	ResolvedAt     *time.Time           `json:"resolved_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// ToSyncLogResponse converts an audit entry
func ToSyncLogResponse(e *integration.SyncLogEntry) SyncLogResponse {
	return SyncLogResponse{
		ID:             e.ID,
		ClientID:       e.ClientID,
		EntityType:     string(e.EntityType),
		EntityID:       e.EntityID,
		ExternalID:     e.ExternalID,
		Action:         string(e.Action),
		Origin:         string(e.Origin),
		LocalOrigin:    string(e.LocalOrigin),
		Outcome:        string(e.Outcome),
		Changes:        toDeltas(e.Changes),
		RequiresReview: e.RequiresReview,
		ResolvedAt:     e.ResolvedAt,
		CreatedAt:      e.CreatedAt,
	}
}

// ToSyncLogResponses converts a list of audit entries
func ToSyncLogResponses(entries []*integration.SyncLogEntry) []SyncLogResponse {
	out := make([]SyncLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToSyncLogResponse(e))
	}
	return out
}

// ResolutionResponse summarizes a field-level resolution
type ResolutionResponse struct {
	Accepted             []FieldDeltaResponse `json:"accepted"`
	Unchanged            []string             `json:"unchanged"`
	Rejected             []string             `json:"rejected"`
	ManualReviewRequired bool                 `json:"manual_review_required"`
}

// ToResolutionResponse converts a resolution. Rejected lists conflicting fields whose
// incoming value did not win.
func ToResolutionResponse(r *integration.Resolution) ResolutionResponse {
	resp := ResolutionResponse{
		Accepted:             toDeltas(r.Accepted),
		Unchanged:            make([]string, 0, len(r.Unchanged)),
		Rejected:             []string{},
		ManualReviewRequired: r.ManualReviewRequired,
	}
	for _, f := range r.Unchanged {
		resp.Unchanged = append(resp.Unchanged, string(f))
	}
	for _, c := range r.Conflicts {
		if c.Outcome != integration.OutcomeIncomingWins {
			resp.Rejected = append(resp.Rejected, string(c.Field))
		}
	}
	return resp
}

// OrderResponse is the operator view of an order
type OrderResponse struct {
	ID                  uuid.UUID               `json:"id"`
	ChannelID           uuid.UUID               `json:"channel_id"`
	Platform            string                  `json:"platform"`
	ExternalID          string                  `json:"external_id"`
	OrderNumber         string                  `json:"order_number"`
	Status              string                  `json:"status"`
	HoldReason          string                  `json:"hold_reason,omitempty"`
	IsTest              bool                    `json:"is_test"`
	ParentOrderID       *uuid.UUID              `json:"parent_order_id,omitempty"`
	WarehouseOutboundID string                  `json:"warehouse_outbound_id,omitempty"`
	FulfillmentState    string                  `json:"fulfillment_state,omitempty"`
	Carrier             string                  `json:"carrier,omitempty"`
	TrackingNumber      string                  `json:"tracking_number,omitempty"`
	Priority            int64                   `json:"priority"`
	TotalAmount         decimal.Decimal         `json:"total_amount"`
	Currency            string                  `json:"currency"`
	Items               []integration.OrderItem `json:"items"`
	Tags                []string                `json:"tags"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// ToOrderResponse converts an order
func ToOrderResponse(o *integration.Order) OrderResponse {
	return OrderResponse{
		ID:                  o.ID,
		ChannelID:           o.ChannelID,
		Platform:            string(o.Platform),
		ExternalID:          o.ExternalID,
		OrderNumber:         o.OrderNumber,
		Status:              string(o.Status),
		HoldReason:          o.HoldReason,
		IsTest:              o.IsTest,
		ParentOrderID:       o.ParentOrderID,
		WarehouseOutboundID: o.WarehouseOutboundID,
		FulfillmentState:    o.FulfillmentState,
		Carrier:             o.Carrier,
		TrackingNumber:      o.TrackingNumber,
		Priority:            o.Priority,
		TotalAmount:         o.TotalAmount,
		Currency:            o.Currency,
		Items:               o.Items,
		Tags:                o.Tags,
		UpdatedAt:           o.UpdatedAt,
	}
}
