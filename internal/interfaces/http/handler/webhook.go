package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// Delivery id headers of the storefronts
const (
	ShopifyDeliveryHeader     = "X-Shopify-Webhook-Id"
	WooCommerceDeliveryHeader = "X-WC-Webhook-Delivery-ID"
)

// ChannelLookup finds the channel a webhook was sent for
type ChannelLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*integration.Channel, error)
}

// WebhookHandler acknowledges storefront webhooks and queues a fetch of the announced
// record. The body is only read for the record id.
type WebhookHandler struct {
	BaseHandler
	channels   ChannelLookup
	jobs       appintegration.JobEnqueuer
	deliveries shared.IdempotencyStore
	dedupeTTL  time.Duration
	logger     *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(channels ChannelLookup, jobs appintegration.JobEnqueuer, deliveries shared.IdempotencyStore, dedupeTTL time.Duration, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{
		channels:   channels,
		jobs:       jobs,
		deliveries: deliveries,
		dedupeTTL:  dedupeTTL,
		logger:     log,
	}
}

// Orders handles order created/updated notifications.
//
// POST /api/v1/webhooks/:platform/:channel_id/orders
func (h *WebhookHandler) Orders(c *gin.Context) {
	h.receive(c, integration.EntityTypeOrder)
}

// Products handles product created/updated notifications.
//
// POST /api/v1/webhooks/:platform/:channel_id/products
func (h *WebhookHandler) Products(c *gin.Context) {
	h.receive(c, integration.EntityTypeProduct)
}

func (h *WebhookHandler) receive(c *gin.Context, entity integration.EntityType) {
	platform := integration.Origin(strings.ToUpper(c.Param("platform")))
	if !platform.IsStorefront() {
		h.NotFound(c, "Unknown storefront platform")
		return
	}
	channelID, ok := h.parseID(c, "channel_id")
	if !ok {
		return
	}
	ctx := logger.WithChannelID(c.Request.Context(), channelID.String())

	// WooCommerce pings a new webhook with a form body before the first real delivery
	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		c.Status(http.StatusOK)
		return
	}

	channel, err := h.channels.FindByID(ctx, channelID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if channel.Platform != platform {
		h.NotFound(c, "Channel does not belong to this platform")
		return
	}

	var envelope dto.WebhookEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.BindError(c, err)
		return
	}
	externalID := envelope.ID.String()
	if externalID == "" || externalID == "0" {
		h.BadRequest(c, "Webhook body carries no record id")
		return
	}

	if delivery := deliveryID(c, platform); delivery != "" && h.deliveries != nil {
		fresh, err := h.deliveries.MarkProcessed(ctx, string(platform)+":"+delivery, h.dedupeTTL)
		if err != nil {
			// Processing twice is safe, dropping is not
			logger.Enrich(ctx, h.logger).Warn("Webhook deduplication unavailable", zap.Error(err))
		} else if !fresh {
			h.Success(c, gin.H{"duplicate": true})
			return
		}
	}

	job, err := appintegration.ScheduleStorefrontEvent(ctx, h.jobs, channel.ID, entity, externalID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.Enrich(ctx, h.logger).Debug("Webhook accepted",
		zap.String("entity_type", string(entity)),
		zap.String("external_id", externalID),
		zap.String("job_id", job.ID.String()),
	)
	h.Accepted(c, gin.H{"job_id": job.ID})
}

func deliveryID(c *gin.Context, platform integration.Origin) string {
	switch platform {
	case integration.OriginShopify:
		return c.GetHeader(ShopifyDeliveryHeader)
	case integration.OriginWooCommerce:
		return c.GetHeader(WooCommerceDeliveryHeader)
	}
	return ""
}
