package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

// Handlers are the HTTP handlers served by the sync API
type Handlers struct {
	Pipelines *handler.PipelineHandler
	Conflicts *handler.ConflictHandler
	Orders    *handler.OrderHandler
	Jobs      *handler.JobHandler
	Webhooks  *handler.WebhookHandler
	Health    *handler.HealthHandler
}

// Options configures the engine built by New
type Options struct {
	Logger *zap.Logger
	// Tokens validates operator tokens; nil leaves the operator API open
	Tokens         middleware.TokenValidator
	Meter          metric.Meter
	Tracing        middleware.TracingConfig
	MaxBodySize    int64
	WebhookLimiter *middleware.RateLimiter
	// Metrics serves the Prometheus scrape endpoint when set
	Metrics http.Handler
}

// New builds the gin engine. Health checks and /metrics sit outside /api. Webhooks are
// rate limited per channel and skip operator auth; every other API route requires it.
func New(h Handlers, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.Tracing(opts.Tracing),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.SecurityHeaders(),
		middleware.HTTPMetrics(opts.Meter),
	)
	if opts.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(opts.MaxBodySize))
	}

	if h.Health != nil {
		engine.GET("/health/live", h.Health.Live)
		engine.GET("/health/ready", h.Health.Ready)
	}
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	r := NewRouter(engine, "v1")
	if h.Webhooks != nil {
		webhooks := NewDomainGroup("/webhooks/:platform/:channel_id").
			POST("/orders", h.Webhooks.Orders).
			POST("/products", h.Webhooks.Products)
		if opts.WebhookLimiter != nil {
			webhooks.Use(middleware.RateLimitByKey(opts.WebhookLimiter, middleware.ChannelKey))
		}
		r.Mount([]gin.HandlerFunc{middleware.SpanEnricher()}, webhooks)
	}

	var operator []gin.HandlerFunc
	if opts.Tokens != nil {
		operator = append(operator, middleware.OperatorAuth(opts.Tokens, log))
	}
	operator = append(operator, middleware.SpanEnricher())
	r.Mount(operator, operatorGroups(h)...)
	return engine
}

func operatorGroups(h Handlers) []*DomainGroup {
	var groups []*DomainGroup
	if h.Pipelines != nil {
		groups = append(groups, NewDomainGroup("/pipelines").
			POST("", h.Pipelines.Start).
			GET("/status", h.Pipelines.Status).
			GET("/:id", h.Pipelines.Get).
			POST("/:id/pause", h.Pipelines.Pause).
			POST("/:id/resume", h.Pipelines.Resume).
			POST("/:id/retry", h.Pipelines.Retry).
			POST("/:id/cancel", h.Pipelines.Cancel))
	}
	if h.Conflicts != nil {
		groups = append(groups, NewDomainGroup("/conflicts").
			GET("", h.Conflicts.List).
			POST("/:id/resolve", h.Conflicts.Resolve))
	}
	if h.Orders != nil {
		groups = append(groups,
			NewDomainGroup("/orders").
				PATCH("/:id/fields", h.Orders.UpdateFields).
				POST("/:id/hold", h.Orders.Hold).
				POST("/:id/release", h.Orders.Release).
				POST("/:id/cancel", h.Orders.Cancel).
				POST("/:id/split", h.Orders.Split),
			NewDomainGroup("/products").
				POST("/stock", h.Orders.AdjustStock))
	}
	if h.Jobs != nil {
		groups = append(groups, NewDomainGroup("/jobs").
			GET("/failures", h.Jobs.Failures).
			GET("/stats", h.Jobs.Stats))
	}
	return groups
}
