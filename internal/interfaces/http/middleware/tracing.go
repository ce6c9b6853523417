// Package middleware provides HTTP middleware for the sync API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/syncbridge/backend/internal/infrastructure/logger"
)

// MaxRequestIDLength bounds the request id copied onto spans
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "syncbridge",
		Enabled:     true,
	}
}

// Tracing opens the otelgin server span. Span names follow "METHOD route".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanEnricher adds request, channel and operator attributes to the server span and
// marks it failed on 4xx and 5xx responses. Place it after authentication.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpan(c, span)
		}
		c.Next()
		if span.IsRecording() {
			markSpanStatus(span, c.Writer.Status())
		}
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if id := requestID(c); id != "" {
		if len(id) > MaxRequestIDLength {
			id = id[:MaxRequestIDLength]
		}
		span.SetAttributes(attribute.String("request_id", id))
	}
	if channelID := c.Param("channel_id"); channelID != "" {
		span.SetAttributes(attribute.String("sync.channel_id", channelID))
	}
	if operator := logger.GetOperator(c.Request.Context()); operator != "" {
		span.SetAttributes(attribute.String("operator", operator))
	}
}

func markSpanStatus(span trace.Span, statusCode int) {
	if statusCode < http.StatusBadRequest {
		return
	}
	var message string
	switch {
	case statusCode >= http.StatusInternalServerError:
		message = "Internal Server Error"
	case statusCode == http.StatusUnauthorized:
		message = "Unauthorized"
	case statusCode == http.StatusNotFound:
		message = "Not Found"
	default:
		message = "Client Error"
	}
	span.SetStatus(codes.Error, message)
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
}
