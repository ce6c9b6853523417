package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

const readinessTimeout = 3 * time.Second

// HealthCheck checks one dependency
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	BaseHandler
	checks    []HealthCheck
	startedAt time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, startedAt: time.Now()}
}

// Live answers as long as the process serves HTTP
//
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	h.Success(c, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Ready runs every check and reports 503 when any fails
//
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			results[check.Name] = err.Error()
			healthy = false
			continue
		}
		results[check.Name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    results,
			Error: &dto.ErrorInfo{
				Code:      dto.ErrCodeUpstreamUnavailable,
				Message:   "One or more dependencies are unavailable",
				RequestID: getRequestID(c),
			},
		})
		return
	}
	h.Success(c, results)
}
