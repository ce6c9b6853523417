package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 500
)

// JobMonitor exposes the dispatcher's failure buffer and queue counts
type JobMonitor interface {
	RecentFailures(limit int) []queue.FailureRecord
	Stats(ctx context.Context, queue string) (map[shared.JobState]int64, error)
}

// JobHandler serves job queue diagnostics
type JobHandler struct {
	BaseHandler
	jobs JobMonitor
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs JobMonitor) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Failures returns the most recent job failures, newest first.
//
// GET /api/v1/jobs/failures?limit=
func (h *JobHandler) Failures(c *gin.Context) {
	limit := defaultFailureLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFailureLimit)
	}
	failures := h.jobs.RecentFailures(limit)
	if failures == nil {
		failures = []queue.FailureRecord{}
	}
	h.Success(c, failures)
}

// Stats returns job counts per state, for one queue or all of them.
//
// GET /api/v1/jobs/stats?queue=
func (h *JobHandler) Stats(c *gin.Context) {
	counts, err := h.jobs.Stats(c.Request.Context(), c.Query("queue"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, counts)
}
