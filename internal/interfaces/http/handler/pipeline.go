package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// PipelineOperations is the pipeline orchestrator as seen by the API
type PipelineOperations interface {
	Start(ctx context.Context, in appintegration.StartPipelineInput) (uuid.UUID, error)
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*integration.Pipeline, error)
	GetStatus(ctx context.Context, channelID uuid.UUID, syncType integration.SyncType) (*integration.Pipeline, error)
}

// PipelineHandler exposes onboarding pipeline control
type PipelineHandler struct {
	BaseHandler
	pipelines PipelineOperations
}

// NewPipelineHandler creates a new PipelineHandler
func NewPipelineHandler(pipelines PipelineOperations) *PipelineHandler {
	return &PipelineHandler{pipelines: pipelines}
}

// Start starts a pipeline, or resumes the unfinished pipeline of the channel.
// Execution continues in the background; the response carries the pipeline id.
//
// POST /api/v1/pipelines
func (h *PipelineHandler) Start(c *gin.Context) {
	var req dto.StartPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	syncType := integration.SyncType(req.SyncType)
	if syncType == "" {
		syncType = integration.SyncTypeInitialOnboarding
	}
	id, err := h.pipelines.Start(c.Request.Context(), appintegration.StartPipelineInput{
		ChannelID:    uuid.MustParse(req.ChannelID),
		ClientID:     uuid.MustParse(req.ClientID),
		SyncType:     syncType,
		SyncFromDate: req.SyncFromDate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, gin.H{"pipeline_id": id})
}

// Status returns the pipeline of a channel
//
// GET /api/v1/pipelines/status?channel_id=&sync_type=
func (h *PipelineHandler) Status(c *gin.Context) {
	var q dto.PipelineStatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	syncType := integration.SyncType(q.SyncType)
	if syncType == "" {
		syncType = integration.SyncTypeInitialOnboarding
	}
	p, err := h.pipelines.GetStatus(c.Request.Context(), uuid.MustParse(q.ChannelID), syncType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToPipelineResponse(p))
}

// Get returns one pipeline
//
// GET /api/v1/pipelines/:id
func (h *PipelineHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	p, err := h.pipelines.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToPipelineResponse(p))
}

// Pause stops the pipeline at the next step boundary.
//
// POST /api/v1/pipelines/:id/pause
func (h *PipelineHandler) Pause(c *gin.Context) {
	h.control(c, h.pipelines.Pause)
}

// Resume continues a paused pipeline.
//
// POST /api/v1/pipelines/:id/resume
func (h *PipelineHandler) Resume(c *gin.Context) {
	h.control(c, h.pipelines.Resume)
}

// Retry restarts a failed pipeline at its failed step.
//
// POST /api/v1/pipelines/:id/retry
func (h *PipelineHandler) Retry(c *gin.Context) {
	h.control(c, h.pipelines.Retry)
}

// Cancel marks the pipeline failed.
//
// POST /api/v1/pipelines/:id/cancel
func (h *PipelineHandler) Cancel(c *gin.Context) {
	h.control(c, h.pipelines.Cancel)
}

func (h *PipelineHandler) control(c *gin.Context, op func(context.Context, uuid.UUID) error) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := op(ctx, id); err != nil {
		h.HandleError(c, err)
		return
	}
	p, err := h.pipelines.Get(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToPipelineResponse(p))
}
