package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

func pipelineRouter(h *PipelineHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/api/v1/pipelines")
	g.POST("", h.Start)
	g.GET("/status", h.Status)
	g.GET("/:id", h.Get)
	g.POST("/:id/pause", h.Pause)
	g.POST("/:id/resume", h.Resume)
	g.POST("/:id/retry", h.Retry)
	g.POST("/:id/cancel", h.Cancel)
	return r
}

func TestPipelineHandler_Start(t *testing.T) {
	channelID, clientID, pipelineID := uuid.New(), uuid.New(), uuid.New()

	t.Run("defaults sync type and returns 202", func(t *testing.T) {
		svc := new(MockPipelines)
		svc.On("Start", mock.Anything, appintegration.StartPipelineInput{
			ChannelID: channelID,
			ClientID:  clientID,
			SyncType:  integration.SyncTypeInitialOnboarding,
		}).Return(pipelineID, nil)

		w := performRequest(pipelineRouter(NewPipelineHandler(svc)), http.MethodPost, "/api/v1/pipelines",
			map[string]any{"channel_id": channelID, "client_id": clientID})

		assert.Equal(t, http.StatusAccepted, w.Code)
		var data struct {
			PipelineID uuid.UUID `json:"pipeline_id"`
		}
		resp := decode(t, w, &data)
		assert.True(t, resp.Success)
		assert.Equal(t, pipelineID, data.PipelineID)
		svc.AssertExpectations(t)
	})

	t.Run("invalid channel id", func(t *testing.T) {
		svc := new(MockPipelines)
		w := performRequest(pipelineRouter(NewPipelineHandler(svc)), http.MethodPost, "/api/v1/pipelines",
			map[string]any{"channel_id": "x", "client_id": clientID})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w, nil).Error.Code)
		svc.AssertNotCalled(t, "Start", mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := performRequest(pipelineRouter(NewPipelineHandler(new(MockPipelines))), http.MethodPost,
			"/api/v1/pipelines", `{"channel_id":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decode(t, w, nil).Error.Code)
	})

	t.Run("running pipeline conflicts", func(t *testing.T) {
		svc := new(MockPipelines)
		svc.On("Start", mock.Anything, mock.Anything).Return(uuid.Nil, integration.ErrPipelineAlreadyRunning)

		w := performRequest(pipelineRouter(NewPipelineHandler(svc)), http.MethodPost, "/api/v1/pipelines",
			map[string]any{"channel_id": channelID, "client_id": clientID})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeConflict, decode(t, w, nil).Error.Code)
	})
}

func TestPipelineHandler_Status(t *testing.T) {
	channelID := uuid.New()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &integration.Pipeline{
		ID:          uuid.New(),
		ChannelID:   channelID,
		SyncType:    integration.SyncTypeInitialOnboarding,
		Status:      integration.PipelineStatusInProgress,
		CurrentStep: 2,
		TotalSteps:  5,
		StartedAt:   &started,
		Steps: []*integration.PipelineStep{
			{StepNumber: 1, Name: "pull_storefront", Status: integration.StepStatusCompleted, ItemsProcessed: 12},
		},
	}

	svc := new(MockPipelines)
	svc.On("GetStatus", mock.Anything, channelID, integration.SyncTypeInitialOnboarding).Return(p, nil)
	svc.On("GetStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil, integration.ErrPipelineNotFound)
	r := pipelineRouter(NewPipelineHandler(svc))

	w := performRequest(r, http.MethodGet, "/api/v1/pipelines/status?channel_id="+channelID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got dto.PipelineResponse
	decode(t, w, &got)
	assert.Equal(t, "IN_PROGRESS", got.Status)
	assert.Equal(t, 2, got.CurrentStep)
	assert.Len(t, got.Steps, 1)
	assert.Equal(t, 12, got.Steps[0].ItemsProcessed)

	w = performRequest(r, http.MethodGet, "/api/v1/pipelines/status?channel_id="+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPipelineHandler_Control(t *testing.T) {
	id := uuid.New()

	t.Run("pause returns the updated pipeline", func(t *testing.T) {
		svc := new(MockPipelines)
		svc.On("Pause", mock.Anything, id).Return(nil)
		svc.On("Get", mock.Anything, id).Return(&integration.Pipeline{ID: id, Status: integration.PipelineStatusPaused}, nil)

		w := performRequest(pipelineRouter(NewPipelineHandler(svc)), http.MethodPost, "/api/v1/pipelines/"+id.String()+"/pause", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var got dto.PipelineResponse
		decode(t, w, &got)
		assert.Equal(t, "PAUSED", got.Status)
	})

	t.Run("retry with no retries left", func(t *testing.T) {
		svc := new(MockPipelines)
		svc.On("Retry", mock.Anything, id).Return(integration.ErrPipelineRetriesExhausted)

		w := performRequest(pipelineRouter(NewPipelineHandler(svc)), http.MethodPost, "/api/v1/pipelines/"+id.String()+"/retry", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeRetriesExhausted, decode(t, w, nil).Error.Code)
	})

	t.Run("resume of a completed pipeline", func(t *testing.T) {
		svc := new(MockPipelines)
		svc.On("Resume", mock.Anything, id).Return(integration.ErrPipelineCompleted)

		w := performRequest(pipelineRouter(NewPipelineHandler(svc)), http.MethodPost, "/api/v1/pipelines/"+id.String()+"/resume", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, decode(t, w, nil).Error.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := performRequest(pipelineRouter(NewPipelineHandler(new(MockPipelines))), http.MethodPost, "/api/v1/pipelines/nope/cancel", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
