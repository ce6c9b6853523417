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

func conflictRouter(svc *MockConflicts) *gin.Engine {
	h := NewConflictHandler(svc)
	r := gin.New()
	r.GET("/api/v1/conflicts", h.List)
	r.POST("/api/v1/conflicts/:id/resolve", h.Resolve)
	return r
}

func conflictEntry(clientID uuid.UUID) *integration.SyncLogEntry {
	e := integration.NewSyncLogEntry(clientID, uuid.New(), integration.EntityTypeOrder, uuid.New(), "1001",
		integration.SyncActionConflict, integration.OriginShopify,
		[]integration.FieldDelta{{
			Field:  integration.FieldTags,
			Before: integration.ListValue([]string{"vip"}),
			After:  integration.ListValue([]string{"gift"}),
		}},
		time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	e.Outcome = integration.OutcomeManual
	e.RequiresReview = true
	return e
}

func TestConflictHandler_List(t *testing.T) {
	clientID := uuid.New()
	svc := new(MockConflicts)
	svc.On("GetUnresolvedConflicts", mock.Anything, integration.EntityTypeOrder, &clientID).
		Return([]*integration.SyncLogEntry{conflictEntry(clientID)}, nil)
	r := conflictRouter(svc)

	w := performRequest(r, http.MethodGet, "/api/v1/conflicts?entity_type=order&client_id="+clientID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got []dto.SyncLogResponse
	resp := decode(t, w, &got)
	assert.Len(t, got, 1)
	assert.True(t, got[0].RequiresReview)
	assert.Equal(t, "manual", got[0].Outcome)
	assert.Equal(t, int64(1), resp.Meta.Total)

	w = performRequest(r, http.MethodGet, "/api/v1/conflicts?entity_type=customer", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConflictHandler_Resolve(t *testing.T) {
	logID := uuid.New()
	resolved := conflictEntry(uuid.New())
	resolved.Action = integration.SyncActionResolveConflict

	t.Run("accept local", func(t *testing.T) {
		svc := new(MockConflicts)
		svc.On("ManuallyResolve", mock.Anything, logID, integration.EntityTypeOrder,
			appintegration.ResolveConflictInput{Choice: appintegration.ChoiceAcceptLocal}).Return(resolved, nil)

		w := performRequest(conflictRouter(svc), http.MethodPost, "/api/v1/conflicts/"+logID.String()+"/resolve",
			map[string]string{"entity_type": "order", "choice": "accept_local"})
		assert.Equal(t, http.StatusOK, w.Code)
		var got dto.SyncLogResponse
		decode(t, w, &got)
		assert.Equal(t, "resolve_conflict", got.Action)
	})

	t.Run("custom value is decoded by field kind", func(t *testing.T) {
		svc := new(MockConflicts)
		custom := integration.ListValue([]string{"vip", "gift"})
		svc.On("ManuallyResolve", mock.Anything, logID, integration.EntityTypeOrder,
			appintegration.ResolveConflictInput{Choice: appintegration.ChoiceCustom, CustomValue: &custom}).
			Return(resolved, nil)

		w := performRequest(conflictRouter(svc), http.MethodPost, "/api/v1/conflicts/"+logID.String()+"/resolve",
			`{"entity_type":"order","choice":"custom","field":"tags","custom_value":["vip","gift"]}`)
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("custom without field", func(t *testing.T) {
		w := performRequest(conflictRouter(new(MockConflicts)), http.MethodPost, "/api/v1/conflicts/"+logID.String()+"/resolve",
			`{"entity_type":"order","choice":"custom","custom_value":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("already resolved", func(t *testing.T) {
		svc := new(MockConflicts)
		svc.On("ManuallyResolve", mock.Anything, logID, integration.EntityTypeProduct, mock.Anything).
			Return(nil, integration.ErrConflictNotReviewable)

		w := performRequest(conflictRouter(svc), http.MethodPost, "/api/v1/conflicts/"+logID.String()+"/resolve",
			map[string]string{"entity_type": "product", "choice": "accept_incoming"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, decode(t, w, nil).Error.Code)
	})
}
