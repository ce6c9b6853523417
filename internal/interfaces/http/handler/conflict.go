package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// ConflictReview is the manual review side of conflict resolution
type ConflictReview interface {
	GetUnresolvedConflicts(ctx context.Context, entityType integration.EntityType, clientID *uuid.UUID) ([]*integration.SyncLogEntry, error)
	ManuallyResolve(ctx context.Context, logID uuid.UUID, entityType integration.EntityType, in appintegration.ResolveConflictInput) (*integration.SyncLogEntry, error)
}

// ConflictHandler serves the conflict review queue
type ConflictHandler struct {
	BaseHandler
	conflicts ConflictReview
}

// NewConflictHandler creates a new ConflictHandler
func NewConflictHandler(conflicts ConflictReview) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts}
}

// List returns unresolved conflicts of an entity type, optionally for one client.
//
// GET /api/v1/conflicts?entity_type=&client_id=
func (h *ConflictHandler) List(c *gin.Context) {
	var q dto.ConflictListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	var clientID *uuid.UUID
	if q.ClientID != "" {
		id := uuid.MustParse(q.ClientID)
		clientID = &id
	}

	entries, err := h.conflicts.GetUnresolvedConflicts(c.Request.Context(), integration.EntityType(q.EntityType), clientID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := dto.ToSyncLogResponses(entries)
	h.SuccessWithMeta(c, items, int64(len(items)), 1, len(items))
}

// Resolve applies an operator decision to one conflict.
//
// POST /api/v1/conflicts/:id/resolve
func (h *ConflictHandler) Resolve(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	entityType := integration.EntityType(req.EntityType)
	in := appintegration.ResolveConflictInput{Choice: appintegration.ResolutionChoice(req.Choice)}
	if in.Choice == appintegration.ChoiceCustom {
		v, err := dto.ParseFieldValue(entityType, integration.Field(req.Field), req.CustomValue)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		in.CustomValue = &v
	}

	entry, err := h.conflicts.ManuallyResolve(c.Request.Context(), id, entityType, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSyncLogResponse(entry))
}
