package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements SyncLogRepository using GORM.
// Entries are append-only apart from the resolve transition of conflicts.
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Save appends audit entries
func (r *GormSyncLogRepository) Save(ctx context.Context, entries ...*integration.SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.SyncLogModel, 0, len(entries))
	for _, e := range entries {
		m, err := models.SyncLogModelFromDomain(e)
		if err != nil {
			return err
		}
		rows = append(rows, m)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// FindByID finds an audit entry by its ID
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncLogEntry, error) {
	var m models.SyncLogModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSyncLogNotFound
		}
		return nil, err
	}
	return m.ToDomain()
}

// ExistsForExternalIDSince reports whether the external id of the entity type was written
// on the channel at or after since
func (r *GormSyncLogRepository) ExistsForExternalIDSince(ctx context.Context, channelID uuid.UUID, entityType integration.EntityType, externalID string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Where("channel_id = ? AND entity_type = ? AND external_id = ? AND created_at >= ?",
			channelID, entityType, externalID, since).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// FindUnresolvedConflicts lists conflicts awaiting operator review, oldest first
func (r *GormSyncLogRepository) FindUnresolvedConflicts(ctx context.Context, entityType integration.EntityType, clientID *uuid.UUID) ([]*integration.SyncLogEntry, error) {
	q := r.db.WithContext(ctx).
		Where("action = ? AND requires_review = ? AND resolved_at IS NULL", integration.SyncActionConflict, true)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if clientID != nil {
		q = q.Where("client_id = ?", *clientID)
	}
	var rows []models.SyncLogModel
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSyncLogEntries(rows)
}

// MarkResolved persists the resolve transition. It fails with ErrConflictNotReviewable
// when the entry was resolved concurrently.
func (r *GormSyncLogRepository) MarkResolved(ctx context.Context, entry *integration.SyncLogEntry) error {
	res := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Where("id = ? AND resolved_at IS NULL", entry.ID).
		Updates(map[string]any{
			"success":     entry.Success,
			"resolved_at": entry.ResolvedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return integration.ErrConflictNotReviewable
	}
	return nil
}

// ListByEntity lists the audit trail of one entity, oldest first
func (r *GormSyncLogRepository) ListByEntity(ctx context.Context, entityType integration.EntityType, entityID uuid.UUID) ([]*integration.SyncLogEntry, error) {
	var rows []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toSyncLogEntries(rows)
}

func toSyncLogEntries(rows []models.SyncLogModel) ([]*integration.SyncLogEntry, error) {
	entries := make([]*integration.SyncLogEntry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Ensure GormSyncLogRepository implements SyncLogRepository
var _ integration.SyncLogRepository = (*GormSyncLogRepository)(nil)
