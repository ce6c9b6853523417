package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPipelineRepository implements PipelineRepository using GORM
type GormPipelineRepository struct {
	db *gorm.DB
}

// NewGormPipelineRepository creates a new GormPipelineRepository
func NewGormPipelineRepository(db *gorm.DB) *GormPipelineRepository {
	return &GormPipelineRepository{db: db}
}

// Create persists a pipeline together with its steps
func (r *GormPipelineRepository) Create(ctx context.Context, p *integration.Pipeline) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PipelineModel{}).
			Where("channel_id = ? AND sync_type = ?", p.ChannelID, p.SyncType).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return integration.ErrPipelineExists
		}
		return tx.Create(models.PipelineModelFromDomain(p)).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return integration.ErrPipelineExists
	}
	return err
}

// FindByID loads a pipeline with its steps
func (r *GormPipelineRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Pipeline, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByChannel loads the pipeline of a channel for a sync type
func (r *GormPipelineRepository) FindByChannel(ctx context.Context, channelID uuid.UUID, syncType integration.SyncType) (*integration.Pipeline, error) {
	return r.first(ctx, "channel_id = ? AND sync_type = ?", channelID, syncType)
}

// FindByStatus lists pipelines in a status
func (r *GormPipelineRepository) FindByStatus(ctx context.Context, status integration.PipelineStatus) ([]*integration.Pipeline, error) {
	var rows []models.PipelineModel
	if err := r.withSteps(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	pipelines := make([]*integration.Pipeline, 0, len(rows))
	for i := range rows {
		pipelines = append(pipelines, rows[i].ToDomain())
	}
	return pipelines, nil
}

// TransitionStatus updates the pipeline only while its status is one of from.
// The status check and the write are one conditional UPDATE.
func (r *GormPipelineRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []integration.PipelineStatus, u integration.PipelineStatusUpdate) error {
	updates := map[string]any{
		"status":     u.Status,
		"updated_at": r.db.NowFunc(),
	}
	if u.CurrentStep != nil {
		updates["current_step"] = *u.CurrentStep
	}
	if u.LastError != nil {
		updates["last_error"] = *u.LastError
	}
	if u.IncrementRetry {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}
	if u.StartedAt != nil {
		updates["started_at"] = *u.StartedAt
	}
	if u.CompletedAt != nil {
		updates["completed_at"] = *u.CompletedAt
	}

	res := r.db.WithContext(ctx).
		Model(&models.PipelineModel{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PipelineModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return integration.ErrPipelineNotFound
	}
	return integration.ErrPipelineStatusChanged
}

// SaveStep persists step progress
func (r *GormPipelineRepository) SaveStep(ctx context.Context, step *integration.PipelineStep) error {
	return r.db.WithContext(ctx).Save(models.PipelineStepModelFromDomain(step)).Error
}

// ResetFailedSteps moves failed steps back to pending so a retry re-runs them
func (r *GormPipelineRepository) ResetFailedSteps(ctx context.Context, pipelineID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PipelineStepModel{}).
		Where("pipeline_id = ? AND status = ?", pipelineID, integration.StepStatusFailed).
		Updates(map[string]any{
			"status":        integration.StepStatusPending,
			"error_message": "",
			"completed_at":  nil,
		})
	return res.RowsAffected, res.Error
}

func (r *GormPipelineRepository) withSteps(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_number ASC")
	})
}

func (r *GormPipelineRepository) first(ctx context.Context, query string, args ...any) (*integration.Pipeline, error) {
	var m models.PipelineModel
	if err := r.withSteps(ctx).Where(query, args...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrPipelineNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// Ensure GormPipelineRepository implements PipelineRepository
var _ integration.PipelineRepository = (*GormPipelineRepository)(nil)
