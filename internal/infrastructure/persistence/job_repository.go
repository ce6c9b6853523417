package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormJobRepository implements JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GORM-based job repository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// Save persists one or more new jobs
func (r *GormJobRepository) Save(ctx context.Context, jobs ...*shared.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	rows := make([]*models.JobModel, len(jobs))
	for i, j := range jobs {
		rows[i] = models.JobModelFromDomain(j)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// Claim activates up to limit due jobs of a queue. Higher priority first, then oldest.
// Rows locked by a concurrent claimer are skipped, so two workers never claim the same job.
func (r *GormJobRepository) Claim(ctx context.Context, queueName string, now time.Time, limit int) ([]*shared.Job, error) {
	var rows []models.JobModel
	// started_at identifies the claim; keep it at column precision so Update can match it
	now = now.Truncate(time.Microsecond)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("queue_name = ? AND state IN ? AND start_after <= ?", queueName,
				[]shared.JobState{shared.JobStateCreated, shared.JobStateRetry}, now).
			Order("priority DESC, created_at ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(rows))
		for i := range rows {
			ids[i] = rows[i].ID
		}
		if err := tx.Model(&models.JobModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"state":      shared.JobStateActive,
				"started_at": now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		for i := range rows {
			started := now
			rows[i].State = string(shared.JobStateActive)
			rows[i].StartedAt = &started
			rows[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]*shared.Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, nil
}

// Update persists the state of a job after handling. The write is conditional on the
// claim still being current, so a worker whose job was requeued as stale cannot
// overwrite the outcome of the next attempt.
func (r *GormJobRepository) Update(ctx context.Context, job *shared.Job, claimedAt time.Time) error {
	m := models.JobModelFromDomain(job)
	res := r.db.WithContext(ctx).
		Model(&models.JobModel{}).
		Where("id = ? AND state = ? AND started_at = ?", job.ID, shared.JobStateActive, claimedAt.Truncate(time.Microsecond)).
		Updates(map[string]any{
			"state":        m.State,
			"retry_count":  m.RetryCount,
			"start_after":  m.StartAfter,
			"last_error":   m.LastError,
			"started_at":   m.StartedAt,
			"completed_at": m.CompletedAt,
			"updated_at":   m.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return shared.ErrJobClaimLost
	}
	return nil
}

// FindByID retrieves a job by ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.Job, error) {
	var m models.JobModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindFailed retrieves terminally failed jobs, newest first. An empty queue name matches all queues.
func (r *GormJobRepository) FindFailed(ctx context.Context, queueName string, page, pageSize int) ([]*shared.Job, int64, error) {
	failed := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.JobModel{}).Where("state = ?", shared.JobStateFailed)
		if queueName != "" {
			q = q.Where("queue_name = ?", queueName)
		}
		return q
	}

	var total int64
	if err := failed().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	var rows []models.JobModel
	if err := failed().Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	jobs := make([]*shared.Job, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, total, nil
}

// RequeueStale releases jobs stuck in active since before the cutoff.
// A worker that died mid-job leaves its claim behind; the abandoned run counts as
// an attempt, so a job that keeps crashing its worker ends up failed.
func (r *GormJobRepository) RequeueStale(ctx context.Context, activeBefore, now time.Time) (requeued, failed int64, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.JobModel{}).
			Where("state = ? AND started_at < ? AND retry_count >= retry_limit", shared.JobStateActive, activeBefore).
			Updates(map[string]any{
				"state":        shared.JobStateFailed,
				"last_error":   shared.ErrAbandoned,
				"started_at":   nil,
				"completed_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		failed = res.RowsAffected

		res = tx.Model(&models.JobModel{}).
			Where("state = ? AND started_at < ?", shared.JobStateActive, activeBefore).
			Updates(map[string]any{
				"state":       shared.JobStateRetry,
				"retry_count": gorm.Expr("retry_count + 1"),
				"last_error":  shared.ErrAbandoned,
				"start_after": now,
				"started_at":  nil,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		requeued = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return requeued, failed, nil
}

// DeleteCompletedBefore purges completed jobs older than the cutoff
func (r *GormJobRepository) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("state = ? AND completed_at < ?", shared.JobStateCompleted, before).
		Delete(&models.JobModel{})
	return res.RowsAffected, res.Error
}

// CountByState returns counts of jobs per state. An empty queue name counts all queues.
func (r *GormJobRepository) CountByState(ctx context.Context, queueName string) (map[shared.JobState]int64, error) {
	type stateCount struct {
		State string
		Count int64
	}

	q := r.db.WithContext(ctx).Model(&models.JobModel{})
	if queueName != "" {
		q = q.Where("queue_name = ?", queueName)
	}
	var results []stateCount
	if err := q.Select("state, count(*) as count").Group("state").Scan(&results).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.JobState]int64, len(results))
	for _, c := range results {
		counts[shared.JobState(c.State)] = c.Count
	}
	return counts, nil
}

// Ensure GormJobRepository implements JobRepository
var _ shared.JobRepository = (*GormJobRepository)(nil)
