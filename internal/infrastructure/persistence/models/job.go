package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// JobModel is the persistence model for queued background jobs.
// RetryDelay is stored in milliseconds.
type JobModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	QueueName    string     `gorm:"type:varchar(50);not null;index:idx_sync_jobs_claim,priority:1"`
	Payload      []byte     `gorm:"type:jsonb;not null"`
	Priority     int        `gorm:"not null;default:0"`
	RetryLimit   int        `gorm:"not null;default:3"`
	RetryDelayMs int64      `gorm:"not null;default:60000"`
	RetryBackoff bool       `gorm:"not null;default:true"`
	RetryCount   int        `gorm:"not null;default:0"`
	State        string     `gorm:"type:varchar(20);not null;index:idx_sync_jobs_claim,priority:2"`
	StartAfter   time.Time  `gorm:"not null;index:idx_sync_jobs_claim,priority:3"`
	LastError    string     `gorm:"type:text"`
	StartedAt    *time.Time `gorm:"index"`
	CompletedAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JobModel) TableName() string {
	return "sync_jobs"
}

// ToDomain converts the persistence model to a domain Job
func (m *JobModel) ToDomain() *shared.Job {
	return &shared.Job{
		ID:           m.ID,
		QueueName:    m.QueueName,
		Payload:      m.Payload,
		Priority:     m.Priority,
		RetryLimit:   m.RetryLimit,
		RetryDelay:   time.Duration(m.RetryDelayMs) * time.Millisecond,
		RetryBackoff: m.RetryBackoff,
		RetryCount:   m.RetryCount,
		State:        shared.JobState(m.State),
		StartAfter:   m.StartAfter,
		LastError:    m.LastError,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// JobModelFromDomain creates a persistence model from a domain Job
func JobModelFromDomain(j *shared.Job) *JobModel {
	return &JobModel{
		ID:           j.ID,
		QueueName:    j.QueueName,
		Payload:      j.Payload,
		Priority:     j.Priority,
		RetryLimit:   j.RetryLimit,
		RetryDelayMs: j.RetryDelay.Milliseconds(),
		RetryBackoff: j.RetryBackoff,
		RetryCount:   j.RetryCount,
		State:        string(j.State),
		StartAfter:   j.StartAfter,
		LastError:    j.LastError,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}
