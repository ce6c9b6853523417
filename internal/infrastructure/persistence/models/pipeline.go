package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// PipelineModel is the persistence model for onboarding pipelines
type PipelineModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChannelID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_pipelines_channel_type,priority:1"`
	ClientID     uuid.UUID `gorm:"type:uuid;not null;index"`
	SyncType     string    `gorm:"type:varchar(30);not null;uniqueIndex:idx_pipelines_channel_type,priority:2"`
	Status       string    `gorm:"type:varchar(20);not null;index"`
	CurrentStep  int       `gorm:"not null;default:0"`
	TotalSteps   int       `gorm:"not null"`
	RetryCount   int       `gorm:"not null;default:0"`
	MaxRetries   int       `gorm:"not null"`
	SyncFromDate *time.Time
	LastError    string `gorm:"type:text"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`

	Steps []PipelineStepModel `gorm:"foreignKey:PipelineID"`
}

// TableName returns the table name for GORM
func (PipelineModel) TableName() string {
	return "sync_pipelines"
}

// PipelineStepModel is the persistence model for pipeline steps
type PipelineStepModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	PipelineID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_pipeline_steps_number,priority:1"`
	StepNumber     int       `gorm:"not null;uniqueIndex:idx_pipeline_steps_number,priority:2"`
	Name           string    `gorm:"type:varchar(50);not null"`
	Status         string    `gorm:"type:varchar(20);not null"`
	ItemsProcessed int       `gorm:"not null;default:0"`
	ItemsFailed    int       `gorm:"not null;default:0"`
	ItemsSkipped   int       `gorm:"not null;default:0"`
	ErrorMessage   string    `gorm:"type:text"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// TableName returns the table name for GORM
func (PipelineStepModel) TableName() string {
	return "sync_pipeline_steps"
}

// PipelineModelFromDomain creates a persistence model, steps included
func PipelineModelFromDomain(p *integration.Pipeline) *PipelineModel {
	m := &PipelineModel{
		ID:           p.ID,
		ChannelID:    p.ChannelID,
		ClientID:     p.ClientID,
		SyncType:     string(p.SyncType),
		Status:       string(p.Status),
		CurrentStep:  p.CurrentStep,
		TotalSteps:   p.TotalSteps,
		RetryCount:   p.RetryCount,
		MaxRetries:   p.MaxRetries,
		SyncFromDate: p.SyncFromDate,
		LastError:    p.LastError,
		StartedAt:    p.StartedAt,
		CompletedAt:  p.CompletedAt,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	for _, s := range p.Steps {
		m.Steps = append(m.Steps, *PipelineStepModelFromDomain(s))
	}
	return m
}

// ToDomain converts the persistence model to a Pipeline
func (m *PipelineModel) ToDomain() *integration.Pipeline {
	p := &integration.Pipeline{
		ID:           m.ID,
		ChannelID:    m.ChannelID,
		ClientID:     m.ClientID,
		SyncType:     integration.SyncType(m.SyncType),
		Status:       integration.PipelineStatus(m.Status),
		CurrentStep:  m.CurrentStep,
		TotalSteps:   m.TotalSteps,
		RetryCount:   m.RetryCount,
		MaxRetries:   m.MaxRetries,
		SyncFromDate: m.SyncFromDate,
		LastError:    m.LastError,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for i := range m.Steps {
		p.Steps = append(p.Steps, m.Steps[i].ToDomain())
	}
	return p
}

// PipelineStepModelFromDomain creates a persistence model from a step
func PipelineStepModelFromDomain(s *integration.PipelineStep) *PipelineStepModel {
	return &PipelineStepModel{
		ID:             s.ID,
		PipelineID:     s.PipelineID,
		StepNumber:     s.StepNumber,
		Name:           s.Name,
		Status:         string(s.Status),
		ItemsProcessed: s.ItemsProcessed,
		ItemsFailed:    s.ItemsFailed,
		ItemsSkipped:   s.ItemsSkipped,
		ErrorMessage:   s.ErrorMessage,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
	}
}

// ToDomain converts the persistence model to a PipelineStep
func (m *PipelineStepModel) ToDomain() *integration.PipelineStep {
	return &integration.PipelineStep{
		ID:             m.ID,
		PipelineID:     m.PipelineID,
		StepNumber:     m.StepNumber,
		Name:           m.Name,
		Status:         integration.StepStatus(m.Status),
		ItemsProcessed: m.ItemsProcessed,
		ItemsFailed:    m.ItemsFailed,
		ItemsSkipped:   m.ItemsSkipped,
		ErrorMessage:   m.ErrorMessage,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}
}
