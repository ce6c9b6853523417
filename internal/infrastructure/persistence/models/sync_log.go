package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncLogModel is the persistence model for audit entries
type SyncLogModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID       uuid.UUID `gorm:"type:uuid;not null;index"`
	ChannelID      uuid.UUID `gorm:"type:uuid;not null;index:idx_sync_logs_echo,priority:1"`
	EntityType     string    `gorm:"type:varchar(20);not null;index:idx_sync_logs_entity,priority:1;index:idx_sync_logs_echo,priority:2"`
	EntityID       uuid.UUID `gorm:"type:uuid;not null;index:idx_sync_logs_entity,priority:2"`
	ExternalID     string    `gorm:"type:varchar(100);index:idx_sync_logs_echo,priority:3"`
	Action         string    `gorm:"type:varchar(30);not null"`
	Origin         string    `gorm:"type:varchar(20);not null"`
	TargetPlatform string    `gorm:"type:varchar(20)"`
	ChangesJSON    string    `gorm:"type:jsonb;column:changes;not null"`
	Success        bool      `gorm:"not null"`
	ErrorMessage   string    `gorm:"type:text"`
	Outcome        string    `gorm:"type:varchar(20)"`
	LocalOrigin    string    `gorm:"type:varchar(20)"`
	RequiresReview bool      `gorm:"not null;default:false;index"`
	ResolvedAt     *time.Time
	CreatedAt      time.Time `gorm:"not null;index:idx_sync_logs_echo,priority:4"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// SyncLogModelFromDomain creates a persistence model from an audit entry
func SyncLogModelFromDomain(e *integration.SyncLogEntry) (*SyncLogModel, error) {
	changes, err := encodeJSON(e.Changes, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode changes: %w", err)
	}
	return &SyncLogModel{
		ID:             e.ID,
		ClientID:       e.ClientID,
		ChannelID:      e.ChannelID,
		EntityType:     string(e.EntityType),
		EntityID:       e.EntityID,
		ExternalID:     e.ExternalID,
		Action:         string(e.Action),
		Origin:         string(e.Origin),
		TargetPlatform: string(e.TargetPlatform),
		ChangesJSON:    changes,
		Success:        e.Success,
		ErrorMessage:   e.ErrorMessage,
		Outcome:        string(e.Outcome),
		LocalOrigin:    string(e.LocalOrigin),
		RequiresReview: e.RequiresReview,
		ResolvedAt:     e.ResolvedAt,
		CreatedAt:      e.CreatedAt,
	}, nil
}

// ToDomain converts the persistence model to an audit entry
func (m *SyncLogModel) ToDomain() (*integration.SyncLogEntry, error) {
	e := &integration.SyncLogEntry{
		ID:             m.ID,
		ClientID:       m.ClientID,
		ChannelID:      m.ChannelID,
		EntityType:     integration.EntityType(m.EntityType),
		EntityID:       m.EntityID,
		ExternalID:     m.ExternalID,
		Action:         integration.SyncAction(m.Action),
		Origin:         integration.Origin(m.Origin),
		TargetPlatform: integration.Origin(m.TargetPlatform),
		Success:        m.Success,
		ErrorMessage:   m.ErrorMessage,
		Outcome:        integration.ConflictOutcome(m.Outcome),
		LocalOrigin:    integration.Origin(m.LocalOrigin),
		RequiresReview: m.RequiresReview,
		ResolvedAt:     m.ResolvedAt,
		CreatedAt:      m.CreatedAt,
	}
	if err := decodeJSON(m.ChangesJSON, &e.Changes); err != nil {
		return nil, fmt.Errorf("decode changes of sync log %s: %w", m.ID, err)
	}
	return e, nil
}
