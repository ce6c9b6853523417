package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity provides common fields for all entities
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetID returns the entity ID
func (e *BaseEntity) GetID() uuid.UUID {
	return e.ID
}

// Touch bumps the update timestamp
func (e *BaseEntity) Touch(now time.Time) {
	e.UpdatedAt = now
}

// NewBaseEntity creates a new base entity with generated ID
func NewBaseEntity(now time.Time) BaseEntity {
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ClientEntity is an entity owned by a client account.
// Every synced record belongs to exactly one client.
type ClientEntity struct {
	BaseEntity
	ClientID uuid.UUID
}

// NewClientEntity creates a client-scoped entity
func NewClientEntity(clientID uuid.UUID, now time.Time) ClientEntity {
	return ClientEntity{
		BaseEntity: NewBaseEntity(now),
		ClientID:   clientID,
	}
}
