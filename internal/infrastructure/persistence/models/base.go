package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// BaseModel provides common persistence fields. It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ClientModel adds the owning client to BaseModel
type ClientModel struct {
	BaseModel
	ClientID uuid.UUID `gorm:"type:uuid;not null;index"`
}

func clientModelFrom(e shared.ClientEntity) ClientModel {
	return ClientModel{
		BaseModel: BaseModel{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt},
		ClientID:  e.ClientID,
	}
}

func (m ClientModel) toDomain() shared.ClientEntity {
	return shared.ClientEntity{
		BaseEntity: shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ClientID:   m.ClientID,
	}
}

// encodeJSON marshals v for a jsonb column. Nil maps and slices become empty documents.
func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
