package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenCipher encrypts token strings at rest
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// GormCredentialRepository implements CredentialRepository using GORM.
// Access and refresh tokens never reach the database in plaintext.
type GormCredentialRepository struct {
	db     *gorm.DB
	cipher TokenCipher
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB, cipher TokenCipher) *GormCredentialRepository {
	return &GormCredentialRepository{db: db, cipher: cipher}
}

// Get returns the current token pair of an account
func (r *GormCredentialRepository) Get(ctx context.Context, accountID string) (*integration.CredentialToken, error) {
	var m models.CredentialModel
	if err := r.db.WithContext(ctx).First(&m, "account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialNotFound
		}
		return nil, err
	}
	access, err := r.cipher.Decrypt(m.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token of %s: %w", accountID, err)
	}
	refresh, err := r.cipher.Decrypt(m.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token of %s: %w", accountID, err)
	}
	return &integration.CredentialToken{
		AccountID: m.AccountID,
		TokenData: integration.TokenData{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    m.TokenType,
			ExpiresAt:    m.ExpiresAt,
		},
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// Save replaces the token pair of an account
func (r *GormCredentialRepository) Save(ctx context.Context, token *integration.CredentialToken) error {
	access, err := r.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := r.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	m := &models.CredentialModel{
		AccountID:    token.AccountID,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    token.TokenType,
		ExpiresAt:    token.ExpiresAt,
		UpdatedAt:    token.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			UpdateAll: true,
		}).
		Create(m).Error
}

// Ensure GormCredentialRepository implements CredentialRepository
var _ integration.CredentialRepository = (*GormCredentialRepository)(nil)
