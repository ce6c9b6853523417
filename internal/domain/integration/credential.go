package integration

import (
	"context"
	"time"
)

// TokenData is the OAuth token pair of an external account
type TokenData struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ValidAt returns true if the access token is usable at now with the given safety margin
func (t TokenData) ValidAt(now time.Time, margin time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(margin).Before(t.ExpiresAt)
}

// CredentialToken is the persisted token record of an account. It is replaced wholesale
// on every refresh because the provider rotates the refresh token on each use.
type CredentialToken struct {
	AccountID string
	TokenData
	UpdatedAt time.Time
}

// CredentialRepository persists credential tokens. Implementations encrypt the tokens at rest.
type CredentialRepository interface {
	// Get returns the current token of an account or ErrCredentialNotFound
	Get(ctx context.Context, accountID string) (*CredentialToken, error)
	// Save replaces the token of an account
	Save(ctx context.Context, token *CredentialToken) error
}
