package models

import "time"

// CredentialModel stores the encrypted token pair of an external account.
// Token columns hold ciphertext; the repository encrypts and decrypts.
type CredentialModel struct {
	AccountID    string    `gorm:"type:varchar(100);primaryKey"`
	AccessToken  string    `gorm:"type:text;not null"`
	RefreshToken string    `gorm:"type:text;not null"`
	TokenType    string    `gorm:"type:varchar(30)"`
	ExpiresAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "credential_tokens"
}
