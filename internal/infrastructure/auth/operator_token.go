// Package auth issues and validates the bearer tokens operators use against the sync API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingSubject   = errors.New("missing subject in claims")
	ErrMissingSecret    = errors.New("operator secret is not configured")
)

// Role names carried in operator tokens
const (
	// RoleOperator may read state and run pipelines and order operations
	RoleOperator = "operator"
	// RoleViewer may only read
	RoleViewer = "viewer"
)

// Claims are the claims of an operator token. Subject names the operator.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// CanWrite reports whether the token allows state-changing calls
func (c *Claims) CanWrite() bool {
	return c.Role == RoleOperator
}

// OperatorTokens signs and validates HS256 operator tokens
type OperatorTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewOperatorTokens creates the token service from the auth configuration
func NewOperatorTokens(cfg config.AuthConfig) (*OperatorTokens, error) {
	if cfg.OperatorSecret == "" {
		return nil, ErrMissingSecret
	}
	return &OperatorTokens{
		secret: []byte(cfg.OperatorSecret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// WithClock replaces the clock used for issuing and validation
func (s *OperatorTokens) WithClock(now func() time.Time) *OperatorTokens {
	s.now = now
	return s
}

// Issue signs a token for subject that expires after ttl
func (s *OperatorTokens) Issue(subject, role string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	if role == "" {
		role = RoleOperator
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses a token and returns its claims
func (s *OperatorTokens) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
