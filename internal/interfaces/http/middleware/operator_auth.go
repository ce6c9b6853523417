package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/infrastructure/auth"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// Context keys and headers
const (
	OperatorClaimsKey = "operator_claims"
	AuthHeaderKey     = "Authorization"
	BearerPrefix      = "Bearer "
	RequestIDHeader   = logger.RequestIDHeader
)

// TokenValidator validates operator bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// OperatorAuth requires a valid operator token. Read-only methods are open to every
// role; other methods need a role that can write.
func OperatorAuth(tokens TokenValidator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if !strings.HasPrefix(header, BearerPrefix) || strings.TrimPrefix(header, BearerPrefix) == "" {
			abortAuth(c, log, auth.ErrInvalidToken, "Missing or malformed authorization header")
			return
		}

		claims, err := tokens.Validate(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			abortAuth(c, log, err, "Token validation failed")
			return
		}
		if !readOnly(c.Request.Method) && !claims.CanWrite() {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponse(
				dto.ErrCodeForbidden, "Operator role required", requestID(c)))
			return
		}

		c.Set(OperatorClaimsKey, claims)
		ctx := logger.WithOperator(c.Request.Context(), claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func readOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func abortAuth(c *gin.Context, log *zap.Logger, err error, message string) {
	log.Warn("Operator authentication failed",
		zap.Error(err),
		zap.String("message", message),
		zap.String("path", c.Request.URL.Path),
	)

	code := dto.ErrCodeUnauthorized
	msg := "Authentication required"
	if errors.Is(err, auth.ErrExpiredToken) {
		code = dto.ErrCodeTokenExpired
		msg = "Token has expired"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(code, msg, requestID(c)))
}

// GetOperatorClaims returns the claims stored by OperatorAuth, or nil
func GetOperatorClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(OperatorClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// SecurityHeaders sets the response headers every API response carries
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
