package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/infrastructure/auth"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
)

func newTokens(t *testing.T) *auth.OperatorTokens {
	t.Helper()
	tokens, err := auth.NewOperatorTokens(config.AuthConfig{
		Enabled:        true,
		OperatorSecret: "test-secret-with-enough-entropy",
		Issuer:         "syncbridge",
	})
	require.NoError(t, err)
	return tokens
}

func authRouter(t *testing.T, tokens *auth.OperatorTokens) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OperatorAuth(tokens, nil))
	handler := func(c *gin.Context) {
		claims := GetOperatorClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"subject":  claims.Subject,
			"operator": logger.GetOperator(c.Request.Context()),
		})
	}
	r.GET("/pipelines", handler)
	r.POST("/pipelines", handler)
	return r
}

func TestOperatorAuth(t *testing.T) {
	tokens := newTokens(t)
	r := authRouter(t, tokens)

	do := func(method, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/pipelines", nil)
		if token != "" {
			req.Header.Set(AuthHeaderKey, BearerPrefix+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("missing header", func(t *testing.T) {
		w := do(http.MethodGet, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_UNAUTHORIZED")
	})

	t.Run("garbage token", func(t *testing.T) {
		w := do(http.MethodGet, "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("operator can write", func(t *testing.T) {
		token, _, err := tokens.Issue("alice", auth.RoleOperator, time.Hour)
		require.NoError(t, err)
		w := do(http.MethodPost, token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"operator":"alice"`)
	})

	t.Run("viewer can read but not write", func(t *testing.T) {
		token, _, err := tokens.Issue("bob", auth.RoleViewer, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, do(http.MethodGet, token).Code)

		w := do(http.MethodPost, token)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_FORBIDDEN")
	})

	t.Run("expired token", func(t *testing.T) {
		past := time.Now().Add(-2 * time.Hour)
		stale := newTokens(t).WithClock(func() time.Time { return past })
		token, _, err := stale.Issue("carol", auth.RoleOperator, time.Minute)
		require.NoError(t, err)

		w := do(http.MethodGet, token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "ERR_TOKEN_EXPIRED")
	})
}

func TestRateLimitByKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/webhooks/:platform/:channel_id", RateLimitByKey(limiter, ChannelKey), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	hit := func(channel string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/shopify/"+channel, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, hit("a"))
	assert.Equal(t, http.StatusAccepted, hit("a"))
	assert.Equal(t, http.StatusTooManyRequests, hit("a"))
	assert.Equal(t, http.StatusAccepted, hit("b"), "buckets are per channel")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusAccepted, hit("a"), "bucket refills over time")

	now = now.Add(time.Hour)
	assert.Equal(t, 0, limiter.Sweep())
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", BodyLimit(8), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusGroup(t *testing.T) {
	assert.Equal(t, "2xx", StatusGroup(202))
	assert.Equal(t, "4xx", StatusGroup(429))
	assert.Equal(t, "5xx", StatusGroup(502))
	assert.Equal(t, "other", StatusGroup(100))
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
