package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/auth"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRouterMount(t *testing.T) {
	engine := gin.New()
	calls := 0
	counting := func(c *gin.Context) {
		calls++
		c.Next()
	}

	r := NewRouter(engine, "v2")
	r.Mount([]gin.HandlerFunc{counting}, NewDomainGroup("/test").
		GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") }).
		PATCH("/item", func(c *gin.Context) { c.Status(http.StatusNoContent) }))
	r.Mount(nil, NewDomainGroup("/open").
		POST("", func(c *gin.Context) { c.Status(http.StatusAccepted) }))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/test/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v2/test/item", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v2/open", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 2, calls, "middleware of one mount must not leak into another")
}

type stubJobs struct{}

func (stubJobs) RecentFailures(int) []queue.FailureRecord { return nil }

func (stubJobs) Stats(context.Context, string) (map[shared.JobState]int64, error) {
	return map[shared.JobState]int64{}, nil
}

type noChannels struct{}

func (noChannels) FindByID(context.Context, uuid.UUID) (*integration.Channel, error) {
	return nil, integration.ErrChannelNotFound
}

func TestNew(t *testing.T) {
	tokens, err := auth.NewOperatorTokens(config.AuthConfig{OperatorSecret: "router-test-secret", Issuer: "syncbridge"})
	require.NoError(t, err)

	engine := New(Handlers{
		Jobs:     handler.NewJobHandler(stubJobs{}),
		Webhooks: handler.NewWebhookHandler(noChannels{}, nil, nil, time.Hour, nil),
		Health:   handler.NewHealthHandler(),
	}, Options{
		Tokens:         tokens,
		Tracing:        middleware.TracingConfig{Enabled: false},
		MaxBodySize:    1 << 20,
		WebhookLimiter: middleware.NewRateLimiter(10, 10),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})

	serve := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	t.Run("health checks and metrics are public", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/health/live", "").Code)
		assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/health/ready", "").Code)
		w := serve(http.MethodGet, "/metrics", "")
		assert.Equal(t, "# metrics", w.Body.String())
	})

	t.Run("operator routes require a token", func(t *testing.T) {
		w := serve(http.MethodGet, "/api/v1/jobs/failures", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

		token, _, err := tokens.Issue("ops", auth.RoleViewer, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/v1/jobs/failures", token).Code)
	})

	t.Run("webhooks skip operator auth", func(t *testing.T) {
		w := serve(http.MethodPost, "/api/v1/webhooks/shopify/"+uuid.NewString()+"/orders", "")
		assert.Equal(t, http.StatusNotFound, w.Code, "unknown channel, not unauthorized")
	})

	t.Run("unregistered areas are absent", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/api/v1/pipelines/status", "").Code)
	})
}
