package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

func TestHandleValidationError(t *testing.T) {
	type startRequest struct {
		ChannelID string `json:"channel_id" binding:"required,uuid"`
		SyncType  string `json:"sync_type" binding:"required,sync_type"`
	}

	SetupValidator()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/pipelines", func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	t.Run("reports each invalid field by its json name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/pipelines",
			strings.NewReader(`{"channel_id":"nope","sync_type":"FULL"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(RequestIDHeader, "req-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "req-1", resp.Error.RequestID)

		fields := map[string]string{}
		for _, d := range resp.Error.Details {
			fields[d.Field] = d.Message
		}
		assert.Equal(t, "Invalid UUID format", fields["channel_id"])
		assert.Equal(t, "Unknown sync type, expected INITIAL_ONBOARDING", fields["sync_type"])
	})

	t.Run("valid input passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/pipelines",
			strings.NewReader(`{"channel_id":"6f1c1c2e-8a4b-4c1e-9a57-0d1f4b7e2a10","sync_type":"INITIAL_ONBOARDING"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetValidationMessage(t *testing.T) {
	type sample struct {
		Required string `validate:"required"`
		Min      string `validate:"min=5"`
		Max      string `validate:"max=3"`
		GTE      int    `validate:"gte=10"`
		Items    []int  `validate:"min=2"`
	}

	err := validator.New().Struct(sample{Max: "toolong", GTE: 1, Min: "ab", Items: []int{1}})
	require.Error(t, err)

	got := map[string]string{}
	for _, e := range err.(validator.ValidationErrors) {
		got[e.Field()] = getValidationMessage(e)
	}
	assert.Equal(t, "This field is required", got["Required"])
	assert.Equal(t, "Must be at least 5 characters", got["Min"])
	assert.Equal(t, "Must be at most 3 characters", got["Max"])
	assert.Equal(t, "Must be greater than or equal to 10", got["GTE"])
	assert.Equal(t, "Must contain at least 2 items", got["Items"])
}
