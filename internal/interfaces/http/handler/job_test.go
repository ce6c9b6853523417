package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
)

func jobRouter(jobs *MockJobs) *gin.Engine {
	h := NewJobHandler(jobs)
	r := gin.New()
	r.GET("/api/v1/jobs/failures", h.Failures)
	r.GET("/api/v1/jobs/stats", h.Stats)
	return r
}

func TestJobHandler_Failures(t *testing.T) {
	jobs := new(MockJobs)
	rec := queue.FailureRecord{
		JobID:      uuid.New(),
		QueueName:  "warehouse_outbound",
		Error:      "warehouse rejected outbound: 422",
		RetryCount: 5,
		FailedAt:   time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	jobs.On("RecentFailures", defaultFailureLimit).Return(nil)
	jobs.On("RecentFailures", 2).Return([]queue.FailureRecord{rec})
	jobs.On("RecentFailures", maxFailureLimit).Return([]queue.FailureRecord{})
	r := jobRouter(jobs)

	w := performRequest(r, http.MethodGet, "/api/v1/jobs/failures", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)

	w = performRequest(r, http.MethodGet, "/api/v1/jobs/failures?limit=2", nil)
	var got []queue.FailureRecord
	decode(t, w, &got)
	assert.Equal(t, []queue.FailureRecord{rec}, got)

	w = performRequest(r, http.MethodGet, "/api/v1/jobs/failures?limit=100000", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(r, http.MethodGet, "/api/v1/jobs/failures?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandler_Stats(t *testing.T) {
	jobs := new(MockJobs)
	jobs.On("Stats", mock.Anything, "").Return(map[shared.JobState]int64{
		shared.JobStateCreated: 3,
		shared.JobStateFailed:  1,
	}, nil)
	jobs.On("Stats", mock.Anything, "broken").Return(nil, errors.New("db down"))
	r := jobRouter(jobs)

	w := performRequest(r, http.MethodGet, "/api/v1/jobs/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var got map[string]int64
	decode(t, w, &got)
	assert.Equal(t, int64(3), got["created"])

	w = performRequest(r, http.MethodGet, "/api/v1/jobs/stats?queue=broken", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
