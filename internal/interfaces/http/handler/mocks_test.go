package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type MockPipelines struct{ mock.Mock }

func (m *MockPipelines) Start(ctx context.Context, in appintegration.StartPipelineInput) (uuid.UUID, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockPipelines) Pause(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPipelines) Resume(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPipelines) Retry(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPipelines) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPipelines) Get(ctx context.Context, id uuid.UUID) (*integration.Pipeline, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Pipeline), args.Error(1)
}

func (m *MockPipelines) GetStatus(ctx context.Context, channelID uuid.UUID, syncType integration.SyncType) (*integration.Pipeline, error) {
	args := m.Called(ctx, channelID, syncType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Pipeline), args.Error(1)
}

type MockConflicts struct{ mock.Mock }

func (m *MockConflicts) GetUnresolvedConflicts(ctx context.Context, entityType integration.EntityType, clientID *uuid.UUID) ([]*integration.SyncLogEntry, error) {
	args := m.Called(ctx, entityType, clientID)
	return args.Get(0).([]*integration.SyncLogEntry), args.Error(1)
}

func (m *MockConflicts) ManuallyResolve(ctx context.Context, logID uuid.UUID, entityType integration.EntityType, in appintegration.ResolveConflictInput) (*integration.SyncLogEntry, error) {
	args := m.Called(ctx, logID, entityType, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.SyncLogEntry), args.Error(1)
}

type MockOrders struct{ mock.Mock }

func (m *MockOrders) UpdateOperationalFields(ctx context.Context, orderID uuid.UUID, changes map[integration.Field]integration.FieldValue, opts appintegration.OpsUpdateOptions) (*integration.Resolution, error) {
	args := m.Called(ctx, orderID, changes, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Resolution), args.Error(1)
}

func (m *MockOrders) HoldOrder(ctx context.Context, orderID uuid.UUID, reason string) (*integration.Order, error) {
	return m.order(m.Called(ctx, orderID, reason))
}

func (m *MockOrders) ReleaseOrder(ctx context.Context, orderID uuid.UUID) (*integration.Order, error) {
	return m.order(m.Called(ctx, orderID))
}

func (m *MockOrders) CancelOrder(ctx context.Context, orderID uuid.UUID, opts appintegration.CancelOptions) (*integration.Order, error) {
	return m.order(m.Called(ctx, orderID, opts))
}

func (m *MockOrders) SplitOrder(ctx context.Context, orderID uuid.UUID, parts []integration.SplitPart) ([]*integration.Order, error) {
	args := m.Called(ctx, orderID, parts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.Order), args.Error(1)
}

func (m *MockOrders) order(args mock.Arguments) (*integration.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Order), args.Error(1)
}

func (m *MockOrders) AdjustStock(ctx context.Context, channelID uuid.UUID, sku string, available int64) (*integration.Resolution, error) {
	args := m.Called(ctx, channelID, sku, available)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Resolution), args.Error(1)
}

type MockJobs struct{ mock.Mock }

func (m *MockJobs) RecentFailures(limit int) []queue.FailureRecord {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]queue.FailureRecord)
}

func (m *MockJobs) Stats(ctx context.Context, queueName string) (map[shared.JobState]int64, error) {
	args := m.Called(ctx, queueName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[shared.JobState]int64), args.Error(1)
}

func (m *MockJobs) Enqueue(ctx context.Context, queueName string, payload any, opts shared.JobOptions) (*shared.Job, error) {
	args := m.Called(ctx, queueName, payload, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Job), args.Error(1)
}

func (m *MockJobs) EnqueueWithTx(ctx context.Context, jobs shared.JobRepository, queueName string, payload any, opts shared.JobOptions) (*shared.Job, error) {
	args := m.Called(ctx, jobs, queueName, payload, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Job), args.Error(1)
}

type MockChannels struct{ mock.Mock }

func (m *MockChannels) FindByID(ctx context.Context, id uuid.UUID) (*integration.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Channel), args.Error(1)
}

// performRequest sends body as JSON through r and returns the recorder
func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decode reads a dto.Response, re-decoding Data into out when given
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return resp
}
