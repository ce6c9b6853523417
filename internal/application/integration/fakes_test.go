package integration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---------------------------------------------------------------------------
// In-memory store. Entities are copied on the way in and out so unsaved
// mutations stay invisible, as with a database.
// ---------------------------------------------------------------------------

type memStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*integration.Order
	products  map[uuid.UUID]*integration.Product
	channels  map[uuid.UUID]*integration.Channel
	logs      []*integration.SyncLogEntry
	jobs      []*shared.Job
	pipelines map[uuid.UUID]*integration.Pipeline
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[uuid.UUID]*integration.Order),
		products:  make(map[uuid.UUID]*integration.Product),
		channels:  make(map[uuid.UUID]*integration.Channel),
		pipelines: make(map[uuid.UUID]*integration.Pipeline),
	}
}

func cloneOrder(o *integration.Order) *integration.Order {
	cp := *o
	cp.Items = append([]integration.OrderItem(nil), o.Items...)
	cp.Tags = append([]string(nil), o.Tags...)
	cp.LastFieldUpdates = make(map[integration.Field]integration.FieldUpdate, len(o.LastFieldUpdates))
	for f, u := range o.LastFieldUpdates {
		cp.LastFieldUpdates[f] = u
	}
	return &cp
}

func cloneProduct(p *integration.Product) *integration.Product {
	cp := *p
	cp.LastFieldUpdates = make(map[integration.Field]integration.FieldUpdate, len(p.LastFieldUpdates))
	for f, u := range p.LastFieldUpdates {
		cp.LastFieldUpdates[f] = u
	}
	return &cp
}

func cloneChannel(c *integration.Channel) *integration.Channel {
	cp := *c
	cp.ShippingMappings = make(map[string]string, len(c.ShippingMappings))
	for k, v := range c.ShippingMappings {
		cp.ShippingMappings[k] = v
	}
	return &cp
}

func clonePipeline(p *integration.Pipeline) *integration.Pipeline {
	cp := *p
	cp.Steps = make([]*integration.PipelineStep, len(p.Steps))
	for i, s := range p.Steps {
		step := *s
		cp.Steps[i] = &step
	}
	return &cp
}

func (s *memStore) addChannel(c *integration.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = cloneChannel(c)
}

func (s *memStore) channel(id uuid.UUID) *integration.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChannel(s.channels[id])
}

func (s *memStore) order(id uuid.UUID) *integration.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func (s *memStore) product(id uuid.UUID) *integration.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProduct(s.products[id])
}

func (s *memStore) allOrders() []*integration.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*integration.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out
}

func (s *memStore) logsFor(entityID uuid.UUID) []*integration.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*integration.SyncLogEntry
	for _, e := range s.logs {
		if e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

func (s *memStore) logsWithAction(action integration.SyncAction) []*integration.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*integration.SyncLogEntry
	for _, e := range s.logs {
		if e.Action == action {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// queuedOps returns the operations of every enqueued job, in enqueue order
func (s *memStore) queuedOps() []integration.SyncOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]integration.SyncOperation, 0, len(s.jobs))
	for _, j := range s.jobs {
		var p integration.SyncJobPayload
		if err := j.DecodePayload(&p); err == nil {
			ops = append(ops, p.Operation)
		}
	}
	return ops
}

func (s *memStore) queuedPayloads() []integration.SyncJobPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]integration.SyncJobPayload, 0, len(s.jobs))
	for _, j := range s.jobs {
		var p integration.SyncJobPayload
		if err := j.DecodePayload(&p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

type memOrders struct{ s *memStore }

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*integration.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, integration.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r memOrders) find(match func(*integration.Order) bool) (*integration.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if match(o) {
			return cloneOrder(o), nil
		}
	}
	return nil, integration.ErrOrderNotFound
}

func (r memOrders) FindByExternalID(_ context.Context, channelID uuid.UUID, externalID string) (*integration.Order, error) {
	return r.find(func(o *integration.Order) bool { return o.ChannelID == channelID && o.ExternalID == externalID })
}

func (r memOrders) FindByOutboundID(_ context.Context, outboundID string) (*integration.Order, error) {
	return r.find(func(o *integration.Order) bool { return outboundID != "" && o.WarehouseOutboundID == outboundID })
}

func (r memOrders) ListWithoutOutbound(_ context.Context, channelID uuid.UUID) ([]*integration.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*integration.Order
	for _, o := range r.s.orders {
		if o.ChannelID == channelID && o.WarehouseOutboundID == "" {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r memOrders) Save(_ context.Context, o *integration.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

type memProducts struct{ s *memStore }

func (r memProducts) find(match func(*integration.Product) bool) (*integration.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.products {
		if match(p) {
			return cloneProduct(p), nil
		}
	}
	return nil, integration.ErrProductNotFound
}

func (r memProducts) FindByID(_ context.Context, id uuid.UUID) (*integration.Product, error) {
	return r.find(func(p *integration.Product) bool { return p.ID == id })
}

func (r memProducts) FindBySKU(_ context.Context, channelID uuid.UUID, sku string) (*integration.Product, error) {
	return r.find(func(p *integration.Product) bool { return p.ChannelID == channelID && p.SKU == sku })
}

func (r memProducts) FindByWarehouseSKU(_ context.Context, channelID uuid.UUID, jfsku string) (*integration.Product, error) {
	return r.find(func(p *integration.Product) bool { return p.ChannelID == channelID && p.WarehouseSKU == jfsku })
}

func (r memProducts) ListUnlinked(_ context.Context, channelID uuid.UUID) ([]*integration.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*integration.Product
	for _, p := range r.s.products {
		if p.ChannelID == channelID && p.WarehouseSKU == "" {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (r memProducts) Save(_ context.Context, p *integration.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.products[p.ID] = cloneProduct(p)
	return nil
}

type memChannels struct{ s *memStore }

func (r memChannels) FindByID(_ context.Context, id uuid.UUID) (*integration.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.channels[id]
	if !ok {
		return nil, integration.ErrChannelNotFound
	}
	return cloneChannel(c), nil
}

func (r memChannels) ListActive(_ context.Context) ([]*integration.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*integration.Channel
	for _, c := range r.s.channels {
		if c.IsActive() {
			out = append(out, cloneChannel(c))
		}
	}
	return out, nil
}

func (r memChannels) Save(_ context.Context, c *integration.Channel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.channels[c.ID] = cloneChannel(c)
	return nil
}

type memSyncLogs struct{ s *memStore }

func (r memSyncLogs) Save(_ context.Context, entries ...*integration.SyncLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range entries {
		cp := *e
		r.s.logs = append(r.s.logs, &cp)
	}
	return nil
}

func (r memSyncLogs) FindByID(_ context.Context, id uuid.UUID) (*integration.SyncLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.logs {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, integration.ErrSyncLogNotFound
}

func (r memSyncLogs) ExistsForExternalIDSince(_ context.Context, channelID uuid.UUID, entityType integration.EntityType, externalID string, since time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.logs {
		if e.ChannelID == channelID && e.EntityType == entityType &&
			e.ExternalID == externalID && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r memSyncLogs) FindUnresolvedConflicts(_ context.Context, entityType integration.EntityType, clientID *uuid.UUID) ([]*integration.SyncLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*integration.SyncLogEntry
	for _, e := range r.s.logs {
		if e.EntityType == entityType && e.IsUnresolvedConflict() && (clientID == nil || e.ClientID == *clientID) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memSyncLogs) MarkResolved(_ context.Context, entry *integration.SyncLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, e := range r.s.logs {
		if e.ID == entry.ID {
			cp := *entry
			r.s.logs[i] = &cp
			return nil
		}
	}
	return integration.ErrSyncLogNotFound
}

func (r memSyncLogs) ListByEntity(_ context.Context, entityType integration.EntityType, entityID uuid.UUID) ([]*integration.SyncLogEntry, error) {
	return r.s.logsFor(entityID), nil
}

type memJobs struct{ s *memStore }

func (r memJobs) Save(_ context.Context, jobs ...*shared.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.jobs = append(r.s.jobs, jobs...)
	return nil
}

func (r memJobs) Claim(context.Context, string, time.Time, int) ([]*shared.Job, error) {
	return nil, errors.New("not supported")
}

func (r memJobs) Update(context.Context, *shared.Job, time.Time) error { return nil }

func (r memJobs) FindByID(context.Context, uuid.UUID) (*shared.Job, error) {
	return nil, shared.ErrNotFound
}

func (r memJobs) FindFailed(context.Context, string, int, int) ([]*shared.Job, int64, error) {
	return nil, 0, nil
}

func (r memJobs) RequeueStale(context.Context, time.Time, time.Time) (int64, int64, error) {
	return 0, 0, nil
}

func (r memJobs) DeleteCompletedBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (r memJobs) CountByState(context.Context, string) (map[shared.JobState]int64, error) {
	return map[shared.JobState]int64{}, nil
}

type memRepos struct{ s *memStore }

func (r memRepos) Orders() integration.OrderRepository     { return memOrders{r.s} }
func (r memRepos) Products() integration.ProductRepository { return memProducts{r.s} }
func (r memRepos) Channels() integration.ChannelRepository { return memChannels{r.s} }
func (r memRepos) SyncLogs() integration.SyncLogRepository { return memSyncLogs{r.s} }
func (r memRepos) Jobs() shared.JobRepository              { return memJobs{r.s} }

type memTxScope struct{ s *memStore }

func (t memTxScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(memRepos{t.s})
}

// memEnqueuer creates jobs the way the dispatcher does
type memEnqueuer struct {
	s   *memStore
	now func() time.Time
}

func (e memEnqueuer) Enqueue(ctx context.Context, queue string, payload any, opts shared.JobOptions) (*shared.Job, error) {
	return e.EnqueueWithTx(ctx, memJobs{e.s}, queue, payload, opts)
}

func (e memEnqueuer) EnqueueWithTx(ctx context.Context, jobs shared.JobRepository, queue string, payload any, opts shared.JobOptions) (*shared.Job, error) {
	job, err := shared.NewJob(queue, payload, opts, e.now())
	if err != nil {
		return nil, err
	}
	return job, jobs.Save(ctx, job)
}

// ---------------------------------------------------------------------------
// Pipeline repository
// ---------------------------------------------------------------------------

type memPipelines struct{ s *memStore }

func (r memPipelines) Create(_ context.Context, p *integration.Pipeline) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.pipelines {
		if existing.ChannelID == p.ChannelID && existing.SyncType == p.SyncType {
			return integration.ErrPipelineExists
		}
	}
	r.s.pipelines[p.ID] = clonePipeline(p)
	return nil
}

func (r memPipelines) FindByID(_ context.Context, id uuid.UUID) (*integration.Pipeline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.pipelines[id]
	if !ok {
		return nil, integration.ErrPipelineNotFound
	}
	return clonePipeline(p), nil
}

func (r memPipelines) FindByChannel(_ context.Context, channelID uuid.UUID, syncType integration.SyncType) (*integration.Pipeline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.pipelines {
		if p.ChannelID == channelID && p.SyncType == syncType {
			return clonePipeline(p), nil
		}
	}
	return nil, integration.ErrPipelineNotFound
}

func (r memPipelines) FindByStatus(_ context.Context, status integration.PipelineStatus) ([]*integration.Pipeline, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*integration.Pipeline
	for _, p := range r.s.pipelines {
		if p.Status == status {
			out = append(out, clonePipeline(p))
		}
	}
	return out, nil
}

func (r memPipelines) TransitionStatus(_ context.Context, id uuid.UUID, from []integration.PipelineStatus, u integration.PipelineStatusUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.pipelines[id]
	if !ok || !p.StatusIn(from) {
		return integration.ErrPipelineStatusChanged
	}
	p.Status = u.Status
	if u.CurrentStep != nil {
		p.CurrentStep = *u.CurrentStep
	}
	if u.LastError != nil {
		p.LastError = *u.LastError
	}
	if u.IncrementRetry {
		p.RetryCount++
	}
	if u.StartedAt != nil {
		p.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		p.CompletedAt = u.CompletedAt
	}
	return nil
}

func (r memPipelines) SaveStep(_ context.Context, step *integration.PipelineStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.pipelines[step.PipelineID]
	if !ok {
		return integration.ErrPipelineNotFound
	}
	for i, s := range p.Steps {
		if s.StepNumber == step.StepNumber {
			cp := *step
			p.Steps[i] = &cp
			return nil
		}
	}
	return integration.ErrPipelineNotFound
}

func (r memPipelines) ResetFailedSteps(_ context.Context, pipelineID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.pipelines[pipelineID]
	if !ok {
		return 0, integration.ErrPipelineNotFound
	}
	var n int64
	for _, s := range p.Steps {
		if s.Status == integration.StepStatusFailed {
			s.Status = integration.StepStatusPending
			s.ErrorMessage = ""
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Adapter mocks
// ---------------------------------------------------------------------------

type MockStorefrontAdapter struct {
	mock.Mock
	platform integration.Origin
}

func (m *MockStorefrontAdapter) Platform() integration.Origin { return m.platform }

func (m *MockStorefrontAdapter) GetOrder(ctx context.Context, channel *integration.Channel, externalID string) (*integration.StorefrontOrder, error) {
	args := m.Called(ctx, channel, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.StorefrontOrder), args.Error(1)
}

func (m *MockStorefrontAdapter) ListOrders(ctx context.Context, channel *integration.Channel, since *time.Time) ([]integration.StorefrontOrder, error) {
	args := m.Called(ctx, channel, since)
	return args.Get(0).([]integration.StorefrontOrder), args.Error(1)
}

func (m *MockStorefrontAdapter) GetProduct(ctx context.Context, channel *integration.Channel, externalID string) (*integration.StorefrontProduct, error) {
	args := m.Called(ctx, channel, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.StorefrontProduct), args.Error(1)
}

func (m *MockStorefrontAdapter) ListProducts(ctx context.Context, channel *integration.Channel) ([]integration.StorefrontProduct, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).([]integration.StorefrontProduct), args.Error(1)
}

func (m *MockStorefrontAdapter) CreateFulfillment(ctx context.Context, channel *integration.Channel, req integration.FulfillmentRequest) error {
	return m.Called(ctx, channel, req).Error(0)
}

func (m *MockStorefrontAdapter) CancelOrder(ctx context.Context, channel *integration.Channel, externalID, reason string) error {
	return m.Called(ctx, channel, externalID, reason).Error(0)
}

func (m *MockStorefrontAdapter) CreateRefund(ctx context.Context, channel *integration.Channel, req integration.RefundRequest) error {
	return m.Called(ctx, channel, req).Error(0)
}

type staticRegistry map[integration.Origin]integration.StorefrontAdapter

func (r staticRegistry) Storefront(platform integration.Origin) (integration.StorefrontAdapter, error) {
	a, ok := r[platform]
	if !ok {
		return nil, integration.ErrPlatformNotConfigured
	}
	return a, nil
}

type MockWarehouseAdapter struct {
	mock.Mock
}

func (m *MockWarehouseAdapter) CreateOutbound(ctx context.Context, accountID string, req integration.OutboundRequest) (string, error) {
	args := m.Called(ctx, accountID, req)
	return args.String(0), args.Error(1)
}

func (m *MockWarehouseAdapter) HoldOutbound(ctx context.Context, accountID, outboundID, reason string) error {
	return m.Called(ctx, accountID, outboundID, reason).Error(0)
}

func (m *MockWarehouseAdapter) ReleaseOutbound(ctx context.Context, accountID, outboundID string) error {
	return m.Called(ctx, accountID, outboundID).Error(0)
}

func (m *MockWarehouseAdapter) CancelOutbound(ctx context.Context, accountID, outboundID string) error {
	return m.Called(ctx, accountID, outboundID).Error(0)
}

func (m *MockWarehouseAdapter) ListOutbounds(ctx context.Context, accountID string, since *time.Time) ([]integration.WarehouseOutbound, error) {
	args := m.Called(ctx, accountID, since)
	return args.Get(0).([]integration.WarehouseOutbound), args.Error(1)
}

func (m *MockWarehouseAdapter) PollStatusChanges(ctx context.Context, accountID string, since time.Time) ([]integration.WarehouseStatusChange, error) {
	args := m.Called(ctx, accountID, since)
	return args.Get(0).([]integration.WarehouseStatusChange), args.Error(1)
}

func (m *MockWarehouseAdapter) GetShippingNotifications(ctx context.Context, accountID string, since time.Time) ([]integration.ShippingNotification, error) {
	args := m.Called(ctx, accountID, since)
	return args.Get(0).([]integration.ShippingNotification), args.Error(1)
}

func (m *MockWarehouseAdapter) ListProducts(ctx context.Context, accountID string) ([]integration.WarehouseProduct, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]integration.WarehouseProduct), args.Error(1)
}

func (m *MockWarehouseAdapter) CreateProduct(ctx context.Context, accountID string, product integration.WarehouseProduct) (string, error) {
	args := m.Called(ctx, accountID, product)
	return args.String(0), args.Error(1)
}

func (m *MockWarehouseAdapter) FindProductBySKU(ctx context.Context, accountID, sku string) (*integration.WarehouseProduct, error) {
	args := m.Called(ctx, accountID, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.WarehouseProduct), args.Error(1)
}

func (m *MockWarehouseAdapter) GetStockLevels(ctx context.Context, accountID string) ([]integration.StockLevel, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]integration.StockLevel), args.Error(1)
}
