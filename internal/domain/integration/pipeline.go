package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Pipeline Status
// ---------------------------------------------------------------------------

// PipelineStatus represents the lifecycle state of an onboarding pipeline
type PipelineStatus string

const (
	PipelineStatusPending    PipelineStatus = "PENDING"
	PipelineStatusInProgress PipelineStatus = "IN_PROGRESS"
	PipelineStatusPaused     PipelineStatus = "PAUSED"
	PipelineStatusFailed     PipelineStatus = "FAILED"
	PipelineStatusCompleted  PipelineStatus = "COMPLETED"
)

// StepStatus represents the state of a single pipeline step
type StepStatus string

const (
	StepStatusPending    StepStatus = "PENDING"
	StepStatusInProgress StepStatus = "IN_PROGRESS"
	StepStatusCompleted  StepStatus = "COMPLETED"
	StepStatusFailed     StepStatus = "FAILED"
)

// SyncType distinguishes pipelines of the same channel
type SyncType string

const (
	SyncTypeInitialOnboarding SyncType = "INITIAL_ONBOARDING"
)

// IsValid returns true if the sync type is known
func (t SyncType) IsValid() bool {
	return t == SyncTypeInitialOnboarding
}

// Step names of the onboarding pipeline, in execution order
const (
	StepPullStorefront          = "pull_storefront"
	StepImportWarehouseProducts = "import_warehouse_products"
	StepPushLocalProducts       = "push_local_products"
	StepReconcileFulfillment    = "reconcile_fulfillment"
	StepReconcileStock          = "reconcile_stock"
)

// OnboardingSteps lists the fixed steps; index+1 is the step number
var OnboardingSteps = []string{
	StepPullStorefront,
	StepImportWarehouseProducts,
	StepPushLocalProducts,
	StepReconcileFulfillment,
	StepReconcileStock,
}

// DefaultPipelineMaxRetries bounds operator retries of a failed pipeline
const DefaultPipelineMaxRetries = 3

// CancelledByOperator is recorded when an operator cancels a pipeline
const CancelledByOperator = "cancelled by operator"

// ---------------------------------------------------------------------------
// Pipeline Entities
// ---------------------------------------------------------------------------

// PipelineStep is the persisted progress of one step
type PipelineStep struct {
	ID             uuid.UUID
	PipelineID     uuid.UUID
	StepNumber     int
	Name           string
	Status         StepStatus
	ItemsProcessed int
	ItemsFailed    int
	ItemsSkipped   int
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// StepResult is the item accounting reported by a step executor
type StepResult struct {
	Processed int
	Failed    int
	// Skipped counts items linked to an existing remote record instead of being created
	Skipped int
}

// Start marks the step in progress. Counters restart for the new attempt.
func (s *PipelineStep) Start(now time.Time) {
	s.Status = StepStatusInProgress
	s.ItemsProcessed, s.ItemsFailed, s.ItemsSkipped = 0, 0, 0
	s.ErrorMessage = ""
	s.StartedAt = &now
	s.CompletedAt = nil
}

// Complete marks the step done
func (s *PipelineStep) Complete(result StepResult, now time.Time) {
	s.Status = StepStatusCompleted
	s.apply(result)
	s.CompletedAt = &now
}

// Fail marks the step failed with the partial accounting gathered so far
func (s *PipelineStep) Fail(msg string, result StepResult, now time.Time) {
	s.Status = StepStatusFailed
	s.ErrorMessage = msg
	s.apply(result)
	s.CompletedAt = &now
}

func (s *PipelineStep) apply(r StepResult) {
	s.ItemsProcessed = r.Processed
	s.ItemsFailed = r.Failed
	s.ItemsSkipped = r.Skipped
}

// Pipeline is the persisted state of a resumable onboarding run for a channel
type Pipeline struct {
	ID           uuid.UUID
	ChannelID    uuid.UUID
	ClientID     uuid.UUID
	SyncType     SyncType
	Status       PipelineStatus
	CurrentStep  int
	TotalSteps   int
	RetryCount   int
	MaxRetries   int
	SyncFromDate *time.Time
	LastError    string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Steps        []*PipelineStep
}

// NewPipeline creates a pending pipeline with all steps pending
func NewPipeline(channelID, clientID uuid.UUID, syncType SyncType, syncFrom *time.Time, maxRetries int, now time.Time) *Pipeline {
	if maxRetries <= 0 {
		maxRetries = DefaultPipelineMaxRetries
	}
	p := &Pipeline{
		ID:           uuid.New(),
		ChannelID:    channelID,
		ClientID:     clientID,
		SyncType:     syncType,
		Status:       PipelineStatusPending,
		TotalSteps:   len(OnboardingSteps),
		MaxRetries:   maxRetries,
		SyncFromDate: syncFrom,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, name := range OnboardingSteps {
		p.Steps = append(p.Steps, &PipelineStep{
			ID:         uuid.New(),
			PipelineID: p.ID,
			StepNumber: i + 1,
			Name:       name,
			Status:     StepStatusPending,
		})
	}
	return p
}

// CanStart checks whether Start may create-or-resume this pipeline
func (p *Pipeline) CanStart() error {
	switch p.Status {
	case PipelineStatusCompleted:
		return ErrPipelineCompleted
	case PipelineStatusInProgress:
		return ErrPipelineAlreadyRunning
	case PipelineStatusFailed:
		if !p.HasRetriesLeft() {
			return ErrPipelineRetriesExhausted
		}
	}
	return nil
}

// HasRetriesLeft returns true while retryCount < maxRetries
func (p *Pipeline) HasRetriesLeft() bool {
	return p.RetryCount < p.MaxRetries
}

// NextStep returns the resume point: the first step that is not completed
func (p *Pipeline) NextStep() *PipelineStep {
	for _, s := range p.Steps {
		if s.Status != StepStatusCompleted {
			return s
		}
	}
	return nil
}

// Step returns the step with the given number
func (p *Pipeline) Step(number int) *PipelineStep {
	for _, s := range p.Steps {
		if s.StepNumber == number {
			return s
		}
	}
	return nil
}

// IsTerminal returns true once the pipeline completed
func (p *Pipeline) IsTerminal() bool {
	return p.Status == PipelineStatusCompleted
}

// Status preconditions of the operator transitions
var (
	PauseFrom  = []PipelineStatus{PipelineStatusInProgress}
	ResumeFrom = []PipelineStatus{PipelineStatusPaused}
	RetryFrom  = []PipelineStatus{PipelineStatusFailed}
	CancelFrom = []PipelineStatus{PipelineStatusPending, PipelineStatusInProgress, PipelineStatusPaused}
	StartFrom  = []PipelineStatus{PipelineStatusPending, PipelineStatusPaused, PipelineStatusFailed}
)

// StatusIn reports whether the pipeline status is one of the given statuses
func (p *Pipeline) StatusIn(statuses []PipelineStatus) bool {
	for _, s := range statuses {
		if p.Status == s {
			return true
		}
	}
	return false
}

// PipelineStatusUpdate is a guarded status transition. Nil fields are left unchanged.
type PipelineStatusUpdate struct {
	Status         PipelineStatus
	CurrentStep    *int
	LastError      *string
	IncrementRetry bool
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// PipelineRepository persists pipelines and their steps
type PipelineRepository interface {
	// Create persists a new pipeline with its steps. Returns ErrPipelineExists when
	// a pipeline for the same channel and sync type already exists.
	Create(ctx context.Context, p *Pipeline) error
	// FindByID loads a pipeline with its steps
	FindByID(ctx context.Context, id uuid.UUID) (*Pipeline, error)
	// FindByChannel loads the pipeline of a channel for a sync type
	FindByChannel(ctx context.Context, channelID uuid.UUID, syncType SyncType) (*Pipeline, error)
	// FindByStatus lists pipelines in a status
	FindByStatus(ctx context.Context, status PipelineStatus) ([]*Pipeline, error)
	// TransitionStatus applies update only if the current status is one of from.
	// Returns ErrPipelineStatusChanged when no row matched.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []PipelineStatus, update PipelineStatusUpdate) error
	// SaveStep persists step progress
	SaveStep(ctx context.Context, step *PipelineStep) error
	// ResetFailedSteps moves failed steps of a pipeline back to pending
	ResetFailedSteps(ctx context.Context, pipelineID uuid.UUID) (int64, error)
}
