package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipeline(t *testing.T) {
	p := NewPipeline(uuid.New(), uuid.New(), SyncTypeInitialOnboarding, nil, 0, time.Now())

	assert.Equal(t, PipelineStatusPending, p.Status)
	assert.Equal(t, 5, p.TotalSteps)
	assert.Equal(t, DefaultPipelineMaxRetries, p.MaxRetries)
	require.Len(t, p.Steps, 5)
	for i, s := range p.Steps {
		assert.Equal(t, i+1, s.StepNumber)
		assert.Equal(t, OnboardingSteps[i], s.Name)
		assert.Equal(t, StepStatusPending, s.Status)
		assert.Equal(t, p.ID, s.PipelineID)
	}
}

func TestPipeline_CanStart(t *testing.T) {
	p := NewPipeline(uuid.New(), uuid.New(), SyncTypeInitialOnboarding, nil, 3, time.Now())

	assert.NoError(t, p.CanStart())

	p.Status = PipelineStatusInProgress
	assert.ErrorIs(t, p.CanStart(), ErrPipelineAlreadyRunning)

	p.Status = PipelineStatusCompleted
	assert.ErrorIs(t, p.CanStart(), ErrPipelineCompleted)

	p.Status = PipelineStatusFailed
	p.RetryCount = 2
	assert.NoError(t, p.CanStart())
	p.RetryCount = 3
	assert.ErrorIs(t, p.CanStart(), ErrPipelineRetriesExhausted)

	p.Status = PipelineStatusPaused
	assert.NoError(t, p.CanStart())
}

func TestPipeline_NextStep(t *testing.T) {
	p := NewPipeline(uuid.New(), uuid.New(), SyncTypeInitialOnboarding, nil, 3, time.Now())
	now := time.Now()

	assert.Equal(t, 1, p.NextStep().StepNumber)

	p.Steps[0].Complete(StepResult{Processed: 4}, now)
	p.Steps[1].Complete(StepResult{}, now)
	p.Steps[2].Fail("warehouse down", StepResult{Processed: 1, Failed: 2}, now)
	assert.Equal(t, 3, p.NextStep().StepNumber)

	// a step left in progress by a crash is the resume point as well
	p.Steps[2].Start(now)
	assert.Equal(t, 3, p.NextStep().StepNumber)
	assert.Zero(t, p.Steps[2].ItemsFailed)
	assert.Empty(t, p.Steps[2].ErrorMessage)

	for _, s := range p.Steps {
		s.Complete(StepResult{}, now)
	}
	assert.Nil(t, p.NextStep())
}

func TestPipeline_StatusIn(t *testing.T) {
	p := &Pipeline{Status: PipelineStatusPaused}
	assert.True(t, p.StatusIn(ResumeFrom))
	assert.True(t, p.StatusIn(CancelFrom))
	assert.False(t, p.StatusIn(PauseFrom))
	assert.False(t, p.StatusIn(RetryFrom))
}

func TestSyncLogEntry_MarkResolved(t *testing.T) {
	now := time.Now()
	conflict := FieldConflict{
		Field:          FieldTags,
		Local:          ListValue([]string{"a"}),
		Incoming:       ListValue([]string{"b"}),
		LocalOrigin:    OriginShopify,
		IncomingOrigin: OriginOps,
		Outcome:        OutcomeManual,
	}
	entry := NewConflictLogEntry(uuid.New(), uuid.New(), EntityTypeOrder, uuid.New(), "1", conflict, now)

	assert.False(t, entry.Success)
	assert.True(t, entry.IsUnresolvedConflict())
	assert.Equal(t, []Field{FieldTags}, entry.ChangedFields())

	require.NoError(t, entry.MarkResolved(now))
	assert.True(t, entry.Success)
	assert.NotNil(t, entry.ResolvedAt)
	assert.ErrorIs(t, entry.MarkResolved(now), ErrConflictNotReviewable)

	conflict.Outcome = OutcomeLocalWins
	auto := NewConflictLogEntry(uuid.New(), uuid.New(), EntityTypeOrder, uuid.New(), "1", conflict, now)
	assert.True(t, auto.Success)
	assert.False(t, auto.RequiresReview)
}

func TestSyncOperation_QueueFor(t *testing.T) {
	assert.Equal(t, QueueWarehouse, OpCreateOutbound.QueueFor())
	assert.Equal(t, QueueStorefront, OpCreateFulfillment.QueueFor())
	assert.Equal(t, QueueStorefrontEvents, OpOrderEvent.QueueFor())
	assert.Equal(t, QueueWarehousePoll, OpPollWarehouse.QueueFor())
	assert.Empty(t, SyncOperation("unknown").QueueFor())
}
