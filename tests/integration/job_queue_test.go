package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
)

func TestJobRepository_ConcurrentClaimsAreDisjoint(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormJobRepository(tdb.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	const total = 20
	for i := range total {
		job, err := shared.NewJob("warehouse", map[string]int{"n": i}, shared.DefaultJobOptions(), now.Add(-time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, job))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
		wg      sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := repo.Claim(ctx, "warehouse", now, 3)
				if !assert.NoError(t, err) || len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					claimed[j.ID]++
					assert.Equal(t, shared.JobStateActive, j.State)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, total)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestJobRepository_ClaimOrdersByPriority(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormJobRepository(tdb.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	low, err := shared.NewJob("storefront", "low", shared.JobOptions{Priority: 0, RetryLimit: 1, RetryDelay: time.Second}, now.Add(-2*time.Minute))
	require.NoError(t, err)
	high, err := shared.NewJob("storefront", "high", shared.JobOptions{Priority: 10, RetryLimit: 1, RetryDelay: time.Second}, now.Add(-time.Minute))
	require.NoError(t, err)
	later, err := shared.NewJob("storefront", "later", shared.JobOptions{Priority: 99, RetryLimit: 1, RetryDelay: time.Second, StartAfter: now.Add(time.Hour)}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, low, high, later))

	jobs, err := repo.Claim(ctx, "storefront", now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, high.ID, jobs[0].ID)
	assert.Equal(t, low.ID, jobs[1].ID)
}

func TestDispatcher_RetriesThenCompletes(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormJobRepository(tdb.DB)
	ctx := context.Background()

	clock := time.Now().UTC()
	d := queue.New(repo, config.DispatcherConfig{BatchSize: 5, FailureBufferSize: 10},
		queue.WithLogger(zaptest.NewLogger(t)),
		queue.WithClock(func() time.Time { return clock }),
	)

	attempts := 0
	require.NoError(t, d.Register("warehouse", func(ctx context.Context, job *shared.Job) error {
		attempts++
		if attempts == 1 {
			return errors.New("warehouse returned 503")
		}
		return nil
	}, queue.WorkerOptions{}))

	job, err := d.Enqueue(ctx, "warehouse", map[string]string{"order": "1001"},
		shared.JobOptions{RetryLimit: 3, RetryDelay: time.Minute})
	require.NoError(t, err)

	n, err := d.ProcessQueueOnce(ctx, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.JobStateRetry, stored.State)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.LastError, "503")

	// not due yet
	n, err = d.ProcessQueueOnce(ctx, "warehouse")
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = clock.Add(2 * time.Minute)
	n, err = d.ProcessQueueOnce(ctx, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.JobStateCompleted, stored.State)
	assert.Equal(t, 2, attempts)

	stats, err := d.Stats(ctx, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[shared.JobStateCompleted])
}

func TestDispatcher_PermanentErrorFailsImmediately(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormJobRepository(tdb.DB)
	ctx := context.Background()

	d := queue.New(repo, config.DispatcherConfig{BatchSize: 5, FailureBufferSize: 10},
		queue.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, d.Register("storefront", func(ctx context.Context, job *shared.Job) error {
		return shared.Permanent(errors.New("order 404 on storefront"))
	}, queue.WorkerOptions{}))

	job, err := d.Enqueue(ctx, "storefront", map[string]string{"order": "1002"}, shared.DefaultJobOptions())
	require.NoError(t, err)

	_, err = d.ProcessQueueOnce(ctx, "storefront")
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.JobStateFailed, stored.State)

	failures := d.RecentFailures(10)
	require.Len(t, failures, 1)
	assert.Equal(t, job.ID, failures[0].JobID)
	assert.Contains(t, failures[0].Error, "404")

	failed, total, err := repo.FindFailed(ctx, "storefront", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, job.ID, failed[0].ID)
}

func TestDispatcher_RequeueStale(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormJobRepository(tdb.DB)
	ctx := context.Background()

	clock := time.Now().UTC()
	d := queue.New(repo, config.DispatcherConfig{BatchSize: 5, StaleAfter: 10 * time.Minute},
		queue.WithClock(func() time.Time { return clock }))

	job, err := d.Enqueue(ctx, "warehouse-poll", map[string]string{"channel": "c1"}, shared.DefaultJobOptions())
	require.NoError(t, err)
	// a worker claims the job and crashes
	claimed, err := repo.Claim(ctx, "warehouse-poll", clock, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	clock = clock.Add(time.Hour)
	n, err := d.RequeueStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.JobStateRetry, stored.State)
	assert.Equal(t, 1, stored.RetryCount)

	// the worker that crashed cannot overwrite the released job
	require.NotNil(t, claimed[0].StartedAt)
	claimed[0].MarkCompleted(clock)
	assert.ErrorIs(t, repo.Update(ctx, claimed[0], *claimed[0].StartedAt), shared.ErrJobClaimLost)
}
