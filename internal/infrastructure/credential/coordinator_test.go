package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/cache"
)

type memoryCredentialRepo struct {
	mu     sync.Mutex
	tokens map[string]integration.CredentialToken
	saves  int
}

func newMemoryCredentialRepo() *memoryCredentialRepo {
	return &memoryCredentialRepo{tokens: make(map[string]integration.CredentialToken)}
}

func (r *memoryCredentialRepo) Get(_ context.Context, accountID string) (*integration.CredentialToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[accountID]
	if !ok {
		return nil, integration.ErrCredentialNotFound
	}
	return &t, nil
}

func (r *memoryCredentialRepo) Save(_ context.Context, token *integration.CredentialToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.AccountID] = *token
	r.saves++
	return nil
}

func (r *memoryCredentialRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// countingExchanger rotates tokens like the provider: each refresh token is single use
type countingExchanger struct {
	mu    sync.Mutex
	calls int
	spent map[string]bool
	delay time.Duration
	err   error
}

func (e *countingExchanger) Exchange(ctx context.Context, refreshToken string) (integration.TokenData, error) {
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return integration.TokenData{}, ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return integration.TokenData{}, e.err
	}
	if e.spent == nil {
		e.spent = make(map[string]bool)
	}
	if e.spent[refreshToken] {
		return integration.TokenData{}, shared.Permanent(integration.ErrReauthorizationRequired)
	}
	e.spent[refreshToken] = true
	return integration.TokenData{
		AccessToken:  fmt.Sprintf("at-%d", e.calls+1),
		RefreshToken: fmt.Sprintf("rt-%d", e.calls+1),
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
	}, nil
}

func (e *countingExchanger) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func seedExpired(t *testing.T, repo *memoryCredentialRepo) integration.TokenData {
	t.Helper()
	stale := integration.TokenData{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    time.Now().Add(-time.Minute).UTC(),
	}
	require.NoError(t, repo.Save(context.Background(), &integration.CredentialToken{AccountID: "acct", TokenData: stale}))
	repo.saves = 0
	return stale
}

func TestCoordinator_ConcurrentRefreshExchangesOnce(t *testing.T) {
	repo := newMemoryCredentialRepo()
	stale := seedExpired(t, repo)
	exchanger := &countingExchanger{delay: 50 * time.Millisecond}
	coord := NewCoordinator("acct", repo, cache.NewInMemoryLocker(), exchanger, Options{})

	const callers = 20
	results := make([]integration.TokenData, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Refresh(context.Background(), stale)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-2", results[i].AccessToken)
	}
	assert.Equal(t, 1, exchanger.callCount())
	assert.Equal(t, 1, repo.saveCount())
}

func TestCoordinator_SeparateProcessesShareTheLock(t *testing.T) {
	repo := newMemoryCredentialRepo()
	stale := seedExpired(t, repo)
	exchanger := &countingExchanger{delay: 30 * time.Millisecond}
	locker := cache.NewInMemoryLocker()

	// two registries stand in for two processes with their own single-flight groups
	opts := Options{LockTTL: time.Second, LockWait: 2 * time.Second}
	procA := NewRegistry(repo, locker, exchanger, opts)
	procB := NewRegistry(repo, locker, exchanger, opts)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 10; i++ {
		reg := procA
		if i%2 == 1 {
			reg = procB
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := reg.Refresh(context.Background(), "acct", stale)
			if err != nil || tok.AccessToken != "at-2" {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, exchanger.callCount())
	assert.Equal(t, 1, repo.saveCount())
}

func TestCoordinator_ReturnsRotatedTokenWithoutExchange(t *testing.T) {
	repo := newMemoryCredentialRepo()
	stale := seedExpired(t, repo)
	require.NoError(t, repo.Save(context.Background(), &integration.CredentialToken{
		AccountID: "acct",
		TokenData: integration.TokenData{AccessToken: "at-9", RefreshToken: "rt-9", ExpiresAt: time.Now().Add(time.Hour)},
	}))
	exchanger := &countingExchanger{}
	coord := NewCoordinator("acct", repo, cache.NewInMemoryLocker(), exchanger, Options{})

	tok, err := coord.Refresh(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, "at-9", tok.AccessToken)
	assert.Zero(t, exchanger.callCount())
}

func TestCoordinator_Token(t *testing.T) {
	t.Run("valid token is returned as stored", func(t *testing.T) {
		repo := newMemoryCredentialRepo()
		require.NoError(t, repo.Save(context.Background(), &integration.CredentialToken{
			AccountID: "acct",
			TokenData: integration.TokenData{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(time.Hour)},
		}))
		exchanger := &countingExchanger{}
		coord := NewCoordinator("acct", repo, cache.NewInMemoryLocker(), exchanger, Options{})

		tok, err := coord.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "at-1", tok.AccessToken)
		assert.Zero(t, exchanger.callCount())
	})

	t.Run("token inside the refresh margin is refreshed", func(t *testing.T) {
		repo := newMemoryCredentialRepo()
		require.NoError(t, repo.Save(context.Background(), &integration.CredentialToken{
			AccountID: "acct",
			TokenData: integration.TokenData{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresAt: time.Now().Add(30 * time.Second)},
		}))
		exchanger := &countingExchanger{}
		coord := NewCoordinator("acct", repo, cache.NewInMemoryLocker(), exchanger, Options{RefreshMargin: time.Minute})

		tok, err := coord.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "at-2", tok.AccessToken)

		stored, err := coord.GetLatestTokens(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "rt-2", stored.RefreshToken)
	})

	t.Run("unknown account needs authorization", func(t *testing.T) {
		coord := NewCoordinator("nobody", newMemoryCredentialRepo(), cache.NewInMemoryLocker(), &countingExchanger{}, Options{})

		latest, err := coord.GetLatestTokens(context.Background())
		require.NoError(t, err)
		assert.Nil(t, latest)

		_, err = coord.Token(context.Background())
		assert.ErrorIs(t, err, integration.ErrReauthorizationRequired)
		assert.True(t, shared.IsPermanent(err))
	})
}

func TestCoordinator_ExchangeFailureIsNotPersisted(t *testing.T) {
	repo := newMemoryCredentialRepo()
	stale := seedExpired(t, repo)
	exchanger := &countingExchanger{err: shared.Permanent(integration.ErrReauthorizationRequired)}
	coord := NewCoordinator("acct", repo, cache.NewInMemoryLocker(), exchanger, Options{})

	_, err := coord.Refresh(context.Background(), stale)
	assert.ErrorIs(t, err, integration.ErrReauthorizationRequired)
	assert.Zero(t, repo.saveCount())
}

func TestCoordinator_WaiterContextCancelled(t *testing.T) {
	repo := newMemoryCredentialRepo()
	stale := seedExpired(t, repo)
	exchanger := &countingExchanger{delay: 200 * time.Millisecond}
	coord := NewCoordinator("acct", repo, cache.NewInMemoryLocker(), exchanger, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := coord.Refresh(ctx, stale)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// the flight keeps going and a later caller gets its result
	tok, err := coord.Refresh(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok.AccessToken)
	assert.Equal(t, 1, exchanger.callCount())
}

func TestRegistry_ForReturnsSameCoordinator(t *testing.T) {
	reg := NewRegistry(newMemoryCredentialRepo(), cache.NewInMemoryLocker(), &countingExchanger{}, Options{})
	assert.Same(t, reg.For("a"), reg.For("a"))
	assert.NotSame(t, reg.For("a"), reg.For("b"))
	assert.Equal(t, "b", reg.For("b").AccountID())

	require.NoError(t, reg.Seed(context.Background(), "a", integration.TokenData{AccessToken: "x", RefreshToken: "y"}))
	latest, err := reg.GetLatestTokens(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "x", latest.AccessToken)
}
