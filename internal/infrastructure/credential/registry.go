package credential

import (
	"context"
	"sync"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// Registry hands out one Coordinator per account. Entries are created on first use
// and never removed.
type Registry struct {
	mu           sync.Mutex
	coordinators map[string]*Coordinator
	repo         integration.CredentialRepository
	locker       shared.Locker
	exchanger    Exchanger
	opts         Options
}

// NewRegistry creates an empty registry sharing repo, locker and exchanger
func NewRegistry(repo integration.CredentialRepository, locker shared.Locker, exchanger Exchanger, opts Options) *Registry {
	return &Registry{
		coordinators: make(map[string]*Coordinator),
		repo:         repo,
		locker:       locker,
		exchanger:    exchanger,
		opts:         opts.withDefaults(),
	}
}

// For returns the coordinator of accountID
func (r *Registry) For(accountID string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coordinators[accountID]
	if !ok {
		c = NewCoordinator(accountID, r.repo, r.locker, r.exchanger, r.opts)
		r.coordinators[accountID] = c
	}
	return c
}

// Refresh refreshes the token of accountID
func (r *Registry) Refresh(ctx context.Context, accountID string, stale integration.TokenData) (integration.TokenData, error) {
	return r.For(accountID).Refresh(ctx, stale)
}

// GetLatestTokens returns the persisted token of accountID, or nil
func (r *Registry) GetLatestTokens(ctx context.Context, accountID string) (*integration.TokenData, error) {
	return r.For(accountID).GetLatestTokens(ctx)
}

// Token returns a usable token of accountID
func (r *Registry) Token(ctx context.Context, accountID string) (integration.TokenData, error) {
	return r.For(accountID).Token(ctx)
}

// Seed stores an initial token pair obtained through the authorization flow
func (r *Registry) Seed(ctx context.Context, accountID string, token integration.TokenData) error {
	return r.repo.Save(ctx, &integration.CredentialToken{
		AccountID: accountID,
		TokenData: token,
		UpdatedAt: r.opts.Now().UTC(),
	})
}
