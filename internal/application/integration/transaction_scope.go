package integration

import (
	"context"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// TransactionScope runs a unit of work atomically.
// The entity change, its audit entries and the jobs it enqueues commit together.
type TransactionScope interface {
	// Execute runs fn within a database transaction. The transaction is rolled
	// back when fn returns an error and committed otherwise.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to repositories sharing one transaction
type TransactionalRepositories interface {
	Orders() integration.OrderRepository
	Products() integration.ProductRepository
	Channels() integration.ChannelRepository
	SyncLogs() integration.SyncLogRepository
	Jobs() shared.JobRepository
}
