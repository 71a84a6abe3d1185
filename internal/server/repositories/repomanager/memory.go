package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/papershelf/internal/server/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/server/repositories/users"
)

// InMemoryRepositoryManager keeps all data in process memory. Transactions
// are serialized but not rolled back: a failing fn leaves its earlier writes
// in place.
type InMemoryRepositoryManager struct {
	tx      sync.Mutex
	users   *users.MemoryRepository
	records *records.MemoryRepository
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{
		users:   users.NewMemoryRepository(),
		records: records.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Users() users.Repository     { return m.users }
func (m *InMemoryRepositoryManager) Records() records.Repository { return m.records }

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	m.tx.Lock()
	defer m.tx.Unlock()
	return fn(ctx, m)
}

func (m *InMemoryRepositoryManager) Close() error { return nil }
