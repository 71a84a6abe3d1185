// Package repomanager hands out the server repositories for the configured
// backend, PostgreSQL or process memory, and runs work in transactions.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/papershelf/internal/server/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/server/repositories/users"
)

// Repos is a set of repositories bound to one connection or transaction.
type Repos interface {
	Users() users.Repository
	Records() records.Repository
}

type RepositoryManager interface {
	Repos
	RunMigrations(ctx context.Context) error
	// InTx runs fn with repositories sharing one transaction. An error from
	// fn rolls the transaction back.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	Close() error
}
