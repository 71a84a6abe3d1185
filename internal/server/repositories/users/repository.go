// Package users stores server accounts and their per-user sync bookkeeping.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills in its ID. A taken username yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)

	// Lock serializes writers of one user's data for the rest of the
	// current transaction.
	Lock(ctx context.Context, userID string) error

	SetLastSyncedAt(ctx context.Context, userID string, t time.Time) error
	// GetLastSyncedAt returns nil if the user never synced.
	GetLastSyncedAt(ctx context.Context, userID string) (*time.Time, error)
}
