// Package records stores the synchronised entity documents of every user,
// including tombstones for deleted ones.
package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
)

type Repository interface {
	// Get returns the record or its tombstone, or common.ErrorNotFound.
	Get(ctx context.Context, userID string, e api.Entity, id int64) (*models.StoredRecord, error)
	// Put inserts or replaces the record keyed by (UserID, Entity, ID).
	Put(ctx context.Context, r *models.StoredRecord) error
	// NextID returns an id above every id ever used for the entity,
	// tombstones included.
	NextID(ctx context.Context, userID string, e api.Entity) (int64, error)

	// List returns live records ordered by id.
	List(ctx context.Context, userID string, e api.Entity) ([]*models.StoredRecord, error)
	// ChangedSince returns records and tombstones updated strictly after
	// since, skipping those written by excludeOrigin.
	ChangedSince(ctx context.Context, userID string, e api.Entity, since time.Time, excludeOrigin string) ([]*models.StoredRecord, error)
	// FindIDs returns the ids of live records whose top-level field equals
	// value when both are rendered as text.
	FindIDs(ctx context.Context, userID string, e api.Entity, field, value string) ([]int64, error)
	Count(ctx context.Context, userID string, e api.Entity) (int, error)
}
