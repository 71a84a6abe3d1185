// Package records is the durable local store for papers, collections and
// annotations. Records are JSON documents; the columns needed for lookups
// (external ids, annotation parent) are extracted on write.
package records

import (
	"context"

	"github.com/dmitrijs2005/papershelf/internal/api"
)

// Repository is the local CRUD contract the sync core consumes.
type Repository interface {
	// Add validates rec, stamps defaults and createdAt/updatedAt, and assigns
	// a new id.
	Add(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error)
	GetAll(ctx context.Context, e api.Entity) ([]api.Record, error)
	GetByID(ctx context.Context, e api.Entity, id int64) (api.Record, error)
	// GetByExternalID finds a paper by DOI or arXiv id, case-insensitively.
	GetByExternalID(ctx context.Context, externalID string) (api.Record, error)
	// Update merges patch over the stored record and refreshes updatedAt.
	Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error)
	// Delete removes the record; deleting a paper also removes its annotations.
	Delete(ctx context.Context, e api.Entity, id int64) error
	// Put upserts rec under its own id, keeping local-only fields of any
	// existing row that rec does not carry. Used to mirror remote state.
	Put(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error)
	Count(ctx context.Context, e api.Entity) (int, error)
	// Move renumbers record from to the first free id greater than above and
	// returns it. Moving a paper rewrites the references held by its
	// annotations and by collections.
	Move(ctx context.Context, e api.Entity, from, above int64) (int64, error)
}
