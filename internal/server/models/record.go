// Package models holds the server's persisted types.
package models

import (
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
)

// StoredRecord is one entity document as kept by the server. Data uses the
// remote field names and never contains the id. A deleted record stays as a
// tombstone so incremental syncs can report the deletion.
type StoredRecord struct {
	UserID    string
	Entity    api.Entity
	ID        int64
	Data      api.Record
	Origin    string
	UpdatedAt time.Time
	Deleted   bool
}

// Wire returns the record as sent to clients, with the id filled in.
func (r *StoredRecord) Wire() api.Record {
	out := r.Data.Clone()
	out["id"] = r.ID
	return out
}
