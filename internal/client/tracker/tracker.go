// Package tracker keeps the persisted ledger of local mutations that have
// not been confirmed by the remote service yet.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/dmitrijs2005/papershelf/internal/logging"
)

// Tracker reads and rewrites the ledger under metadata.KeyPendingChanges.
// Every call is a read-modify-write inside one transaction.
type Tracker struct {
	db  *sql.DB
	mu  sync.Mutex
	log logging.Logger
}

func New(db *sql.DB, log logging.Logger) *Tracker {
	return &Tracker{db: db, log: log.With("module", "tracker")}
}

func (t *Tracker) TrackCreated(ctx context.Context, e api.Entity, rec api.Record) error {
	if _, ok := api.RecordID(rec); !ok {
		return fmt.Errorf("track created %s: record has no id", e)
	}
	return t.mutate(ctx, func(cs *api.ChangeSet) {
		addCreated(cs.For(e), rec)
	})
}

func (t *Tracker) TrackUpdated(ctx context.Context, e api.Entity, id int64, patch api.Record) error {
	return t.mutate(ctx, func(cs *api.ChangeSet) {
		addUpdated(cs.For(e), id, patch)
	})
}

func (t *Tracker) TrackDeleted(ctx context.Context, e api.Entity, id int64) error {
	return t.mutate(ctx, func(cs *api.ChangeSet) {
		addDeleted(cs.For(e), id)
	})
}

// Mover renumbers a stored record; see records.Repository.Move.
type Mover interface {
	Move(ctx context.Context, e api.Entity, from, above int64) (int64, error)
}

// Relocate moves the local record id to a free id greater than above and
// renames its pending entries to match. It is used when the server claims
// an id that a record it has never seen still holds locally.
func (t *Tracker) Relocate(ctx context.Context, store Mover, e api.Entity, id, above int64) (int64, error) {
	to, err := store.Move(ctx, e, id, above)
	if err != nil {
		return 0, fmt.Errorf("relocate %s %d: %w", e, id, err)
	}
	if err := t.mutate(ctx, func(cs *api.ChangeSet) {
		rekey(cs, e, id, to)
	}); err != nil {
		return 0, fmt.Errorf("relocate %s %d: %w", e, id, err)
	}
	t.log.Info(ctx, "local record relocated", "entity", e, "from", id, "to", to)
	return to, nil
}

// Pending returns a copy of the current ledger.
func (t *Tracker) Pending(ctx context.Context) (*api.ChangeSet, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return load(ctx, metadata.NewSQLiteRepository(t.db))
}

// Clear removes the entries listed in applied that still match sent, the
// ledger as it was when the request was built. Only call it after a
// completed round trip.
func (t *Tracker) Clear(ctx context.Context, sent *api.ChangeSet, applied *api.AppliedChanges) error {
	return t.mutate(ctx, func(cs *api.ChangeSet) {
		clearAll(cs, sent, applied)
	})
}

// Commit is Clear plus advancing the last sync time, in one transaction so
// a crash cannot leave one without the other.
func (t *Tracker) Commit(ctx context.Context, sent *api.ChangeSet, applied *api.AppliedChanges, syncedAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		cs, err := load(ctx, repo)
		if err != nil {
			return err
		}
		clearAll(cs, sent, applied)
		if err := save(ctx, repo, cs); err != nil {
			return err
		}
		return repo.SetTime(ctx, metadata.KeyLastSyncedAt, syncedAt)
	})
	if err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}
	return nil
}

func clearAll(cs, sent *api.ChangeSet, applied *api.AppliedChanges) {
	if sent == nil {
		sent = api.NewChangeSet()
	}
	for _, e := range api.Entities {
		clearApplied(cs.For(e), sent.For(e), applied.For(e))
	}
}

func (t *Tracker) mutate(ctx context.Context, fn func(cs *api.ChangeSet)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		cs, err := load(ctx, repo)
		if err != nil {
			return err
		}
		fn(cs)
		return save(ctx, repo, cs)
	})
}

func load(ctx context.Context, repo metadata.Repository) (*api.ChangeSet, error) {
	raw, err := repo.Get(ctx, metadata.KeyPendingChanges)
	if err != nil {
		return nil, err
	}
	cs := api.NewChangeSet()
	if len(raw) == 0 {
		return cs, nil
	}
	if err := json.Unmarshal(raw, cs); err != nil {
		return nil, fmt.Errorf("decode pending changes: %w", err)
	}
	cs.Normalize()
	return cs, nil
}

func save(ctx context.Context, repo metadata.Repository, cs *api.ChangeSet) error {
	cs.Normalize()
	raw, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode pending changes: %w", err)
	}
	return repo.Set(ctx, metadata.KeyPendingChanges, raw)
}
