// Package syncer reconciles the local store with the remote service. A run
// is a full snapshot pull when no sync has succeeded yet, and an incremental
// exchange of the pending ledger otherwise.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/client"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
	"github.com/dmitrijs2005/papershelf/internal/client/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/client/tracker"
	"github.com/dmitrijs2005/papershelf/internal/logging"
)

type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Remote is the part of client.Client a sync run needs.
type Remote interface {
	Snapshot(ctx context.Context) (*api.Snapshot, error)
	Incremental(ctx context.Context, req *api.IncrementalRequest) (*api.IncrementalResponse, error)
}

type Deduplicator interface {
	DeduplicateLocalPapers(ctx context.Context) (int, error)
}

var _ Remote = (client.Client)(nil)

// Result summarizes a successful run.
type Result struct {
	Mode     Mode
	SyncedAt time.Time
	// Applied is the number of ledger entries the server confirmed.
	Applied int
	// Received is the number of server records and deletions applied locally.
	Received          int
	Skipped           int
	Conflicts         []api.Conflict
	DuplicatesRemoved int
	// PendingRemaining counts ledger entries still waiting after the run.
	PendingRemaining int
}

// HasChanges reports whether the run moved any data in either direction.
func (r *Result) HasChanges() bool {
	return r.Applied > 0 || r.Received > 0 || r.DuplicatesRemoved > 0 || len(r.Conflicts) > 0
}

type Orchestrator struct {
	store   records.Repository
	tracker *tracker.Tracker
	state   *State
	remote  Remote
	dedup   Deduplicator
	log     logging.Logger
	now     func() time.Time
}

func NewOrchestrator(store records.Repository, tr *tracker.Tracker, state *State, remote Remote, dedup Deduplicator, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		tracker: tr,
		state:   state,
		remote:  remote,
		dedup:   dedup,
		log:     log.With("module", "syncer"),
		now:     time.Now,
	}
}

// Sync runs one reconciliation pass. It returns ErrSyncInProgress if another
// run holds the lock. On any error the ledger and last sync time are left as
// they were.
func (o *Orchestrator) Sync(ctx context.Context) (*Result, error) {
	ok, err := o.state.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer func() {
		if err := o.state.Unlock(context.WithoutCancel(ctx)); err != nil {
			o.log.Error(ctx, "release sync lock", "error", err)
		}
	}()

	last, err := o.state.LastSyncedAt(ctx)
	if err != nil {
		return nil, err
	}

	var res *Result
	if last == nil {
		res, err = o.fullSync(ctx)
	} else {
		res, err = o.incrementalSync(ctx, *last)
	}
	if err != nil {
		o.log.Warn(ctx, "sync failed", "error", err)
		return nil, err
	}

	pending, err := o.tracker.Pending(ctx)
	if err != nil {
		o.log.Warn(ctx, "read pending changes", "error", err)
	} else {
		res.PendingRemaining = pending.Count()
	}

	o.log.Info(ctx, "sync finished",
		"mode", res.Mode,
		"applied", res.Applied,
		"received", res.Received,
		"skipped", res.Skipped,
		"conflicts", len(res.Conflicts),
		"duplicates_removed", res.DuplicatesRemoved,
		"pending", res.PendingRemaining,
	)
	return res, nil
}

func (o *Orchestrator) fullSync(ctx context.Context) (*Result, error) {
	snap, err := o.remote.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("full sync: %w", err)
	}

	if err := o.vacatePending(ctx, snap); err != nil {
		return nil, fmt.Errorf("full sync: %w", err)
	}

	res := &Result{Mode: ModeFull, SyncedAt: o.syncedAt(snap.SyncedAt)}
	for _, e := range api.Entities {
		applied, skipped, err := o.upsertAll(ctx, e, snap.For(e))
		if err != nil {
			return nil, fmt.Errorf("full sync: %w", err)
		}
		res.Received += applied
		res.Skipped += skipped
	}

	res.DuplicatesRemoved = o.runDedup(ctx)

	if err := o.state.SetLastSyncedAt(ctx, res.SyncedAt); err != nil {
		return nil, fmt.Errorf("full sync: %w", err)
	}
	return res, nil
}

func (o *Orchestrator) incrementalSync(ctx context.Context, last time.Time) (*Result, error) {
	pending, err := o.tracker.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("incremental sync: %w", err)
	}
	clientID, err := o.state.ClientID(ctx)
	if err != nil {
		return nil, fmt.Errorf("incremental sync: %w", err)
	}

	req := &api.IncrementalRequest{
		LastSyncedAt: last,
		ClientID:     clientID,
		Changes:      models.ChangesToRemote(pending),
	}
	resp, err := o.remote.Incremental(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("incremental sync: %w", err)
	}

	res := &Result{
		Mode:      ModeIncremental,
		SyncedAt:  o.syncedAt(resp.SyncedAt),
		Applied:   resp.AppliedChanges.Count(),
		Conflicts: resp.Conflicts,
	}

	for _, e := range api.Entities {
		sc := resp.ServerChanges.For(e)
		applied, skipped, err := o.upsertAll(ctx, e, sc.Upserted)
		if err != nil {
			return nil, fmt.Errorf("incremental sync: %w", err)
		}
		res.Received += applied
		res.Skipped += skipped

		for _, id := range sc.Deleted {
			err := o.store.Delete(ctx, e, id)
			if err != nil && !records.IsKind(err, records.KindNotFound) {
				return nil, fmt.Errorf("incremental sync: %w", err)
			}
			res.Received++
		}
	}

	for _, c := range res.Conflicts {
		o.log.Info(ctx, "server kept its version", "entity", c.Entity, "id", c.ID, "reason", c.Reason)
	}

	res.DuplicatesRemoved = o.runDedup(ctx)

	if err := o.tracker.Commit(ctx, pending, &resp.AppliedChanges, res.SyncedAt); err != nil {
		return nil, fmt.Errorf("incremental sync: %w", err)
	}
	return res, nil
}

// upsertAll writes remote records into the local store by id. Records that
// lack an id or a required field are skipped; a later record with the same
// id overwrites an earlier one.
// vacatePending moves pending local creations whose ids the snapshot uses
// to ids above every snapshot id, so the upsert does not overwrite them.
func (o *Orchestrator) vacatePending(ctx context.Context, snap *api.Snapshot) error {
	pending, err := o.tracker.Pending(ctx)
	if err != nil {
		return err
	}
	for _, e := range api.Entities {
		created := pending.For(e).Created
		if len(created) == 0 {
			continue
		}

		taken := make(map[int64]bool)
		var top int64
		for _, r := range snap.For(e) {
			if id, ok := api.RecordID(r); ok {
				taken[id] = true
				top = max(top, id)
			}
		}

		for _, rec := range created {
			id, ok := api.RecordID(rec)
			if !ok || !taken[id] {
				continue
			}
			to, err := o.tracker.Relocate(ctx, o.store, e, id, top)
			if err != nil {
				return err
			}
			o.log.Warn(ctx, "pending record moved off a server id", "entity", e, "id", id, "moved_to", to)
		}
	}
	return nil
}

func (o *Orchestrator) upsertAll(ctx context.Context, e api.Entity, recs []api.Record) (applied, skipped int, err error) {
	for _, remote := range recs {
		local := models.FromRemote(e, remote)

		id, ok := api.RecordID(local)
		if !ok {
			o.log.Warn(ctx, "skipping remote record without id", "entity", e)
			skipped++
			continue
		}
		if verr := models.Validate(e, local); verr != nil {
			o.log.Warn(ctx, "skipping invalid remote record", "entity", e, "id", id, "error", verr)
			skipped++
			continue
		}

		if _, err := o.store.Put(ctx, e, local); err != nil {
			var se *records.StorageError
			if errors.As(err, &se) && se.Kind == records.KindInvalidData {
				o.log.Warn(ctx, "skipping unstorable remote record", "entity", e, "id", id, "error", err)
				skipped++
				continue
			}
			return applied, skipped, err
		}
		applied++
	}
	return applied, skipped, nil
}

func (o *Orchestrator) runDedup(ctx context.Context) int {
	if o.dedup == nil {
		return 0
	}
	n, err := o.dedup.DeduplicateLocalPapers(ctx)
	if err != nil {
		o.log.Warn(ctx, "dedup pass failed", "error", err)
	}
	return n
}

func (o *Orchestrator) syncedAt(t time.Time) time.Time {
	if t.IsZero() {
		return o.now().UTC()
	}
	return t
}
