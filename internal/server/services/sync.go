package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
	"github.com/dmitrijs2005/papershelf/internal/server/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/server/repositories/repomanager"
)

// Remote field names the server interprets.
const (
	fieldID      = "id"
	fieldPDFURL  = "pdfUrl"
	fieldPaperID = "paperId"
)

// PDFStore issues presigned object URLs.
type PDFStore interface {
	PresignGet(ctx context.Context, key string) (string, error)
	PresignPut(ctx context.Context, key string) (string, error)
}

// SyncService owns the per-user record set. Writes of one user are
// serialized through the user row lock, and every write is stamped with the
// writing client's id so incremental responses can leave it out of that
// client's feed.
type SyncService struct {
	repomanager repomanager.RepositoryManager
	pdfs        PDFStore
	log         logging.Logger
	now         func() time.Time
}

func NewSyncService(m repomanager.RepositoryManager, pdfs PDFStore, log logging.Logger) *SyncService {
	return &SyncService{
		repomanager: m,
		pdfs:        pdfs,
		log:         log.With("module", "sync_service"),
		now:         time.Now,
	}
}

// stamp returns the write time. Postgres keeps microseconds, so the value is
// truncated to compare equal after a round trip.
func (s *SyncService) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Snapshot returns every live record of the user.
func (s *SyncService) Snapshot(ctx context.Context, userID string) (*api.Snapshot, error) {
	snap := &api.Snapshot{}
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if err := r.Users().Lock(ctx, userID); err != nil {
			return err
		}
		for _, e := range api.Entities {
			recs, err := r.Records().List(ctx, userID, e)
			if err != nil {
				return err
			}
			out := make([]api.Record, 0, len(recs))
			for _, rec := range recs {
				out = append(out, rec.Wire())
			}
			snap.Set(e, out)
		}
		snap.SyncedAt = s.stamp()
		return r.Users().SetLastSyncedAt(ctx, userID, snap.SyncedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	s.log.Info(ctx, "snapshot served", "user_id", userID,
		"papers", len(snap.Papers), "collections", len(snap.Collections), "annotations", len(snap.Annotations))
	return snap, nil
}

// Incremental applies the client's pending changes and returns what other
// clients changed since req.LastSyncedAt. When the server copy of a record
// was changed by another client after req.LastSyncedAt the server copy is
// kept: the id is still reported as applied, so the client drops it from its
// ledger, and the server copy travels back in ServerChanges.
func (s *SyncService) Incremental(ctx context.Context, userID string, req *api.IncrementalRequest) (*api.IncrementalResponse, error) {
	if req == nil || req.ClientID == "" {
		return nil, fmt.Errorf("%w: clientId is required", common.ErrorValidation)
	}

	resp := &api.IncrementalResponse{}
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if err := r.Users().Lock(ctx, userID); err != nil {
			return err
		}
		a := &applier{
			records: r.Records(),
			userID:  userID,
			origin:  req.ClientID,
			since:   req.LastSyncedAt,
			now:     s.stamp(),
			log:     s.log,
		}

		for _, e := range api.Entities {
			if err := a.apply(ctx, e, req.Changes.For(e), resp); err != nil {
				return err
			}
		}

		for _, e := range api.Entities {
			changed, err := r.Records().ChangedSince(ctx, userID, e, req.LastSyncedAt, req.ClientID)
			if err != nil {
				return err
			}
			sc := resp.ServerChanges.For(e)
			sc.Upserted = []api.Record{}
			sc.Deleted = []int64{}
			for _, rec := range changed {
				if rec.Deleted {
					sc.Deleted = append(sc.Deleted, rec.ID)
				} else {
					sc.Upserted = append(sc.Upserted, rec.Wire())
				}
			}
		}

		resp.SyncedAt = a.now
		return r.Users().SetLastSyncedAt(ctx, userID, a.now)
	})
	if err != nil {
		return nil, fmt.Errorf("incremental sync: %w", err)
	}

	s.log.Info(ctx, "incremental sync",
		"user_id", userID,
		"client_id", req.ClientID,
		"applied", resp.AppliedChanges.Count(),
		"server_changes", resp.ServerChanges.Count(),
		"conflicts", len(resp.Conflicts),
	)
	return resp, nil
}

// Status reports the user's last sync and live record counts.
func (s *SyncService) Status(ctx context.Context, userID string) (*api.Status, error) {
	last, err := s.repomanager.Users().GetLastSyncedAt(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	st := &api.Status{LastSyncedAt: last}
	for _, e := range api.Entities {
		n, err := s.repomanager.Records().Count(ctx, userID, e)
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		st.Counts.Set(e, n)
	}
	return st, nil
}

// Create stores rec under a server-assigned id. Any id in rec is ignored.
func (s *SyncService) Create(ctx context.Context, userID, origin string, e api.Entity, rec api.Record) (api.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: record is required", common.ErrorValidation)
	}

	var out api.Record
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if err := r.Users().Lock(ctx, userID); err != nil {
			return err
		}
		id, err := r.Records().NextID(ctx, userID, e)
		if err != nil {
			return err
		}
		stored := &models.StoredRecord{
			UserID:    userID,
			Entity:    e,
			ID:        id,
			Data:      withoutID(rec),
			Origin:    origin,
			UpdatedAt: s.stamp(),
		}
		if err := r.Records().Put(ctx, stored); err != nil {
			return err
		}
		out = stored.Wire()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update shallow-merges patch into a live record. Unknown and deleted ids
// yield common.ErrorNotFound.
func (s *SyncService) Update(ctx context.Context, userID, origin string, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	var out api.Record
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if err := r.Users().Lock(ctx, userID); err != nil {
			return err
		}
		existing, err := liveRecord(ctx, r, userID, e, id)
		if err != nil {
			return err
		}
		existing.Data = merge(existing.Data, patch)
		existing.Origin = origin
		existing.UpdatedAt = s.stamp()
		if err := r.Records().Put(ctx, existing); err != nil {
			return err
		}
		out = existing.Wire()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete turns a live record into a tombstone. Deleting a paper deletes its
// annotations too.
func (s *SyncService) Delete(ctx context.Context, userID, origin string, e api.Entity, id int64) error {
	return s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if err := r.Users().Lock(ctx, userID); err != nil {
			return err
		}
		existing, err := liveRecord(ctx, r, userID, e, id)
		if err != nil {
			return err
		}
		a := &applier{records: r.Records(), userID: userID, origin: origin, now: s.stamp(), log: s.log}
		return a.tombstone(ctx, existing)
	})
}

// PaperPDFURL returns a download address for the paper's PDF. A pdfUrl that
// already is an http(s) URL is returned as is; anything else is taken as an
// object key and presigned.
func (s *SyncService) PaperPDFURL(ctx context.Context, userID string, paperID int64) (string, error) {
	rec, err := s.repomanager.Records().Get(ctx, userID, api.Papers, paperID)
	if err != nil {
		return "", err
	}
	if rec.Deleted {
		return "", common.ErrorNotFound
	}
	ref, _ := rec.Data[fieldPDFURL].(string)
	if ref == "" {
		return "", fmt.Errorf("%w: paper %d has no pdf", common.ErrorNotFound, paperID)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if s.pdfs == nil {
		return "", errors.New("pdf storage is not configured")
	}
	return s.pdfs.PresignGet(ctx, ref)
}

// PaperPDFUpload points the paper at a fresh object key and returns a
// presigned upload URL for it.
func (s *SyncService) PaperPDFUpload(ctx context.Context, userID, origin string, paperID int64) (*api.PDFUpload, error) {
	if s.pdfs == nil {
		return nil, errors.New("pdf storage is not configured")
	}
	key := PDFStorageKey(userID, paperID)

	var url string
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repos) error {
		if err := r.Users().Lock(ctx, userID); err != nil {
			return err
		}
		paper, err := liveRecord(ctx, r, userID, api.Papers, paperID)
		if err != nil {
			return err
		}
		if url, err = s.pdfs.PresignPut(ctx, key); err != nil {
			return err
		}
		paper.Data = merge(paper.Data, api.Record{fieldPDFURL: key})
		paper.Origin = origin
		paper.UpdatedAt = s.stamp()
		return r.Records().Put(ctx, paper)
	})
	if err != nil {
		return nil, err
	}
	return &api.PDFUpload{URL: url, Key: key}, nil
}

func liveRecord(ctx context.Context, r repomanager.Repos, userID string, e api.Entity, id int64) (*models.StoredRecord, error) {
	rec, err := r.Records().Get(ctx, userID, e, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

// applier writes one client's ledger inside a sync transaction.
type applier struct {
	records records.Repository
	userID string
	origin string
	since  time.Time
	now    time.Time
	log    logging.Logger
}

func (a *applier) apply(ctx context.Context, e api.Entity, ch *api.EntityChanges, resp *api.IncrementalResponse) error {
	applied := resp.AppliedChanges.For(e)
	applied.Created = []int64{}
	applied.Updated = []int64{}
	applied.Deleted = []int64{}

	for _, rec := range ch.Created {
		id, ok := api.RecordID(rec)
		if !ok {
			a.log.Warn(ctx, "skipping created record without id", "entity", e)
			continue
		}
		if err := a.upsert(ctx, e, id, rec, false, resp); err != nil {
			return err
		}
		applied.Created = append(applied.Created, id)
	}

	for _, patch := range ch.Updated {
		id, ok := api.RecordID(patch)
		if !ok {
			a.log.Warn(ctx, "skipping updated record without id", "entity", e)
			continue
		}
		if err := a.upsert(ctx, e, id, patch, true, resp); err != nil {
			return err
		}
		applied.Updated = append(applied.Updated, id)
	}

	for _, id := range ch.Deleted {
		existing, err := a.existing(ctx, e, id)
		if err != nil {
			return err
		}
		switch {
		case existing == nil || existing.Deleted:
		case a.conflicts(existing):
			resp.Conflicts = append(resp.Conflicts, api.Conflict{Entity: e, ID: id, Reason: "modified on server since last sync"})
		default:
			if err := a.tombstone(ctx, existing); err != nil {
				return err
			}
		}
		applied.Deleted = append(applied.Deleted, id)
	}
	return nil
}

// upsert writes a created record or merges an update. An update for an id
// the server does not know is stored as given.
func (a *applier) upsert(ctx context.Context, e api.Entity, id int64, rec api.Record, merging bool, resp *api.IncrementalResponse) error {
	existing, err := a.existing(ctx, e, id)
	if err != nil {
		return err
	}
	if existing != nil && a.conflicts(existing) {
		reason := "modified on server since last sync"
		if existing.Deleted {
			reason = "deleted on server since last sync"
		}
		resp.Conflicts = append(resp.Conflicts, api.Conflict{Entity: e, ID: id, Reason: reason})
		return nil
	}

	data := withoutID(rec)
	if merging && existing != nil {
		data = merge(existing.Data, rec)
	}
	return a.records.Put(ctx, &models.StoredRecord{
		UserID:    a.userID,
		Entity:    e,
		ID:        id,
		Data:      data,
		Origin:    a.origin,
		UpdatedAt: a.now,
	})
}

// tombstone marks rec deleted, keeping its last data, and cascades a paper
// deletion to the annotations pointing at it.
func (a *applier) tombstone(ctx context.Context, rec *models.StoredRecord) error {
	rec.Deleted = true
	rec.Origin = a.origin
	rec.UpdatedAt = a.now
	if err := a.records.Put(ctx, rec); err != nil {
		return err
	}
	if rec.Entity != api.Papers {
		return nil
	}

	ids, err := a.records.FindIDs(ctx, a.userID, api.Annotations, fieldPaperID, strconv.FormatInt(rec.ID, 10))
	if err != nil {
		return err
	}
	for _, id := range ids {
		ann, err := a.records.Get(ctx, a.userID, api.Annotations, id)
		if err != nil {
			a.log.Warn(ctx, "cascade delete skipped annotation", "paper_id", rec.ID, "annotation_id", id, "error", err)
			continue
		}
		if err := a.tombstone(ctx, ann); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) existing(ctx context.Context, e api.Entity, id int64) (*models.StoredRecord, error) {
	rec, err := a.records.Get(ctx, a.userID, e, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return rec, err
}

// conflicts reports whether another client wrote rec after the caller's
// last sync.
func (a *applier) conflicts(rec *models.StoredRecord) bool {
	return rec.Origin != a.origin && rec.UpdatedAt.After(a.since)
}

func withoutID(rec api.Record) api.Record {
	out := rec.Clone()
	delete(out, fieldID)
	return out
}

// merge returns base with the top-level fields of patch applied.
func merge(base, patch api.Record) api.Record {
	out := base.Clone()
	for k, v := range patch {
		if k == fieldID {
			continue
		}
		out[k] = v
	}
	return out
}
