package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/client"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
	"github.com/dmitrijs2005/papershelf/internal/client/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/client/tracker"
	"github.com/dmitrijs2005/papershelf/internal/logging"
)

// RecordService is the mutation API used by the front end. Every write
// succeeds locally whatever the state of the server; see SyncTarget.
type RecordService interface {
	Add(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error)
	Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error)
	Delete(ctx context.Context, e api.Entity, id int64) error

	GetAll(ctx context.Context, e api.Entity) ([]api.Record, error)
	GetByID(ctx context.Context, e api.Entity, id int64) (api.Record, error)
	GetByExternalID(ctx context.Context, externalID string) (api.Record, error)
	Count(ctx context.Context, e api.Entity) (int, error)
}

type ChangeTracker interface {
	TrackCreated(ctx context.Context, e api.Entity, rec api.Record) error
	TrackUpdated(ctx context.Context, e api.Entity, id int64, patch api.Record) error
	TrackDeleted(ctx context.Context, e api.Entity, id int64) error
	Relocate(ctx context.Context, store tracker.Mover, e api.Entity, id, above int64) (int64, error)
}

type recordService struct {
	store    records.Repository
	tracker  ChangeTracker
	remote   client.Client
	target   TargetFunc
	trigger  Trigger
	reporter Reporter
	log      logging.Logger
}

type RecordOption func(*recordService)

func WithReporter(r Reporter) RecordOption {
	return func(s *recordService) { s.reporter = r }
}

func NewRecordService(store records.Repository, tr ChangeTracker, remote client.Client, target TargetFunc, trigger Trigger, log logging.Logger, opts ...RecordOption) RecordService {
	s := &recordService{
		store:   store,
		tracker: tr,
		remote:  remote,
		target:  target,
		trigger: trigger,
		log:     log.With("module", "records_service"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *recordService) Add(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	if err := models.Validate(e, rec); err != nil {
		return nil, err
	}
	switch s.targetFor(ctx) {
	case LocalOnly:
		return s.store.Add(ctx, e, rec)
	case Deferred:
		return s.addTracked(ctx, e, rec)
	}

	full := rec.Clone()
	models.ApplyDefaults(e, full)

	created, err := s.remote.Create(ctx, e, models.ToRemote(e, full, false))
	s.report(ctx, err)
	if err == nil {
		if _, ok := api.RecordID(created); !ok {
			err = errors.New("server response has no id")
		}
	}
	if err != nil {
		s.log.Warn(ctx, "remote create failed, saving locally", "entity", e, "error", err)
		return s.addTracked(ctx, e, rec)
	}

	local := withLocalOnly(e, models.FromRemote(e, created), full)
	if err := s.vacate(ctx, e, local); err != nil {
		return nil, err
	}
	saved, err := s.store.Put(ctx, e, local)
	if err != nil {
		return nil, err
	}
	s.trigger.Trigger()
	return saved, nil
}

func (s *recordService) Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	if err := models.ValidatePatch(e, patch); err != nil {
		return nil, err
	}
	switch s.targetFor(ctx) {
	case LocalOnly:
		return s.store.Update(ctx, e, id, patch)
	case Deferred:
		return s.updateTracked(ctx, e, id, patch)
	}

	remotePatch := models.ToRemote(e, patch, false)
	updated, err := s.remote.Update(ctx, e, id, remotePatch)
	s.report(ctx, err)
	if err != nil {
		s.log.Warn(ctx, "remote update failed, saving locally", "entity", e, "id", id, "error", err)
		return s.updateTracked(ctx, e, id, patch)
	}

	local := withLocalOnly(e, models.FromRemote(e, updated), patch)
	local[models.FieldID] = id
	saved, err := s.store.Put(ctx, e, local)
	if err != nil {
		return nil, err
	}
	s.trigger.Trigger()
	return saved, nil
}

// Delete removes the record. A record the server does not know, typically
// one created offline, is deleted through the tracked path so any pending
// creation is withdrawn.
func (s *recordService) Delete(ctx context.Context, e api.Entity, id int64) error {
	switch s.targetFor(ctx) {
	case LocalOnly:
		return s.store.Delete(ctx, e, id)
	case Deferred:
		return s.deleteTracked(ctx, e, id)
	}

	err := s.remote.Delete(ctx, e, id)
	s.report(ctx, err)
	if err != nil {
		s.log.Warn(ctx, "remote delete failed, deleting locally", "entity", e, "id", id, "error", err)
		return s.deleteTracked(ctx, e, id)
	}

	if err := s.store.Delete(ctx, e, id); err != nil && !records.IsKind(err, records.KindNotFound) {
		return err
	}
	s.trigger.Trigger()
	return nil
}

func (s *recordService) GetAll(ctx context.Context, e api.Entity) ([]api.Record, error) {
	return s.store.GetAll(ctx, e)
}

func (s *recordService) GetByID(ctx context.Context, e api.Entity, id int64) (api.Record, error) {
	return s.store.GetByID(ctx, e, id)
}

func (s *recordService) GetByExternalID(ctx context.Context, externalID string) (api.Record, error) {
	return s.store.GetByExternalID(ctx, externalID)
}

func (s *recordService) Count(ctx context.Context, e api.Entity) (int, error) {
	return s.store.Count(ctx, e)
}

func (s *recordService) targetFor(ctx context.Context) SyncTarget {
	if s.remote == nil {
		return LocalOnly
	}
	return s.target(ctx)
}

func (s *recordService) addTracked(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	saved, err := s.store.Add(ctx, e, rec)
	if err != nil {
		return nil, err
	}
	s.track(ctx, func() error { return s.tracker.TrackCreated(ctx, e, saved) })
	return saved, nil
}

func (s *recordService) updateTracked(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	saved, err := s.store.Update(ctx, e, id, patch)
	if err != nil {
		return nil, err
	}
	s.track(ctx, func() error { return s.tracker.TrackUpdated(ctx, e, id, patch) })
	return saved, nil
}

func (s *recordService) deleteTracked(ctx context.Context, e api.Entity, id int64) error {
	if err := s.store.Delete(ctx, e, id); err != nil {
		return err
	}
	s.track(ctx, func() error { return s.tracker.TrackDeleted(ctx, e, id) })
	return nil
}

// vacate frees the id the server assigned to rec when a local record the
// server has not seen holds it. That record keeps its data under a new id
// and its pending creation follows it.
func (s *recordService) vacate(ctx context.Context, e api.Entity, rec api.Record) error {
	id, _ := api.RecordID(rec)
	if _, err := s.store.GetByID(ctx, e, id); err != nil {
		if records.IsKind(err, records.KindNotFound) {
			return nil
		}
		return err
	}
	to, err := s.tracker.Relocate(ctx, s.store, e, id, id)
	if err != nil {
		return err
	}
	s.log.Warn(ctx, "server id taken by a local record, moved it", "entity", e, "id", id, "moved_to", to)
	return nil
}

// track records a fallback write and schedules the retry. The local write
// has already succeeded, so a ledger failure is logged rather than returned.
func (s *recordService) track(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		s.log.Error(ctx, "tracking change failed", "error", fmt.Errorf("track: %w", err))
	}
	s.trigger.Trigger()
}

func (s *recordService) report(ctx context.Context, err error) {
	if s.reporter == nil {
		return
	}
	if err == nil || client.IsTransient(err) {
		s.reporter.Report(ctx, err)
	}
}

// withLocalOnly copies the local-only fields of src that rec lacks, so
// values derived from the server response take precedence.
func withLocalOnly(e api.Entity, rec, src api.Record) api.Record {
	for k, v := range models.LocalOnly(e, src) {
		if _, ok := rec[k]; !ok {
			rec[k] = v
		}
	}
	return rec
}
