package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/google/uuid"
)

// LockStaleAfter is how long a held sync lock is honoured before it is
// considered abandoned.
const LockStaleAfter = 5 * time.Minute

var ErrSyncInProgress = errors.New("sync already in progress")

// State is the persisted sync bookkeeping: client id, last successful sync
// time and the sync lock.
type State struct {
	db  *sql.DB
	mu  sync.Mutex
	log logging.Logger
	now func() time.Time
}

func NewState(db *sql.DB, log logging.Logger) *State {
	return &State{db: db, log: log.With("module", "sync_state"), now: time.Now}
}

func (s *State) repo(db dbx.DBTX) metadata.Repository {
	if db == nil {
		db = s.db
	}
	return metadata.NewSQLiteRepository(db)
}

// ClientID returns the install's client id, creating it on first use.
func (s *State) ClientID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (string, error) {
		repo := s.repo(tx)
		raw, err := repo.Get(ctx, metadata.KeyClientID)
		if err != nil || len(raw) > 0 {
			return string(raw), err
		}
		id := uuid.NewString()
		return id, repo.Set(ctx, metadata.KeyClientID, []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("client id: %w", err)
	}
	return id, nil
}

// LastSyncedAt returns nil when no sync has succeeded yet.
func (s *State) LastSyncedAt(ctx context.Context) (*time.Time, error) {
	t, err := s.repo(nil).GetTime(ctx, metadata.KeyLastSyncedAt)
	if err != nil {
		return nil, fmt.Errorf("last synced at: %w", err)
	}
	return t, nil
}

func (s *State) SetLastSyncedAt(ctx context.Context, t time.Time) error {
	return s.repo(nil).SetTime(ctx, metadata.KeyLastSyncedAt, t)
}

// ResetLastSyncedAt forgets the last sync, so the next run is a full sync.
func (s *State) ResetLastSyncedAt(ctx context.Context) error {
	return s.repo(nil).Delete(ctx, metadata.KeyLastSyncedAt)
}

// IsSyncInProgress reports whether a live lock is held. A lock without a
// start time, or one older than LockStaleAfter, is cleared and reported as
// not held.
func (s *State) IsSyncInProgress(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		return s.checkLock(ctx, s.repo(tx))
	})
}

// TryLock takes the sync lock. It returns false if a live lock is held.
func (s *State) TryLock(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acquired, err := dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		repo := s.repo(tx)
		held, err := s.checkLock(ctx, repo)
		if err != nil || held {
			return false, err
		}
		if err := repo.Set(ctx, metadata.KeySyncLockActive, []byte("1")); err != nil {
			return false, err
		}
		return true, repo.SetTime(ctx, metadata.KeySyncLockStart, s.now())
	})
	if err != nil {
		return false, fmt.Errorf("take sync lock: %w", err)
	}
	return acquired, nil
}

func (s *State) Unlock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return clearLock(ctx, s.repo(tx))
	})
}

func (s *State) checkLock(ctx context.Context, repo metadata.Repository) (bool, error) {
	active, err := repo.Get(ctx, metadata.KeySyncLockActive)
	if err != nil {
		return false, err
	}
	if string(active) != "1" {
		return false, nil
	}

	start, err := repo.GetTime(ctx, metadata.KeySyncLockStart)
	if err != nil || start == nil || s.now().Sub(*start) > LockStaleAfter {
		s.log.Warn(ctx, "clearing stale sync lock", "start", start, "error", err)
		return false, clearLock(ctx, repo)
	}
	return true, nil
}

func clearLock(ctx context.Context, repo metadata.Repository) error {
	return repo.Delete(ctx, metadata.KeySyncLockActive, metadata.KeySyncLockStart)
}
