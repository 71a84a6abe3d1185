package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
	"github.com/spf13/cast"
)

type memKey struct {
	userID string
	entity api.Entity
	id     int64
}

// MemoryRepository keeps records in process memory. Returned records are
// copies; Data maps are shallow-cloned.
type MemoryRepository struct {
	mu   sync.RWMutex
	recs map[memKey]*models.StoredRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{recs: map[memKey]*models.StoredRecord{}}
}

func (r *MemoryRepository) Get(_ context.Context, userID string, e api.Entity, id int64) (*models.StoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.recs[memKey{userID, e, id}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(rec), nil
}

func (r *MemoryRepository) Put(_ context.Context, rec *models.StoredRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recs[memKey{rec.UserID, rec.Entity, rec.ID}] = clone(rec)
	return nil
}

func (r *MemoryRepository) NextID(_ context.Context, userID string, e api.Entity) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var maxID int64
	for k := range r.recs {
		if k.userID == userID && k.entity == e && k.id > maxID {
			maxID = k.id
		}
	}
	return maxID + 1, nil
}

func (r *MemoryRepository) List(_ context.Context, userID string, e api.Entity) ([]*models.StoredRecord, error) {
	out := r.filter(userID, e, func(rec *models.StoredRecord) bool { return !rec.Deleted })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ChangedSince(_ context.Context, userID string, e api.Entity, since time.Time, excludeOrigin string) ([]*models.StoredRecord, error) {
	out := r.filter(userID, e, func(rec *models.StoredRecord) bool {
		return rec.UpdatedAt.After(since) && rec.Origin != excludeOrigin
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) FindIDs(_ context.Context, userID string, e api.Entity, field, value string) ([]int64, error) {
	found := r.filter(userID, e, func(rec *models.StoredRecord) bool {
		v, ok := rec.Data[field]
		if rec.Deleted || !ok || v == nil {
			return false
		}
		s, err := cast.ToStringE(v)
		return err == nil && s == value
	})
	ids := make([]int64, 0, len(found))
	for _, rec := range found {
		ids = append(ids, rec.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryRepository) Count(_ context.Context, userID string, e api.Entity) (int, error) {
	return len(r.filter(userID, e, func(rec *models.StoredRecord) bool { return !rec.Deleted })), nil
}

func (r *MemoryRepository) filter(userID string, e api.Entity, keep func(*models.StoredRecord) bool) []*models.StoredRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.StoredRecord
	for k, rec := range r.recs {
		if k.userID == userID && k.entity == e && keep(rec) {
			out = append(out, clone(rec))
		}
	}
	return out
}

func clone(rec *models.StoredRecord) *models.StoredRecord {
	cp := *rec
	cp.Data = rec.Data.Clone()
	return &cp
}
