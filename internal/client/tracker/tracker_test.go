package tracker

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/migrations"
	"github.com/dmitrijs2005/papershelf/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Run(ctx, db, logging.NewDiscardLogger())
	require.NoError(t, err)
	return db
}

func newTracker(t *testing.T) (*Tracker, *sql.DB) {
	t.Helper()
	db := setupDB(t)
	return New(db, logging.NewDiscardLogger()), db
}

func ids(recs []api.Record) []int64 {
	out := []int64{}
	for _, r := range recs {
		id, _ := api.RecordID(r)
		out = append(out, id)
	}
	return out
}

func TestPending_EmptyLedger(t *testing.T) {
	tr, _ := newTracker(t)

	cs, err := tr.Pending(context.Background())
	require.NoError(t, err)
	assert.True(t, cs.Empty())
	assert.NotNil(t, cs.Papers.Created)
}

func TestTrackUpdated_OnPendingCreationMergesInPlace(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(1), "title": "draft"}))
	require.NoError(t, tr.TrackUpdated(ctx, api.Papers, 1, api.Record{"title": "final", "rating": 4}))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, cs.Papers.Created, 1)
	assert.Empty(t, cs.Papers.Updated)
	assert.Equal(t, "final", cs.Papers.Created[0]["title"])
	assert.EqualValues(t, 4, cs.Papers.Created[0]["rating"])
}

func TestTrackUpdated_ShallowMergeLastWriteWins(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackUpdated(ctx, api.Collections, 9, api.Record{"name": "a", "description": "x"}))
	require.NoError(t, tr.TrackUpdated(ctx, api.Collections, 9, api.Record{"name": "b"}))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, cs.Collections.Updated, 1)
	u := cs.Collections.Updated[0]
	assert.EqualValues(t, 9, u["id"])
	assert.Equal(t, "b", u["name"])
	assert.Equal(t, "x", u["description"])
}

func TestTrackDeleted_RemovesPendingAndRecordsDeletion(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(1), "title": "never sent"}))
	require.NoError(t, tr.TrackUpdated(ctx, api.Papers, 2, api.Record{"rating": 1}))
	require.NoError(t, tr.TrackDeleted(ctx, api.Papers, 1))
	require.NoError(t, tr.TrackDeleted(ctx, api.Papers, 2))
	require.NoError(t, tr.TrackDeleted(ctx, api.Papers, 2))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, cs.Papers.Created)
	assert.Empty(t, cs.Papers.Updated)
	assert.Equal(t, []int64{1, 2}, cs.Papers.Deleted)
}

func TestTrack_RandomSequencesKeepLedgerConsistent(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 200; step++ {
		id := int64(rng.Intn(5) + 1)
		switch rng.Intn(3) {
		case 0:
			require.NoError(t, tr.TrackCreated(ctx, api.Annotations, api.Record{"id": id, "paperId": 1}))
		case 1:
			require.NoError(t, tr.TrackUpdated(ctx, api.Annotations, id, api.Record{"text": step}))
		case 2:
			require.NoError(t, tr.TrackDeleted(ctx, api.Annotations, id))

			cs, err := tr.Pending(ctx)
			require.NoError(t, err)
			assert.NotContains(t, ids(cs.Annotations.Created), id)
			assert.NotContains(t, ids(cs.Annotations.Updated), id)
			assert.Contains(t, cs.Annotations.Deleted, id)
		}

		cs, err := tr.Pending(ctx)
		require.NoError(t, err)
		created := map[int64]bool{}
		for _, c := range ids(cs.Annotations.Created) {
			created[c] = true
		}
		seen := map[int64]bool{}
		for _, u := range ids(cs.Annotations.Updated) {
			assert.False(t, created[u], "id %d in both created and updated", u)
			assert.False(t, seen[u], "id %d twice in updated", u)
			seen[u] = true
		}
		deleted := map[int64]bool{}
		for _, d := range cs.Annotations.Deleted {
			assert.False(t, deleted[d], "id %d twice in deleted", d)
			deleted[d] = true
		}
	}
}

func TestClear_RemovesOnlyApplied(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(1), "title": "a"}))
	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(2), "title": "b"}))
	require.NoError(t, tr.TrackUpdated(ctx, api.Papers, 3, api.Record{"rating": 2}))
	require.NoError(t, tr.TrackDeleted(ctx, api.Collections, 4))
	require.NoError(t, tr.TrackDeleted(ctx, api.Collections, 5))

	sent, err := tr.Pending(ctx)
	require.NoError(t, err)

	applied := &api.AppliedChanges{}
	applied.Papers.Created = []int64{2}
	applied.Papers.Updated = []int64{3}
	applied.Collections.Deleted = []int64{5}
	require.NoError(t, tr.Clear(ctx, sent, applied))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(cs.Papers.Created))
	assert.Empty(t, cs.Papers.Updated)
	assert.Equal(t, []int64{4}, cs.Collections.Deleted)
}

func TestCommit_ClearsAndAdvancesLastSyncedAt(t *testing.T) {
	tr, db := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(1), "title": "a"}))

	sent, err := tr.Pending(ctx)
	require.NoError(t, err)

	applied := &api.AppliedChanges{}
	applied.Papers.Created = []int64{1}
	syncedAt := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, tr.Commit(ctx, sent, applied, syncedAt))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	assert.True(t, cs.Empty())

	raw, err := metadata.NewSQLiteRepository(db).Get(ctx, metadata.KeyLastSyncedAt)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-03T04:05:06Z", string(raw))
}

func TestLedger_SurvivesReload(t *testing.T) {
	tr, db := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(8), "title": "kept"}))

	reloaded := New(db, logging.NewDiscardLogger())
	cs, err := reloaded.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, cs.Papers.Created, 1)
	assert.Equal(t, "kept", cs.Papers.Created[0]["title"])
}

func TestTrackCreated_RequiresID(t *testing.T) {
	tr, _ := newTracker(t)
	require.Error(t, tr.TrackCreated(context.Background(), api.Papers, api.Record{"title": "x"}))
}

func TestCommit_KeepsUpdateMadeDuringSync(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackUpdated(ctx, api.Papers, 3, api.Record{"title": "t", "rating": 2}))
	sent, err := tr.Pending(ctx)
	require.NoError(t, err)

	// the user edits again while the request is in flight
	require.NoError(t, tr.TrackUpdated(ctx, api.Papers, 3, api.Record{"rating": 5}))

	applied := &api.AppliedChanges{}
	applied.Papers.Updated = []int64{3}
	require.NoError(t, tr.Commit(ctx, sent, applied, time.Now()))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, cs.Papers.Updated, 1)
	assert.EqualValues(t, 3, cs.Papers.Updated[0]["id"])
	assert.EqualValues(t, 5, cs.Papers.Updated[0]["rating"])
	assert.NotContains(t, cs.Papers.Updated[0], "title", "unchanged fields were delivered")
}

func TestCommit_ChangedCreationBecomesUpdate(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(1), "title": "draft"}))
	sent, err := tr.Pending(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.TrackUpdated(ctx, api.Papers, 1, api.Record{"title": "final"}))

	applied := &api.AppliedChanges{}
	applied.Papers.Created = []int64{1}
	require.NoError(t, tr.Commit(ctx, sent, applied, time.Now()))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, cs.Papers.Created)
	require.Len(t, cs.Papers.Updated, 1)
	assert.Equal(t, api.Record{"id": float64(1), "title": "final"}, cs.Papers.Updated[0])
}

func TestClear_IgnoresEntriesNotSent(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	sent, err := tr.Pending(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(4), "title": "late"}))
	require.NoError(t, tr.TrackDeleted(ctx, api.Collections, 9))

	applied := &api.AppliedChanges{}
	applied.Papers.Created = []int64{4}
	applied.Collections.Deleted = []int64{9}
	require.NoError(t, tr.Clear(ctx, sent, applied))

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, ids(cs.Papers.Created))
	assert.Equal(t, []int64{9}, cs.Collections.Deleted)
}

type fakeMover struct {
	to    int64
	err   error
	moved []int64
}

func (m *fakeMover) Move(_ context.Context, _ api.Entity, from, _ int64) (int64, error) {
	m.moved = append(m.moved, from)
	return m.to, m.err
}

func TestRelocate_RenamesPendingEntriesAndReferences(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(1), "title": "offline"}))
	require.NoError(t, tr.TrackCreated(ctx, api.Annotations, api.Record{"id": int64(4), "paperId": int64(1)}))
	require.NoError(t, tr.TrackCreated(ctx, api.Collections, api.Record{"id": int64(2), "name": "c", "paperIds": []any{1, 3}}))

	mv := &fakeMover{to: 9}
	to, err := tr.Relocate(ctx, mv, api.Papers, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), to)
	assert.Equal(t, []int64{1}, mv.moved)

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, ids(cs.Papers.Created))
	assert.Equal(t, "offline", cs.Papers.Created[0]["title"])
	assert.Equal(t, float64(9), cs.Annotations.Created[0]["paperId"])
	assert.Equal(t, []any{float64(9), float64(3)}, cs.Collections.Created[0]["paperIds"])
}

func TestRelocate_StoreErrorLeavesLedger(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackCreated(ctx, api.Papers, api.Record{"id": int64(1), "title": "offline"}))

	boom := errors.New("boom")
	_, err := tr.Relocate(ctx, &fakeMover{err: boom}, api.Papers, 1, 1)
	require.ErrorIs(t, err, boom)

	cs, err := tr.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(cs.Papers.Created))
}
