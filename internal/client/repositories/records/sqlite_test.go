package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/migrations"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
	"github.com/dmitrijs2005/papershelf/internal/common"
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

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newRepo(t *testing.T) (*SQLiteRepository, *sql.DB, *fakeClock) {
	t.Helper()
	db := setupDB(t)
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	r := NewSQLiteRepository(db, logging.NewDiscardLogger())
	r.now = clock.now
	return r, db, clock
}

func TestAdd_AssignsIDDefaultsAndTimestamps(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	got, err := r.Add(ctx, api.Papers, api.Record{"title": "Attention", "doi": "10.1/X", "id": 999})
	require.NoError(t, err)

	id, ok := api.RecordID(got)
	require.True(t, ok)
	assert.Equal(t, int64(1), id, "caller supplied id is ignored")
	assert.Equal(t, "unread", got["readingStatus"])
	assert.Contains(t, got, "rating")
	assert.Nil(t, got["rating"])
	assert.Equal(t, "2026-01-01T09:00:00Z", got["createdAt"])
	assert.Equal(t, got["createdAt"], got["updatedAt"])

	stored, err := r.GetByID(ctx, api.Papers, 1)
	require.NoError(t, err)
	assert.Equal(t, "Attention", stored["title"])
	assert.EqualValues(t, 0, stored["pagesRead"])
}

func TestAdd_ValidationRejectsBeforeWrite(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	_, err := r.Add(ctx, api.Papers, api.Record{"doi": "10.1/x"})
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))

	n, err := r.Count(ctx, api.Papers)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdd_UnencodableValueIsInvalidData(t *testing.T) {
	r, _, _ := newRepo(t)

	_, err := r.Add(context.Background(), api.Collections, api.Record{"name": "x", "bad": make(chan int)})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidData))

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.NotEmpty(t, se.UserMessage())
}

func TestGetByID_NotFound(t *testing.T) {
	r, _, _ := newRepo(t)

	_, err := r.GetByID(context.Background(), api.Collections, 42)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_MergesAndRefreshesUpdatedAt(t *testing.T) {
	r, _, clock := newRepo(t)
	ctx := context.Background()

	added, err := r.Add(ctx, api.Papers, api.Record{"title": "T", "pagesRead": 3})
	require.NoError(t, err)
	id, _ := api.RecordID(added)

	clock.t = clock.t.Add(time.Hour)
	got, err := r.Update(ctx, api.Papers, id, api.Record{"rating": 5, "readingStatus": "read", "updatedAt": "ignored"})
	require.NoError(t, err)

	assert.Equal(t, "T", got["title"])
	assert.EqualValues(t, 5, got["rating"])
	assert.EqualValues(t, 3, got["pagesRead"])
	assert.Equal(t, "read", got["readingStatus"])
	assert.Equal(t, "2026-01-01T10:00:00Z", got["updatedAt"])
	assert.Equal(t, "2026-01-01T09:00:00Z", got["createdAt"])
}

func TestUpdate_RefreshesIndexedColumns(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	added, err := r.Add(ctx, api.Papers, api.Record{"title": "T"})
	require.NoError(t, err)
	id, _ := api.RecordID(added)

	_, err = r.Update(ctx, api.Papers, id, api.Record{"doi": "10.5555/ABC"})
	require.NoError(t, err)

	got, err := r.GetByExternalID(ctx, "10.5555/abc")
	require.NoError(t, err)
	assert.Equal(t, id, got["id"])
}

func TestUpdate_NotFound(t *testing.T) {
	r, _, _ := newRepo(t)

	_, err := r.Update(context.Background(), api.Papers, 7, api.Record{"rating": 1})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestDelete_PaperCascadesAnnotations(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	p, err := r.Add(ctx, api.Papers, api.Record{"title": "P"})
	require.NoError(t, err)
	pid, _ := api.RecordID(p)
	other, err := r.Add(ctx, api.Papers, api.Record{"title": "Q"})
	require.NoError(t, err)
	oid, _ := api.RecordID(other)

	_, err = r.Add(ctx, api.Annotations, api.Record{"paperId": pid, "text": "a"})
	require.NoError(t, err)
	_, err = r.Add(ctx, api.Annotations, api.Record{"paperId": oid, "text": "b"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, api.Papers, pid))

	anns, err := r.GetAll(ctx, api.Annotations)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "b", anns[0]["text"])
}

func TestDelete_CascadeFailureDoesNotBlockPaper(t *testing.T) {
	r, db, _ := newRepo(t)
	ctx := context.Background()

	p, err := r.Add(ctx, api.Papers, api.Record{"title": "P"})
	require.NoError(t, err)
	pid, _ := api.RecordID(p)
	_, err = r.Add(ctx, api.Annotations, api.Record{"paperId": pid})
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TRIGGER no_ann_delete BEFORE DELETE ON annotations BEGIN SELECT RAISE(ABORT, 'locked'); END`)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, api.Papers, pid))

	_, err = r.GetByID(ctx, api.Papers, pid)
	assert.True(t, IsKind(err, KindNotFound))
	n, err := r.Count(ctx, api.Annotations)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete_Missing(t *testing.T) {
	r, _, _ := newRepo(t)
	err := r.Delete(context.Background(), api.Collections, 3)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestPut_SameIDTwiceLaterWins(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	_, err := r.Put(ctx, api.Papers, api.Record{"id": float64(1), "title": "first", "doi": "10.1/a"})
	require.NoError(t, err)
	_, err = r.Put(ctx, api.Papers, api.Record{"id": float64(1), "title": "second"})
	require.NoError(t, err)

	all, err := r.GetAll(ctx, api.Papers)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0]["id"])
	assert.Equal(t, "second", all[0]["title"])
	assert.NotContains(t, all[0], "doi")
}

func TestPut_KeepsLocalOnlyFieldsAndCreatedAt(t *testing.T) {
	r, _, clock := newRepo(t)
	ctx := context.Background()

	added, err := r.Add(ctx, api.Papers, api.Record{"title": "T", "fileData": "JVBERi0=", "hasPdf": true})
	require.NoError(t, err)
	id, _ := api.RecordID(added)

	clock.t = clock.t.Add(time.Minute)
	got, err := r.Put(ctx, api.Papers, api.Record{"id": id, "title": "T2"})
	require.NoError(t, err)

	assert.Equal(t, "JVBERi0=", got["fileData"])
	assert.Equal(t, true, got["hasPdf"])
	assert.Equal(t, "2026-01-01T09:00:00Z", got["createdAt"])
	assert.Equal(t, "2026-01-01T09:01:00Z", got["updatedAt"])
}

func TestPut_RequiresID(t *testing.T) {
	r, _, _ := newRepo(t)
	_, err := r.Put(context.Background(), api.Papers, api.Record{"title": "T"})
	assert.True(t, models.IsValidationError(err))
}

func TestPut_AdvancesAutoincrement(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	_, err := r.Put(ctx, api.Collections, api.Record{"id": 50, "name": "remote"})
	require.NoError(t, err)
	got, err := r.Add(ctx, api.Collections, api.Record{"name": "local"})
	require.NoError(t, err)
	assert.Equal(t, int64(51), got["id"])
}

func TestGetByExternalID_DOIAndArxiv(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	_, err := r.Add(ctx, api.Papers, api.Record{"title": "A", "doi": "10.1/X"})
	require.NoError(t, err)
	_, err = r.Add(ctx, api.Papers, api.Record{"title": "B", "arxivId": "2101.00001"})
	require.NoError(t, err)

	got, err := r.GetByExternalID(ctx, "10.1/x")
	require.NoError(t, err)
	assert.Equal(t, "A", got["title"])

	got, err = r.GetByExternalID(ctx, " 2101.00001 ")
	require.NoError(t, err)
	assert.Equal(t, "B", got["title"])

	_, err = r.GetByExternalID(ctx, "10.9/none")
	assert.True(t, IsKind(err, KindNotFound))
}

func TestClassify(t *testing.T) {
	db := setupDB(t)
	_, err := db.Exec(`CREATE TABLE u (v TEXT UNIQUE)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO u VALUES ('a')`)
	require.NoError(t, err)
	_, dupErr := db.Exec(`INSERT INTO u VALUES ('a')`)
	require.Error(t, dupErr)

	assert.True(t, IsKind(classify("x", dupErr), KindConstraintViolation))
	assert.True(t, IsKind(classify("x", sql.ErrTxDone), KindTransactionInactive))
	assert.True(t, IsKind(classify("x", sql.ErrNoRows), KindNotFound))
	assert.True(t, IsKind(classify("x", errors.New("other")), KindUnknown))
	assert.NoError(t, classify("x", nil))

	already := &StorageError{Kind: KindQuotaExceeded, Op: "y", Err: errors.New("full")}
	assert.Same(t, already, classify("x", already))
}

func TestMove_PaperCarriesReferences(t *testing.T) {
	r, db, _ := newRepo(t)
	ctx := context.Background()

	p, err := r.Add(ctx, api.Papers, api.Record{"title": "Moved"})
	require.NoError(t, err)
	pid, _ := api.RecordID(p)
	_, err = r.Add(ctx, api.Papers, api.Record{"title": "Stays"})
	require.NoError(t, err)
	_, err = r.Add(ctx, api.Annotations, api.Record{"paperId": pid, "text": "note"})
	require.NoError(t, err)
	_, err = r.Add(ctx, api.Collections, api.Record{"name": "c", "paperIds": []any{pid, 2}})
	require.NoError(t, err)

	to, err := r.Move(ctx, api.Papers, pid, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), to)

	_, err = r.GetByID(ctx, api.Papers, pid)
	assert.True(t, IsKind(err, KindNotFound))
	moved, err := r.GetByID(ctx, api.Papers, to)
	require.NoError(t, err)
	assert.Equal(t, "Moved", moved["title"])

	anns, err := r.GetAll(ctx, api.Annotations)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, float64(11), anns[0]["paperId"])
	var col int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT paper_id FROM annotations`).Scan(&col))
	assert.Equal(t, int64(11), col)

	cols, err := r.GetAll(ctx, api.Collections)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, []any{float64(11), float64(2)}, cols[0]["paperIds"])
}

func TestMove_UsesFirstIDAboveTableMax(t *testing.T) {
	r, _, _ := newRepo(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := r.Add(ctx, api.Papers, api.Record{"title": title})
		require.NoError(t, err)
	}

	to, err := r.Move(ctx, api.Papers, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), to)

	next, err := r.Add(ctx, api.Papers, api.Record{"title": "d"})
	require.NoError(t, err)
	id, _ := api.RecordID(next)
	assert.Equal(t, int64(5), id, "autoincrement continues past the moved row")
}

func TestMove_NotFound(t *testing.T) {
	r, _, _ := newRepo(t)

	_, err := r.Move(context.Background(), api.Collections, 42, 0)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}
