package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/migrations"
	"github.com/dmitrijs2005/papershelf/internal/client/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *records.SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = migrations.Run(ctx, db, logging.NewDiscardLogger())
	require.NoError(t, err)
	return records.NewSQLiteRepository(db, logging.NewDiscardLogger())
}

func put(t *testing.T, s records.Repository, rec api.Record) {
	t.Helper()
	_, err := s.Put(context.Background(), api.Papers, rec)
	require.NoError(t, err)
}

func paperIDs(t *testing.T, s records.Repository) []int64 {
	t.Helper()
	all, err := s.GetAll(context.Background(), api.Papers)
	require.NoError(t, err)
	out := []int64{}
	for _, r := range all {
		id, _ := api.RecordID(r)
		out = append(out, id)
	}
	return out
}

func TestDeduplicate_KeepsHighestID(t *testing.T) {
	s := newStore(t)
	for _, id := range []int64{1, 2, 3} {
		put(t, s, api.Record{"id": id, "title": "t", "doi": "10.1/x"})
	}

	n, err := New(s, logging.NewDiscardLogger()).DeduplicateLocalPapers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{3}, paperIDs(t, s))
}

func TestDeduplicate_DOICaseInsensitive(t *testing.T) {
	s := newStore(t)
	put(t, s, api.Record{"id": int64(1), "title": "a", "doi": "10.1/X"})
	put(t, s, api.Record{"id": int64(2), "title": "b", "doi": "10.1/x"})

	n, err := New(s, logging.NewDiscardLogger()).DeduplicateLocalPapers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{2}, paperIDs(t, s))
}

func TestDeduplicate_ArxivAcrossFields(t *testing.T) {
	s := newStore(t)
	put(t, s, api.Record{"id": int64(4), "title": "a", "arxivId": "2101.00001v2"})
	put(t, s, api.Record{"id": int64(5), "title": "b", "doi": "10.48550/arXiv.2101.00001"})
	put(t, s, api.Record{"id": int64(6), "title": "c", "arxivId": "https://arxiv.org/abs/2101.00001"})
	put(t, s, api.Record{"id": int64(7), "title": "no ids"})
	put(t, s, api.Record{"id": int64(8), "title": "no ids either"})

	n, err := New(s, logging.NewDiscardLogger()).DeduplicateLocalPapers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{6, 7, 8}, paperIDs(t, s))
}

func TestDeduplicate_NoDuplicates(t *testing.T) {
	s := newStore(t)
	put(t, s, api.Record{"id": int64(1), "title": "a", "doi": "10.1/a"})
	put(t, s, api.Record{"id": int64(2), "title": "b", "doi": "10.1/b"})

	n, err := New(s, logging.NewDiscardLogger()).DeduplicateLocalPapers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, paperIDs(t, s), 2)
}

type failingDelete struct {
	records.Repository
	failID int64
}

func (f failingDelete) Delete(ctx context.Context, e api.Entity, id int64) error {
	if id == f.failID {
		return errors.New("disk on fire")
	}
	return f.Repository.Delete(ctx, e, id)
}

func TestDeduplicate_DeleteFailureCountsAttempt(t *testing.T) {
	s := newStore(t)
	for _, id := range []int64{1, 2, 3} {
		put(t, s, api.Record{"id": id, "title": "t", "doi": "10.1/x"})
	}

	n, err := New(failingDelete{Repository: s, failID: 2}, logging.NewDiscardLogger()).DeduplicateLocalPapers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int64{2, 3}, paperIDs(t, s))
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name string
		rec  api.Record
		want string
	}{
		{"doi", api.Record{"doi": " 10.1000/ABC "}, "doi:10.1000/abc"},
		{"doi wins over arxiv", api.Record{"doi": "10.1/x", "arxivId": "2101.00001"}, "doi:10.1/x"},
		{"arxiv doi", api.Record{"doi": "10.48550/ARXIV.2101.00001"}, "arxiv:2101.00001"},
		{"arxiv prefix in doi", api.Record{"doi": "arXiv:2101.00001"}, "arxiv:2101.00001"},
		{"old style arxiv", api.Record{"doi": "arXiv:hep-th/9901001"}, "arxiv:hep-th/9901001"},
		{"arxiv field", api.Record{"arxivId": "arXiv:2101.00001v3"}, "arxiv:2101.00001"},
		{"blank doi falls back", api.Record{"doi": "  ", "arxivId": "2101.00001"}, "arxiv:2101.00001"},
		{"none", api.Record{"title": "x"}, ""},
		{"nil values", api.Record{"doi": nil, "arxivId": nil}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IdentityKey(tt.rec))
		})
	}
}

func TestNormalizeArxivID(t *testing.T) {
	assert.Equal(t, "2101.00001", NormalizeArxivID("https://arxiv.org/pdf/2101.00001v1.pdf"))
	assert.Equal(t, "", NormalizeArxivID(""))
}
