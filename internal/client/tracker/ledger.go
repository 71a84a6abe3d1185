package tracker

import (
	"reflect"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/models"
	"github.com/spf13/cast"
)

// The functions below are the ledger merge rules. An id is never in both
// Created and Updated, and appears at most once in Updated and in Deleted.

// addCreated appends the full entity. Store ids are never reused, so an
// existing entry for the same id can only be a stale copy; the full payload
// supersedes it.
func addCreated(c *api.EntityChanges, rec api.Record) {
	if id, ok := api.RecordID(rec); ok {
		c.Created = without(c.Created, id)
		c.Updated = without(c.Updated, id)
	}
	c.Created = append(c.Created, rec.Clone())
}

func addUpdated(c *api.EntityChanges, id int64, patch api.Record) {
	if i := indexOf(c.Created, id); i >= 0 {
		// not yet transmitted: fold the patch into the pending creation
		mergeInto(c.Created[i], patch)
		return
	}
	if i := indexOf(c.Updated, id); i >= 0 {
		mergeInto(c.Updated[i], patch)
		return
	}
	entry := api.Record{models.FieldID: id}
	mergeInto(entry, patch)
	c.Updated = append(c.Updated, entry)
}

// addDeleted drops any pending creation or update of id and records the
// deletion, even for a creation the remote has never seen. Deleted is a set:
// a second delete of the same id adds nothing the server would not already
// receive, so the id is appended only once.
func addDeleted(c *api.EntityChanges, id int64) {
	c.Created = without(c.Created, id)
	c.Updated = without(c.Updated, id)
	for _, d := range c.Deleted {
		if d == id {
			return
		}
	}
	c.Deleted = append(c.Deleted, id)
}

// clearApplied removes the entries the server confirmed, but only as far as
// they still hold what was sent. An entry changed while the request was in
// flight keeps the fields that differ from the sent copy; a pending creation
// that changed becomes an update, since the server now knows the record.
func clearApplied(c, sent *api.EntityChanges, applied *api.AppliedIDs) {
	for _, id := range applied.Created {
		i := indexOf(c.Created, id)
		j := indexOf(sent.Created, id)
		if i < 0 || j < 0 {
			continue
		}
		rest := changedFields(c.Created[i], sent.Created[j])
		c.Created = without(c.Created, id)
		if len(rest) > 0 {
			rest[models.FieldID] = id
			c.Updated = append(c.Updated, rest)
		}
	}

	for _, id := range applied.Updated {
		i := indexOf(c.Updated, id)
		j := indexOf(sent.Updated, id)
		if i < 0 || j < 0 {
			continue
		}
		rest := changedFields(c.Updated[i], sent.Updated[j])
		if len(rest) == 0 {
			c.Updated = without(c.Updated, id)
			continue
		}
		rest[models.FieldID] = id
		c.Updated[i] = rest
	}

	done := set(applied.Deleted)
	wasSent := set(sent.Deleted)
	kept := make([]int64, 0, len(c.Deleted))
	for _, id := range c.Deleted {
		if !done[id] || !wasSent[id] {
			kept = append(kept, id)
		}
	}
	c.Deleted = kept
}

// rekey renames the pending entries of record from to id to. A renamed
// paper is also followed into the annotation and collection entries that
// reference it. Deleted ids name server rows and are left alone.
func rekey(cs *api.ChangeSet, e api.Entity, from, to int64) {
	c := cs.For(e)
	for _, recs := range [][]api.Record{c.Created, c.Updated} {
		if i := indexOf(recs, from); i >= 0 {
			recs[i][models.FieldID] = to
		}
	}
	if e != api.Papers {
		return
	}

	for _, recs := range [][]api.Record{cs.Annotations.Created, cs.Annotations.Updated} {
		for _, r := range recs {
			if v, ok := r[models.FieldPaperID]; ok && sameID(v, from) {
				r[models.FieldPaperID] = to
			}
		}
	}
	for _, recs := range [][]api.Record{cs.Collections.Created, cs.Collections.Updated} {
		for _, r := range recs {
			ids, ok := r[models.FieldPaperIDs].([]any)
			if !ok {
				continue
			}
			next := make([]any, len(ids))
			for i, v := range ids {
				next[i] = v
				if sameID(v, from) {
					next[i] = to
				}
			}
			r[models.FieldPaperIDs] = next
		}
	}
}

func sameID(v any, id int64) bool {
	n, err := cast.ToInt64E(v)
	return err == nil && n == id
}

// changedFields returns the fields of cur that sent lacks or holds with a
// different value. The id is never included.
func changedFields(cur, sent api.Record) api.Record {
	out := api.Record{}
	for k, v := range cur {
		if k == models.FieldID {
			continue
		}
		if sv, ok := sent[k]; !ok || !reflect.DeepEqual(v, sv) {
			out[k] = v
		}
	}
	return out
}

func mergeInto(dst, patch api.Record) {
	for k, v := range patch {
		if k == models.FieldID {
			continue
		}
		dst[k] = v
	}
}

func indexOf(recs []api.Record, id int64) int {
	for i, r := range recs {
		if rid, ok := api.RecordID(r); ok && rid == id {
			return i
		}
	}
	return -1
}

func without(recs []api.Record, id int64) []api.Record {
	return withoutAny(recs, []int64{id})
}

func withoutAny(recs []api.Record, ids []int64) []api.Record {
	drop := set(ids)
	kept := make([]api.Record, 0, len(recs))
	for _, r := range recs {
		if rid, ok := api.RecordID(r); ok && drop[rid] {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func set(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
