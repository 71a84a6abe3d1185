package models

import "github.com/dmitrijs2005/papershelf/internal/api"

// ToRemote converts a local record or patch into remote field names and drops
// everything that must stay on the device: local-only fields, createdAt, and
// updatedAt for entities that do not sync it. The id is kept only when keepID
// is set; incremental entries need it as the upsert key, remote-first creates
// let the server assign one.
func ToRemote(e api.Entity, rec api.Record, keepID bool) api.Record {
	s := SchemaFor(e)
	out := rec.Clone()

	for _, f := range s.LocalOnly {
		delete(out, f)
	}
	delete(out, FieldCreatedAt)
	if !s.KeepUpdatedAt {
		delete(out, FieldUpdatedAt)
	}
	if !keepID {
		delete(out, FieldID)
	}

	if e == api.Papers {
		if v, ok := out[FieldReadingStatus]; ok {
			out[RemoteStatus] = v
			delete(out, FieldReadingStatus)
		}
		if v, ok := out[FieldS3Key]; ok {
			out[RemotePDFURL] = v
			delete(out, FieldS3Key)
		}
	}

	return out
}

// FromRemote converts a remote record into local field names. A non-empty
// pdfUrl implies the paper has an attachment.
func FromRemote(e api.Entity, rec api.Record) api.Record {
	out := rec.Clone()
	if e != api.Papers {
		return out
	}

	if v, ok := out[RemoteStatus]; ok {
		out[FieldReadingStatus] = v
		delete(out, RemoteStatus)
	}
	if v, ok := out[RemotePDFURL]; ok {
		delete(out, RemotePDFURL)
		if s, isStr := v.(string); isStr && s != "" {
			out[FieldS3Key] = s
			out[FieldHasPDF] = true
		} else {
			out[FieldS3Key] = nil
			out[FieldHasPDF] = false
		}
	}

	return out
}

// ChangesToRemote maps a whole pending ledger into the request shape.
func ChangesToRemote(cs *api.ChangeSet) api.ChangeSet {
	out := api.ChangeSet{}
	for _, e := range api.Entities {
		src := cs.For(e)
		dst := out.For(e)
		dst.Created = make([]api.Record, 0, len(src.Created))
		for _, r := range src.Created {
			dst.Created = append(dst.Created, ToRemote(e, r, true))
		}
		dst.Updated = make([]api.Record, 0, len(src.Updated))
		for _, r := range src.Updated {
			dst.Updated = append(dst.Updated, ToRemote(e, r, true))
		}
		dst.Deleted = append([]int64{}, src.Deleted...)
	}
	return out
}
