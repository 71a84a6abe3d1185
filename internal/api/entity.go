package api

import (
	"fmt"

	"github.com/spf13/cast"
)

// Entity names a synchronised record type. The value doubles as the JSON key
// in change sets and as the URL segment of per-entity endpoints.
type Entity string

const (
	Papers      Entity = "papers"
	Collections Entity = "collections"
	Annotations Entity = "annotations"
)

// Entities lists every entity in the order the sync applies them; papers come
// before the annotations that point at them.
var Entities = []Entity{Papers, Collections, Annotations}

func ParseEntity(s string) (Entity, error) {
	for _, e := range Entities {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity %q", s)
}

// Record is a loosely typed entity document. Field names depend on which side
// of the wire the record lives on, see models.ToRemote/FromRemote.
type Record map[string]any

// RecordID returns the numeric "id" field. JSON decoding produces float64 and
// SQLite produces int64, so the value is normalised through cast.
func RecordID(r Record) (int64, bool) {
	v, ok := r["id"]
	if !ok || v == nil {
		return 0, false
	}
	id, err := cast.ToInt64E(v)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Clone returns a shallow copy; nested values are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
