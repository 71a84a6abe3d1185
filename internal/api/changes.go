package api

import "time"

// EntityChanges is the pending work for one entity type: full payloads never
// sent, per-id partial patches (each carrying its "id"), and deleted ids.
type EntityChanges struct {
	Created []Record `json:"created"`
	Updated []Record `json:"updated"`
	Deleted []int64  `json:"deleted"`
}

// Empty reports whether there is nothing to send.
func (c *EntityChanges) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Normalize replaces nil slices with empty ones so the JSON form is stable.
func (c *EntityChanges) Normalize() {
	if c.Created == nil {
		c.Created = []Record{}
	}
	if c.Updated == nil {
		c.Updated = []Record{}
	}
	if c.Deleted == nil {
		c.Deleted = []int64{}
	}
}

// ChangeSet groups EntityChanges per entity. It is both the persisted
// pending-change ledger and the "changes" body of an incremental request.
type ChangeSet struct {
	Papers      EntityChanges `json:"papers"`
	Collections EntityChanges `json:"collections"`
	Annotations EntityChanges `json:"annotations"`
}

// NewChangeSet returns an empty, normalized change set.
func NewChangeSet() *ChangeSet {
	cs := &ChangeSet{}
	cs.Normalize()
	return cs
}

func (cs *ChangeSet) For(e Entity) *EntityChanges {
	switch e {
	case Papers:
		return &cs.Papers
	case Collections:
		return &cs.Collections
	case Annotations:
		return &cs.Annotations
	}
	return nil
}

func (cs *ChangeSet) Normalize() {
	for _, e := range Entities {
		cs.For(e).Normalize()
	}
}

func (cs *ChangeSet) Empty() bool {
	for _, e := range Entities {
		if !cs.For(e).Empty() {
			return false
		}
	}
	return true
}

// Count returns the number of created, updated and deleted entries.
func (cs *ChangeSet) Count() int {
	n := 0
	for _, e := range Entities {
		c := cs.For(e)
		n += len(c.Created) + len(c.Updated) + len(c.Deleted)
	}
	return n
}

// IncrementalRequest is sent when a previous sync has succeeded.
type IncrementalRequest struct {
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	ClientID     string    `json:"clientId"`
	Changes      ChangeSet `json:"changes"`
}

// AppliedIDs lists the ids the server accepted for one entity type.
type AppliedIDs struct {
	Created []int64 `json:"created"`
	Updated []int64 `json:"updated"`
	Deleted []int64 `json:"deleted"`
}

func (a *AppliedIDs) Count() int {
	return len(a.Created) + len(a.Updated) + len(a.Deleted)
}

type AppliedChanges struct {
	Papers      AppliedIDs `json:"papers"`
	Collections AppliedIDs `json:"collections"`
	Annotations AppliedIDs `json:"annotations"`
}

func (a *AppliedChanges) For(e Entity) *AppliedIDs {
	switch e {
	case Papers:
		return &a.Papers
	case Collections:
		return &a.Collections
	case Annotations:
		return &a.Annotations
	}
	return nil
}

func (a *AppliedChanges) Count() int {
	n := 0
	for _, e := range Entities {
		n += a.For(e).Count()
	}
	return n
}

// EntityServerChanges are records written by other clients since the
// caller's lastSyncedAt, in remote field names, plus ids deleted there.
type EntityServerChanges struct {
	Upserted []Record `json:"upserted"`
	Deleted  []int64  `json:"deleted"`
}

type ServerChanges struct {
	Papers      EntityServerChanges `json:"papers"`
	Collections EntityServerChanges `json:"collections"`
	Annotations EntityServerChanges `json:"annotations"`
}

func (s *ServerChanges) For(e Entity) *EntityServerChanges {
	switch e {
	case Papers:
		return &s.Papers
	case Collections:
		return &s.Collections
	case Annotations:
		return &s.Annotations
	}
	return nil
}

func (s *ServerChanges) Count() int {
	n := 0
	for _, e := range Entities {
		c := s.For(e)
		n += len(c.Upserted) + len(c.Deleted)
	}
	return n
}

// Conflict reports an incoming change the server refused because its own
// copy changed after the client's lastSyncedAt. The server copy is returned
// in ServerChanges, so the client converges on it.
type Conflict struct {
	Entity Entity `json:"entity"`
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

type IncrementalResponse struct {
	AppliedChanges AppliedChanges `json:"appliedChanges"`
	ServerChanges  ServerChanges  `json:"serverChanges"`
	Conflicts      []Conflict     `json:"conflicts,omitempty"`
	SyncedAt       time.Time      `json:"syncedAt"`
}

// Snapshot is the full-sync payload.
type Snapshot struct {
	Papers      []Record  `json:"papers"`
	Collections []Record  `json:"collections"`
	Annotations []Record  `json:"annotations"`
	SyncedAt    time.Time `json:"syncedAt"`
}

func (s *Snapshot) For(e Entity) []Record {
	switch e {
	case Papers:
		return s.Papers
	case Collections:
		return s.Collections
	case Annotations:
		return s.Annotations
	}
	return nil
}

func (s *Snapshot) Set(e Entity, recs []Record) {
	switch e {
	case Papers:
		s.Papers = recs
	case Collections:
		s.Collections = recs
	case Annotations:
		s.Annotations = recs
	}
}

type Counts struct {
	Papers      int `json:"papers"`
	Collections int `json:"collections"`
	Annotations int `json:"annotations"`
}

func (c *Counts) Set(e Entity, n int) {
	switch e {
	case Papers:
		c.Papers = n
	case Collections:
		c.Collections = n
	case Annotations:
		c.Annotations = n
	}
}

type Status struct {
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
	Counts       Counts     `json:"counts"`
}
