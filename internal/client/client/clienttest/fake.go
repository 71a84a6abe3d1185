// Package clienttest provides a scriptable client.Client for tests.
package clienttest

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/client"
)

var _ client.Client = (*Fake)(nil)

// Fake records every call and answers with the configured functions. A nil
// function answers with a zero value and no error.
type Fake struct {
	mu    sync.Mutex
	calls []string

	PingFn        func(ctx context.Context) error
	RegisterFn    func(ctx context.Context, username, password string) error
	LoginFn       func(ctx context.Context, username, password string) (*api.Token, error)
	CreateFn      func(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error)
	UpdateFn      func(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error)
	DeleteFn      func(ctx context.Context, e api.Entity, id int64) error
	SnapshotFn    func(ctx context.Context) (*api.Snapshot, error)
	IncrementalFn func(ctx context.Context, req *api.IncrementalRequest) (*api.IncrementalResponse, error)
	StatusFn      func(ctx context.Context) (*api.Status, error)
	PaperPDFURLFn func(ctx context.Context, paperID int64) (string, error)
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

// Calls returns the method names invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times method was invoked.
func (f *Fake) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

func (f *Fake) Close() error { return nil }

func (f *Fake) Ping(ctx context.Context) error {
	f.record("Ping")
	if f.PingFn == nil {
		return nil
	}
	return f.PingFn(ctx)
}

func (f *Fake) Register(ctx context.Context, username, password string) error {
	f.record("Register")
	if f.RegisterFn == nil {
		return nil
	}
	return f.RegisterFn(ctx, username, password)
}

func (f *Fake) Login(ctx context.Context, username, password string) (*api.Token, error) {
	f.record("Login")
	if f.LoginFn == nil {
		return &api.Token{}, nil
	}
	return f.LoginFn(ctx, username, password)
}

func (f *Fake) Create(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	f.record("Create")
	if f.CreateFn == nil {
		return rec.Clone(), nil
	}
	return f.CreateFn(ctx, e, rec)
}

func (f *Fake) Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	f.record("Update")
	if f.UpdateFn == nil {
		out := patch.Clone()
		out["id"] = id
		return out, nil
	}
	return f.UpdateFn(ctx, e, id, patch)
}

func (f *Fake) Delete(ctx context.Context, e api.Entity, id int64) error {
	f.record("Delete")
	if f.DeleteFn == nil {
		return nil
	}
	return f.DeleteFn(ctx, e, id)
}

func (f *Fake) Snapshot(ctx context.Context) (*api.Snapshot, error) {
	f.record("Snapshot")
	if f.SnapshotFn == nil {
		return &api.Snapshot{}, nil
	}
	return f.SnapshotFn(ctx)
}

func (f *Fake) Incremental(ctx context.Context, req *api.IncrementalRequest) (*api.IncrementalResponse, error) {
	f.record("Incremental")
	if f.IncrementalFn == nil {
		return &api.IncrementalResponse{}, nil
	}
	return f.IncrementalFn(ctx, req)
}

func (f *Fake) Status(ctx context.Context) (*api.Status, error) {
	f.record("Status")
	if f.StatusFn == nil {
		return &api.Status{}, nil
	}
	return f.StatusFn(ctx)
}

func (f *Fake) PaperPDFURL(ctx context.Context, paperID int64) (string, error) {
	f.record("PaperPDFURL")
	if f.PaperPDFURLFn == nil {
		return "", nil
	}
	return f.PaperPDFURLFn(ctx, paperID)
}
