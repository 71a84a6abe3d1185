package client

import (
	"context"

	"github.com/dmitrijs2005/papershelf/internal/api"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (*api.Token, error)

	Create(ctx context.Context, e api.Entity, rec api.Record) (api.Record, error)
	Update(ctx context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error)
	Delete(ctx context.Context, e api.Entity, id int64) error

	Snapshot(ctx context.Context) (*api.Snapshot, error)
	Incremental(ctx context.Context, req *api.IncrementalRequest) (*api.IncrementalResponse, error)
	Status(ctx context.Context) (*api.Status, error)
	PaperPDFURL(ctx context.Context, paperID int64) (string, error)
}

// TokenSource returns the access token to attach to a call, or "" when the
// user is not logged in.
type TokenSource func(ctx context.Context) (string, error)

func NoToken(context.Context) (string, error) { return "", nil }
