// Package metadata is the client's persisted key/value namespace. It holds
// the sync bookkeeping (client id, last sync time, pending-change ledger,
// sync lock) and the access token.
package metadata

import (
	"context"
	"time"
)

// Repository stores opaque values by key. Get returns (nil, nil) for an
// absent key and GetTime returns nil for an absent or empty one.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes every listed key; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	GetTime(ctx context.Context, key string) (*time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}

// Well-known keys.
const (
	KeyClientID       = "client_id"
	KeyLastSyncedAt   = "last_synced_at"
	KeyPendingChanges = "pending_changes"
	KeySyncLockActive = "sync_lock_active"
	KeySyncLockStart  = "sync_lock_start"
	KeyAccessToken    = "access_token"
	KeyUsername       = "username"
)
