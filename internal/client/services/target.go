package services

import "context"

// SyncTarget says where a local mutation is sent.
type SyncTarget int

const (
	// LocalOnly writes to the local store and does not track the change.
	LocalOnly SyncTarget = iota
	// RemoteWithFallback tries the server first and falls back to a tracked
	// local write.
	RemoteWithFallback
	// Deferred writes locally and tracks the change without contacting the
	// server. Used while the server is known to be unreachable.
	Deferred
)

func (t SyncTarget) String() string {
	switch t {
	case RemoteWithFallback:
		return "remote"
	case Deferred:
		return "deferred"
	}
	return "local"
}

// SelectTarget is the policy used for every mutation.
func SelectTarget(enabled, authenticated, offline bool) SyncTarget {
	switch {
	case !enabled || !authenticated:
		return LocalOnly
	case offline:
		return Deferred
	}
	return RemoteWithFallback
}

// TargetFunc picks the target for one call.
type TargetFunc func(ctx context.Context) SyncTarget

// Trigger schedules a debounced sync.
type Trigger interface {
	Trigger()
}

// Reporter receives the outcome of remote calls, e.g. a connectivity monitor.
type Reporter interface {
	Report(ctx context.Context, err error)
}
