package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/connectivity"
	"github.com/dmitrijs2005/papershelf/internal/client/notify"
	"github.com/dmitrijs2005/papershelf/internal/client/syncer"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	calls atomic.Int32

	mu sync.Mutex
	// queue is consumed one result per call before falling back to res
	queue []*syncer.Result
	res   *syncer.Result
	err   error
}

func (f *fakeSyncer) Sync(context.Context) (*syncer.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queue) > 0 {
		r := *f.queue[0]
		f.queue = f.queue[1:]
		return &r, nil
	}
	if f.res != nil {
		r := *f.res
		return &r, nil
	}
	return &syncer.Result{Mode: syncer.ModeIncremental}, nil
}

func (f *fakeSyncer) set(res *syncer.Result, err error) {
	f.mu.Lock()
	f.res, f.err = res, err
	f.mu.Unlock()
}

type fakeConn struct {
	ch           chan connectivity.Event
	status       atomic.Int32
	unsubscribed atomic.Bool
}

func newFakeConn() *fakeConn { return &fakeConn{ch: make(chan connectivity.Event, 4)} }

func (f *fakeConn) Subscribe() (<-chan connectivity.Event, func()) {
	return f.ch, func() { f.unsubscribed.Store(true) }
}

func (f *fakeConn) Status() connectivity.Status { return connectivity.Status(f.status.Load()) }

// publish sets the status before delivering the event, as the monitor does.
func (f *fakeConn) publish(st connectivity.Status) {
	f.status.Store(int32(st))
	f.ch <- connectivity.Event{Status: st}
}

func newScheduler(s Syncer, n notify.Notifier, c Connectivity, opts Options) *Scheduler {
	return New(s, n, c, opts, logging.NewDiscardLogger())
}

func TestTrigger_DebouncesBurstIntoOneRun(t *testing.T) {
	fs := &fakeSyncer{}
	s := newScheduler(fs, nil, nil, Options{DebounceDelay: 50 * time.Millisecond})
	s.Initialize(context.Background())
	defer s.Stop()

	for i := 0; i < 10; i++ {
		s.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fs.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, fs.calls.Load())
}

func TestTrigger_IgnoredWhenStopped(t *testing.T) {
	fs := &fakeSyncer{}
	s := newScheduler(fs, nil, nil, Options{DebounceDelay: 10 * time.Millisecond})

	s.Trigger()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fs.calls.Load())
}

func TestStop_CancelsPendingDebounce(t *testing.T) {
	fs := &fakeSyncer{}
	s := newScheduler(fs, nil, nil, Options{DebounceDelay: 30 * time.Millisecond})
	s.Initialize(context.Background())

	s.Trigger()
	s.Stop()
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, fs.calls.Load())
	assert.False(t, s.Active())
}

func TestPeriodic_RunsOnInterval(t *testing.T) {
	fs := &fakeSyncer{}
	s := newScheduler(fs, nil, nil, Options{Interval: 10 * time.Millisecond})
	s.Initialize(context.Background())

	require.Eventually(t, func() bool { return fs.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	n := fs.calls.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, n, fs.calls.Load())
}

func TestBackgroundFailureIsSilent(t *testing.T) {
	fs := &fakeSyncer{err: errors.New("down")}
	rec := &notify.Recorder{}
	s := newScheduler(fs, rec, nil, Options{DebounceDelay: 5 * time.Millisecond})
	s.Initialize(context.Background())
	defer s.Stop()

	s.Trigger()
	require.Eventually(t, func() bool { return fs.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.All())
}

func TestBackgroundNoChangesIsSilent(t *testing.T) {
	fs := &fakeSyncer{}
	rec := &notify.Recorder{}
	s := newScheduler(fs, rec, nil, Options{DebounceDelay: 5 * time.Millisecond})
	s.Initialize(context.Background())
	defer s.Stop()

	s.Trigger()
	require.Eventually(t, func() bool { return fs.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.All())
}

func TestBackgroundWithChangesNotifies(t *testing.T) {
	fs := &fakeSyncer{res: &syncer.Result{Mode: syncer.ModeIncremental, Received: 2}}
	rec := &notify.Recorder{}
	s := newScheduler(fs, rec, nil, Options{DebounceDelay: 5 * time.Millisecond})
	s.Initialize(context.Background())
	defer s.Stop()

	s.Trigger()
	require.Eventually(t, func() bool { return len(rec.All()) == 1 }, time.Second, 5*time.Millisecond)
	n, _ := rec.Last()
	assert.Equal(t, notify.LevelInfo, n.Level)
	assert.Contains(t, n.Message, "2 received")
}

func TestFullSyncWithPendingSchedulesFollowUp(t *testing.T) {
	fs := &fakeSyncer{queue: []*syncer.Result{
		{Mode: syncer.ModeFull, PendingRemaining: 3},
		{Mode: syncer.ModeIncremental, Applied: 3},
	}}
	s := newScheduler(fs, nil, nil, Options{DebounceDelay: 5 * time.Millisecond})
	s.Initialize(context.Background())
	defer s.Stop()

	s.Trigger()
	require.Eventually(t, func() bool { return fs.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 2, fs.calls.Load())
}

func TestNoProgressDoesNotLoop(t *testing.T) {
	fs := &fakeSyncer{res: &syncer.Result{Mode: syncer.ModeIncremental, PendingRemaining: 3}}
	s := newScheduler(fs, nil, nil, Options{DebounceDelay: 5 * time.Millisecond})
	s.Initialize(context.Background())
	defer s.Stop()

	s.Trigger()
	require.Eventually(t, func() bool { return fs.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, fs.calls.Load())
}

func TestSyncNow_SuccessNotifiesSummary(t *testing.T) {
	fs := &fakeSyncer{res: &syncer.Result{
		Mode:              syncer.ModeIncremental,
		Applied:           4,
		Conflicts:         []api.Conflict{{Entity: api.Papers, ID: 1}},
		DuplicatesRemoved: 1,
	}}
	rec := &notify.Recorder{}
	s := newScheduler(fs, rec, nil, Options{})

	res, err := s.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Applied)

	n, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelSuccess, n.Level)
	assert.Equal(t, "incremental sync, 4 sent, 1 conflicts resolved by server, 1 duplicates removed", n.Message)
	assert.Nil(t, n.Action)
}

func TestSyncNow_FailureOffersRetry(t *testing.T) {
	fs := &fakeSyncer{err: errors.New("server unavailable")}
	rec := &notify.Recorder{}
	s := newScheduler(fs, rec, nil, Options{})

	_, err := s.SyncNow(context.Background())
	require.Error(t, err)

	n, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, n.Level)
	require.NotNil(t, n.Action)

	fs.set(nil, nil)
	n.Action.Run(context.Background())
	assert.EqualValues(t, 2, fs.calls.Load())
	last, _ := rec.Last()
	assert.Equal(t, notify.LevelSuccess, last.Level)
}

func TestConnectivity_OnlineTriggersSync(t *testing.T) {
	fs := &fakeSyncer{}
	conn := newFakeConn()
	rec := &notify.Recorder{}
	s := newScheduler(fs, rec, conn, Options{})
	s.Initialize(context.Background())

	conn.publish(connectivity.StatusOnline)
	require.Eventually(t, func() bool { return fs.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.True(t, conn.unsubscribed.Load())
}

func TestConnectivity_OfflineHoldsBackgroundRunsUntilReconnect(t *testing.T) {
	fs := &fakeSyncer{}
	conn := newFakeConn()
	rec := &notify.Recorder{}
	s := newScheduler(fs, rec, conn, Options{DebounceDelay: 5 * time.Millisecond, Interval: 10 * time.Millisecond})
	s.Initialize(context.Background())
	defer s.Stop()

	conn.publish(connectivity.StatusOffline)
	require.Eventually(t, func() bool { return len(rec.All()) == 1 }, time.Second, 5*time.Millisecond)
	n, _ := rec.Last()
	assert.Equal(t, notify.LevelWarning, n.Level)

	for i := 0; i < 3; i++ {
		s.Trigger()
		time.Sleep(15 * time.Millisecond)
	}
	assert.Zero(t, fs.calls.Load(), "no debounce or periodic run while offline")

	conn.publish(connectivity.StatusOnline)
	require.Eventually(t, func() bool { return fs.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestSyncNow_RunsWhileOffline(t *testing.T) {
	fs := &fakeSyncer{}
	conn := newFakeConn()
	conn.status.Store(int32(connectivity.StatusOffline))
	s := newScheduler(fs, nil, conn, Options{})

	_, err := s.SyncNow(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, fs.calls.Load())
}

func TestRestart(t *testing.T) {
	fs := &fakeSyncer{}
	s := newScheduler(fs, nil, nil, Options{DebounceDelay: 5 * time.Millisecond})
	s.Initialize(context.Background())
	s.Initialize(context.Background())
	s.Restart(context.Background())
	defer s.Stop()

	assert.True(t, s.Active())
	s.Trigger()
	require.Eventually(t, func() bool { return fs.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSummary_NoChanges(t *testing.T) {
	assert.Equal(t, "full sync, no changes", Summary(&syncer.Result{Mode: syncer.ModeFull}))
	assert.Equal(t, "full sync, no changes, 2 still pending", Summary(&syncer.Result{Mode: syncer.ModeFull, PendingRemaining: 2}))
}
