// Package scheduler decides when sync runs: shortly after a burst of local
// writes, on a fixed interval, when connectivity comes back, and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/client/connectivity"
	"github.com/dmitrijs2005/papershelf/internal/client/notify"
	"github.com/dmitrijs2005/papershelf/internal/client/syncer"
	"github.com/dmitrijs2005/papershelf/internal/logging"
)

type Syncer interface {
	Sync(ctx context.Context) (*syncer.Result, error)
}

type Connectivity interface {
	Subscribe() (<-chan connectivity.Event, func())
	Status() connectivity.Status
}

const (
	reasonDebounce  = "debounce"
	reasonPeriodic  = "periodic"
	reasonReconnect = "reconnect"
)

type Options struct {
	DebounceDelay time.Duration
	Interval      time.Duration
}

type Scheduler struct {
	syncer   Syncer
	notifier notify.Notifier
	conn     Connectivity
	opts     Options
	log      logging.Logger

	mu       sync.Mutex
	active   bool
	baseCtx  context.Context
	cancel   context.CancelFunc
	debounce *time.Timer
	loops    sync.WaitGroup
}

// New returns a stopped scheduler. conn may be nil.
func New(s Syncer, n notify.Notifier, conn Connectivity, opts Options, log logging.Logger) *Scheduler {
	if n == nil {
		n = notify.Discard{}
	}
	return &Scheduler{
		syncer:   s,
		notifier: n,
		conn:     conn,
		opts:     opts,
		log:      log.With("module", "scheduler"),
	}
}

// Initialize starts the periodic timer and the connectivity listener. It is
// a no-op if the scheduler is already running.
func (s *Scheduler) Initialize(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.active = true

	if s.opts.Interval > 0 {
		s.loops.Add(1)
		go s.periodic(s.baseCtx)
	}
	if s.conn != nil {
		events, unsubscribe := s.conn.Subscribe()
		s.loops.Add(1)
		go s.listen(s.baseCtx, events, unsubscribe)
	}
	s.log.Info(ctx, "scheduler started", "interval", s.opts.Interval.String(), "debounce", s.opts.DebounceDelay.String())
}

// Stop tears down timers and listeners. A sync run already executing is
// left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.loops.Wait()
	s.log.Info(context.Background(), "scheduler stopped")
}

func (s *Scheduler) Restart(ctx context.Context) {
	s.Stop()
	s.Initialize(ctx)
}

func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Trigger schedules a silent sync after the debounce delay, replacing any
// pending one. Calls made while the scheduler is stopped are ignored.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	if s.debounce != nil {
		s.debounce.Stop()
	}
	ctx := s.baseCtx
	s.debounce = time.AfterFunc(s.opts.DebounceDelay, func() {
		s.runSilent(ctx, reasonDebounce)
	})
}

// SyncNow runs a sync on behalf of the user and always reports the outcome.
// A failure notification carries an action that repeats the call.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncer.Result, error) {
	res, err := s.syncer.Sync(ctx)
	if err != nil {
		s.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelError,
			Title:   "Sync failed",
			Message: err.Error(),
			Action: &notify.Action{
				Label: "sync again",
				Run: func(ctx context.Context) {
					_, _ = s.SyncNow(ctx)
				},
			},
		})
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Notification{
		Level:   notify.LevelSuccess,
		Title:   "Sync complete",
		Message: Summary(res),
	})
	s.followUp(res)
	return res, nil
}

// runSilent is a background run. While offline only the reconnect run goes
// through; the ledger keeps everything else until then.
func (s *Scheduler) runSilent(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	if reason != reasonReconnect && s.offline() {
		s.log.Debug(ctx, "sync skipped while offline", "reason", reason)
		return
	}
	// a run is never interrupted once started
	res, err := s.syncer.Sync(context.WithoutCancel(ctx))
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			s.log.Debug(ctx, "sync skipped, already running", "reason", reason)
			return
		}
		s.log.Warn(ctx, "background sync failed", "reason", reason, "error", err)
		return
	}
	if res.HasChanges() {
		s.notifier.Notify(ctx, notify.Notification{
			Level:   notify.LevelInfo,
			Title:   "Synced",
			Message: Summary(res),
		})
	}
	s.followUp(res)
}

func (s *Scheduler) offline() bool {
	return s.conn != nil && s.conn.Status() == connectivity.StatusOffline
}

// followUp schedules another pass when the run left work behind and made
// progress, e.g. local creations waiting after the first full sync.
func (s *Scheduler) followUp(res *syncer.Result) {
	if res.PendingRemaining == 0 {
		return
	}
	if res.Mode == syncer.ModeFull || res.Applied > 0 {
		s.Trigger()
	}
}

func (s *Scheduler) periodic(ctx context.Context) {
	defer s.loops.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSilent(ctx, reasonPeriodic)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) listen(ctx context.Context, events <-chan connectivity.Event, unsubscribe func()) {
	defer s.loops.Done()
	defer unsubscribe()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Status {
			case connectivity.StatusOnline:
				go s.runSilent(ctx, reasonReconnect)
			case connectivity.StatusOffline:
				s.notifier.Notify(ctx, notify.Notification{
					Level:   notify.LevelWarning,
					Title:   "Offline",
					Message: "changes are saved locally and will sync when the connection returns",
				})
			}
		case <-ctx.Done():
			return
		}
	}
}

// Summary renders a result for the user.
func Summary(res *syncer.Result) string {
	parts := []string{string(res.Mode) + " sync"}
	if res.Applied > 0 {
		parts = append(parts, fmt.Sprintf("%d sent", res.Applied))
	}
	if res.Received > 0 {
		parts = append(parts, fmt.Sprintf("%d received", res.Received))
	}
	if n := len(res.Conflicts); n > 0 {
		parts = append(parts, fmt.Sprintf("%d conflicts resolved by server", n))
	}
	if res.DuplicatesRemoved > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates removed", res.DuplicatesRemoved))
	}
	if res.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", res.Skipped))
	}
	if len(parts) == 1 {
		parts = append(parts, "no changes")
	}
	if res.PendingRemaining > 0 {
		parts = append(parts, fmt.Sprintf("%d still pending", res.PendingRemaining))
	}
	return strings.Join(parts, ", ")
}
