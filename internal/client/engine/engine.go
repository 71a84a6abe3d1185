// Package engine owns every long-lived piece of the client: the database,
// the local store and ledger, the transport, connectivity monitoring, the
// sync orchestrator and its scheduler. Front ends receive an Engine instead
// of reaching for globals.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/client"
	"github.com/dmitrijs2005/papershelf/internal/client/config"
	"github.com/dmitrijs2005/papershelf/internal/client/connectivity"
	"github.com/dmitrijs2005/papershelf/internal/client/dedup"
	"github.com/dmitrijs2005/papershelf/internal/client/migrations"
	"github.com/dmitrijs2005/papershelf/internal/client/notify"
	"github.com/dmitrijs2005/papershelf/internal/client/repositories/records"
	"github.com/dmitrijs2005/papershelf/internal/client/scheduler"
	"github.com/dmitrijs2005/papershelf/internal/client/services"
	"github.com/dmitrijs2005/papershelf/internal/client/syncer"
	"github.com/dmitrijs2005/papershelf/internal/client/tracker"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/dmitrijs2005/papershelf/internal/filex"
	"github.com/dmitrijs2005/papershelf/internal/logging"
)

type Options struct {
	Config   *config.Config
	Logger   logging.Logger
	Notifier notify.Notifier
	// Remote replaces the transport built from Config.
	Remote client.Client
}

type Engine struct {
	db  *sql.DB
	log logging.Logger

	Store        records.Repository
	Tracker      *tracker.Tracker
	State        *syncer.State
	Tokens       *services.TokenStore
	Remote       client.Client
	Monitor      *connectivity.Monitor
	Orchestrator *syncer.Orchestrator
	Records      services.RecordService
	Auth         services.AuthService
	Notifier     notify.Notifier

	mu          sync.Mutex
	cfg         config.Config
	sched       *scheduler.Scheduler
	started     bool
	stopMonitor context.CancelFunc
	monitorDone chan struct{}
}

// Open creates the database if needed, brings its schema up to date and
// wires the components. Nothing runs in the background until Start.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	n := opts.Notifier
	if n == nil {
		n = notify.Discard{}
	}

	if err := filex.EnsureParentDir(cfg.DBPath); err != nil {
		return nil, err
	}
	db, err := dbx.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if _, err := migrations.Run(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	e := &Engine{
		db:       db,
		log:      log.With("module", "engine"),
		cfg:      *cfg,
		Notifier: n,
	}
	e.Store = records.NewSQLiteRepository(db, log)
	e.Tracker = tracker.New(db, log)
	e.State = syncer.NewState(db, log)
	e.Tokens = services.NewTokenStore(db)

	e.Remote = opts.Remote
	if e.Remote == nil {
		clientID, err := e.State.ClientID(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		e.Remote, err = newRemote(cfg, clientID, e.Tokens.Token)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	e.Monitor = connectivity.NewMonitor(e.Remote, cfg.OnlineCheckInterval, log)
	e.Orchestrator = syncer.NewOrchestrator(e.Store, e.Tracker, e.State, e.Remote, dedup.New(e.Store, log), log)
	e.sched = e.newScheduler(cfg)
	e.Records = services.NewRecordService(e.Store, e.Tracker, e.Remote, e.Target, e, log,
		services.WithReporter(e.Monitor))
	e.Auth = services.NewAuthService(e.Remote, e.Tokens)

	return e, nil
}

func newRemote(cfg *config.Config, clientID string, ts client.TokenSource) (client.Client, error) {
	switch cfg.Transport {
	case config.TransportGRPC:
		return client.NewGRPCClient(cfg.GRPCAddr, clientID, ts)
	case config.TransportHTTP, "":
		return client.NewHTTPClient(cfg.ServerURL, clientID, client.WithTokenSource(ts))
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func (e *Engine) newScheduler(cfg *config.Config) *scheduler.Scheduler {
	return scheduler.New(e.Orchestrator, e.Notifier, e.Monitor, scheduler.Options{
		DebounceDelay: cfg.DebounceDelay,
		Interval:      cfg.SyncInterval,
	}, e.log)
}

// Target picks where writes go right now. A known-offline engine writes
// locally without contacting the server until the monitor sees it again.
func (e *Engine) Target(ctx context.Context) services.SyncTarget {
	offline := e.Monitor.Status() == connectivity.StatusOffline
	return services.SelectTarget(e.SyncEnabled(), e.Tokens.IsAuthenticated(ctx), offline)
}

// Trigger forwards to the current scheduler.
func (e *Engine) Trigger() {
	e.mu.Lock()
	s := e.sched
	e.mu.Unlock()
	s.Trigger()
}

func (e *Engine) SyncEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.SyncEnabled
}

func (e *Engine) Config() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Start launches connectivity monitoring and, when sync is enabled and a
// user is logged in, the scheduler.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.stopMonitor = cancel
	e.monitorDone = make(chan struct{})
	e.mu.Unlock()

	// the scheduler subscribes before the first ping so it sees the
	// initial transition to online
	e.Refresh(ctx)

	go func() {
		defer close(e.monitorDone)
		e.Monitor.Run(mctx)
	}()
}

// Refresh starts or stops the scheduler to match the current settings and
// login state. Call it after login, logout or a settings change.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	s, enabled, started := e.sched, e.cfg.SyncEnabled, e.started
	e.mu.Unlock()

	if started && enabled && e.Tokens.IsAuthenticated(ctx) {
		s.Initialize(ctx)
		return
	}
	s.Stop()
}

// SetSyncEnabled switches background sync on or off at runtime.
func (e *Engine) SetSyncEnabled(ctx context.Context, enabled bool) {
	e.mu.Lock()
	e.cfg.SyncEnabled = enabled
	e.mu.Unlock()
	e.log.Info(ctx, "sync setting changed", "enabled", enabled)
	e.Refresh(ctx)
}

// ApplyConfig takes a reloaded config. Sync settings apply immediately by
// replacing the scheduler; endpoint changes need a restart of the client.
func (e *Engine) ApplyConfig(ctx context.Context, next *config.Config) {
	e.mu.Lock()
	old := e.cfg
	var prev *scheduler.Scheduler
	if next.SyncSettingsChanged(&old) {
		prev = e.sched
		e.sched = e.newScheduler(next)
	}
	e.cfg.SyncEnabled = next.SyncEnabled
	e.cfg.DebounceDelay = next.DebounceDelay
	e.cfg.SyncInterval = next.SyncInterval
	e.mu.Unlock()

	if next.EndpointChanged(&old) {
		e.log.Warn(ctx, "sync endpoint changed, restart the client to use it",
			"transport", next.Transport, "server_url", next.ServerURL, "grpc_addr", next.GRPCAddr)
	}
	if prev != nil {
		prev.Stop()
		e.log.Info(ctx, "sync settings reloaded",
			"enabled", next.SyncEnabled, "debounce", next.DebounceDelay.String(), "interval", next.SyncInterval.String())
		e.Refresh(ctx)
	}
}

func (e *Engine) SchedulerActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Active()
}

// SyncNow runs a user requested sync. It works even when background sync
// is off, but not without a login.
func (e *Engine) SyncNow(ctx context.Context) (*syncer.Result, error) {
	if !e.Tokens.IsAuthenticated(ctx) {
		return nil, fmt.Errorf("sync: %w", client.ErrUnauthorized)
	}
	e.mu.Lock()
	s := e.sched
	e.mu.Unlock()
	return s.SyncNow(ctx)
}

// Pending returns the ledger of changes not yet confirmed by the server.
func (e *Engine) Pending(ctx context.Context) (*api.ChangeSet, error) {
	return e.Tracker.Pending(ctx)
}

// RemoteStatus asks the server for its counts and last sync time.
func (e *Engine) RemoteStatus(ctx context.Context) (*api.Status, error) {
	return e.Remote.Status(ctx)
}

// PaperPDFURL resolves a short-lived download link for a paper's PDF.
func (e *Engine) PaperPDFURL(ctx context.Context, paperID int64) (string, error) {
	return e.Remote.PaperPDFURL(ctx, paperID)
}

func (e *Engine) ConnectivityStatus() connectivity.Status {
	return e.Monitor.Status()
}

// Close stops background work and releases the transport and database.
func (e *Engine) Close() error {
	e.mu.Lock()
	s, stop, done := e.sched, e.stopMonitor, e.monitorDone
	e.started = false
	e.mu.Unlock()

	s.Stop()
	if stop != nil {
		stop()
		<-done
	}
	return errors.Join(e.Remote.Close(), e.db.Close())
}
