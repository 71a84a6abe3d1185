package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/connectivity"
	"github.com/dmitrijs2005/papershelf/internal/client/engine"
	"github.com/dmitrijs2005/papershelf/internal/client/notify"
	"github.com/dmitrijs2005/papershelf/internal/client/services"
	"github.com/dmitrijs2005/papershelf/internal/client/syncer"
)

// syncEngine is the part of engine.Engine the REPL drives.
type syncEngine interface {
	SyncNow(ctx context.Context) (*syncer.Result, error)
	SetSyncEnabled(ctx context.Context, enabled bool)
	SyncEnabled() bool
	Refresh(ctx context.Context)
	Pending(ctx context.Context) (*api.ChangeSet, error)
	RemoteStatus(ctx context.Context) (*api.Status, error)
	PaperPDFURL(ctx context.Context, paperID int64) (string, error)
	ConnectivityStatus() connectivity.Status
}

type actionSource interface {
	TakeAction() *notify.Action
}

var _ syncEngine = (*engine.Engine)(nil)

type App struct {
	authService    services.AuthService
	recordsService services.RecordService
	engine         syncEngine
	actions        actionSource
	reader         *bufio.Reader
	out            io.Writer
}

// NewApp builds the REPL over an opened engine. Notifications are expected
// to go to console, whose pending retry action the "retry" command runs.
func NewApp(e *engine.Engine, console *notify.Console) *App {
	return &App{
		authService:    e.Auth,
		recordsService: e.Records,
		engine:         e,
		actions:        console,
		reader:         bufio.NewReader(os.Stdin),
		out:            os.Stdout,
	}
}

func (a *App) isLoggedIn(ctx context.Context) bool {
	return a.authService.IsAuthenticated(ctx)
}

func (a *App) getStatus(ctx context.Context) string {
	s := "local"
	if a.isLoggedIn(ctx) {
		s = a.authService.Username(ctx) + " " + a.engine.ConnectivityStatus().String()
		if !a.engine.SyncEnabled() {
			s += " sync-off"
		}
	}
	return "(" + s + ")"
}

// Run blocks in the REPL until the user exits or stdin is closed.
func (a *App) Run(ctx context.Context) {
	printlnFn("Welcome to papershelf (type 'help' for commands)")
	runREPL(ctx, a, func() string { return a.getStatus(ctx) }, a.reader)
}
