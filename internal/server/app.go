// Package server wires the reference sync server: storage, services, and the
// HTTP and gRPC transports, with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/dmitrijs2005/papershelf/internal/server/config"
	"github.com/dmitrijs2005/papershelf/internal/server/httpapi"
	"github.com/dmitrijs2005/papershelf/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/papershelf/internal/server/services"

	gs "github.com/dmitrijs2005/papershelf/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	userService *services.UserService
	syncService *services.SyncService
}

// NewApp opens storage and builds the services. An empty DatabaseDSN selects
// the in-memory store; otherwise Postgres is opened and migrated.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewStdoutLogger("info")

	m, err := openStorage(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	us := services.NewUserService(m, c, logger)
	ss := services.NewSyncService(m, services.NewS3Presigner(c), logger)

	return &App{config: c, logger: logger, repomanager: m, userService: us, syncService: ss}, nil
}

func openStorage(ctx context.Context, c *config.Config, logger logging.Logger) (repomanager.RepositoryManager, error) {
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, data is kept in memory")
		return repomanager.NewInMemoryRepositoryManager(), nil
	}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return m, nil
}

type runner interface {
	Run(ctx context.Context) error
}

// Run serves until ctx is cancelled or a transport fails, then stops the
// other transport and closes storage.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	servers := map[string]runner{
		"http": httpapi.NewServer(app.config.HTTPAddr, app.logger, app.userService, app.syncService),
		"grpc": gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.userService, app.syncService),
	}

	var wg sync.WaitGroup
	for name, s := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				cancelFunc()
			}
		}()
	}

	wg.Wait()

	if err := app.repomanager.Close(); err != nil {
		app.logger.Error(ctx, "close storage", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
