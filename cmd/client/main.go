package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/papershelf/internal/client/cli"
	"github.com/dmitrijs2005/papershelf/internal/client/config"
	"github.com/dmitrijs2005/papershelf/internal/client/engine"
	"github.com/dmitrijs2005/papershelf/internal/client/notify"
	"github.com/dmitrijs2005/papershelf/internal/filex"
	"github.com/dmitrijs2005/papershelf/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	if err := filex.EnsureParentDir(cfg.LogFile); err != nil {
		log.Fatalf("%v", err)
	}
	logger, closer := logging.NewFileLogger(logging.FileOptions{Path: cfg.LogFile, Level: "info"})
	defer closer.Close()

	console := notify.NewConsole(os.Stdout)
	e, err := engine.Open(ctx, engine.Options{Config: cfg, Logger: logger, Notifier: console})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.Error(context.Background(), "shutdown", "error", err)
		}
	}()

	e.Start(ctx)

	if cfg.File != "" {
		go func() {
			err := config.Watch(ctx, cfg, logger, func(next *config.Config) {
				e.ApplyConfig(ctx, next)
			})
			if err != nil {
				logger.Warn(ctx, "config watch stopped", "error", err)
			}
		}()
	}

	app := cli.NewApp(e, console)
	app.Run(ctx)
}
