package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-s string   base URL of the HTTP sync API
//	-g string   host:port of the gRPC sync API
//	-t string   transport, "http" or "grpc"
//	-d string   path of the local database
//	-l string   path of the log file
//	-i int      online check interval in seconds
//	-sync bool  enable background sync
//
// Only the flags listed here are taken from os.Args, see flagx.FilterArgs.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-s", "-g", "-t", "-d", "-l", "-i", "-sync"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the sync server")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "address and port of the gRPC server")
	fs.StringVar(&cfg.Transport, "t", cfg.Transport, "transport: http or grpc")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database path")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file path")
	fs.BoolVar(&cfg.SyncEnabled, "sync", cfg.SyncEnabled, "enable background sync")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second

	if cfg.Transport != TransportHTTP && cfg.Transport != TransportGRPC {
		panic(fmt.Sprintf("unknown transport %q", cfg.Transport))
	}
}
