// Package config loads runtime configuration for the papershelf client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "grpc_addr": "127.0.0.1:50051",
//	  "transport": "http",
//	  "sync_enabled": true,
//	  "debounce_delay": "2s",
//	  "sync_interval": "5m",
//	  "online_check_interval": "30s",
//	  "db_path": "papershelf.db",
//	  "log_file": "papershelf.log"
//	}
//
// A running client follows edits to the file through Watch.
package config
