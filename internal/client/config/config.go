package config

import "time"

// Transport names accepted in Config.Transport.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config holds runtime settings for the papershelf client.
//
// Fields:
//   - ServerURL: base URL of the HTTP sync API.
//   - GRPCAddr: host:port of the gRPC sync API, used when Transport is "grpc".
//   - SyncEnabled: when false every write stays local and the scheduler is idle.
//   - DebounceDelay: quiet period after the last write before a sync runs.
//   - SyncInterval: period of the background sync timer.
//   - OnlineCheckInterval: how often the client probes server reachability.
type Config struct {
	ServerURL           string
	GRPCAddr            string
	Transport           string
	SyncEnabled         bool
	DebounceDelay       time.Duration
	SyncInterval        time.Duration
	OnlineCheckInterval time.Duration
	DBPath              string
	LogFile             string

	// File is the JSON file the config was read from, if any.
	File string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.GRPCAddr = "127.0.0.1:50051"
	c.Transport = TransportHTTP
	c.SyncEnabled = true
	c.DebounceDelay = 2 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.OnlineCheckInterval = 30 * time.Second
	c.DBPath = "papershelf.db"
	c.LogFile = "papershelf.log"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// SyncSettingsChanged reports whether moving from old to c needs the sync
// scheduler to be restarted.
func (c *Config) SyncSettingsChanged(old *Config) bool {
	return c.SyncEnabled != old.SyncEnabled ||
		c.DebounceDelay != old.DebounceDelay ||
		c.SyncInterval != old.SyncInterval
}

// EndpointChanged reports whether the remote endpoint differs from old.
func (c *Config) EndpointChanged(old *Config) bool {
	return c.Transport != old.Transport || c.ServerURL != old.ServerURL || c.GRPCAddr != old.GRPCAddr
}
