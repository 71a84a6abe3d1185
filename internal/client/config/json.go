package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/papershelf/internal/flagx"
	"github.com/dmitrijs2005/papershelf/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// leave the corresponding Config field untouched.
type JsonConfig struct {
	ServerURL           string          `json:"server_url"`
	GRPCAddr            string          `json:"grpc_addr"`
	Transport           string          `json:"transport"`
	SyncEnabled         *bool           `json:"sync_enabled"`
	DebounceDelay       *timex.Duration `json:"debounce_delay"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	DBPath              string          `json:"db_path"`
	LogFile             string          `json:"log_file"`
}

// parseJson overlays cfg with the file named by -c or -config. It panics on
// read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}
	if err := loadFile(cfg, jsonConfigFile); err != nil {
		panic(err)
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	jc.apply(cfg)
	cfg.File = path
	return nil
}

func (jc *JsonConfig) apply(cfg *Config) {
	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.GRPCAddr != "" {
		cfg.GRPCAddr = jc.GRPCAddr
	}
	if jc.Transport != "" {
		cfg.Transport = jc.Transport
	}
	if jc.SyncEnabled != nil {
		cfg.SyncEnabled = *jc.SyncEnabled
	}
	if jc.DebounceDelay != nil {
		cfg.DebounceDelay = jc.DebounceDelay.Duration
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.DBPath != "" {
		cfg.DBPath = jc.DBPath
	}
	if jc.LogFile != "" {
		cfg.LogFile = jc.LogFile
	}
}
