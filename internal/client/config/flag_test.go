package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	base := func() *Config {
		c := &Config{}
		c.LoadDefaults()
		return c
	}

	tests := []struct {
		expected    func() *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-s", "http://h:9090", "-i", "10", "-t", "grpc", "-g", "h:1"},
			expected: func() *Config {
				c := base()
				c.ServerURL = "http://h:9090"
				c.OnlineCheckInterval = 10 * time.Second
				c.Transport = TransportGRPC
				c.GRPCAddr = "h:1"
				return c
			}},
		{name: "Test2 sync off", args: []string{"cmd", "-sync=false", "-d", "/tmp/x.db"},
			expected: func() *Config {
				c := base()
				c.SyncEnabled = false
				c.DBPath = "/tmp/x.db"
				return c
			}},
		{name: "Test3 foreign flags ignored", args: []string{"cmd", "-c", "conf.json", "-x", "1"},
			expected: base},
		{name: "Test4 incorrect check interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true},
		{name: "Test5 unknown transport", args: []string{"cmd", "-t", "carrier-pigeon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			cfg := base()

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(cfg) })
				return
			}
			require.NotPanics(t, func() { parseFlags(cfg) })
			assert.Empty(t, cmp.Diff(tt.expected(), cfg))
		})
	}
}
