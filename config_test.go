package framesock

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Address != DefaultAddress || cfg.Backlog != DefaultBacklog {
		t.Errorf("DefaultConfig = %+v", cfg)
	}
	if len(cfg.connOptions()) != 0 {
		t.Error("default config should not override connection defaults")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty address", func(c *Config) { c.Address = "" }, ""},
		{"zero backlog", func(c *Config) { c.Backlog = 0 }, ""},
		{"unbounded messages", func(c *Config) { c.MaxMessageSize = -1 }, ""},
		{"ipv6 loopback", func(c *Config) { c.Address = "[::1]:0" }, ""},
		{"negative backlog", func(c *Config) { c.Backlog = -1 }, "Backlog"},
		{"bad max size", func(c *Config) { c.MaxMessageSize = -2 }, "MaxMessageSize"},
		{"negative heartbeat", func(c *Config) { c.Heartbeat = -time.Second }, "Heartbeat"},
		{"negative send buffer", func(c *Config) { c.SendBuffer = -1 }, "SendBuffer"},
		{"missing port", func(c *Config) { c.Address = "127.0.0.1" }, "Address"},
		{"port out of range", func(c *Config) { c.Address = "127.0.0.1:70000" }, "Address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not name %s", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_MultipleViolations(t *testing.T) {
	cfg := Config{Backlog: -1, SendBuffer: -1}

	err := cfg.Validate()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "Backlog") || !strings.Contains(err.Error(), "SendBuffer") {
		t.Errorf("error should list every field: %v", err)
	}
}

func TestConfig_Address(t *testing.T) {
	addr, err := Config{}.address()
	if err != nil {
		t.Fatalf("address failed: %v", err)
	}
	if addr.String() != DefaultAddress {
		t.Errorf("address = %v, want %s", addr, DefaultAddress)
	}
}

func TestConfig_ConnOptions(t *testing.T) {
	cfg := Config{MaxMessageSize: -1, SendBuffer: 16, Heartbeat: time.Second}

	var opts options
	for _, o := range cfg.connOptions() {
		o(&opts)
	}

	if opts.maxMessageSize != -1 || opts.bufferSize != 16 || opts.heartbeat != time.Second {
		t.Errorf("options = %+v", opts)
	}
}
