package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Zereker/framesock"
)

// fileConfig is the on-disk layout of echo.toml.
type fileConfig struct {
	Addr           string `toml:"addr"`
	Backlog        int    `toml:"backlog"`
	MaxMessageSize int    `toml:"max_message_size"`
	SendBuffer     int    `toml:"send_buffer"`
	Heartbeat      string `toml:"heartbeat"`
	LogFormat      string `toml:"log_format"`
	LogLevel       string `toml:"log_level"`
	MetricsAddr    string `toml:"metrics_addr"`
}

type config struct {
	Server      framesock.Config
	LogFormat   string
	LogLevel    string
	MetricsAddr string
}

func defaultConfig() config {
	cfg := config{
		Server:    framesock.DefaultConfig(),
		LogFormat: "console",
		LogLevel:  "info",
	}
	cfg.Server.Address = "127.0.0.1:12345"
	return cfg
}

// loadConfig overlays the keys present in path onto defaultConfig.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load echo config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load echo config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		cfg.Server.Address = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("backlog") {
		cfg.Server.Backlog = raw.Backlog
	}
	if meta.IsDefined("max_message_size") {
		cfg.Server.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("send_buffer") {
		cfg.Server.SendBuffer = raw.SendBuffer
	}
	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return config{}, fmt.Errorf("load echo config: heartbeat: %w", err)
		}
		cfg.Server.Heartbeat = d
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if err = cfg.Server.Validate(); err != nil {
		return config{}, fmt.Errorf("load echo config: %w", err)
	}
	return cfg, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "echo:", err)
	os.Exit(1)
}
