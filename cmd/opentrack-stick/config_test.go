package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opentrack-stick.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.UDP.ListenPort != defaultListenPort {
		t.Errorf("default port = %d, want %d", cfg.UDP.ListenPort, defaultListenPort)
	}
	if len(cfg.Tracking.Bindings) != 6 {
		t.Errorf("default bindings has %d entries, want 6", len(cfg.Tracking.Bindings))
	}
}

func TestLoadConfigFile_AppliesOnTopOfDefaults(t *testing.T) {
	path := writeConfigFile(t, `
udp:
  listen_port: 6000
tracking:
  smoothing_alpha: 0.2
  bindings: [0, 0, 1, 4, 5, 0]
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.UDP.ListenPort != 6000 {
		t.Errorf("listen_port = %d, want 6000", cfg.UDP.ListenPort)
	}
	if cfg.UDP.ListenIP != defaultListenIP {
		t.Errorf("listen_ip = %q, want default preserved", cfg.UDP.ListenIP)
	}
	if cfg.Tracking.SmoothingAlpha != 0.2 {
		t.Errorf("smoothing_alpha = %v, want 0.2", cfg.Tracking.SmoothingAlpha)
	}
	if cfg.Tracking.SmoothingN != defaultSmoothingN {
		t.Errorf("smoothing_n = %d, want default preserved", cfg.Tracking.SmoothingN)
	}
	if got := cfg.Tracking.Bindings; len(got) != 6 || got[2] != 1 || got[3] != 4 {
		t.Errorf("bindings = %v, want [0 0 1 4 5 0]", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `
tracking:
  smothing_n: 100
`)
	if _, err := LoadConfigFile(path); err == nil || !strings.Contains(err.Error(), "decode config yaml") {
		t.Errorf("misspelled field accepted, err = %v", err)
	}
}

func TestConfigValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty ip", func(c *Config) { c.UDP.ListenIP = "" }},
		{"port zero", func(c *Config) { c.UDP.ListenPort = 0 }},
		{"port too high", func(c *Config) { c.UDP.ListenPort = 70000 }},
		{"wait zero", func(c *Config) { c.Tracking.WaitSecs = 0 }},
		{"negative smoothing", func(c *Config) { c.Tracking.SmoothingN = -1 }},
		{"alpha zero", func(c *Config) { c.Tracking.SmoothingAlpha = 0 }},
		{"alpha above one", func(c *Config) { c.Tracking.SmoothingAlpha = 1.5 }},
		{"short bindings", func(c *Config) { c.Tracking.Bindings = []int{1, 2} }},
		{"binding past catalogue", func(c *Config) { c.Tracking.Bindings = []int{12, 0, 0, 0, 0, 0} }},
		{"negative monitor port", func(c *Config) { c.Monitor.Port = -1 }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate() accepted invalid config", tc.name)
		}
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	port := 7000
	alpha := 0.3
	level := "debug"
	o := FlagOverrides{
		ListenPort:     &port,
		SmoothingAlpha: &alpha,
		Bindings:       []int{0, 0, 0, 4, 0, 0},
		LogLevel:       &level,
	}
	o.Apply(&cfg)

	if cfg.UDP.ListenPort != 7000 {
		t.Errorf("port override not applied: %d", cfg.UDP.ListenPort)
	}
	if cfg.Tracking.SmoothingAlpha != 0.3 {
		t.Errorf("alpha override not applied: %v", cfg.Tracking.SmoothingAlpha)
	}
	if cfg.Tracking.Bindings[3] != 4 || cfg.Tracking.Bindings[0] != 0 {
		t.Errorf("bindings override not applied: %v", cfg.Tracking.Bindings)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level override not applied: %q", cfg.Logging.Level)
	}
	// Untouched fields keep their values.
	if cfg.UDP.ListenIP != defaultListenIP {
		t.Errorf("listen ip changed unexpectedly: %q", cfg.UDP.ListenIP)
	}
	if cfg.Tracking.SmoothingN != defaultSmoothingN {
		t.Errorf("smoothing n changed unexpectedly: %d", cfg.Tracking.SmoothingN)
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error":   LogLevelError,
		"WARN":    LogLevelWarn,
		"warning": LogLevelWarn,
		"Info":    LogLevelInfo,
		"debug":   LogLevelDebug,
	} {
		got, err := parseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("parseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := parseLogLevel("verbose"); err == nil {
		t.Error("parseLogLevel accepted unknown level")
	}
}
