package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration for the opentrack-stick daemon.
//
// The config file is the primary configuration surface; flags exist for
// ad-hoc overrides. Defaults and validation are centralized here so the
// rest of the code can assume a well-formed config.
type Config struct {
	// UDP listener for the opentrack feed
	UDP UDPConfig `yaml:"udp"`

	// Smoothing / coasting / binding parameters
	Tracking TrackingConfig `yaml:"tracking"`

	// Optional websocket monitor
	Monitor MonitorConfig `yaml:"monitor"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type UDPConfig struct {
	ListenIP   string `yaml:"listen_ip"`
	ListenPort int    `yaml:"listen_port"`
}

type TrackingConfig struct {
	// WaitSecs is how long to wait for a datagram before feeding the
	// previous sample back into the smoothers (coasting). The default
	// simulates a 1000 Hz input device.
	WaitSecs float64 `yaml:"wait_secs"`

	// SmoothingN is the window length; 0 or 1 disables smoothing.
	SmoothingN int `yaml:"smoothing_n"`

	// SmoothingAlpha in (0,1]; smaller values smooth more.
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`

	// Bindings maps each tracking channel (x, y, z, yaw, pitch, roll in
	// order) to a 1-based output number, or 0 to discard.
	Bindings []int `yaml:"bindings,flow"`
}

type MonitorConfig struct {
	// Port for the websocket monitor; 0 disables it.
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults. Keep this
// aligned with constants.go and the CLI defaults.
func DefaultConfig() Config {
	return Config{
		UDP: UDPConfig{
			ListenIP:   defaultListenIP,
			ListenPort: defaultListenPort,
		},
		Tracking: TrackingConfig{
			WaitSecs:       defaultWaitSecs,
			SmoothingN:     defaultSmoothingN,
			SmoothingAlpha: defaultSmoothingAlpha,
			Bindings:       []int{1, 2, 3, 4, 5, 6},
		},
		Monitor: MonitorConfig{
			Port: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of defaults.
// Unknown fields are rejected (helps catch typos), and trailing garbage
// after the document is an error.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries explicitly-set flag values to merge on top of the
// loaded config. Nil pointers mean "flag not set, keep the config value".
type FlagOverrides struct {
	ListenIP   *string
	ListenPort *int

	WaitSecs       *float64
	SmoothingN     *int
	SmoothingAlpha *float64
	Bindings       []int

	MonitorPort *int

	LogLevel *string
}

// Apply merges the overrides into cfg. Overrides apply even when the flag
// value equals the default (the pointer being non-nil is what counts).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ListenIP != nil {
		cfg.UDP.ListenIP = *o.ListenIP
	}
	if o.ListenPort != nil {
		cfg.UDP.ListenPort = *o.ListenPort
	}
	if o.WaitSecs != nil {
		cfg.Tracking.WaitSecs = *o.WaitSecs
	}
	if o.SmoothingN != nil {
		cfg.Tracking.SmoothingN = *o.SmoothingN
	}
	if o.SmoothingAlpha != nil {
		cfg.Tracking.SmoothingAlpha = *o.SmoothingAlpha
	}
	if o.Bindings != nil {
		cfg.Tracking.Bindings = o.Bindings
	}
	if o.MonitorPort != nil {
		cfg.Monitor.Port = *o.MonitorPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants after defaults + file + overrides.
// Everything it rejects is fatal before the virtual device is created.
func (c *Config) Validate() error {
	if c.UDP.ListenIP == "" {
		return errors.New("udp.listen_ip must not be empty")
	}
	if c.UDP.ListenPort <= 0 || c.UDP.ListenPort > 65535 {
		return errors.New("udp.listen_port must be between 1 and 65535")
	}

	if c.Tracking.WaitSecs <= 0 {
		return errors.New("tracking.wait_secs must be > 0")
	}
	if c.Tracking.SmoothingN < 0 {
		return errors.New("tracking.smoothing_n must be >= 0")
	}
	if c.Tracking.SmoothingAlpha <= 0 || c.Tracking.SmoothingAlpha > 1 {
		return errors.New("tracking.smoothing_alpha must be in (0, 1]")
	}
	if err := validateBindings(c.Tracking.Bindings); err != nil {
		return fmt.Errorf("tracking.bindings: %w", err)
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return errors.New("monitor.port must be between 0 and 65535")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
