// Package config loads the tool configuration: where the bus lives, how
// long the protocol waits, which registry and profile files to use, and how
// discovered nodes map onto device classes.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "50ms" or "15s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// BusConfig selects the CAN interface.
type BusConfig struct {
	// Network is "can" for SocketCAN; tcp/udp reach a remote CAN stream.
	Network string `yaml:"network"`
	// Address is the interface name or remote address.
	Address string `yaml:"address"`
	// SendTimeout bounds a blocked transmit.
	SendTimeout Duration `yaml:"send_timeout,omitempty"`
}

// TimingConfig collects the protocol's time windows.
type TimingConfig struct {
	// DiscoveryWindow is how long the passive node census listens.
	DiscoveryWindow Duration `yaml:"discovery_window,omitempty"`
	// ResponseTimeout bounds the wait for an SDO response.
	ResponseTimeout Duration `yaml:"response_timeout,omitempty"`
	// PollInterval spaces the calibration state polls.
	PollInterval Duration `yaml:"poll_interval,omitempty"`
	// CalibrationTimeout bounds a whole calibration wait.
	CalibrationTimeout Duration `yaml:"calibration_timeout,omitempty"`
}

// VersionCheckConfig gates the firmware/hardware version verification that
// runs before a node is configured.
type VersionCheckConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Firmware string `yaml:"firmware,omitempty"`
	Hardware string `yaml:"hardware,omitempty"`
}

// AssignmentConfig maps specific node ids to a device class.
type AssignmentConfig struct {
	Class string  `yaml:"class"`
	Nodes []uint8 `yaml:"nodes"`
}

// LokiConfig configures optional log shipping.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url,omitempty"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// LoggingConfig configures the zerolog root logger.
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty"`
}

// TelemetryConfig configures the Prometheus endpoint.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Config is the complete tool configuration.
type Config struct {
	Bus          BusConfig          `yaml:"bus"`
	Timing       TimingConfig       `yaml:"timing"`
	Tolerance    float64            `yaml:"tolerance,omitempty"`
	Endpoints    string             `yaml:"endpoints"`
	Profiles     string             `yaml:"profiles,omitempty"`
	Assignments  []AssignmentConfig `yaml:"assignments,omitempty"`
	DefaultClass string             `yaml:"default_class,omitempty"`
	VersionCheck VersionCheckConfig `yaml:"version_check,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
	Telemetry    TelemetryConfig    `yaml:"telemetry,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bus.Network == "" {
		c.Bus.Network = "can"
	}
	if c.Bus.Address == "" {
		c.Bus.Address = "can0"
	}
	if c.Bus.SendTimeout.Duration <= 0 {
		c.Bus.SendTimeout.Duration = time.Second
	}
	if c.Timing.DiscoveryWindow.Duration <= 0 {
		c.Timing.DiscoveryWindow.Duration = 2 * time.Second
	}
	if c.Timing.ResponseTimeout.Duration <= 0 {
		c.Timing.ResponseTimeout.Duration = 50 * time.Millisecond
	}
	if c.Timing.PollInterval.Duration <= 0 {
		c.Timing.PollInterval.Duration = time.Second
	}
	if c.Timing.CalibrationTimeout.Duration <= 0 {
		c.Timing.CalibrationTimeout.Duration = 15 * time.Second
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-2
	}
	if c.Telemetry.Listen == "" {
		c.Telemetry.Listen = ":9100"
	}
}

// Validate rejects configurations the tools cannot act on.
func (c *Config) Validate() error {
	switch c.Bus.Network {
	case "can", "tcp", "udp":
	default:
		return fmt.Errorf("unsupported bus network %q", c.Bus.Network)
	}
	if c.Timing.PollInterval.Duration > c.Timing.CalibrationTimeout.Duration {
		return fmt.Errorf("poll interval %s exceeds calibration timeout %s",
			c.Timing.PollInterval.Duration, c.Timing.CalibrationTimeout.Duration)
	}
	seen := make(map[uint8]string)
	for _, assignment := range c.Assignments {
		if assignment.Class == "" {
			return fmt.Errorf("assignment without device class")
		}
		if len(assignment.Nodes) == 0 {
			return fmt.Errorf("assignment for class %s lists no nodes", assignment.Class)
		}
		for _, node := range assignment.Nodes {
			if err := (protocol.NodeID(node)).Validate(); err != nil {
				return err
			}
			if previous, dup := seen[node]; dup {
				return fmt.Errorf("node %d assigned to both %s and %s", node, previous, assignment.Class)
			}
			seen[node] = assignment.Class
		}
	}
	if c.VersionCheck.Enabled && c.VersionCheck.Firmware == "" && c.VersionCheck.Hardware == "" {
		return fmt.Errorf("version check enabled but no expected versions given")
	}
	if c.Logging.Loki.Enabled && c.Logging.Loki.URL == "" {
		return fmt.Errorf("loki logging enabled but url missing")
	}
	return nil
}

// ClassFor resolves a node's device class from the assignment table,
// falling back to the default class. Empty result means the node has no
// profile and must be skipped.
func (c *Config) ClassFor(node protocol.NodeID) string {
	for _, assignment := range c.Assignments {
		for _, n := range assignment.Nodes {
			if protocol.NodeID(n) == node {
				return assignment.Class
			}
		}
	}
	return c.DefaultClass
}
