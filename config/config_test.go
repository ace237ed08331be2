package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "can", cfg.Bus.Network)
	assert.Equal(t, "can0", cfg.Bus.Address)
	assert.Equal(t, 2*time.Second, cfg.Timing.DiscoveryWindow.Duration)
	assert.Equal(t, 50*time.Millisecond, cfg.Timing.ResponseTimeout.Duration)
	assert.Equal(t, time.Second, cfg.Timing.PollInterval.Duration)
	assert.Equal(t, 15*time.Second, cfg.Timing.CalibrationTimeout.Duration)
	assert.Equal(t, 1e-2, cfg.Tolerance)
	assert.False(t, cfg.VersionCheck.Enabled)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
bus:
  network: can
  address: can1
timing:
  discovery_window: 500ms
  response_timeout: 25ms
endpoints: data/flat_endpoints.json
profiles: data/profiles.yaml
assignments:
  - class: "8308"
    nodes: [0, 1, 2, 3]
  - class: GB36
    nodes: [5, 6]
default_class: "8308"
version_check:
  enabled: true
  firmware: 0.6.8
  hardware: 4.4.58
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "can1", cfg.Bus.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Timing.DiscoveryWindow.Duration)
	assert.Equal(t, 25*time.Millisecond, cfg.Timing.ResponseTimeout.Duration)
	// Unset timing fields fall back to defaults.
	assert.Equal(t, 15*time.Second, cfg.Timing.CalibrationTimeout.Duration)

	assert.Equal(t, "GB36", cfg.ClassFor(5))
	assert.Equal(t, "8308", cfg.ClassFor(2))
	assert.Equal(t, "8308", cfg.ClassFor(9), "unassigned nodes use the default class")

	assert.True(t, cfg.VersionCheck.Enabled)
	assert.Equal(t, "0.6.8", cfg.VersionCheck.Firmware)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "buss:\n  network: can\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Bus.Network = "serial"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Assignments = []AssignmentConfig{
		{Class: "8308", Nodes: []uint8{1}},
		{Class: "GB36", Nodes: []uint8{1}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assigned to both")

	cfg = Default()
	cfg.VersionCheck.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Timing.PollInterval.Duration = time.Minute
	assert.Error(t, cfg.Validate())
}

func TestDurationParse(t *testing.T) {
	path := writeConfig(t, "timing:\n  discovery_window: nonsense\nendpoints: x\n")
	_, err := Load(path)
	assert.Error(t, err)
}
