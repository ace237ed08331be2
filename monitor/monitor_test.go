package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/drive"
	"github.com/JesseDarr/odrive-can-tools/internal/simulator"
	"github.com/JesseDarr/odrive-can-tools/protocol"
	"github.com/JesseDarr/odrive-can-tools/registry"
	"github.com/JesseDarr/odrive-can-tools/telemetry"
)

type recordingCollector struct {
	telemetry.Collector

	mu     sync.Mutex
	gauges map[string]float64
	misses map[string]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		Collector: telemetry.Noop(),
		gauges:    make(map[string]float64),
		misses:    make(map[string]int),
	}
}

func (c *recordingCollector) SetNodeMetric(_ uint8, metric string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[metric] = value
}

func (c *recordingCollector) IncMetricMiss(_ uint8, metric string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses[metric]++
}

func (c *recordingCollector) gauge(metric string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.gauges[metric]
	return v, ok
}

func (c *recordingCollector) missed(metric string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses[metric]
}

func TestSamplerPublishesGaugesAndMisses(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	reg, err := registry.Parse([]byte(`
endpoints:
  vbus_voltage: {id: 1, type: float}
  ibus: {id: 2, type: float}
`))
	require.NoError(t, err)

	// ibus exists in the registry but the node never answers it.
	simulator.New(4, hub.Open(), simulator.WithValue(1, protocol.TypeFloat, 24.3))
	client := drive.NewClient(hub.Open(), reg,
		drive.WithResponseTimeout(20*time.Millisecond))

	collector := newRecordingCollector()
	sampler := NewSampler(client, []protocol.NodeID{4}, 10*time.Millisecond, collector, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = sampler.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	volts, ok := collector.gauge("volts")
	require.True(t, ok)
	assert.InDelta(t, 24.3, volts, 1e-4)
	assert.Greater(t, collector.missed("amps"), 0)
}

func TestSampleOnce(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	reg, err := registry.Parse([]byte(`
endpoints:
  vbus_voltage: {id: 1, type: float}
`))
	require.NoError(t, err)

	simulator.New(2, hub.Open(), simulator.WithValue(1, protocol.TypeFloat, 12.0))
	client := drive.NewClient(hub.Open(), reg,
		drive.WithResponseTimeout(20*time.Millisecond))

	sampler := NewSampler(client, []protocol.NodeID{2}, 0, nil, zerolog.Nop())
	out := sampler.SampleOnce()
	require.Len(t, out[2], len(drive.Metrics))
	assert.Equal(t, "volts", out[2][0].Name)
	assert.True(t, out[2][0].OK)
}
