package drive

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/internal/simulator"
	"github.com/JesseDarr/odrive-can-tools/protocol"
	"github.com/JesseDarr/odrive-can-tools/registry"
)

const testRegistryDoc = `
endpoints:
  vbus_voltage: {id: 1, type: float}
  axis0.current_state: {id: 2, type: uint32}
  axis0.config.can.node_id: {id: 3, type: uint32}
  save_configuration: {id: 4, type: uint32}
  axis0.active_errors: {id: 5, type: uint32}
  axis0.disarm_reason: {id: 6, type: uint32}
  axis0.vel_gain: {id: 7, type: float}
`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse([]byte(testRegistryDoc))
	require.NoError(t, err)
	return reg
}

func TestClientReadWriteValidate(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	simulator.New(4, hub.Open(),
		simulator.WithValue(1, protocol.TypeFloat, 24.1),
		simulator.WithValue(3, protocol.TypeUint32, 4),
	)

	reg := testRegistry(t)
	client := NewClient(hub.Open(), reg, WithLogger(zerolog.Nop()))

	value, ok, err := client.ReadPath(4, "vbus_voltage")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 24.1, value, 1e-4)

	ep, err := reg.Lookup("axis0.config.can.node_id")
	require.NoError(t, err)
	require.NoError(t, client.Write(4, ep, 9))
	require.Eventually(t, func() bool {
		return client.Validate(4, ep, 9, client.Tolerance())
	}, time.Second, 10*time.Millisecond)

	_, _, err = client.ReadPath(4, "no.such.path")
	require.ErrorIs(t, err, registry.ErrUnknownPath)
}

func TestClientReadTimeout(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	client := NewClient(hub.Open(), testRegistry(t),
		WithResponseTimeout(20*time.Millisecond))

	start := time.Now()
	_, ok, err := client.ReadPath(7, "vbus_voltage")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestClientIgnoresForeignTraffic(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	// Node 4 answers, node 5 chatters heartbeats the whole time.
	simulator.New(4, hub.Open(), simulator.WithValue(1, protocol.TypeFloat, 12.5))
	simulator.New(5, hub.Open(), simulator.WithHeartbeat(time.Millisecond))

	client := NewClient(hub.Open(), testRegistry(t))
	value, ok, err := client.ReadPath(4, "vbus_voltage")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 12.5, value, 1e-4)
}

func TestClientSave(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	node := simulator.New(4, hub.Open())
	client := NewClient(hub.Open(), testRegistry(t))

	require.NoError(t, client.Save(4))
	require.Eventually(t, func() bool {
		return node.Writes(4) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDiscover(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	simulator.New(2, hub.Open(), simulator.WithHeartbeat(10*time.Millisecond))
	simulator.New(7, hub.Open(), simulator.WithHeartbeat(10*time.Millisecond))

	nodes, err := Discover(hub.Open(), 150*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []protocol.NodeID{2, 7}, nodes)
}

func TestDiscoverEmptyBus(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	nodes, err := Discover(hub.Open(), 50*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestQueryVersion(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	want := protocol.Version{
		Protocol: 2, HWProductLine: 4, HWVersion: 4, HWVariant: 58,
		FWMajor: 0, FWMinor: 6, FWRevision: 8,
	}
	simulator.New(4, hub.Open(), simulator.WithVersion(want))

	client := NewClient(hub.Open(), testRegistry(t))
	got, err := client.QueryVersion(4)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, client.CheckVersion(4, "0.6.8", "4.4.58"))
	err = client.CheckVersion(4, "0.6.9", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0.6.9")

	client = NewClient(hub.Open(), testRegistry(t),
		WithResponseTimeout(20*time.Millisecond))
	_, err = client.QueryVersion(9)
	require.ErrorIs(t, err, ErrNoResponse)
}

func TestErrorStatus(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	node := simulator.New(4, hub.Open(),
		simulator.WithValue(5, protocol.TypeUint32, 0x40),
		simulator.WithValue(6, protocol.TypeUint32, 0x40),
	)
	client := NewClient(hub.Open(), testRegistry(t))

	reports := client.ErrorStatus(4, false)
	require.Len(t, reports, 2)
	assert.True(t, reports[0].Present)
	assert.False(t, reports[0].Cleared)
	assert.EqualValues(t, 0x40, reports[0].Value)

	reports = client.ErrorStatus(4, true)
	require.Len(t, reports, 2)
	assert.Equal(t, PathActiveErrors, reports[0].Path)
	assert.True(t, reports[0].Cleared)
	assert.False(t, reports[1].Cleared)
	require.Eventually(t, func() bool {
		packed, ok := node.Value(5)
		return ok && packed[0] == 0 && packed[1] == 0 && packed[2] == 0 && packed[3] == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSampleMetrics(t *testing.T) {
	hub := canbus.NewLoopback()
	defer hub.Close()

	simulator.New(4, hub.Open(), simulator.WithValue(1, protocol.TypeFloat, 48.2))
	client := NewClient(hub.Open(), testRegistry(t),
		WithResponseTimeout(20*time.Millisecond))

	samples := client.SampleMetrics(4)
	require.Len(t, samples, len(Metrics))
	assert.Equal(t, "volts", samples[0].Name)
	assert.True(t, samples[0].OK)
	assert.InDelta(t, 48.2, samples[0].Value, 1e-4)
	// Paths absent from the registry come back as misses, not errors.
	assert.False(t, samples[1].OK)
}

func TestSampleMetricsFloat(t *testing.T) {
	f, ok := protocol.Float(float32(1.5))
	require.True(t, ok)
	assert.InDelta(t, 1.5, f, 1e-6)
	_, ok = protocol.Float("nope")
	assert.False(t, ok)
}
