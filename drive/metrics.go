package drive

import (
	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// Metric pairs a short display name with the endpoint path backing it.
type Metric struct {
	Name string
	Path string
}

// Metrics is the fixed set of live readings sampled per node, in display
// order.
var Metrics = []Metric{
	{Name: "volts", Path: "vbus_voltage"},
	{Name: "amps", Path: "ibus"},
	{Name: "bus_amps", Path: "axis0.motor.alpha_beta_controller.I_bus"},
	{Name: "pos", Path: "axis0.pos_estimate"},
	{Name: "pos_tgt", Path: "axis0.controller.input_pos"},
	{Name: "vel", Path: "axis0.vel_estimate"},
	{Name: "vel_tgt", Path: "axis0.controller.input_vel"},
	{Name: "torque", Path: "axis0.motor.torque_estimate"},
	{Name: "torque_tgt", Path: "axis0.controller.input_torque"},
	{Name: "mech_power", Path: "axis0.motor.mechanical_power"},
	{Name: "elec_power", Path: "axis0.motor.electrical_power"},
	{Name: "armed", Path: "axis0.is_armed"},
	{Name: "disarm_reason", Path: "axis0.disarm_reason"},
}

// Sample is one metric reading. OK is false when the endpoint is absent
// from the registry or the node did not answer.
type Sample struct {
	Name  string
	Value interface{}
	OK    bool
}

// SampleMetrics reads the full metric table from one node. Misses are
// reported per sample so one dead endpoint does not hide the rest.
func (c *Client) SampleMetrics(node protocol.NodeID) []Sample {
	samples := make([]Sample, 0, len(Metrics))
	for _, m := range Metrics {
		s := Sample{Name: m.Name}
		ep, err := c.reg.Lookup(m.Path)
		if err != nil {
			c.logger.Debug().Str("path", m.Path).Msg("metric endpoint missing from registry")
			samples = append(samples, s)
			continue
		}
		if value, ok := c.Read(node, ep); ok {
			s.Value = value
			s.OK = true
		}
		samples = append(samples, s)
	}
	return samples
}
