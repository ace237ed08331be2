package axis

import (
	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// RequestState asks a node's state machine to transition. The device
// acknowledges through its heartbeat, not this call.
func RequestState(bus canbus.Bus, node protocol.NodeID, state State) error {
	return bus.Send(protocol.SetAxisStateFrame(node, uint32(state)))
}

// SetPosition commands a position in turns. Feed-forward terms stay zero;
// the controller's tuning handles dynamics.
func SetPosition(bus canbus.Bus, node protocol.NodeID, turns float64) error {
	return bus.Send(protocol.SetInputPosFrame(node, float32(turns), 0, 0))
}

// SetTorque commands a torque in newton-metres.
func SetTorque(bus canbus.Bus, node protocol.NodeID, torque float64) error {
	return bus.Send(protocol.SetInputTorqueFrame(node, float32(torque)))
}
