package axis

import (
	"fmt"

	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/protocol"
)

// Actuator is a joint built from one or more axes. Apply moves it to a
// logical position; how that maps onto motor turns depends on the mechanism.
type Actuator interface {
	Nodes() []protocol.NodeID
	Apply(bus canbus.Bus, value float64) error
}

// SingleAxis is a joint driven directly by one motor.
type SingleAxis struct {
	Node protocol.NodeID
}

func (a SingleAxis) Nodes() []protocol.NodeID {
	return []protocol.NodeID{a.Node}
}

func (a SingleAxis) Apply(bus canbus.Bus, value float64) error {
	return SetPosition(bus, a.Node, value)
}

// Coupling says how a pair of motors shares a logical position.
type Coupling int

const (
	// CouplingSum drives both motors in the same direction, as on a joint
	// where two motors pull together.
	CouplingSum Coupling = iota
	// CouplingDifference drives the motors in opposite directions, as on a
	// differential wrist.
	CouplingDifference
)

// CoupledPair is a joint driven by two mechanically linked motors.
type CoupledPair struct {
	A, B     protocol.NodeID
	Coupling Coupling
}

func (p CoupledPair) Nodes() []protocol.NodeID {
	return []protocol.NodeID{p.A, p.B}
}

func (p CoupledPair) Apply(bus canbus.Bus, value float64) error {
	switch p.Coupling {
	case CouplingSum:
		return p.ApplyMix(bus, value, 0)
	case CouplingDifference:
		return p.ApplyMix(bus, 0, value)
	}
	return fmt.Errorf("axis: unknown coupling %d", p.Coupling)
}

// ApplyMix commands both motors from a unison and a differential component:
// motor A gets unison+diff, motor B gets unison-diff. This is the full
// control surface of a differential pair; Apply is the single-knob view.
func (p CoupledPair) ApplyMix(bus canbus.Bus, unison, diff float64) error {
	if err := SetPosition(bus, p.A, unison+diff); err != nil {
		return err
	}
	return SetPosition(bus, p.B, unison-diff)
}
