// Package simulator provides a bench stand-in for an ODrive node. A Node
// sits on a bus port and answers SDO reads and writes from an in-memory
// endpoint table, which is enough to exercise discovery, configuration and
// calibration flows without hardware.
package simulator

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"go.einride.tech/can"

	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/protocol"
)

const pollTimeout = 20 * time.Millisecond

// Node emulates one device on the bus. Construct it with New; it serves
// requests on its own goroutine until the bus closes.
type Node struct {
	id  protocol.NodeID
	bus canbus.Bus

	mu            sync.Mutex
	values        map[uint16][]byte
	writes        map[uint16]int
	stateEndpoint uint16
	hasState      bool
	calibTicks    int
	calibLeft     int
	readOnly      map[uint16]bool
	version       protocol.Version
	hasVersion    bool
	heartbeat     time.Duration
}

// Option configures a Node before it starts serving.
type Option func(*Node)

// WithValue preloads an endpoint with a typed value.
func WithValue(endpoint uint16, t protocol.Type, value interface{}) Option {
	return func(n *Node) {
		packed, err := protocol.Pack(t, value)
		if err != nil {
			panic(err)
		}
		n.values[endpoint] = packed
	}
}

// WithStateEndpoint marks the endpoint holding axis0.current_state so
// Set_Axis_State commands are reflected in subsequent reads.
func WithStateEndpoint(endpoint uint16) Option {
	return func(n *Node) {
		n.stateEndpoint = endpoint
		n.hasState = true
		if _, ok := n.values[endpoint]; !ok {
			n.values[endpoint] = packUint32(1)
		}
	}
}

// WithCalibrationTicks makes a requested calibration report the calibrating
// state for the given number of state reads before settling back to idle.
func WithCalibrationTicks(ticks int) Option {
	return func(n *Node) {
		n.calibTicks = ticks
	}
}

// WithReadOnly makes an endpoint silently discard writes, like the
// firmware's computed values do.
func WithReadOnly(endpoint uint16) Option {
	return func(n *Node) {
		n.readOnly[endpoint] = true
	}
}

// WithVersion enables Get_Version responses.
func WithVersion(v protocol.Version) Option {
	return func(n *Node) {
		n.version = v
		n.hasVersion = true
	}
}

// WithHeartbeat makes the node broadcast heartbeats at the given interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(n *Node) {
		n.heartbeat = interval
	}
}

// New starts a simulated node on the given bus port. The node stops when
// the port or its hub is closed.
func New(id protocol.NodeID, bus canbus.Bus, opts ...Option) *Node {
	n := &Node{
		id:       id,
		bus:      bus,
		values:   make(map[uint16][]byte),
		writes:   make(map[uint16]int),
		readOnly: make(map[uint16]bool),
	}
	for _, opt := range opts {
		opt(n)
	}
	go n.run()
	if n.heartbeat > 0 {
		go n.beat()
	}
	return n
}

// Value returns the packed bytes currently stored for an endpoint.
func (n *Node) Value(endpoint uint16) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	packed, ok := n.values[endpoint]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(packed))
	copy(out, packed)
	return out, true
}

// Writes reports how many SDO writes hit an endpoint, function-style
// triggers such as save_configuration included.
func (n *Node) Writes(endpoint uint16) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.writes[endpoint]
}

func (n *Node) run() {
	for {
		f, ok, err := n.bus.Receive(pollTimeout)
		if err != nil {
			return
		}
		if !ok {
			continue
		}
		node, cmd := protocol.SplitFrameID(f.ID)
		if node != n.id {
			continue
		}
		switch cmd {
		case protocol.CmdRxSDO:
			n.handleSDO(f)
		case protocol.CmdGetVersion:
			// Length 0 is the query; 8 would be another node's response.
			if f.Length == 0 && n.hasVersion {
				_ = n.bus.Send(protocol.VersionFrame(n.id, n.version))
			}
		case protocol.CmdSetAxisState:
			if f.Length >= 4 {
				n.setState(binary.LittleEndian.Uint32(f.Data[:4]))
			}
		}
	}
}

func (n *Node) handleSDO(f can.Frame) {
	if f.Length < 4 {
		return
	}
	endpoint := binary.LittleEndian.Uint16(f.Data[1:3])
	n.mu.Lock()
	defer n.mu.Unlock()
	switch f.Data[0] {
	case protocol.OpWrite:
		n.writes[endpoint]++
		if f.Length > 4 && !n.readOnly[endpoint] {
			packed := make([]byte, f.Length-4)
			copy(packed, f.Data[4:f.Length])
			n.values[endpoint] = packed
		}
	case protocol.OpRead:
		packed, ok := n.values[endpoint]
		if !ok {
			return
		}
		var resp can.Frame
		resp.ID = protocol.FrameID(n.id, protocol.CmdTxSDO)
		resp.Length = uint8(4 + len(packed))
		resp.Data[0] = protocol.OpRead
		binary.LittleEndian.PutUint16(resp.Data[1:3], endpoint)
		copy(resp.Data[4:], packed)
		_ = n.bus.Send(resp)
		if n.hasState && endpoint == n.stateEndpoint && n.calibLeft > 0 {
			n.calibLeft--
			if n.calibLeft == 0 {
				n.values[n.stateEndpoint] = packUint32(1)
			}
		}
	}
}

func (n *Node) setState(state uint32) {
	if !n.hasState {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[n.stateEndpoint] = packUint32(state)
	switch state {
	case 3, 4, 6, 7:
		n.calibLeft = n.calibTicks
		if n.calibTicks == 0 {
			n.values[n.stateEndpoint] = packUint32(1)
		}
	default:
		n.calibLeft = 0
	}
}

func (n *Node) beat() {
	for {
		n.mu.Lock()
		state := uint8(1)
		if packed, ok := n.values[n.stateEndpoint]; n.hasState && ok && len(packed) >= 4 {
			state = uint8(binary.LittleEndian.Uint32(packed))
		}
		n.mu.Unlock()
		hb := protocol.Heartbeat{AxisState: state, TrajectoryDone: true}
		if err := n.bus.Send(protocol.HeartbeatFrame(n.id, hb)); err != nil {
			if errors.Is(err, canbus.ErrClosed) {
				return
			}
		}
		time.Sleep(n.heartbeat)
	}
}

func packUint32(v uint32) []byte {
	packed := make([]byte, 4)
	binary.LittleEndian.PutUint32(packed, v)
	return packed
}
