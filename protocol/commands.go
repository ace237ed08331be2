package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.einride.tech/can"
)

// SetAxisStateFrame builds the command requesting a state transition.
// The state code travels as a uint32.
func SetAxisStateFrame(node NodeID, state uint32) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdSetAxisState)
	f.Length = 4
	binary.LittleEndian.PutUint32(f.Data[:4], state)
	return f
}

// SetInputPosFrame builds the position command. Feed-forward terms ride
// along as scaled int16 values; the callers here always send zero.
func SetInputPosFrame(node NodeID, position float32, velFF, torqueFF int16) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdSetInputPos)
	f.Length = 8
	binary.LittleEndian.PutUint32(f.Data[:4], math.Float32bits(position))
	binary.LittleEndian.PutUint16(f.Data[4:6], uint16(velFF))
	binary.LittleEndian.PutUint16(f.Data[6:8], uint16(torqueFF))
	return f
}

// SetInputTorqueFrame builds the torque command.
func SetInputTorqueFrame(node NodeID, torque float32) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdSetInputTorque)
	f.Length = 4
	binary.LittleEndian.PutUint32(f.Data[:4], math.Float32bits(torque))
	return f
}

// VersionRequest builds the empty Get_Version query.
func VersionRequest(node NodeID) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdGetVersion)
	return f
}

// Version describes a node's silicon and firmware as reported by
// Get_Version.
type Version struct {
	Protocol      uint8
	HWProductLine uint8
	HWVersion     uint8
	HWVariant     uint8
	FWMajor       uint8
	FWMinor       uint8
	FWRevision    uint8
	FWUnreleased  uint8
}

// Firmware renders the dotted firmware version string.
func (v Version) Firmware() string {
	return fmt.Sprintf("%d.%d.%d", v.FWMajor, v.FWMinor, v.FWRevision)
}

// Hardware renders the dotted hardware version string.
func (v Version) Hardware() string {
	return fmt.Sprintf("%d.%d.%d", v.HWProductLine, v.HWVersion, v.HWVariant)
}

// ParseVersion decodes a Get_Version response frame.
func ParseVersion(f can.Frame) (Version, error) {
	if _, cmd := SplitFrameID(f.ID); cmd != CmdGetVersion {
		return Version{}, fmt.Errorf("protocol: frame 0x%X is not a version response", f.ID)
	}
	if f.Length < 8 {
		return Version{}, fmt.Errorf("protocol: version response too short: %d bytes", f.Length)
	}
	return Version{
		Protocol:      f.Data[0],
		HWProductLine: f.Data[1],
		HWVersion:     f.Data[2],
		HWVariant:     f.Data[3],
		FWMajor:       f.Data[4],
		FWMinor:       f.Data[5],
		FWRevision:    f.Data[6],
		FWUnreleased:  f.Data[7],
	}, nil
}

// VersionFrame builds a Get_Version response; the counterpart to
// ParseVersion used by bench simulators.
func VersionFrame(node NodeID, v Version) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdGetVersion)
	f.Length = 8
	f.Data = [8]byte{
		v.Protocol, v.HWProductLine, v.HWVersion, v.HWVariant,
		v.FWMajor, v.FWMinor, v.FWRevision, v.FWUnreleased,
	}
	return f
}

// Heartbeat carries the periodic status a node broadcasts on its own.
type Heartbeat struct {
	AxisError       uint32
	AxisState       uint8
	ProcedureResult uint8
	TrajectoryDone  bool
}

// ParseHeartbeat decodes a heartbeat frame.
func ParseHeartbeat(f can.Frame) (Heartbeat, error) {
	if _, cmd := SplitFrameID(f.ID); cmd != CmdHeartbeat {
		return Heartbeat{}, fmt.Errorf("protocol: frame 0x%X is not a heartbeat", f.ID)
	}
	if f.Length < 7 {
		return Heartbeat{}, fmt.Errorf("protocol: heartbeat too short: %d bytes", f.Length)
	}
	return Heartbeat{
		AxisError:       binary.LittleEndian.Uint32(f.Data[:4]),
		AxisState:       f.Data[4],
		ProcedureResult: f.Data[5],
		TrajectoryDone:  f.Data[6] != 0,
	}, nil
}

// HeartbeatFrame builds a heartbeat; only simulators send these, real nodes
// broadcast them on their own.
func HeartbeatFrame(node NodeID, hb Heartbeat) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdHeartbeat)
	f.Length = 8
	binary.LittleEndian.PutUint32(f.Data[:4], hb.AxisError)
	f.Data[4] = hb.AxisState
	f.Data[5] = hb.ProcedureResult
	if hb.TrajectoryDone {
		f.Data[6] = 1
	}
	return f
}
