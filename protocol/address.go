package protocol

import "fmt"

// Command identifies the purpose of a frame within a node's command space.
// ODrive's CANSimple protocol reserves the low 5 bits of the arbitration id
// for the command, leaving the high bits for the node id.
type Command uint8

const (
	CmdGetVersion     Command = 0x00
	CmdHeartbeat      Command = 0x01
	CmdRxSDO          Command = 0x04
	CmdTxSDO          Command = 0x05
	CmdSetAxisState   Command = 0x07
	CmdSetInputPos    Command = 0x0C
	CmdSetInputTorque Command = 0x0E
)

const (
	commandBits = 5

	// CommandMask selects the command portion of an arbitration id.
	CommandMask = 1<<commandBits - 1

	// MaxNodeID is the largest node id that still fits a standard 11-bit
	// CAN identifier together with the 5 command bits.
	MaxNodeID = 1<<(11-commandBits) - 1
)

// String names the well-known commands and falls back to hex.
func (c Command) String() string {
	switch c {
	case CmdGetVersion:
		return "Get_Version"
	case CmdHeartbeat:
		return "Heartbeat"
	case CmdRxSDO:
		return "RxSdo"
	case CmdTxSDO:
		return "TxSdo"
	case CmdSetAxisState:
		return "Set_Axis_State"
	case CmdSetInputPos:
		return "Set_Input_Pos"
	case CmdSetInputTorque:
		return "Set_Input_Torque"
	}
	return fmt.Sprintf("0x%02X", uint8(c))
}

// NodeID addresses a single device on the bus.
type NodeID uint8

// Validate reports whether the node id fits the arbitration id layout.
func (n NodeID) Validate() error {
	if n > MaxNodeID {
		return fmt.Errorf("protocol: node id %d out of range (max %d)", n, MaxNodeID)
	}
	return nil
}

// FrameID composes the arbitration id for a node and command.
func FrameID(node NodeID, cmd Command) uint32 {
	return uint32(node)<<commandBits | uint32(cmd)&CommandMask
}

// SplitFrameID is the exact inverse of FrameID.
func SplitFrameID(id uint32) (NodeID, Command) {
	return NodeID(id >> commandBits), Command(id & CommandMask)
}
