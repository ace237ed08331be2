package protocol

import (
	"encoding/binary"
	"fmt"

	"go.einride.tech/can"
)

// SDO opcodes carried in the first payload byte of an RxSdo frame.
const (
	OpRead  = 0x00
	OpWrite = 0x01
)

// sdoHeaderLen covers opcode(1) + endpoint id(2) + reserved(1).
const sdoHeaderLen = 4

// ReadRequest builds the RxSdo frame asking a node for an endpoint value.
func ReadRequest(node NodeID, endpoint uint16) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdRxSDO)
	f.Length = sdoHeaderLen
	f.Data[0] = OpRead
	binary.LittleEndian.PutUint16(f.Data[1:3], endpoint)
	return f
}

// WriteRequest builds the RxSdo frame writing value to an endpoint. Values
// wider than 4 bytes do not fit a classic CAN frame next to the SDO header
// and are rejected.
func WriteRequest(node NodeID, endpoint uint16, t Type, value interface{}) (can.Frame, error) {
	packed, err := Pack(t, value)
	if err != nil {
		return can.Frame{}, err
	}
	if sdoHeaderLen+len(packed) > 8 {
		return can.Frame{}, fmt.Errorf("protocol: %s value does not fit an SDO frame", t)
	}
	var f can.Frame
	f.ID = FrameID(node, CmdRxSDO)
	f.Length = uint8(sdoHeaderLen + len(packed))
	f.Data[0] = OpWrite
	binary.LittleEndian.PutUint16(f.Data[1:3], endpoint)
	copy(f.Data[sdoHeaderLen:], packed)
	return f, nil
}

// SaveRequest builds the bare write that triggers a function-style endpoint
// such as save_configuration. It carries the SDO header and no value.
func SaveRequest(node NodeID, endpoint uint16) can.Frame {
	var f can.Frame
	f.ID = FrameID(node, CmdRxSDO)
	f.Length = sdoHeaderLen
	f.Data[0] = OpWrite
	binary.LittleEndian.PutUint16(f.Data[1:3], endpoint)
	return f
}

// ParseResponse decodes a TxSdo frame into its endpoint id and typed value.
func ParseResponse(f can.Frame, t Type) (uint16, interface{}, error) {
	if _, cmd := SplitFrameID(f.ID); cmd != CmdTxSDO {
		return 0, nil, fmt.Errorf("protocol: frame 0x%X is not an SDO response", f.ID)
	}
	if int(f.Length) < sdoHeaderLen {
		return 0, nil, fmt.Errorf("protocol: SDO response too short: %d bytes", f.Length)
	}
	endpoint := binary.LittleEndian.Uint16(f.Data[1:3])
	value, err := Unpack(t, f.Data[sdoHeaderLen:f.Length])
	if err != nil {
		return endpoint, nil, err
	}
	return endpoint, value, nil
}
