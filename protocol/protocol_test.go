package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameIDRoundTrip(t *testing.T) {
	for node := 0; node <= MaxNodeID; node++ {
		for cmd := 0; cmd <= CommandMask; cmd++ {
			id := FrameID(NodeID(node), Command(cmd))
			gotNode, gotCmd := SplitFrameID(id)
			require.Equal(t, NodeID(node), gotNode)
			require.Equal(t, Command(cmd), gotCmd)
		}
	}
}

func TestFrameIDLayout(t *testing.T) {
	assert.Equal(t, uint32(0x045), FrameID(2, CmdTxSDO))
	assert.Equal(t, uint32(0x007), FrameID(0, CmdSetAxisState))

	node, cmd := SplitFrameID(0x0A4)
	assert.Equal(t, NodeID(5), node)
	assert.Equal(t, CmdRxSDO, cmd)
}

func TestNodeIDValidate(t *testing.T) {
	assert.NoError(t, NodeID(0).Validate())
	assert.NoError(t, NodeID(MaxNodeID).Validate())
	assert.Error(t, NodeID(MaxNodeID+1).Validate())
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		typ    Type
		values []interface{}
	}{
		{TypeBool, []interface{}{true, false}},
		{TypeInt8, []interface{}{int8(0), int8(math.MaxInt8), int8(math.MinInt8), int8(-1)}},
		{TypeUint8, []interface{}{uint8(0), uint8(math.MaxUint8)}},
		{TypeInt16, []interface{}{int16(0), int16(math.MaxInt16), int16(math.MinInt16), int16(-1)}},
		{TypeUint16, []interface{}{uint16(0), uint16(math.MaxUint16)}},
		{TypeInt32, []interface{}{int32(0), int32(math.MaxInt32), int32(math.MinInt32), int32(-1)}},
		{TypeUint32, []interface{}{uint32(0), uint32(math.MaxUint32)}},
		{TypeInt64, []interface{}{int64(0), int64(math.MaxInt64), int64(math.MinInt64), int64(-1)}},
		{TypeUint64, []interface{}{uint64(0), uint64(math.MaxUint64)}},
	}
	for _, tc := range cases {
		for _, v := range tc.values {
			packed, err := Pack(tc.typ, v)
			require.NoError(t, err, "%s %v", tc.typ, v)
			require.Len(t, packed, tc.typ.Size())
			got, err := Unpack(tc.typ, packed)
			require.NoError(t, err)
			assert.Equal(t, v, got, "%s %v", tc.typ, v)
		}
	}
}

func TestPackUnpackFloat(t *testing.T) {
	for _, v := range []float32{0, 1.5, -0.276, math.MaxFloat32} {
		packed, err := Pack(TypeFloat, v)
		require.NoError(t, err)
		require.Len(t, packed, 4)
		got, err := Unpack(TypeFloat, packed)
		require.NoError(t, err)
		assert.InDelta(t, v, got.(float32), 1e-6*math.Abs(float64(v))+1e-12)
	}
}

func TestPackCoercion(t *testing.T) {
	packed, err := Pack(TypeFloat, 20)
	require.NoError(t, err)
	got, err := Unpack(TypeFloat, packed)
	require.NoError(t, err)
	assert.Equal(t, float32(20), got)

	packed, err = Pack(TypeUint32, float64(1000000))
	require.NoError(t, err)
	got, err = Unpack(TypeUint32, packed)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000000), got)

	_, err = Pack(TypeUint32, 1.5)
	assert.Error(t, err)
	_, err = Pack(TypeUint8, -1)
	assert.Error(t, err)
	_, err = Pack(TypeInt8, 300)
	assert.Error(t, err)
}

func TestUnpackErrors(t *testing.T) {
	_, err := Unpack(Type("float64"), make([]byte, 8))
	assert.Error(t, err)
	_, err = Unpack(TypeUint32, []byte{1, 2})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(TypeFloat, 1.0, float32(1.005), 0.01))
	assert.False(t, Equal(TypeFloat, 1.0, float32(1.02), 0.01))
	assert.True(t, Equal(TypeUint32, 7, uint32(7), 0.01))
	assert.False(t, Equal(TypeUint32, 7, uint32(8), 0.01))
	assert.True(t, Equal(TypeBool, true, true, 0))
	assert.False(t, Equal(TypeBool, true, false, 0))
}

func TestEqual64BitExactness(t *testing.T) {
	// Adjacent 64-bit values above 2^53 collapse in float64; they must
	// still compare as distinct.
	big := uint64(1) << 60
	assert.False(t, Equal(TypeUint64, big, big+1, 0))
	assert.True(t, Equal(TypeUint64, big, big, 0))

	sbig := int64(1) << 60
	assert.False(t, Equal(TypeInt64, sbig, sbig+1, 0))
	assert.True(t, Equal(TypeInt64, sbig, sbig, 0))
	assert.False(t, Equal(TypeInt64, -sbig, -sbig-1, 0))

	// Values outside the type's domain never compare equal.
	assert.False(t, Equal(TypeUint64, -1, uint64(math.MaxUint64), 0))
}

func TestSDORequests(t *testing.T) {
	read := ReadRequest(3, 0x01AB)
	assert.Equal(t, FrameID(3, CmdRxSDO), read.ID)
	assert.Equal(t, uint8(4), read.Length)
	assert.Equal(t, uint8(OpRead), read.Data[0])
	assert.Equal(t, uint8(0xAB), read.Data[1])
	assert.Equal(t, uint8(0x01), read.Data[2])

	write, err := WriteRequest(3, 0x01AB, TypeFloat, 0.92)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), write.Length)
	assert.Equal(t, uint8(OpWrite), write.Data[0])

	_, err = WriteRequest(3, 0x01AB, TypeUint64, uint64(1))
	assert.Error(t, err, "64-bit values cannot ride an SDO frame")
}

func TestParseResponse(t *testing.T) {
	write, err := WriteRequest(3, 0x01AB, TypeFloat, 0.92)
	require.NoError(t, err)
	// Flip the command to make the request look like a node's response.
	write.ID = FrameID(3, CmdTxSDO)

	endpoint, value, err := ParseResponse(write, TypeFloat)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x01AB), endpoint)
	assert.InDelta(t, 0.92, float64(value.(float32)), 1e-6)

	short := ReadRequest(3, 0x01AB)
	short.ID = FrameID(3, CmdTxSDO)
	_, _, err = ParseResponse(short, TypeFloat)
	assert.Error(t, err, "response without a value is malformed")

	_, _, err = ParseResponse(ReadRequest(3, 1), TypeFloat)
	assert.Error(t, err, "request frames are not responses")
}

func TestCommandFrames(t *testing.T) {
	state := SetAxisStateFrame(9, 8)
	assert.Equal(t, FrameID(9, CmdSetAxisState), state.ID)
	assert.Equal(t, uint8(4), state.Length)
	assert.Equal(t, uint8(8), state.Data[0])

	pos := SetInputPosFrame(9, 1.5, 0, 0)
	assert.Equal(t, FrameID(9, CmdSetInputPos), pos.ID)
	assert.Equal(t, uint8(8), pos.Length)

	torque := SetInputTorqueFrame(9, -0.25)
	assert.Equal(t, FrameID(9, CmdSetInputTorque), torque.ID)
	assert.Equal(t, uint8(4), torque.Length)
}

func TestVersionRoundTrip(t *testing.T) {
	resp := VersionRequest(4)
	resp.Length = 8
	resp.Data = [8]byte{2, 4, 4, 1, 0, 6, 8, 0}

	v, err := ParseVersion(resp)
	require.NoError(t, err)
	assert.Equal(t, "0.6.8", v.Firmware())
	assert.Equal(t, "4.4.1", v.Hardware())

	_, err = ParseVersion(SetAxisStateFrame(4, 1))
	assert.Error(t, err)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	hb := Heartbeat{AxisError: 0x40, AxisState: 8, ProcedureResult: 0, TrajectoryDone: true}
	f := HeartbeatFrame(6, hb)

	got, err := ParseHeartbeat(f)
	require.NoError(t, err)
	assert.Equal(t, hb, got)

	short := f
	short.Length = 3
	_, err = ParseHeartbeat(short)
	assert.Error(t, err)
}
