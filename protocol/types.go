package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type names a semantic value type from the endpoint registry. The names
// match the registry file contents; "float" is a 32-bit IEEE float on the
// wire.
type Type string

const (
	TypeBool   Type = "bool"
	TypeInt8   Type = "int8"
	TypeUint8  Type = "uint8"
	TypeInt16  Type = "int16"
	TypeUint16 Type = "uint16"
	TypeInt32  Type = "int32"
	TypeUint32 Type = "uint32"
	TypeInt64  Type = "int64"
	TypeUint64 Type = "uint64"
	TypeFloat  Type = "float"
)

var typeWidths = map[Type]int{
	TypeBool:   1,
	TypeInt8:   1,
	TypeUint8:  1,
	TypeInt16:  2,
	TypeUint16: 2,
	TypeInt32:  4,
	TypeUint32: 4,
	TypeInt64:  8,
	TypeUint64: 8,
	TypeFloat:  4,
}

// Valid reports whether the type name is known.
func (t Type) Valid() bool {
	_, ok := typeWidths[t]
	return ok
}

// Size returns the wire width in bytes, or 0 for unknown types.
func (t Type) Size() int {
	return typeWidths[t]
}

// Pack encodes value into its little-endian wire form. Integer values are
// range checked; floats are accepted for integer types only when integral,
// and integers are accepted for the float type.
func Pack(t Type, value interface{}) ([]byte, error) {
	switch t {
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("protocol: pack %s: %T is not a bool", t, value)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		v, err := coerceInt(t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf[:t.Size()], nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		v, err := coerceUint(t, value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf[:t.Size()], nil
	case TypeFloat:
		v, err := coerceFloat(value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		return buf, nil
	default:
		return nil, fmt.Errorf("protocol: pack: unknown type %q", t)
	}
}

// Unpack decodes a little-endian wire value. It fails when the buffer is
// shorter than the declared width.
func Unpack(t Type, data []byte) (interface{}, error) {
	width := t.Size()
	if width == 0 {
		return nil, fmt.Errorf("protocol: unpack: unknown type %q", t)
	}
	if len(data) < width {
		return nil, fmt.Errorf("protocol: unpack %s: need %d bytes, got %d", t, width, len(data))
	}
	switch t {
	case TypeBool:
		return data[0] != 0, nil
	case TypeInt8:
		return int8(data[0]), nil
	case TypeUint8:
		return data[0], nil
	case TypeInt16:
		return int16(binary.LittleEndian.Uint16(data)), nil
	case TypeUint16:
		return binary.LittleEndian.Uint16(data), nil
	case TypeInt32:
		return int32(binary.LittleEndian.Uint32(data)), nil
	case TypeUint32:
		return binary.LittleEndian.Uint32(data), nil
	case TypeInt64:
		return int64(binary.LittleEndian.Uint64(data)), nil
	case TypeUint64:
		return binary.LittleEndian.Uint64(data), nil
	case TypeFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	default:
		return nil, fmt.Errorf("protocol: unpack: unknown type %q", t)
	}
}

// Equal compares two values of the given type. Floats compare within the
// absolute tolerance, every other type compares exactly. Values of mixed
// numeric Go types (a profile int against a wire float32) compare by value.
func Equal(t Type, a, b interface{}, tolerance float64) bool {
	switch t {
	case TypeBool:
		av, aok := toBool(a)
		bv, bok := toBool(b)
		return aok && bok && av == bv
	case TypeFloat:
		av, aok := toFloat(a)
		bv, bok := toFloat(b)
		return aok && bok && math.Abs(av-bv) <= tolerance
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		// Compare in the int64 domain; a float64 detour would collapse
		// distinct 64-bit values above 2^53.
		av, aerr := coerceInt(t, a)
		bv, berr := coerceInt(t, b)
		return aerr == nil && berr == nil && av == bv
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		av, aerr := coerceUint(t, a)
		bv, berr := coerceUint(t, b)
		return aerr == nil && berr == nil && av == bv
	default:
		return false
	}
}

func coerceInt(t Type, value interface{}) (int64, error) {
	var v int64
	switch n := value.(type) {
	case int:
		v = int64(n)
	case int8:
		v = int64(n)
	case int16:
		v = int64(n)
	case int32:
		v = int64(n)
	case int64:
		v = n
	case uint8:
		v = int64(n)
	case uint16:
		v = int64(n)
	case uint32:
		v = int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("protocol: pack %s: %d overflows", t, n)
		}
		v = int64(n)
	case float32:
		return coerceIntFromFloat(t, float64(n))
	case float64:
		return coerceIntFromFloat(t, n)
	default:
		return 0, fmt.Errorf("protocol: pack %s: unsupported value type %T", t, value)
	}
	return v, checkIntRange(t, v)
}

func coerceIntFromFloat(t Type, f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("protocol: pack %s: %v is not integral", t, f)
	}
	v := int64(f)
	return v, checkIntRange(t, v)
}

func checkIntRange(t Type, v int64) error {
	var min, max int64
	switch t {
	case TypeInt8:
		min, max = math.MinInt8, math.MaxInt8
	case TypeInt16:
		min, max = math.MinInt16, math.MaxInt16
	case TypeInt32:
		min, max = math.MinInt32, math.MaxInt32
	case TypeInt64:
		return nil
	}
	if v < min || v > max {
		return fmt.Errorf("protocol: pack %s: %d out of range", t, v)
	}
	return nil
}

func coerceUint(t Type, value interface{}) (uint64, error) {
	var v uint64
	switch n := value.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("protocol: pack %s: negative value %d", t, n)
		}
		v = uint64(n)
	case int8, int16, int32, int64:
		s, _ := coerceInt(TypeInt64, n)
		if s < 0 {
			return 0, fmt.Errorf("protocol: pack %s: negative value %d", t, s)
		}
		v = uint64(s)
	case uint8:
		v = uint64(n)
	case uint16:
		v = uint64(n)
	case uint32:
		v = uint64(n)
	case uint64:
		v = n
	case float32:
		return coerceUintFromFloat(t, float64(n))
	case float64:
		return coerceUintFromFloat(t, n)
	default:
		return 0, fmt.Errorf("protocol: pack %s: unsupported value type %T", t, value)
	}
	return v, checkUintRange(t, v)
}

func coerceUintFromFloat(t Type, f float64) (uint64, error) {
	if f < 0 {
		return 0, fmt.Errorf("protocol: pack %s: negative value %v", t, f)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("protocol: pack %s: %v is not integral", t, f)
	}
	v := uint64(f)
	return v, checkUintRange(t, v)
}

func checkUintRange(t Type, v uint64) error {
	var max uint64
	switch t {
	case TypeUint8:
		max = math.MaxUint8
	case TypeUint16:
		max = math.MaxUint16
	case TypeUint32:
		max = math.MaxUint32
	case TypeUint64:
		return nil
	}
	if v > max {
		return fmt.Errorf("protocol: pack %s: %d out of range", t, v)
	}
	return nil
}

func coerceFloat(value interface{}) (float64, error) {
	f, ok := toFloat(value)
	if !ok {
		return 0, fmt.Errorf("protocol: pack float: unsupported value type %T", value)
	}
	return f, nil
}

// Float converts any decoded scalar to float64, for callers that only
// care about magnitude (gauges, zero checks). Bools map to 0 and 1.
func Float(value interface{}) (float64, bool) {
	return toFloat(value)
}

func toFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toBool(value interface{}) (bool, bool) {
	switch n := value.(type) {
	case bool:
		return n, true
	default:
		f, ok := toFloat(value)
		return f != 0, ok
	}
}
