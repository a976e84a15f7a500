package records

import (
	"fmt"
	"math"

	"github.com/arloliu/mebo/endian"
)

// Value is one typed field value. It keeps the raw bits of the field so a
// decode and re-pack is byte-exact, including NaN payloads.
type Value struct {
	typ  NumericType
	bits uint64
}

func Uint8Value(v uint8) Value     { return Value{typ: Uint8, bits: uint64(v)} }
func Int8Value(v int8) Value       { return Value{typ: Int8, bits: uint64(uint8(v))} }
func Uint16Value(v uint16) Value   { return Value{typ: Uint16, bits: uint64(v)} }
func Int16Value(v int16) Value     { return Value{typ: Int16, bits: uint64(uint16(v))} }
func Uint32Value(v uint32) Value   { return Value{typ: Uint32, bits: uint64(v)} }
func Int32Value(v int32) Value     { return Value{typ: Int32, bits: uint64(uint32(v))} }
func Float32Value(v float32) Value { return Value{typ: Float32, bits: uint64(math.Float32bits(v))} }
func Float64Value(v float64) Value { return Value{typ: Float64, bits: math.Float64bits(v)} }

// Type returns the numeric type of the value.
func (v Value) Type() NumericType { return v.typ }

// Bits returns the raw little-endian-decoded bits, zero-extended to 64.
func (v Value) Bits() uint64 { return v.bits }

// Float64 converts the value to float64.
func (v Value) Float64() float64 {
	switch v.typ {
	case Uint8, Uint16, Uint32:
		return float64(v.bits)
	case Int8:
		return float64(int8(v.bits))
	case Int16:
		return float64(int16(v.bits))
	case Int32:
		return float64(int32(v.bits))
	case Float32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case Float64:
		return math.Float64frombits(v.bits)
	default:
		return math.NaN()
	}
}

func (v Value) String() string {
	switch v.typ {
	case Uint8, Uint16, Uint32:
		return fmt.Sprintf("%d", v.bits)
	case Int8, Int16, Int32:
		return fmt.Sprintf("%d", int64(v.Float64()))
	case Float32:
		return fmt.Sprintf("%g", math.Float32frombits(uint32(v.bits)))
	case Float64:
		return fmt.Sprintf("%g", math.Float64frombits(v.bits))
	default:
		return "<unknown>"
	}
}

func readBits(order endian.EndianEngine, b []byte, t NumericType) uint64 {
	switch t.Size() {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	case 8:
		return order.Uint64(b)
	default:
		return 0
	}
}

func appendBits(order endian.EndianEngine, dst []byte, t NumericType, bits uint64) []byte {
	switch t.Size() {
	case 1:
		return append(dst, byte(bits))
	case 2:
		return order.AppendUint16(dst, uint16(bits))
	case 4:
		return order.AppendUint32(dst, uint32(bits))
	case 8:
		return order.AppendUint64(dst, bits)
	default:
		return dst
	}
}
