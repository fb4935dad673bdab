package domain

import "math"

// ValueType is the tag of a TypedValue's active arm.
type ValueType string

const (
	ValueDouble ValueType = "double"
	ValueInt64  ValueType = "int64"
	ValueUint64 ValueType = "uint64"
	ValueBool   ValueType = "bool"
	ValueString ValueType = "string"
	ValueBytes  ValueType = "bytes"
)

// TypedValue is the tagged union the whole kernel moves signal and argument
// values around as (§3).
type TypedValue struct {
	Type   ValueType
	Double float64
	Int64  int64
	Uint64 uint64
	Bool   bool
	Str    string
	Bytes  []byte
}

func Double(v float64) TypedValue { return TypedValue{Type: ValueDouble, Double: v} }
func Int64Value(v int64) TypedValue { return TypedValue{Type: ValueInt64, Int64: v} }
func Uint64Value(v uint64) TypedValue { return TypedValue{Type: ValueUint64, Uint64: v} }
func Bool(v bool) TypedValue { return TypedValue{Type: ValueBool, Bool: v} }
func String(v string) TypedValue { return TypedValue{Type: ValueString, Str: v} }
func Bytes(v []byte) TypedValue { return TypedValue{Type: ValueBytes, Bytes: v} }

// Equal implements the bitwise-for-double, structural-otherwise equality
// rule of §3 and §8: NaN equals NaN iff bit-identical, and +0.0 != -0.0.
// This is what change detection in the State Cache is built on.
func (v TypedValue) Equal(other TypedValue) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValueDouble:
		return math.Float64bits(v.Double) == math.Float64bits(other.Double)
	case ValueInt64:
		return v.Int64 == other.Int64
	case ValueUint64:
		return v.Uint64 == other.Uint64
	case ValueBool:
		return v.Bool == other.Bool
	case ValueString:
		return v.Str == other.Str
	case ValueBytes:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// InRange reports whether v falls within [min, max] for numeric types. Non
// numeric types are always considered in range (ArgSpec ranges only apply
// to numeric ValueTypes, §4.4).
func (v TypedValue) InRange(min, max *TypedValue) bool {
	if min == nil && max == nil {
		return true
	}
	var f float64
	switch v.Type {
	case ValueDouble:
		f = v.Double
	case ValueInt64:
		f = float64(v.Int64)
	case ValueUint64:
		f = float64(v.Uint64)
	default:
		return true
	}
	if min != nil {
		var lo float64
		switch min.Type {
		case ValueDouble:
			lo = min.Double
		case ValueInt64:
			lo = float64(min.Int64)
		case ValueUint64:
			lo = float64(min.Uint64)
		}
		if f < lo {
			return false
		}
	}
	if max != nil {
		var hi float64
		switch max.Type {
		case ValueDouble:
			hi = max.Double
		case ValueInt64:
			hi = float64(max.Int64)
		case ValueUint64:
			hi = float64(max.Uint64)
		}
		if f > hi {
			return false
		}
	}
	return true
}

// GoString returns the name of the active arm's value type (for example
// "double"), not the value itself; used in log and error messages.
func (v TypedValue) GoString() string {
	switch v.Type {
	case ValueDouble:
		return "double"
	case ValueInt64:
		return "int64"
	case ValueUint64:
		return "uint64"
	case ValueBool:
		return "bool"
	case ValueString:
		return "string"
	case ValueBytes:
		return "bytes"
	default:
		return "unknown"
	}
}
