package domain

import "fmt"

// ParameterType is the value type of a runtime configuration parameter (§4.6).
type ParameterType string

const (
	ParamDouble ParameterType = "DOUBLE"
	ParamInt64  ParameterType = "INT64"
	ParamBool   ParameterType = "BOOL"
	ParamString ParameterType = "STRING"
)

// ParameterDefinition describes one runtime-configurable parameter (§3, §4.6).
type ParameterDefinition struct {
	Name          string
	Type          ParameterType
	Value         TypedValue
	Min           *TypedValue
	Max           *TypedValue
	AllowedValues []TypedValue // for STRING / INT64
}

// Clone returns an owned copy for read paths that must not alias mutable state.
func (p ParameterDefinition) Clone() ParameterDefinition {
	out := p
	if p.Min != nil {
		m := *p.Min
		out.Min = &m
	}
	if p.Max != nil {
		m := *p.Max
		out.Max = &m
	}
	out.AllowedValues = append([]TypedValue(nil), p.AllowedValues...)
	return out
}

// ValueString renders the current value for ParameterChange events (§3).
func (p ParameterDefinition) ValueString() string {
	return valueToString(p.Value)
}

func valueToString(v TypedValue) string {
	switch v.Type {
	case ValueDouble:
		return fmt.Sprintf("%g", v.Double)
	case ValueInt64:
		return fmt.Sprintf("%d", v.Int64)
	case ValueUint64:
		return fmt.Sprintf("%d", v.Uint64)
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValueString:
		return v.Str
	case ValueBytes:
		return fmt.Sprintf("%x", v.Bytes)
	default:
		return ""
	}
}

// IsAllowed checks v against the definition's declared range/allow-list.
func (p ParameterDefinition) IsAllowed(v TypedValue) bool {
	if v.Type != typeToValueType(p.Type) {
		return false
	}
	if p.Min != nil || p.Max != nil {
		if !v.InRange(p.Min, p.Max) {
			return false
		}
	}
	if len(p.AllowedValues) > 0 {
		for _, allowed := range p.AllowedValues {
			if allowed.Equal(v) {
				return true
			}
		}
		return false
	}
	return true
}

func typeToValueType(t ParameterType) ValueType {
	switch t {
	case ParamDouble:
		return ValueDouble
	case ParamInt64:
		return ValueInt64
	case ParamBool:
		return ValueBool
	case ParamString:
		return ValueString
	default:
		return ""
	}
}
