package workflow

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the runtime representation held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindDouble
	KindDuration
	KindBool
	KindEnum
	KindClass
	KindOpaque
)

var kindNames = [...]string{
	KindNull:     "null",
	KindString:   "string",
	KindInteger:  "integer",
	KindDouble:   "double",
	KindDuration: "duration",
	KindBool:     "bool",
	KindEnum:     "enum",
	KindClass:    "class",
	KindOpaque:   "opaque",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is the closed tagged union carried in event variables and field
// bindings. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	ref  any
}

// Null returns the null value.
func Null() Value { return Value{} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: KindInteger, i: i} }

// DoubleValue wraps a float.
func DoubleValue(f float64) Value { return Value{kind: KindDouble, f: f} }

// DurationValue wraps a duration. Durations are kept in base units.
func DurationValue(d time.Duration) Value { return Value{kind: KindDuration, i: int64(d)} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// EnumValue wraps an enum option key.
func EnumValue(key string) Value { return Value{kind: KindEnum, s: key} }

// ClassValue wraps a host event class name.
func ClassValue(name string) Value { return Value{kind: KindClass, s: name} }

// OpaqueValue wraps an arbitrary host object (player handle, raw event).
func OpaqueValue(v any) Value {
	if v == nil {
		return Null()
	}
	return Value{kind: KindOpaque, ref: v}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the text of string, enum and class values.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString, KindEnum, KindClass:
		return v.s, true
	}
	return "", false
}

// AsInt returns integer values, and doubles that hold a whole number.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInteger:
		return v.i, true
	case KindDouble:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) && math.Abs(v.f) < math.MaxInt64 {
			return int64(v.f), true
		}
	}
	return 0, false
}

// AsFloat returns numeric values widened to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsDuration() (time.Duration, bool) {
	if v.kind == KindDuration {
		return time.Duration(v.i), true
	}
	return 0, false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.i != 0, true
	}
	return false, false
}

// Opaque returns the wrapped host object.
func (v Value) Opaque() (any, bool) {
	if v.kind == KindOpaque {
		return v.ref, true
	}
	return nil, false
}

// Interface converts the value to a plain Go value. Durations become
// milliseconds so the result is JSON friendly.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindEnum, KindClass:
		return v.s
	case KindInteger:
		return v.i
	case KindDouble:
		return v.f
	case KindDuration:
		return time.Duration(v.i).Milliseconds()
	case KindBool:
		return v.i != 0
	case KindOpaque:
		return v.ref
	}
	return nil
}

// String formats the value for display and chat messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString, KindEnum, KindClass:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindDuration:
		return time.Duration(v.i).String()
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	}
	if s, ok := v.ref.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.ref)
}

// Equal reports whether two values have the same kind and payload.
// Opaque values compare by identity of the wrapped object.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindEnum, KindClass:
		return v.s == o.s
	case KindDouble:
		return v.f == o.f
	case KindOpaque:
		return v.ref == o.ref
	}
	return v.i == o.i
}

// MarshalJSON encodes the value for notifications. Opaque objects are
// rendered through String since host handles are not serializable.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindOpaque {
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Interface())
}
