package legdb

import (
	"fmt"
	"strconv"
)

// Kind identifies which field of a Value is meaningful.
type Kind int

const (
	KindNil Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindBytes
	KindOID
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindOID:
		return "oid"
	case KindMap:
		return "map"
	default:
		return "nil"
	}
}

// Value is a tagged union over the handful of Go types an attribute or an
// index key can hold. Document attributes are ordered [attr]Value pairs;
// Value itself carries no ordering information.
type Value struct {
	kind  Kind
	str   string
	num   int64
	float float64
	flag  bool
	bytes []byte
	m     map[string]Value
}

func Nil() Value                  { return Value{kind: KindNil} }
func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func IntValue(i int64) Value      { return Value{kind: KindInt, num: i} }
func FloatValue(f float64) Value  { return Value{kind: KindFloat, float: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, flag: b} }
func BytesValue(b []byte) Value   { return Value{kind: KindBytes, bytes: append([]byte(nil), b...)} }
func OIDValue(oid uint64) Value   { return Value{kind: KindOID, num: int64(oid)} }
func MapValue(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind reports which accessor is valid for v.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v holds no value.
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.num, true
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.float, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Value) OID() (uint64, bool) {
	if v.kind != KindOID {
		return 0, false
	}
	return uint64(v.num), true
}

func (v Value) Map() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Equal compares two values for the purposes of Has predicates and
// post-filter residual checks. Values of different kinds are never equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.num == other.num
	case KindFloat:
		return v.float == other.float
	case KindBool:
		return v.flag == other.flag
	case KindBytes:
		return string(v.bytes) == string(other.bytes)
	case KindOID:
		return v.num == other.num
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := other.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// CanonicalString renders v as text, the same way an index key template
// renders an attribute: by formatting its value, not by a type-aware
// order-preserving encoding. This mirrors the original engine, whose key
// templates are plain string.format() substitutions, so index ordering
// within a declared index follows string ordering of the rendered value,
// not numeric ordering. Callers that need true numeric range scans should
// keep that in mind when declaring an index template.
func (v Value) CanonicalString() string {
	switch v.kind {
	case KindNil:
		return ""
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindBytes:
		return string(v.bytes)
	case KindOID:
		return strconv.FormatUint(uint64(v.num), 10)
	}
	return ""
}

func (v Value) GoString() string {
	return fmt.Sprintf("Value{%s:%s}", v.kind, v.CanonicalString())
}
