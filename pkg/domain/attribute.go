package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the variants of AttributeValue.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindDouble
	KindBool
	KindBytes
	KindArray
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// AttributeValue is a closed tagged union over the value types OTLP attributes
// can carry. Values are immutable once constructed; consumers switch on Kind()
// and read through the typed accessors. There is no untyped escape hatch.
type AttributeValue struct {
	kind  ValueKind
	str   string
	i     int64
	f     float64
	b     bool
	bytes []byte
	arr   []AttributeValue
	m     map[string]AttributeValue
}

func StringValue(s string) AttributeValue  { return AttributeValue{kind: KindString, str: s} }
func IntValue(i int64) AttributeValue      { return AttributeValue{kind: KindInt, i: i} }
func DoubleValue(f float64) AttributeValue { return AttributeValue{kind: KindDouble, f: f} }
func BoolValue(b bool) AttributeValue      { return AttributeValue{kind: KindBool, b: b} }

func BytesValue(b []byte) AttributeValue {
	cp := make([]byte, len(b))
	copy(cp, b)
	return AttributeValue{kind: KindBytes, bytes: cp}
}

func ArrayValue(items []AttributeValue) AttributeValue {
	cp := make([]AttributeValue, len(items))
	copy(cp, items)
	return AttributeValue{kind: KindArray, arr: cp}
}

func MapValue(items map[string]AttributeValue) AttributeValue {
	cp := make(map[string]AttributeValue, len(items))
	for k, v := range items {
		cp[k] = v
	}
	return AttributeValue{kind: KindMap, m: cp}
}

// Kind returns the variant tag of the value.
func (v AttributeValue) Kind() ValueKind { return v.kind }

// Str returns the string payload. Valid only when Kind() == KindString.
func (v AttributeValue) Str() string { return v.str }

// Int returns the integer payload. Valid only when Kind() == KindInt.
func (v AttributeValue) Int() int64 { return v.i }

// Double returns the float payload. Valid only when Kind() == KindDouble.
func (v AttributeValue) Double() float64 { return v.f }

// Bool returns the bool payload. Valid only when Kind() == KindBool.
func (v AttributeValue) Bool() bool { return v.b }

// Bytes returns a copy of the byte payload. Valid only when Kind() == KindBytes.
func (v AttributeValue) Bytes() []byte {
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	return cp
}

// Array returns the array payload. Valid only when Kind() == KindArray.
// Callers must not mutate the returned slice.
func (v AttributeValue) Array() []AttributeValue { return v.arr }

// Map returns the map payload. Valid only when Kind() == KindMap.
// Callers must not mutate the returned map.
func (v AttributeValue) Map() map[string]AttributeValue { return v.m }

// AsInt64 coerces the value to an integer. Accepts int, double (truncated),
// and numeric string representations; anything else reports false. This is
// the coercion rule GenAI token counts are read with.
func (v AttributeValue) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindDouble:
		return int64(v.f), true
	case KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.str), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindBool, KindBytes, KindArray, KindMap:
		return 0, false
	}
	return 0, false
}

// AsFloat64 coerces the value to a float. Same acceptance rule as AsInt64.
func (v AttributeValue) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindBool, KindBytes, KindArray, KindMap:
		return 0, false
	}
	return 0, false
}

// Text renders the value as a display string. Bytes render as base64, arrays
// and maps as compact JSON.
func (v AttributeValue) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.bytes)
	case KindArray, KindMap:
		data, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}

// MarshalJSON renders the value as its natural JSON counterpart, so attribute
// maps serialize into readable API and SSE payloads.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return json.Marshal(v.i)
	case KindDouble:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.bytes))
	case KindArray:
		return json.Marshal(v.arr)
	case KindMap:
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("attribute value: unknown kind %d", int(v.kind))
}
