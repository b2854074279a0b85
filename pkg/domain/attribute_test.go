package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAttributeValueKinds(t *testing.T) {
	assert.Equal(t, KindString, StringValue("x").Kind())
	assert.Equal(t, KindInt, IntValue(1).Kind())
	assert.Equal(t, KindDouble, DoubleValue(1.5).Kind())
	assert.Equal(t, KindBool, BoolValue(true).Kind())
	assert.Equal(t, KindBytes, BytesValue([]byte{1}).Kind())
	assert.Equal(t, KindArray, ArrayValue(nil).Kind())
	assert.Equal(t, KindMap, MapValue(nil).Kind())
}

func TestAsInt64Coercion(t *testing.T) {
	tests := []struct {
		name string
		val  AttributeValue
		want int64
		ok   bool
	}{
		{"int", IntValue(42), 42, true},
		{"double truncates", DoubleValue(3.9), 3, true},
		{"numeric string", StringValue("100"), 100, true},
		{"padded numeric string", StringValue(" 7 "), 7, true},
		{"non-numeric string", StringValue("many"), 0, false},
		{"bool", BoolValue(true), 0, false},
		{"array", ArrayValue([]AttributeValue{IntValue(1)}), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.val.AsInt64()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsFloat64Coercion(t *testing.T) {
	f, ok := StringValue("0.03").AsFloat64()
	require.True(t, ok)
	assert.InDelta(t, 0.03, f, 1e-12)

	f, ok = IntValue(5).AsFloat64()
	require.True(t, ok)
	assert.Equal(t, 5.0, f)

	_, ok = StringValue("free").AsFloat64()
	assert.False(t, ok)
}

func TestBytesValueIsCopied(t *testing.T) {
	src := []byte{1, 2, 3}
	v := BytesValue(src)
	src[0] = 99
	assert.Equal(t, []byte{1, 2, 3}, v.Bytes())

	// the accessor hands out a copy too
	got := v.Bytes()
	got[0] = 77
	assert.Equal(t, []byte{1, 2, 3}, v.Bytes())
}

func TestAttributeValueJSON(t *testing.T) {
	v := MapValue(map[string]AttributeValue{
		"model":  StringValue("gpt-4o"),
		"tokens": IntValue(120),
		"nested": ArrayValue([]AttributeValue{BoolValue(true), DoubleValue(1.5)}),
	})
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "gpt-4o", decoded["model"])
	assert.Equal(t, float64(120), decoded["tokens"])
	assert.Equal(t, []any{true, 1.5}, decoded["nested"])
}

func TestTextRendering(t *testing.T) {
	assert.Equal(t, "hello", StringValue("hello").Text())
	assert.Equal(t, "42", IntValue(42).Text())
	assert.Equal(t, "true", BoolValue(true).Text())
	assert.Equal(t, "AQID", BytesValue([]byte{1, 2, 3}).Text())
}

func TestIntCoercionRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Int64().Draw(t, "n")
		got, ok := IntValue(n).AsInt64()
		assert.True(t, ok)
		assert.Equal(t, n, got)
	})
}
