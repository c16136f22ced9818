package value

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"null", Null{}, "null"},
		{"string", String("hello"), `"hello"`},
		{"int", Int(42), "42"},
		{"trailing zeros", Number("1900.00"), "1900"},
		{"fraction", Number("0.950"), "0.95"},
		{"exponent", Number("1.5e3"), "1500"},
		{"bool", Bool(true), "true"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"html not escaped", String("<a&b>"), `"<a&b>"`},
		{"control escaped", String("a\nb\x01"), `"a\nb\u0001"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := Object{
		"zebra": Int(1),
		"alpha": Object{"b": Int(1), "a": Int(2)},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...) which sorts before U+E000.
	obj := Object{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := String("inva\u0301lido")
	result, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"inv\u00e1lido\"", string(result))
}

func TestMarshalCanonicalInvalidNumber(t *testing.T) {
	_, err := MarshalCanonical(Array{Number("NaN")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[0]")
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int vs decimal", Number("1900"), Number("1900.0"), true},
		{"different numbers", Number("1900"), Number("1901"), false},
		{"number vs string", Number("1"), String("1"), false},
		{"nfc strings", String("Token inv\u00e1lido"), String("Token inva\u0301lido"), true},
		{"nulls", Null{}, Null{}, true},
		{"nil and null", nil, Null{}, true},
		{"arrays", Array{Int(1), Int(2)}, Array{Int(1), Int(2)}, true},
		{"array order", Array{Int(1), Int(2)}, Array{Int(2), Int(1)}, false},
		{"objects", Object{"a": Int(1)}, Object{"a": Number("1.0")}, true},
		{"object missing key", Object{"a": Int(1)}, Object{"b": Int(1)}, false},
		{"bools", Bool(true), Bool(false), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	c, ok := Compare(Number("1899.99"), Int(1900))
	require.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare(String("1"), Int(1))
	assert.False(t, ok)
}

func TestFromRat(t *testing.T) {
	assert.Equal(t, Number("1900"), FromRat(big.NewRat(1900, 1)))
	assert.Equal(t, Number("0.95"), FromRat(big.NewRat(19, 20)))
	assert.Equal(t, Number("0.3333333333"), FromRat(big.NewRat(1, 3)))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `{"token":"abc"}`, Format(Object{"token": String("abc")}))
	assert.Equal(t, "null", Format(nil))
}
