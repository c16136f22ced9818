package value

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesNumbers(t *testing.T) {
	v, err := Parse([]byte(`{"valorFinal": 1900.00, "big": 12345678901234567890}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Number("1900.00"), obj["valorFinal"])
	assert.Equal(t, Number("12345678901234567890"), obj["big"])
}

func TestParseNull(t *testing.T) {
	v, err := Parse([]byte(`{"errors": null}`))
	require.NoError(t, err)
	assert.Equal(t, Null{}, v.(Object)["errors"])
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"truncated", `{"data":`},
		{"trailing", `{} {}`},
		{"html", `<html>502</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"nil", nil, Null{}},
		{"int", 10, Number("10")},
		{"int64", int64(-3), Number("-3")},
		{"float", 0.95, Number("0.95")},
		{"json number", json.Number("50"), Number("50")},
		{"big int", big.NewInt(200), Number("200")},
		{"string", "boleto", String("boleto")},
		{"bool", true, Bool(true)},
		{"slice", []any{1, "a"}, Array{Number("1"), String("a")}},
		{"map", map[string]any{"x": 1}, Object{"x": Number("1")}},
		{"yaml map", map[any]any{"k": "v"}, Object{"k": String("v")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFromGoUnsupported(t *testing.T) {
	_, err := FromGo(struct{}{})
	assert.Error(t, err)

	_, err = FromGo([]any{make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[0]")
}

func TestToGoRoundTrip(t *testing.T) {
	in := Object{
		"items": Array{Object{"productId": Number("1"), "quantity": Number("10")}},
		"ok":    Bool(true),
		"none":  Null{},
	}

	back, err := FromGo(ToGo(in))
	require.NoError(t, err)
	assert.True(t, Equal(in, back))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "null", Kind(Null{}))
	assert.Equal(t, "string", Kind(String("")))
	assert.Equal(t, "number", Kind(Int(1)))
	assert.Equal(t, "boolean", Kind(Bool(false)))
	assert.Equal(t, "array", Kind(Array{}))
	assert.Equal(t, "object", Kind(Object{}))
}

func TestNumberFloat64(t *testing.T) {
	f, ok := Number("1900.5").Float64()
	require.True(t, ok)
	assert.InDelta(t, 1900.5, f, 1e-9)

	_, ok = Number("abc").Float64()
	assert.False(t, ok)
}
