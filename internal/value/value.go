package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface representing a decoded JSON value.
// Only Null, String, Number, Bool, Array, and Object implement this.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// String represents a JSON string.
type String string

func (String) value() {}

// Number represents a JSON number by its decimal literal.
// The literal is kept so 1900 and 1900.0 stay distinguishable in output
// while comparing equal through Rat.
type Number string

func (Number) value() {}

// Bool represents a JSON boolean.
type Bool bool

func (Bool) value() {}

// Array represents a JSON array.
type Array []Value

func (Array) value() {}

// Object represents a JSON object.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Int creates a Number from an integer.
func Int(n int64) Number {
	return Number(strconv.FormatInt(n, 10))
}

// Float creates a Number from a float using the shortest exact literal.
func Float(f float64) Number {
	return Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// Rat returns the exact rational value of n.
func (n Number) Rat() (*big.Rat, bool) {
	return new(big.Rat).SetString(string(n))
}

// Float64 returns n as a float64 for threshold-style comparisons.
func (n Number) Float64() (float64, bool) {
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for astral runes.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Kind returns the JSON type name of v: null, string, number, boolean,
// array, or object.
func Kind(v Value) string {
	switch v.(type) {
	case Null, nil:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "boolean"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Parse decodes a JSON document into a Value.
// Numbers are decoded with UseNumber so no precision is lost.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return FromGo(raw)
}

// FromGo converts a decoded Go value into a Value.
// Accepts the shapes produced by encoding/json, yaml.v3, and CUE's Decode.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		if _, ok := new(big.Rat).SetString(string(val)); !ok {
			return nil, fmt.Errorf("invalid number literal %q", val)
		}
		return Number(val), nil
	case int:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Number(strconv.FormatUint(val, 10)), nil
	case float32:
		return Float(float64(val)), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite number %v", val)
		}
		return Float(val), nil
	case *big.Int:
		return Number(val.String()), nil
	case *big.Float:
		return Number(val.Text('f', -1)), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			key := fmt.Sprint(k)
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", key, err)
			}
			obj[key] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts v back into plain Go values suitable for encoding/json.
// Numbers become json.Number.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Number:
		return json.Number(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToGo(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToGo(e)
		}
		return out
	default:
		return nil
	}
}
