// Package graphql builds the GraphQL documents the conformance suite sends
// and parses single-field operations back into arguments.
//
// Only the operations exercised by the suite are modeled: register, login,
// users, and checkout. Documents are built with inline literal arguments so
// a captured request body is self-describing in reports.
package graphql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Request is the POST body sent to a GraphQL endpoint.
type Request struct {
	Query     string         `json:"query" yaml:"query"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Arg is one named argument or input-object field. Ordered slices of Arg
// keep generated documents stable.
type Arg struct {
	Name  string
	Value any
}

// Object is an ordered GraphQL input object literal.
type Object []Arg

// Field renders a single root field selection:
//
//	name(arg: literal, ...) { selection }
func Field(name string, args []Arg, selection string) string {
	var b strings.Builder
	b.WriteString(name)
	if len(args) > 0 {
		b.WriteByte('(')
		for i, a := range args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.Name)
			b.WriteString(": ")
			b.WriteString(Literal(a.Value))
		}
		b.WriteByte(')')
	}
	if selection != "" {
		b.WriteString(" { ")
		b.WriteString(selection)
		b.WriteString(" }")
	}
	return b.String()
}

// Mutation wraps a root field in a mutation operation.
func Mutation(field string) string {
	return "mutation { " + field + " }"
}

// Query wraps a root field in a query operation.
func Query(field string) string {
	return "query { " + field + " }"
}

// Literal renders v as a GraphQL input literal. Maps are rendered with
// sorted keys; use Object for explicit ordering.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case Object:
		parts := make([]string, len(val))
		for i, a := range val {
			parts[i] = a.Name + ": " + Literal(a.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(Object, len(keys))
		for i, k := range keys {
			obj[i] = Arg{Name: k, Value: val[k]}
		}
		return Literal(obj)
	case []Object:
		parts := make([]string, len(val))
		for i, o := range val {
			parts[i] = Literal(o)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return reflectLiteral(reflect.ValueOf(v))
	}
}

// reflectLiteral renders named and sized scalar types by kind.
func reflectLiteral(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.String:
		return quote(rv.String())
	default:
		return quote(fmt.Sprint(rv.Interface()))
	}
}

// quote produces a GraphQL string literal.
func quote(s string) string {
	return `"` + EscapeString(s) + `"`
}

// EscapeString escapes s for use between the quotes of a GraphQL string
// literal. GraphQL string escapes are a superset of JSON's, so the JSON
// encoding is valid as-is.
func EscapeString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	q := strings.TrimRight(buf.String(), "\n")
	return q[1 : len(q)-1]
}
