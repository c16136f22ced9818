package value

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 style canonical JSON.
//
// Differences from encoding/json:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping and no escaping of U+2028/U+2029
//  3. Strings are NFC normalized
//  4. Numbers are printed in their shortest exact decimal form
//
// Golden snapshots and stored reports are written with this encoding so
// they diff cleanly across runs.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		writeCanonicalString(buf, string(val))
	case Number:
		s, err := canonicalNumber(val)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type: %T", v)
	}
	return nil
}

// writeCanonicalString escapes only quote, backslash, and C0 controls.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[c>>4])
				buf.WriteByte(hex[c&0xf])
				continue
			}
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}

func canonicalNumber(n Number) (string, error) {
	r, ok := n.Rat()
	if !ok {
		return "", fmt.Errorf("invalid number literal %q", string(n))
	}
	if r.IsInt() {
		return r.Num().String(), nil
	}
	prec, exact := r.FloatPrec()
	if !exact {
		return "", fmt.Errorf("number %q has no finite decimal form", string(n))
	}
	return r.FloatString(prec), nil
}

// Equal reports whether a and b are the same JSON value.
// Numbers compare as exact rationals; strings compare after NFC.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case String:
		bv, ok := b.(String)
		return ok && norm.NFC.String(string(av)) == norm.NFC.String(string(bv))
	case Number:
		bv, ok := b.(Number)
		if !ok {
			return false
		}
		ar, aok := av.Rat()
		br, bok := bv.Rat()
		if !aok || !bok {
			return string(av) == string(bv)
		}
		return ar.Cmp(br) == 0
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ae := range av {
			be, ok := bv[k]
			if !ok || !Equal(ae, be) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two numbers. It returns false when either side is not a
// number.
func Compare(a, b Value) (int, bool) {
	an, ok := a.(Number)
	if !ok {
		return 0, false
	}
	bn, ok := b.(Number)
	if !ok {
		return 0, false
	}
	ar, aok := an.Rat()
	br, bok := bn.Rat()
	if !aok || !bok {
		return 0, false
	}
	return ar.Cmp(br), true
}

// FromRat converts an exact rational into a Number.
// Non-terminating decimals are rounded to 10 places.
func FromRat(r *big.Rat) Number {
	if r.IsInt() {
		return Number(r.Num().String())
	}
	if prec, exact := r.FloatPrec(); exact {
		return Number(r.FloatString(prec))
	}
	return Number(strings.TrimRight(r.FloatString(10), "0"))
}

// Format renders v as compact canonical JSON for diagnostics.
// Values that cannot be encoded are rendered with %v.
func Format(v Value) string {
	data, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
