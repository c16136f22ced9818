package value

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind tags a path segment.
type SegmentKind int

const (
	// FieldSegment selects an object member by name.
	FieldSegment SegmentKind = iota
	// IndexSegment selects an array element by position.
	IndexSegment
)

// Segment is one step of a Path.
type Segment struct {
	Kind  SegmentKind
	Field string
	Index int
}

// Path is a parsed dot-path such as data.checkout.valorFinal or
// errors[0].message.
type Path []Segment

// ParsePath parses a dot-path. A leading "$" or "$." is accepted so
// JSONPath-style expressions work unchanged. The empty path selects the
// root value.
func ParsePath(s string) (Path, error) {
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return Path{}, nil
	}

	var p Path
	for i, part := range strings.Split(s, ".") {
		if part == "" {
			return nil, fmt.Errorf("path %q: empty segment at position %d", s, i)
		}

		name := part
		var rest string
		if idx := strings.IndexByte(part, '['); idx >= 0 {
			name, rest = part[:idx], part[idx:]
		}
		if name != "" {
			p = append(p, Segment{Kind: FieldSegment, Field: name})
		}

		for rest != "" {
			end := strings.IndexByte(rest, ']')
			if rest[0] != '[' || end < 0 {
				return nil, fmt.Errorf("path %q: malformed index in %q", s, part)
			}
			n, err := strconv.Atoi(rest[1:end])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("path %q: invalid index %q", s, rest[1:end])
			}
			p = append(p, Segment{Kind: IndexSegment, Index: n})
			rest = rest[end+1:]
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for compile-time constant paths.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders p in dot-path form.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch seg.Kind {
		case FieldSegment:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg.Field)
		case IndexSegment:
			fmt.Fprintf(&b, "[%d]", seg.Index)
		}
	}
	return b.String()
}

// Lookup resolves p against v. It never fails: a missing member, an
// out-of-range index, or a segment applied to the wrong kind of value
// reports false.
func (p Path) Lookup(v Value) (Value, bool) {
	cur := v
	for _, seg := range p {
		switch seg.Kind {
		case FieldSegment:
			obj, ok := cur.(Object)
			if !ok {
				return nil, false
			}
			next, ok := obj[seg.Field]
			if !ok {
				return nil, false
			}
			cur = next
		case IndexSegment:
			arr, ok := cur.(Array)
			if !ok || seg.Index >= len(arr) {
				return nil, false
			}
			cur = arr[seg.Index]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}
