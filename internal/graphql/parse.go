package graphql

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Operation is a parsed single-root-field operation.
type Operation struct {
	Type      string // query or mutation
	Field     string
	Args      map[string]any
	Selection []Selection
}

// Selection is one selected field and its sub-selection.
type Selection struct {
	Name   string
	Fields []Selection
}

// ParseOperation parses doc and returns its first operation's root field.
// Variables referenced by arguments are resolved from vars.
func ParseOperation(doc string, vars map[string]any) (*Operation, error) {
	qd, gqlErr := parser.ParseQuery(&ast.Source{Name: "request", Input: doc})
	if gqlErr != nil {
		return nil, fmt.Errorf("parse document: %w", gqlErr)
	}
	if len(qd.Operations) == 0 {
		return nil, fmt.Errorf("document has no operations")
	}

	op := qd.Operations[0]
	fields := rootFields(op.SelectionSet)
	if len(fields) != 1 {
		return nil, fmt.Errorf("operation must select exactly one root field, got %d", len(fields))
	}
	root := fields[0]

	args := make(map[string]any, len(root.Arguments))
	for _, a := range root.Arguments {
		v, err := a.Value.Value(vars)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		args[a.Name] = v
	}

	typ := string(op.Operation)
	if typ == "" {
		typ = string(ast.Query)
	}
	return &Operation{
		Type:      typ,
		Field:     root.Name,
		Args:      args,
		Selection: selections(root.SelectionSet),
	}, nil
}

func rootFields(set ast.SelectionSet) []*ast.Field {
	var out []*ast.Field
	for _, s := range set {
		if f, ok := s.(*ast.Field); ok {
			out = append(out, f)
		}
	}
	return out
}

func selections(set ast.SelectionSet) []Selection {
	fields := rootFields(set)
	if len(fields) == 0 {
		return nil
	}
	out := make([]Selection, len(fields))
	for i, f := range fields {
		out[i] = Selection{Name: f.Name, Fields: selections(f.SelectionSet)}
	}
	return out
}

// Project keeps only the selected members of v, recursing through objects
// and arrays. A nil selection keeps v unchanged.
func Project(v any, sel []Selection) any {
	if len(sel) == 0 {
		return v
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(sel))
		for _, s := range sel {
			if member, ok := val[s.Name]; ok {
				out[s.Name] = Project(member, s.Fields)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Project(e, sel)
		}
		return out
	default:
		return v
	}
}
