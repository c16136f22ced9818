package harness

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/conform/internal/graphql"
)

// ExpandTemplates replaces placeholders in s:
//   - {{uuid}} with a fresh random UUID
//   - {{unix_ms}} with the current Unix time in milliseconds
//   - {{env.NAME}} from environment variables
//   - {{name}} from vars
func ExpandTemplates(s string, vars map[string]string) (string, error) {
	return expand(s, vars, nil)
}

// ExpandGraphQL is ExpandTemplates for a GraphQL document. A value
// substituted inside a string literal is escaped for that literal, so
// quotes and backslashes in variables cannot break or alter the document.
// Substitutions outside string literals are inserted verbatim.
func ExpandGraphQL(doc string, vars map[string]string) (string, error) {
	return expand(doc, vars, escapeGraphQL)
}

// expand substitutes every placeholder in s. escape, if set, rewrites each
// resolved value given the already-expanded text before it.
func expand(s string, vars map[string]string, escape func(prefix, val string) string) (string, error) {
	result := s
	offset := 0
	for {
		start := strings.Index(result[offset:], "{{")
		if start == -1 {
			break
		}
		start += offset
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("unterminated template expression at position %d", start)
		}
		end += start + 2

		expr := strings.TrimSpace(result[start+2 : end-2])
		val, err := resolveExpr(expr, vars)
		if err != nil {
			return "", err
		}
		if escape != nil {
			val = escape(result[:start], val)
		}

		result = result[:start] + val + result[end:]
		offset = start + len(val)
	}
	return result, nil
}

// GraphQL lexical states at a position in a document.
const (
	gqlCode = iota
	gqlString
	gqlBlockString
)

// graphQLState scans doc and reports the lexical state at its end.
func graphQLState(doc string) int {
	state := gqlCode
	for i := 0; i < len(doc); i++ {
		switch state {
		case gqlCode:
			switch {
			case strings.HasPrefix(doc[i:], `"""`):
				state = gqlBlockString
				i += 2
			case doc[i] == '"':
				state = gqlString
			case doc[i] == '#':
				for i < len(doc) && doc[i] != '\n' {
					i++
				}
			}
		case gqlString:
			switch doc[i] {
			case '\\':
				i++
			case '"', '\n':
				state = gqlCode
			}
		case gqlBlockString:
			switch {
			case strings.HasPrefix(doc[i:], `\"""`):
				i += 3
			case strings.HasPrefix(doc[i:], `"""`):
				state = gqlCode
				i += 2
			}
		}
	}
	return state
}

func escapeGraphQL(prefix, val string) string {
	switch graphQLState(prefix) {
	case gqlString:
		return graphql.EscapeString(val)
	case gqlBlockString:
		return strings.ReplaceAll(val, `"""`, `\"""`)
	default:
		return val
	}
}

func resolveExpr(expr string, vars map[string]string) (string, error) {
	switch expr {
	case "uuid":
		return uuid.NewString(), nil
	case "unix_ms":
		return strconv.FormatInt(time.Now().UnixMilli(), 10), nil
	}

	if strings.HasPrefix(expr, "env.") {
		return os.Getenv(expr[len("env."):]), nil
	}

	if val, ok := vars[expr]; ok {
		return val, nil
	}
	return "", fmt.Errorf("unresolved template expression: %q", expr)
}

// expandValue expands templates in every string inside v.
func expandValue(v any, vars map[string]string) (any, error) {
	switch val := v.(type) {
	case string:
		return ExpandTemplates(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			x, err := expandValue(e, vars)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = x
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			x, err := expandValue(e, vars)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = x
		}
		return out, nil
	default:
		return v, nil
	}
}

// bindVars expands each binding against base and returns base plus the
// new bindings. Bindings may not refer to each other.
func bindVars(base, bindings map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(base)+len(bindings))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range bindings {
		x, err := ExpandTemplates(v, base)
		if err != nil {
			return nil, fmt.Errorf("var %s: %w", k, err)
		}
		out[k] = x
	}
	return out, nil
}

// expandRequest returns a copy of r with templates expanded.
func expandRequest(r Request, vars map[string]string) (Request, error) {
	var err error
	out := r

	if out.Path, err = ExpandTemplates(r.Path, vars); err != nil {
		return r, fmt.Errorf("path: %w", err)
	}
	if out.Query, err = ExpandGraphQL(r.Query, vars); err != nil {
		return r, fmt.Errorf("query: %w", err)
	}
	if r.Body != nil {
		if out.Body, err = expandValue(r.Body, vars); err != nil {
			return r, fmt.Errorf("body: %w", err)
		}
	}
	if r.Variables != nil {
		x, err := expandValue(map[string]any(r.Variables), vars)
		if err != nil {
			return r, fmt.Errorf("variables: %w", err)
		}
		out.Variables = x.(map[string]any)
	}
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			if out.Headers[k], err = ExpandTemplates(v, vars); err != nil {
				return r, fmt.Errorf("header %s: %w", k, err)
			}
		}
	}
	return out, nil
}

// expandScenario returns a copy of sc with request, setup, and expected
// values expanded.
func expandScenario(sc Scenario, vars map[string]string) (Scenario, error) {
	out := sc
	var err error

	if out.Request, err = expandRequest(sc.Request, vars); err != nil {
		return sc, err
	}

	out.Setup = make([]Request, len(sc.Setup))
	for i, req := range sc.Setup {
		if out.Setup[i], err = expandRequest(req, vars); err != nil {
			return sc, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	out.Expect = make([]Expectation, len(sc.Expect))
	for i, exp := range sc.Expect {
		out.Expect[i] = exp
		if exp.Value != nil {
			if out.Expect[i].Value, err = expandValue(exp.Value, vars); err != nil {
				return sc, fmt.Errorf("expect[%d]: %w", i, err)
			}
		}
	}
	return out, nil
}
