package harness

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/conform/internal/value"
)

const missing = "<missing>"

// Evaluate checks every expectation against resp and returns one result
// per expectation, in order. It is total: a missing path, a non-JSON body,
// or a malformed operand yields a failed result with a diagnostic, never
// an error or a panic.
func Evaluate(resp *Response, exps []Expectation) []ExpectationResult {
	return EvaluateWithSetup(resp, nil, exps)
}

// EvaluateWithSetup is Evaluate with the responses of the scenario's
// setup requests available to "setup[N]." targets and refs.
func EvaluateWithSetup(resp *Response, setup []*Response, exps []Expectation) []ExpectationResult {
	results := make([]ExpectationResult, len(exps))
	for i, e := range exps {
		results[i] = evaluateOne(resp, setup, e)
	}
	return results
}

// Failures returns only the failed results.
func Failures(results []ExpectationResult) []ExpectationResult {
	var out []ExpectationResult
	for _, r := range results {
		if !r.Pass {
			out = append(out, r)
		}
	}
	return out
}

func evaluateOne(resp *Response, setup []*Response, e Expectation) ExpectationResult {
	op := e.Op
	if op == "" {
		op = OpEq
	}
	res := ExpectationResult{Target: e.Target, Op: op}

	actual, present, reason := resolveScoped(resp, setup, e.Target)
	res.Actual = missing
	if present {
		res.Actual = value.Format(actual)
	}

	switch op {
	case OpExists:
		res.Expected = "present"
		res.Pass = present
		if !present {
			res.Message = reason
		}
		return res
	case OpAbsent:
		res.Expected = missing
		res.Pass = !present
		return res
	}

	expected, err := expectedValue(resp, setup, e)
	if err != nil {
		res.Expected = fmt.Sprintf("%v", e.Value)
		res.Message = err.Error()
		return res
	}
	res.Expected = value.Format(expected)

	if !present {
		res.Message = reason
		return res
	}

	res.Pass, res.Message = compare(op, actual, expected)
	return res
}

func expectedValue(resp *Response, setup []*Response, e Expectation) (value.Value, error) {
	if e.Ref != "" {
		v, ok, reason := resolveScoped(resp, setup, e.Ref)
		if !ok {
			return nil, fmt.Errorf("ref %s: %s", e.Ref, reason)
		}
		return v, nil
	}
	if e.Op == OpCheckoutTotal {
		if e.Pricing == nil {
			return nil, fmt.Errorf("checkout_total requires pricing")
		}
		return e.Pricing.Total()
	}
	v, err := value.FromGo(e.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid expected value: %w", err)
	}
	return v, nil
}

// resolveScoped resolves target against resp, or against a setup
// response when target starts with "setup[N].".
func resolveScoped(resp *Response, setup []*Response, target string) (value.Value, bool, string) {
	idx, rest, scoped, err := splitSetupTarget(target)
	if err != nil {
		return nil, false, err.Error()
	}
	if !scoped {
		return resolveTarget(resp, target)
	}
	if idx >= len(setup) || setup[idx] == nil {
		return nil, false, fmt.Sprintf("no response for setup[%d]", idx)
	}
	return resolveTarget(setup[idx], rest)
}

// splitSetupTarget splits "setup[N].rest" into N and rest.
func splitSetupTarget(target string) (int, string, bool, error) {
	inner, ok := strings.CutPrefix(target, targetSetup)
	if !ok {
		return 0, "", false, nil
	}
	end := strings.Index(inner, "].")
	if end <= 0 {
		return 0, "", false, fmt.Errorf("malformed setup target %q", target)
	}
	idx, err := strconv.Atoi(inner[:end])
	if err != nil || idx < 0 {
		return 0, "", false, fmt.Errorf("malformed setup index in %q", target)
	}
	return idx, inner[end+2:], true, nil
}

// resolveTarget returns the value selected by target, whether it is
// present, and a reason when it is not.
func resolveTarget(resp *Response, target string) (value.Value, bool, string) {
	if resp == nil {
		return nil, false, "no response"
	}

	switch {
	case target == TargetStatus:
		return value.Int(int64(resp.Status)), true, ""

	case target == TargetError:
		return value.String(ErrorKind(resp.Err)), true, ""

	case target == TargetError+".message":
		if resp.Err == nil {
			return nil, false, "response carries no error"
		}
		return value.String(errorMessage(resp.Err)), true, ""

	case strings.HasPrefix(target, targetHeader):
		name := target[len(targetHeader):]
		vals := resp.Header.Values(name)
		if len(vals) == 0 {
			return nil, false, fmt.Sprintf("header %s not set", name)
		}
		return value.String(strings.Join(vals, ", ")), true, ""

	case target == TargetBody || strings.HasPrefix(target, targetBody):
		if resp.Body == nil {
			return nil, false, fmt.Sprintf("response body is not JSON: %v", resp.parseErr)
		}
		expr := strings.TrimPrefix(strings.TrimPrefix(target, TargetBody), ".")
		path, err := value.ParsePath(expr)
		if err != nil {
			return nil, false, err.Error()
		}
		v, ok := path.Lookup(resp.Body)
		if !ok {
			return nil, false, fmt.Sprintf("path %s not found in response", path)
		}
		return v, true, ""
	}
	return nil, false, fmt.Sprintf("unknown target %q", target)
}

func compare(op string, actual, expected value.Value) (bool, string) {
	switch op {
	case OpEq, OpCheckoutTotal:
		if value.Equal(actual, expected) {
			return true, ""
		}
		return false, diff(actual, expected)

	case OpNe:
		return !value.Equal(actual, expected), ""

	case OpGt, OpGte, OpLt, OpLte:
		c, ok := value.Compare(actual, expected)
		if !ok {
			return false, fmt.Sprintf("%s requires numbers, got %s and %s", op, value.Kind(actual), value.Kind(expected))
		}
		switch op {
		case OpGt:
			return c > 0, ""
		case OpGte:
			return c >= 0, ""
		case OpLt:
			return c < 0, ""
		default:
			return c <= 0, ""
		}

	case OpContains:
		return contains(actual, expected)

	case OpMatches:
		pattern, ok := expected.(value.String)
		if !ok {
			return false, "matches requires a string pattern"
		}
		re, err := regexp.Compile(string(pattern))
		if err != nil {
			return false, fmt.Sprintf("invalid pattern: %v", err)
		}
		s, ok := actual.(value.String)
		if !ok {
			return false, fmt.Sprintf("matches requires a string, got %s", value.Kind(actual))
		}
		return re.MatchString(string(s)), ""

	case OpType:
		want, ok := expected.(value.String)
		if !ok {
			return false, "type requires a type name"
		}
		return value.Kind(actual) == string(want), ""

	case OpLenGt, OpLenEq:
		n, ok := length(actual)
		if !ok {
			return false, fmt.Sprintf("%s requires an array, object, or string, got %s", op, value.Kind(actual))
		}
		c, ok := value.Compare(value.Int(int64(n)), expected)
		if !ok {
			return false, fmt.Sprintf("%s requires a numeric operand", op)
		}
		if op == OpLenGt {
			return c > 0, fmt.Sprintf("length is %d", n)
		}
		return c == 0, fmt.Sprintf("length is %d", n)
	}
	return false, fmt.Sprintf("unknown op %q", op)
}

func contains(actual, expected value.Value) (bool, string) {
	switch a := actual.(type) {
	case value.String:
		e, ok := expected.(value.String)
		if !ok {
			return false, "contains on a string requires a string operand"
		}
		return strings.Contains(string(a), string(e)), ""
	case value.Array:
		for _, elem := range a {
			if value.Equal(elem, expected) {
				return true, ""
			}
		}
		return false, ""
	case value.Object:
		e, ok := expected.(value.String)
		if !ok {
			return false, "contains on an object requires a key name"
		}
		_, found := a[string(e)]
		return found, ""
	}
	return false, fmt.Sprintf("contains is not defined for %s", value.Kind(actual))
}

func length(v value.Value) (int, bool) {
	switch x := v.(type) {
	case value.Array:
		return len(x), true
	case value.Object:
		return len(x), true
	case value.String:
		return len([]rune(string(x))), true
	}
	return 0, false
}

// diff explains a composite mismatch; scalars need no more than the
// expected and actual values already recorded.
func diff(actual, expected value.Value) string {
	switch expected.(type) {
	case value.Array, value.Object:
		return "(-expected +actual)\n" + cmp.Diff(value.ToGo(expected), value.ToGo(actual))
	}
	return ""
}

func errorMessage(err error) string {
	switch e := err.(type) {
	case *AuthError:
		return e.Message
	case *NotFoundError:
		return e.Message
	case *ServerError:
		return e.Message
	}
	return err.Error()
}
