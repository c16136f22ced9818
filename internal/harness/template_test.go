package harness

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTemplates(t *testing.T) {
	t.Setenv("CONFORM_TEST_PASSWORD", "s3cret")
	vars := map[string]string{"email": "a@b.c"}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no templates", "plain", "plain"},
		{"var", "login {{email}}", "login a@b.c"},
		{"spaces inside braces", "{{ email }}", "a@b.c"},
		{"env", "{{env.CONFORM_TEST_PASSWORD}}", "s3cret"},
		{"unset env is empty", "[{{env.CONFORM_TEST_UNSET}}]", "[]"},
		{"repeated", "{{email}}/{{email}}", "a@b.c/a@b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandTemplates(tt.input, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandTemplates_Generated(t *testing.T) {
	got, err := ExpandTemplates("test{{uuid}}@example.com", nil)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^test[0-9a-f-]{36}@example\.com$`), got)

	other, err := ExpandTemplates("test{{uuid}}@example.com", nil)
	require.NoError(t, err)
	assert.NotEqual(t, got, other, "each expansion yields a fresh uuid")

	ms, err := ExpandTemplates("{{unix_ms}}", nil)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{13}$`, ms)
}

func TestExpandTemplates_Errors(t *testing.T) {
	_, err := ExpandTemplates("{{missing}}", nil)
	assert.ErrorContains(t, err, `unresolved template expression: "missing"`)

	_, err = ExpandTemplates("open {{email", map[string]string{"email": "x"})
	assert.ErrorContains(t, err, "unterminated")
}

func TestExpandTemplates_ValueNotReexpanded(t *testing.T) {
	got, err := ExpandTemplates("{{a}}", map[string]string{"a": "{{b}}"})
	require.NoError(t, err)
	assert.Equal(t, "{{b}}", got)
}

func TestExpandGraphQL(t *testing.T) {
	vars := map[string]string{
		"name":  `O"Brien`,
		"path":  `C:\tmp`,
		"field": "users",
		"doc":   `say """hi"""`,
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"quote inside string", `{ u(name: "{{name}}") }`, `{ u(name: "O\"Brien") }`},
		{"backslash inside string", `{ u(dir: "{{path}}") }`, `{ u(dir: "C:\\tmp") }`},
		{"verbatim outside string", `{ {{field}} { id } }`, `{ users { id } }`},
		{"after closed string", `{ u(a: "x", b: {{field}}) }`, `{ u(a: "x", b: users) }`},
		{"escaped quote keeps string open", `{ u(a: "\"{{name}}") }`, `{ u(a: "\"O\"Brien") }`},
		{"block string", `{ u(d: """{{doc}}""") }`, `{ u(d: """say \"""hi\"""""") }`},
		{"quote in comment ignored", "# it's \"\n{ {{field}} }", "# it's \"\n{ users }"},
		{"second placeholder in string", `{ u(a: "{{name}} {{name}}") }`, `{ u(a: "O\"Brien O\"Brien") }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandGraphQL(tt.input, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindVars(t *testing.T) {
	base := map[string]string{"domain": "example.com"}
	out, err := bindVars(base, map[string]string{"email": "user@{{domain}}"})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", out["email"])
	assert.Equal(t, "example.com", out["domain"])
	assert.NotContains(t, base, "email", "base is not modified")

	_, err = bindVars(base, map[string]string{"a": "{{b}}", "b": "x"})
	assert.Error(t, err, "bindings may not refer to each other")
}

func TestExpandScenario(t *testing.T) {
	sc := Scenario{
		Name: "checkout",
		Request: Request{
			Protocol: ProtocolREST,
			Method:   "POST",
			Path:     "/api/{{resource}}",
			Body:     map[string]any{"email": "{{email}}", "items": []any{map[string]any{"productId": 1}}},
			Headers:  map[string]string{"X-User": "{{email}}"},
		},
		Setup:  []Request{{Protocol: ProtocolREST, Method: "GET", Path: "/{{resource}}"}},
		Expect: []Expectation{{Target: "body.email", Op: OpEq, Value: "{{email}}"}, {Target: "status", Op: OpEq, Value: 200}},
	}
	vars := map[string]string{"resource": "checkout", "email": "a@b.c"}

	out, err := expandScenario(sc, vars)
	require.NoError(t, err)
	assert.Equal(t, "/api/checkout", out.Path)
	assert.Equal(t, "/checkout", out.Setup[0].Path)
	assert.Equal(t, "a@b.c", out.Body.(map[string]any)["email"])
	assert.Equal(t, "a@b.c", out.Headers["X-User"])
	assert.Equal(t, "a@b.c", out.Expect[0].Value)
	assert.Equal(t, 200, out.Expect[1].Value)

	// the input is untouched
	assert.Equal(t, "/api/{{resource}}", sc.Path)
	assert.Equal(t, "{{email}}", sc.Expect[0].Value)
}

func TestSession(t *testing.T) {
	s := NewSession()
	assert.False(t, s.Authenticated())

	s.SetToken("tok")
	assert.True(t, s.Authenticated())
	assert.Equal(t, "tok", s.Token())

	s.Clear()
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Token())
}
