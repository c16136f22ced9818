package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/conform/internal/value"
)

// Protocols understood by the runner.
const (
	ProtocolGraphQL = "graphql"
	ProtocolREST    = "rest"
)

// Auth modes for a request.
const (
	AuthNone     = "none"
	AuthSession  = "session"
	AuthTampered = "tampered" // session token with "+1" appended
)

// DefaultGraphQLPath is used when a GraphQL request omits its path.
const DefaultGraphQLPath = "/graphql"

// Suite groups scenarios that share a session and before-all setup.
type Suite struct {
	// Name identifies the suite in reports and run history.
	Name string `yaml:"name" json:"name"`

	// Description explains what the suite covers.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Vars are expanded once per suite run and visible to every scenario.
	// Values may use {{uuid}}, {{unix_ms}}, and {{env.NAME}}.
	Vars map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`

	// Setup requests run once before any scenario (before-all).
	Setup []Request `yaml:"setup,omitempty" json:"setup,omitempty"`

	// Login is sent before every scenario whose auth mode needs a token.
	Login *Login `yaml:"login,omitempty" json:"login,omitempty"`

	// Scenarios run sequentially in declaration order.
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`
}

// Login describes how a session obtains its bearer token.
type Login struct {
	Protocol  string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	Email     string `yaml:"email" json:"email"`
	Password  string `yaml:"password" json:"password"`
	TokenPath string `yaml:"token_path,omitempty" json:"token_path,omitempty"`
}

// Request is one HTTP exchange with the server under test.
type Request struct {
	Protocol  string            `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Method    string            `yaml:"method,omitempty" json:"method,omitempty"`
	Path      string            `yaml:"path,omitempty" json:"path,omitempty"`
	Query     string            `yaml:"query,omitempty" json:"query,omitempty"`
	Variables map[string]any    `yaml:"variables,omitempty" json:"variables,omitempty"`
	Body      any               `yaml:"body,omitempty" json:"body,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Auth      string            `yaml:"auth,omitempty" json:"auth,omitempty"`
}

// Scenario is one declarative API exercise with expected outcomes.
type Scenario struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Request `yaml:",inline"`

	// Let binds scenario-local template variables, expanded per run.
	Let map[string]string `yaml:"let,omitempty" json:"let,omitempty"`

	// Setup requests run before the scenario's own request.
	Setup []Request `yaml:"setup,omitempty" json:"setup,omitempty"`

	// Expect is evaluated in order after the full response is read.
	Expect []Expectation `yaml:"expect" json:"expect"`
}

// NeedsToken reports whether the request must carry a bearer token.
func (r Request) NeedsToken() bool {
	return r.Auth == AuthSession || r.Auth == AuthTampered
}

// NeedsToken reports whether the scenario's request or any of its setup
// requests must carry a bearer token.
func (sc Scenario) NeedsToken() bool {
	if sc.Request.NeedsToken() {
		return true
	}
	for _, r := range sc.Setup {
		if r.NeedsToken() {
			return true
		}
	}
	return false
}

// Expectation is one predicate over a response.
type Expectation struct {
	// Target selects what to inspect: "status", "header.<Name>", "error",
	// "body", or "body.<path>".
	Target string `yaml:"target" json:"target"`

	// Op is the comparator. Defaults to eq.
	Op string `yaml:"op,omitempty" json:"op,omitempty"`

	// Value is the expected operand. Unused by exists, absent, and
	// checkout_total.
	Value any `yaml:"value,omitempty" json:"value,omitempty"`

	// HasValue is set when Value was written explicitly, so "value: null"
	// expects a null instead of counting as missing.
	HasValue bool `yaml:"-" json:"-"`

	// Ref names another target whose value is the expected operand,
	// e.g. "setup[0].body.data.users". It replaces Value.
	Ref string `yaml:"ref,omitempty" json:"ref,omitempty"`

	// Pricing parameterizes checkout_total.
	Pricing *Pricing `yaml:"pricing,omitempty" json:"pricing,omitempty"`
}

// Expectation operators.
const (
	OpEq            = "eq"
	OpNe            = "ne"
	OpExists        = "exists"
	OpAbsent        = "absent"
	OpGt            = "gt"
	OpGte           = "gte"
	OpLt            = "lt"
	OpLte           = "lte"
	OpContains      = "contains"
	OpMatches       = "matches"
	OpType          = "type"
	OpLenGt         = "len_gt"
	OpLenEq         = "len_eq"
	OpCheckoutTotal = "checkout_total"
)

// Expectation targets.
const (
	TargetStatus = "status"
	TargetError  = "error"
	TargetBody   = "body"
	targetHeader = "header."
	targetBody   = "body."
	targetSetup  = "setup["
)

var knownOps = map[string]bool{
	OpEq: true, OpNe: true, OpExists: true, OpAbsent: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpContains: true, OpMatches: true, OpType: true,
	OpLenGt: true, OpLenEq: true, OpCheckoutTotal: true,
}

// LoadSuite reads a suite from a .yaml, .yml, .json, or .cue file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields, or fails validation.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var suite *Suite
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		suite, err = decodeYAML(data)
	case ".json":
		suite, err = decodeJSON(data)
	case ".cue":
		suite, err = decodeCUE(path, data)
	default:
		return nil, fmt.Errorf("unsupported suite file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if suite.Name == "" {
		suite.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	suite.ApplyDefaults()

	if err := ValidateSuite(suite); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return suite, nil
}

// IsSuiteFile reports whether path has a suite file extension.
func IsSuiteFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".cue":
		return true
	}
	return false
}

func decodeYAML(data []byte) (*Suite, error) {
	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	var keys expectKeys
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	keys.mark(&suite)
	return &suite, nil
}

func decodeJSON(data []byte) (*Suite, error) {
	var suite Suite
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	var keys expectKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	keys.mark(&suite)
	return &suite, nil
}

// expectKeys mirrors a suite file down to the raw keys of each
// expectation. Decoding into Expectation alone cannot tell an explicit
// null value from an absent one.
type expectKeys struct {
	Scenarios []struct {
		Expect []map[string]any `yaml:"expect" json:"expect"`
	} `yaml:"scenarios" json:"scenarios"`
}

// mark sets HasValue on every expectation of s written with a value key.
func (k expectKeys) mark(s *Suite) {
	for i, sc := range k.Scenarios {
		if i >= len(s.Scenarios) {
			return
		}
		exps := s.Scenarios[i].Expect
		for j, raw := range sc.Expect {
			if j >= len(exps) {
				break
			}
			_, exps[j].HasValue = raw["value"]
		}
	}
}

// ApplyDefaults fills protocol, method, path, auth, and op defaults.
func (s *Suite) ApplyDefaults() {
	if s.Login != nil {
		s.Login.applyDefaults()
	}
	for i := range s.Setup {
		s.Setup[i].applyDefaults()
	}
	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		sc.Request.applyDefaults()
		for j := range sc.Setup {
			sc.Setup[j].applyDefaults()
		}
		for j := range sc.Expect {
			if sc.Expect[j].Op == "" {
				sc.Expect[j].Op = OpEq
			}
		}
	}
}

func (l *Login) applyDefaults() {
	if l.Protocol == "" {
		l.Protocol = ProtocolGraphQL
	}
	if l.Path == "" && l.Protocol == ProtocolGraphQL {
		l.Path = DefaultGraphQLPath
	}
	if l.TokenPath == "" {
		if l.Protocol == ProtocolGraphQL {
			l.TokenPath = "data.login.token"
		} else {
			l.TokenPath = "token"
		}
	}
}

func (r *Request) applyDefaults() {
	if r.Protocol == "" {
		r.Protocol = ProtocolGraphQL
	}
	if r.Auth == "" {
		r.Auth = AuthNone
	}
	if r.Protocol == ProtocolGraphQL {
		if r.Path == "" {
			r.Path = DefaultGraphQLPath
		}
		if r.Method == "" {
			r.Method = "POST"
		}
	}
	r.Method = strings.ToUpper(r.Method)
}

// ValidateSuite checks that required fields are present and valid.
func ValidateSuite(s *Suite) error {
	if len(s.Scenarios) == 0 {
		return fmt.Errorf("scenarios list is required and must be non-empty")
	}

	if s.Login != nil {
		if s.Login.Email == "" {
			return fmt.Errorf("login: email is required")
		}
		if s.Login.Protocol == ProtocolREST && s.Login.Path == "" {
			return fmt.Errorf("login: path is required for rest")
		}
		if _, err := value.ParsePath(s.Login.TokenPath); err != nil {
			return fmt.Errorf("login: token_path: %w", err)
		}
	}

	for i, req := range s.Setup {
		if err := validateRequest(req); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	seen := make(map[string]bool, len(s.Scenarios))
	for i, sc := range s.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenarios[%d]: name is required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("scenarios[%d]: duplicate name %q", i, sc.Name)
		}
		seen[sc.Name] = true

		if sc.NeedsToken() && s.Login == nil {
			return fmt.Errorf("scenarios[%d]: an authenticated request requires a suite login", i)
		}
		if err := ValidateScenario(&sc); err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateScenario checks a single scenario.
func ValidateScenario(sc *Scenario) error {
	if err := validateRequest(sc.Request); err != nil {
		return err
	}
	for i, req := range sc.Setup {
		if err := validateRequest(req); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	if len(sc.Expect) == 0 {
		return fmt.Errorf("expect list is required and must be non-empty")
	}
	for i, exp := range sc.Expect {
		if err := validateExpectation(exp, len(sc.Setup)); err != nil {
			return fmt.Errorf("expect[%d]: %w", i, err)
		}
	}
	return nil
}

func validateRequest(r Request) error {
	switch r.Protocol {
	case ProtocolGraphQL:
		if r.Query == "" {
			return fmt.Errorf("query is required for graphql")
		}
	case ProtocolREST:
		if r.Method == "" {
			return fmt.Errorf("method is required for rest")
		}
		if r.Path == "" {
			return fmt.Errorf("path is required for rest")
		}
	default:
		return fmt.Errorf("unknown protocol %q", r.Protocol)
	}

	switch r.Auth {
	case AuthNone, AuthSession, AuthTampered:
	default:
		return fmt.Errorf("unknown auth mode %q", r.Auth)
	}
	return nil
}

func validateExpectation(e Expectation, setups int) error {
	if e.Target == "" {
		return fmt.Errorf("target is required")
	}
	if !knownOps[e.Op] {
		return fmt.Errorf("unknown op %q", e.Op)
	}
	if err := validateTarget(e.Target, setups); err != nil {
		return err
	}

	if e.Ref != "" {
		if e.Op == OpCheckoutTotal {
			return fmt.Errorf("ref cannot be combined with checkout_total")
		}
		if err := validateTarget(e.Ref, setups); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
		return nil
	}

	switch e.Op {
	case OpExists, OpAbsent:
	case OpCheckoutTotal:
		if e.Pricing == nil {
			return fmt.Errorf("pricing is required for checkout_total")
		}
		if err := e.Pricing.Validate(); err != nil {
			return fmt.Errorf("pricing: %w", err)
		}
	default:
		if e.Value == nil && !e.HasValue {
			return fmt.Errorf("value is required for %s", e.Op)
		}
	}
	return nil
}

func validateTarget(target string, setups int) error {
	idx, rest, scoped, err := splitSetupTarget(target)
	if err != nil {
		return err
	}
	if scoped {
		if idx >= setups {
			return fmt.Errorf("target %q refers to setup[%d] but the scenario has %d setup request(s)", target, idx, setups)
		}
		target = rest
	}

	switch {
	case target == TargetStatus, target == TargetError, target == TargetError+".message", target == TargetBody:
	case strings.HasPrefix(target, targetHeader):
		if len(target) == len(targetHeader) {
			return fmt.Errorf("header name is required in target %q", target)
		}
	case strings.HasPrefix(target, targetBody):
		if _, err := value.ParsePath(target[len(targetBody):]); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	default:
		return fmt.Errorf("unknown target %q", target)
	}
	return nil
}
