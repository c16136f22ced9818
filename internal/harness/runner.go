package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/conform/internal/graphql"
	"github.com/roach88/conform/internal/value"
)

// DefaultTimeout bounds each HTTP exchange when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Runner executes scenarios against a remote endpoint.
//
// A Runner holds no per-user state and is safe for concurrent use; the
// caller passes a Session into every call that needs a token.
type Runner struct {
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	messages Messages
	vars     map[string]string
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds each HTTP exchange.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) { r.client = c }
}

// WithMessages overrides the server error strings used for classification.
func WithMessages(m Messages) Option {
	return func(r *Runner) { r.messages = m }
}

// WithVars adds template variables visible to every scenario.
func WithVars(vars map[string]string) Option {
	return func(r *Runner) {
		for k, v := range vars {
			r.vars[k] = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner for baseURL.
func NewRunner(baseURL string, opts ...Option) *Runner {
	r := &Runner{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{},
		timeout:  DefaultTimeout,
		messages: DefaultMessages(),
		vars:     make(map[string]string),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BaseURL returns the endpoint the runner targets.
func (r *Runner) BaseURL() string {
	return r.baseURL
}

// Authenticate sends the login request and stores the returned token in
// sess. A rejected login or a response without a token yields *AuthError;
// a request that does not complete yields *NetworkError.
func (r *Runner) Authenticate(ctx context.Context, sess *Session, login Login) (string, error) {
	login.applyDefaults()

	req := Request{Protocol: login.Protocol, Method: http.MethodPost, Path: login.Path, Auth: AuthNone}
	if login.Protocol == ProtocolGraphQL {
		req.Query = graphql.LoginMutation(login.Email, login.Password)
	} else {
		req.Body = map[string]any{"email": login.Email, "password": login.Password}
	}

	resp, err := r.do(ctx, "login", req, sess)
	if err != nil {
		return "", err
	}

	var authErr *AuthError
	if errors.As(resp.Err, &authErr) {
		authErr.Op = "login"
		return "", authErr
	}

	tokenPath, err := value.ParsePath(login.TokenPath)
	if err != nil {
		return "", fmt.Errorf("token path: %w", err)
	}
	tok, ok := tokenPath.Lookup(resp.Body)
	s, isString := tok.(value.String)
	if !ok || !isString || s == "" {
		msg := fmt.Sprintf("response has no token at %s", tokenPath)
		if resp.Err != nil {
			msg += ": " + resp.Err.Error()
		}
		return "", &AuthError{Op: "login", Message: msg, Status: resp.Status}
	}

	sess.SetToken(string(s))
	r.logger.Debug("authenticated", "email", login.Email, "status", resp.Status)
	return string(s), nil
}

// Execute sends the scenario's request and returns the fully received
// response. Templates must already be expanded. A bearer token is attached
// when the scenario's auth mode asks for one; "tampered" appends "+1".
func (r *Runner) Execute(ctx context.Context, sc Scenario, sess *Session) (*Response, error) {
	return r.do(ctx, "execute", sc.Request, sess)
}

func (r *Runner) do(ctx context.Context, op string, req Request, sess *Session) (*Response, error) {
	url := r.resolve(req.Path)

	body, err := encodeBody(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if req.NeedsToken() {
		if sess == nil || !sess.Authenticated() {
			return nil, &AuthError{Op: op, Message: "no session token"}
		}
		token := sess.Token()
		if req.Auth == AuthTampered {
			token += "+1"
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: url, Timeout: isTimeout(ctx, err), Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: url, Timeout: isTimeout(ctx, err), Err: fmt.Errorf("read body: %w", err)}
	}

	resp := &Response{
		Status:   httpResp.StatusCode,
		Header:   httpResp.Header,
		Raw:      raw,
		Duration: time.Since(start),
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		resp.Body = value.Null{}
	} else if v, perr := value.Parse(raw); perr != nil {
		resp.parseErr = perr
	} else {
		resp.Body = v
	}
	resp.Err = r.classify(resp)

	r.logger.Debug("http exchange",
		"op", op,
		"method", method,
		"url", url,
		"status", resp.Status,
		"duration", resp.Duration,
	)
	return resp, nil
}

func (r *Runner) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return r.baseURL + path
}

func encodeBody(req Request) (io.Reader, error) {
	var payload any
	switch {
	case req.Protocol == ProtocolGraphQL:
		payload = graphql.Request{Query: req.Query, Variables: req.Variables}
	case req.Body != nil:
		payload = req.Body
	default:
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return &buf, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var (
	firstErrorMessage = value.MustParsePath("errors[0].message")
	restMessage       = value.MustParsePath("message")
	restError         = value.MustParsePath("error")
)

// classify maps the response's reported error to a typed error. GraphQL
// errors are read from errors[0].message; REST errors from a top-level
// "message" or "error" member or, failing that, the status code.
func (r *Runner) classify(resp *Response) error {
	msg := ""
	for _, p := range []value.Path{firstErrorMessage, restMessage, restError} {
		if v, ok := p.Lookup(resp.Body); ok {
			if s, isString := v.(value.String); isString {
				msg = string(s)
				break
			}
		}
	}

	switch {
	case msg != "" && value.Equal(value.String(msg), value.String(r.messages.InvalidCredentials)),
		msg != "" && value.Equal(value.String(msg), value.String(r.messages.InvalidToken)):
		return &AuthError{Op: "execute", Message: msg, Status: resp.Status}
	case msg != "" && value.Equal(value.String(msg), value.String(r.messages.ProductNotFound)):
		return &NotFoundError{Message: msg, Status: resp.Status}
	case resp.Status == http.StatusUnauthorized, resp.Status == http.StatusForbidden:
		return &AuthError{Op: "execute", Message: orStatusText(msg, resp.Status), Status: resp.Status}
	case resp.Status == http.StatusNotFound:
		return &NotFoundError{Message: orStatusText(msg, resp.Status), Status: resp.Status}
	case resp.Status >= http.StatusBadRequest:
		return &ServerError{Message: orStatusText(msg, resp.Status), Status: resp.Status}
	case msg != "" && resp.Body != nil && hasErrors(resp.Body):
		return &ServerError{Message: msg, Status: resp.Status}
	}
	return nil
}

func hasErrors(body value.Value) bool {
	v, ok := value.MustParsePath("errors").Lookup(body)
	if !ok {
		return false
	}
	arr, ok := v.(value.Array)
	return ok && len(arr) > 0
}

func orStatusText(msg string, status int) string {
	if msg != "" {
		return msg
	}
	return http.StatusText(status)
}

// Run executes one scenario with sess: scenario setup requests, the
// request itself, then evaluation. Every failure class is recorded on the
// result independently.
func (r *Runner) Run(ctx context.Context, sc Scenario, sess *Session) *ScenarioResult {
	return r.run(ctx, sc, sess, r.vars)
}

func (r *Runner) run(ctx context.Context, sc Scenario, sess *Session, vars map[string]string) *ScenarioResult {
	start := time.Now()
	res := &ScenarioResult{Name: sc.Name}
	defer func() { res.Duration = time.Since(start) }()

	scopeVars, err := bindVars(vars, sc.Let)
	if err != nil {
		res.SetupErr = fmt.Errorf("let: %w", err)
		return res
	}
	expanded, err := expandScenario(sc, scopeVars)
	if err != nil {
		res.SetupErr = fmt.Errorf("template: %w", err)
		return res
	}

	setup := make([]*Response, len(expanded.Setup))
	for i, pre := range expanded.Setup {
		resp, err := r.do(ctx, "setup", pre, sess)
		if err != nil {
			r.recordTransport(res, fmt.Errorf("setup[%d]: %w", i, err))
			return res
		}
		setup[i] = resp
	}

	resp, err := r.Execute(ctx, expanded, sess)
	if err != nil {
		r.recordTransport(res, err)
	}

	// Evaluate even without a response so every expectation is listed
	// with its expected value.
	res.Expectations = EvaluateWithSetup(resp, setup, expanded.Expect)
	if resp != nil {
		res.Status = resp.Status
		res.ServerErr = resp.Err
	}
	if failures := Failures(res.Expectations); len(failures) > 0 {
		res.AssertionErr = &AssertionError{Scenario: sc.Name, Failures: failures}
	}

	r.logger.Info("scenario finished",
		"scenario", sc.Name,
		"status", res.Status,
		"pass", res.Pass(),
	)
	return res
}

// recordTransport files err under the matching failure class.
func (r *Runner) recordTransport(res *ScenarioResult, err error) {
	var (
		netErr  *NetworkError
		authErr *AuthError
	)
	switch {
	case errors.As(err, &netErr):
		res.NetworkErr = err
	case errors.As(err, &authErr):
		res.AuthErr = err
	default:
		res.SetupErr = err
	}
}

// RunSuite runs the suite's before-all setup once, then each scenario in
// order. Scenarios that need a token log in first (before-each) with a
// fresh token. A setup or login failure aborts only the scenarios that
// depend on it.
func (r *Runner) RunSuite(ctx context.Context, suite *Suite) *SuiteResult {
	start := time.Now()
	result := &SuiteResult{Name: suite.Name}
	defer func() { result.Duration = time.Since(start) }()

	sess := NewSession()
	defer sess.Clear()

	vars, err := bindVars(r.vars, suite.Vars)
	var setupErr error
	if err != nil {
		setupErr = fmt.Errorf("suite vars: %w", err)
	}

	// Before-all requests establish fixtures such as the login user. The
	// server's answer is not checked: the user may already exist.
	for i, req := range suite.Setup {
		if setupErr != nil {
			break
		}
		expanded, err := expandRequest(req, vars)
		if err != nil {
			setupErr = fmt.Errorf("setup[%d]: %w", i, err)
			break
		}
		resp, err := r.do(ctx, "setup", expanded, sess)
		if err != nil {
			setupErr = fmt.Errorf("setup[%d]: %w", i, err)
			break
		}
		if resp.Err != nil {
			r.logger.Debug("setup request reported an error", "index", i, "error", resp.Err)
		}
	}

	var login *Login
	if suite.Login != nil {
		l := *suite.Login
		if l.Email, err = ExpandTemplates(l.Email, vars); err == nil {
			l.Password, err = ExpandTemplates(l.Password, vars)
		}
		if err != nil && setupErr == nil {
			setupErr = fmt.Errorf("login: %w", err)
		}
		login = &l
	}

	for _, sc := range suite.Scenarios {
		if ctx.Err() != nil {
			result.Scenarios = append(result.Scenarios, &ScenarioResult{Name: sc.Name, SetupErr: ctx.Err()})
			continue
		}
		if setupErr != nil {
			res := &ScenarioResult{Name: sc.Name}
			r.recordTransport(res, setupErr)
			result.Scenarios = append(result.Scenarios, res)
			continue
		}

		sess.Clear()
		if sc.NeedsToken() {
			if login == nil {
				result.Scenarios = append(result.Scenarios, &ScenarioResult{
					Name:    sc.Name,
					AuthErr: &AuthError{Op: "login", Message: "suite has no login"},
				})
				continue
			}
			if _, err := r.Authenticate(ctx, sess, *login); err != nil {
				res := &ScenarioResult{Name: sc.Name}
				r.recordTransport(res, fmt.Errorf("login: %w", err))
				result.Scenarios = append(result.Scenarios, res)
				r.logger.Warn("login failed", "scenario", sc.Name, "error", err)
				continue
			}
		}
		result.Scenarios = append(result.Scenarios, r.run(ctx, sc, sess, vars))
	}
	return result
}

// WaitReady polls the base URL with exponential backoff until the server
// answers with any status below 500, ctx is done, or maxWait elapses.
func (r *Runner) WaitReady(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = maxWait

	operation := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, r.baseURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server not ready: status %d", resp.StatusCode)
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		r.logger.Debug("waiting for server", "url", r.baseURL, "error", err, "retry_in", next)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return &NetworkError{Op: "wait", URL: r.baseURL, Err: err}
	}
	return nil
}
