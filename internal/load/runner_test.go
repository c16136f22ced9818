package load

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conform/internal/harness"
	conformtest "github.com/roach88/conform/internal/testutil"
	"github.com/roach88/conform/internal/testutil/fakeapi"
)

func checkoutFlow(password string) Flow {
	return Flow{
		Name: "checkout",
		Steps: []Step{
			{
				Name: "login",
				Scenario: harness.Scenario{Request: harness.Request{
					Protocol: harness.ProtocolREST, Method: http.MethodPost, Path: "/api/users/login", Auth: harness.AuthNone,
					Body: map[string]any{"email": fakeapi.SeedUserEmail, "password": password},
				}, Expect: []harness.Expectation{{Target: "status", Op: harness.OpEq, Value: 200}}},
				Capture: "token",
			},
			{
				Name: "checkout",
				Scenario: harness.Scenario{Request: harness.Request{
					Protocol: harness.ProtocolREST, Method: http.MethodPost, Path: "/api/checkout", Auth: harness.AuthSession,
					Body: map[string]any{
						"items":         []any{map[string]any{"productId": 1, "quantity": 2}},
						"freight":       15,
						"paymentMethod": "boleto",
					},
				}, Expect: []harness.Expectation{
					{Target: "status", Op: harness.OpEq, Value: 200},
					{Target: "body.valorFinal", Op: harness.OpEq, Value: 215},
				}},
			},
		},
	}
}

func newLoadRunner(t *testing.T, opts ...fakeapi.Option) (*fakeapi.Server, *Runner, *conformtest.FakeSleeper) {
	t.Helper()
	api := fakeapi.New(opts...)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	sleeper := conformtest.NewFakeSleeper()
	return api, NewRunner(harness.NewRunner(srv.URL), WithSleeper(sleeper)), sleeper
}

func TestRun_Iterations(t *testing.T) {
	api, r, sleeper := newLoadRunner(t)

	summary, err := r.Run(context.Background(), checkoutFlow("123456"), Options{
		VUs:        5,
		Iterations: 4,
		ThinkTime:  time.Second,
		Thresholds: map[string][]string{
			MetricDuration: {"p(95)<=2000", "p(99)<=3000"},
			MetricFailed:   {"rate<0.01"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 20, summary.Iterations)
	assert.Equal(t, 0, summary.Aborted)
	assert.Equal(t, 40, summary.Requests)
	assert.Equal(t, int64(40), api.Requests())
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 60, summary.ChecksPassed)
	assert.Equal(t, 0, summary.ChecksFailed)
	assert.True(t, summary.Pass())
	assert.Len(t, summary.Thresholds, 3)
	assert.Equal(t, 20, sleeper.Count())
	assert.Equal(t, 20*time.Second, sleeper.Total())

	require.Len(t, summary.Steps, 2)
	assert.Equal(t, "login", summary.Steps[0].Name)
	assert.Equal(t, 20, summary.Steps[0].Requests)
	assert.LessOrEqual(t, summary.Latency.Min, summary.Latency.Med)
	assert.LessOrEqual(t, summary.Latency.P95, summary.Latency.Max)
}

// tokenLedger records the tokens issued by REST logins and the bearer
// tokens presented to checkout.
type tokenLedger struct {
	mu     sync.Mutex
	issued map[string]int
	used   map[string]int
}

func (l *tokenLedger) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/login":
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, r)
			var body struct {
				Token string `json:"token"`
			}
			if json.Unmarshal(rec.Body.Bytes(), &body) == nil && body.Token != "" {
				l.mu.Lock()
				l.issued[body.Token]++
				l.mu.Unlock()
			}
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
			return
		case "/api/checkout":
			token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			l.mu.Lock()
			l.used[token]++
			l.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func TestRun_TokensStayWithinIteration(t *testing.T) {
	ledger := &tokenLedger{issued: map[string]int{}, used: map[string]int{}}
	srv := httptest.NewServer(ledger.wrap(fakeapi.New().Handler()))
	t.Cleanup(srv.Close)
	r := NewRunner(harness.NewRunner(srv.URL), WithSleeper(conformtest.NewFakeSleeper()))

	summary, err := r.Run(context.Background(), checkoutFlow("123456"), Options{VUs: 4, Iterations: 5})
	require.NoError(t, err)
	require.Equal(t, 20, summary.Iterations)
	require.Equal(t, 0, summary.Failed)

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	assert.Len(t, ledger.issued, 20, "every login issues a fresh token")
	for token, n := range ledger.issued {
		assert.Equal(t, 1, n, token)
	}
	assert.Equal(t, ledger.issued, ledger.used, "each checkout presents the token its own login issued, once")
}

func TestRun_LoginFailureAbortsIteration(t *testing.T) {
	_, r, _ := newLoadRunner(t)

	summary, err := r.Run(context.Background(), checkoutFlow("wrong"), Options{
		VUs:        2,
		Iterations: 3,
		Thresholds: map[string][]string{MetricFailed: {"rate<0.01"}},
	})

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "checkout", loadErr.Flow)
	require.Len(t, loadErr.Breached, 1)
	assert.Equal(t, MetricFailed, loadErr.Breached[0].Metric)

	assert.Equal(t, 0, summary.Iterations)
	assert.Equal(t, 6, summary.Aborted)
	assert.Equal(t, 6, summary.Requests, "the checkout step is never sent without a token")
	assert.Equal(t, 6, summary.Failed)
	assert.Equal(t, 1.0, summary.FailedRate)
	assert.Equal(t, 18, summary.ChecksFailed)
}

func TestRun_LatencyThresholdBreached(t *testing.T) {
	_, r, _ := newLoadRunner(t, fakeapi.WithLatency(20*time.Millisecond))

	summary, err := r.Run(context.Background(), checkoutFlow("123456"), Options{
		VUs:        2,
		Iterations: 1,
		Thresholds: map[string][]string{MetricDuration: {"p(95)<5", "max<60000"}},
	})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Len(t, loadErr.Breached, 1)
	assert.Equal(t, "p(95)<5", loadErr.Breached[0].Expr)
	assert.Contains(t, err.Error(), "breached 1 threshold(s)")
	assert.False(t, summary.Pass())
	assert.GreaterOrEqual(t, summary.Latency.Min, 20.0)
}

func TestRun_DurationBound(t *testing.T) {
	_, r, _ := newLoadRunner(t, fakeapi.WithLatency(5*time.Millisecond))

	start := time.Now()
	summary, err := r.Run(context.Background(), checkoutFlow("123456"), Options{
		VUs:      3,
		Duration: 150 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Greater(t, summary.Iterations, 0)
	assert.Equal(t, 0, summary.Failed, "requests cut off by the deadline are not counted")
}

func TestRun_ParentCancelled(t *testing.T) {
	_, r, _ := newLoadRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := r.Run(ctx, checkoutFlow("123456"), Options{VUs: 2, Iterations: 5})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Requests)
}

func TestRun_InvalidInput(t *testing.T) {
	_, r, _ := newLoadRunner(t)

	_, err := r.Run(context.Background(), checkoutFlow("x"), Options{VUs: 0, Iterations: 1})
	assert.ErrorContains(t, err, "vus must be positive")

	_, err = r.Run(context.Background(), checkoutFlow("x"), Options{VUs: 1})
	assert.ErrorContains(t, err, "duration or iterations must be set")

	_, err = r.Run(context.Background(), checkoutFlow("x"), Options{VUs: 1, Iterations: 1, Thresholds: map[string][]string{"http_req_duration": {"p95<1"}}})
	assert.ErrorContains(t, err, "invalid thresholds")

	flow := checkoutFlow("x")
	flow.Steps[0].Capture = ""
	_, err = r.Run(context.Background(), flow, Options{VUs: 1, Iterations: 1})
	assert.ErrorContains(t, err, "needs a token but no earlier step captures one")
}

func TestRun_Metrics(t *testing.T) {
	_, r, _ := newLoadRunner(t)

	_, err := r.Run(context.Background(), checkoutFlow("123456"), Options{VUs: 2, Iterations: 2})
	require.NoError(t, err)

	m := r.Metrics()
	assert.Equal(t, 4.0, testutil.ToFloat64(m.iterations.WithLabelValues("checkout")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.checks.WithLabelValues("checkout", "pass")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.failed.WithLabelValues("checkout", "login")))

	assert.Equal(t, 2, testutil.CollectAndCount(m.duration, "conform_http_req_duration_seconds"), "one histogram per step")
}

func TestMetrics_Push(t *testing.T) {
	var got string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := NewMetrics()
	m.iteration("checkout")
	require.NoError(t, m.Push(gw.URL, "conform"))
	assert.Equal(t, "PUT /metrics/job/conform", got)
}

func TestSummary_Render(t *testing.T) {
	_, r, _ := newLoadRunner(t)
	summary, err := r.Run(context.Background(), checkoutFlow("123456"), Options{
		VUs: 1, Iterations: 1,
		Thresholds: map[string][]string{MetricFailed: {"rate<0.01"}},
	})
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, summary.WriteText(&text))
	out := text.String()
	assert.Contains(t, out, "flow checkout: 1 VUs, 1 iterations (0 aborted)")
	assert.Contains(t, strings.ToLower(out), "p(95)")
	assert.Contains(t, out, "rate<0.01")

	var js bytes.Buffer
	require.NoError(t, summary.WriteJSON(&js))
	assert.Contains(t, js.String(), `"failed_rate": 0`)
	assert.Contains(t, js.String(), `"flow": "checkout"`)
}
