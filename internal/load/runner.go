package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/value"
)

// Sleeper pauses a VU between iterations. Sleep returns early when ctx
// is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Runner executes flows with many virtual users.
type Runner struct {
	client  *harness.Runner
	sleeper Sleeper
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSleeper replaces the think-time sleeper.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) { r.sleeper = s }
}

// WithMetrics records samples into m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner that sends requests through client. The
// client is shared by all VUs; it holds no per-user state.
func NewRunner(client *harness.Runner, opts ...Option) *Runner {
	r := &Runner{
		client:  client,
		sleeper: realSleeper{},
		metrics: NewMetrics(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the collectors the runner records into.
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// vuStats is owned by exactly one VU until the run ends.
type vuStats struct {
	samples      []Sample
	iterations   int
	aborted      int
	checksPassed int
	checksFailed int
}

// Run executes flow with opts.VUs concurrent virtual users. It always
// returns the summary once the run has started; the error is a
// *LoadError when a threshold is breached.
func (r *Runner) Run(ctx context.Context, flow Flow, opts Options) (*Summary, error) {
	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	thresholds, err := ParseThresholds(opts.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	runCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	r.logger.Info("load run starting",
		"flow", flow.Name,
		"vus", opts.VUs,
		"duration", opts.Duration,
		"iterations", opts.Iterations,
	)

	start := time.Now()
	stats := make([]*vuStats, opts.VUs)
	var g errgroup.Group
	for i := range stats {
		st := &vuStats{}
		stats[i] = st
		g.Go(func() error {
			r.runVU(runCtx, flow, opts, st)
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	summary := summarize(flow.Name, opts, elapsed, stats)
	for _, t := range thresholds {
		summary.Thresholds = append(summary.Thresholds, t.Evaluate(summary))
	}

	r.logger.Info("load run finished",
		"flow", flow.Name,
		"requests", summary.Requests,
		"failed_rate", summary.FailedRate,
		"p95_ms", summary.Latency.P95,
		"pass", summary.Pass(),
	)

	if breached := summary.Breached(); len(breached) > 0 {
		return summary, &LoadError{Flow: flow.Name, Breached: breached}
	}
	// A cancelled parent context is not a breach but the run is incomplete.
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (r *Runner) runVU(ctx context.Context, flow Flow, opts Options, st *vuStats) {
	for n := 0; opts.Iterations == 0 || n < opts.Iterations; n++ {
		if ctx.Err() != nil {
			return
		}
		if !r.iterate(ctx, flow, st) {
			if ctx.Err() != nil {
				return
			}
			st.aborted++
		} else {
			st.iterations++
			r.metrics.iteration(flow.Name)
		}
		r.sleeper.Sleep(ctx, opts.ThinkTime)
	}
}

// iterate runs every step once with a fresh session. It returns false if
// the iteration could not complete.
func (r *Runner) iterate(ctx context.Context, flow Flow, st *vuStats) bool {
	sess := harness.NewSession()
	defer sess.Clear()

	for i, step := range flow.Steps {
		resp, err := r.client.Execute(ctx, step.Scenario, sess)
		if ctx.Err() != nil {
			// Requests cut off by the end of the run are not samples.
			return false
		}
		if err != nil {
			var netErr *harness.NetworkError
			if !errors.As(err, &netErr) {
				r.logger.Debug("step not sent", "flow", flow.Name, "step", step.Name, "error", err)
				r.failRemainingChecks(flow, flow.Steps[i:], st)
				return false
			}
			smp := Sample{Step: step.Name, Failed: true}
			st.samples = append(st.samples, smp)
			r.metrics.observe(flow.Name, smp)
			r.failRemainingChecks(flow, flow.Steps[i:], st)
			return false
		}

		smp := Sample{
			Step:     step.Name,
			Duration: resp.Duration,
			Status:   resp.Status,
			Failed:   resp.Status >= http.StatusBadRequest,
		}
		st.samples = append(st.samples, smp)
		r.metrics.observe(flow.Name, smp)

		for _, res := range harness.Evaluate(resp, step.Scenario.Expect) {
			if res.Pass {
				st.checksPassed++
			} else {
				st.checksFailed++
			}
			r.metrics.check(flow.Name, res.Pass)
		}

		if step.Capture != "" {
			tok, ok := value.MustParsePath(step.Capture).Lookup(resp.Body)
			s, isString := tok.(value.String)
			if !ok || !isString || s == "" {
				r.logger.Debug("no token captured", "flow", flow.Name, "step", step.Name, "status", resp.Status)
				r.failRemainingChecks(flow, flow.Steps[i+1:], st)
				return false
			}
			sess.SetToken(string(s))
		}
	}
	return true
}

func (r *Runner) failRemainingChecks(flow Flow, steps []Step, st *vuStats) {
	for _, s := range steps {
		for range s.Scenario.Expect {
			st.checksFailed++
			r.metrics.check(flow.Name, false)
		}
	}
}
