package load

import (
	"fmt"
	"time"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/value"
)

// Step is one request of a flow iteration.
type Step struct {
	// Name groups the step's samples in the summary.
	Name string

	// Scenario is the request and its checks. Requests with auth
	// "session" use the token captured earlier in the same iteration.
	Scenario harness.Scenario

	// Capture is the response path holding a token to store in the
	// iteration's session, e.g. "token".
	Capture string
}

// Flow is an ordered list of steps followed by a think-time pause.
type Flow struct {
	Name  string
	Steps []Step
}

// Validate checks that the flow can run.
func (f *Flow) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("flow name is required")
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("flow %s: steps list is required and must be non-empty", f.Name)
	}

	captured := false
	for i, s := range f.Steps {
		if s.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if s.Scenario.NeedsToken() && !captured {
			return fmt.Errorf("steps[%d]: %s needs a token but no earlier step captures one", i, s.Name)
		}
		if s.Capture != "" {
			if _, err := value.ParsePath(s.Capture); err != nil {
				return fmt.Errorf("steps[%d]: capture: %w", i, err)
			}
			captured = true
		}
	}
	return nil
}

// Options controls a load run.
type Options struct {
	// VUs is the number of concurrent virtual users.
	VUs int
	// Duration bounds the whole run. Zero means no time bound.
	Duration time.Duration
	// Iterations is the number of iterations per VU. Zero means run
	// until Duration elapses.
	Iterations int
	// ThinkTime is the pause after each iteration.
	ThinkTime time.Duration
	// Thresholds maps a metric name to its threshold expressions.
	Thresholds map[string][]string
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.VUs <= 0 {
		return fmt.Errorf("vus must be positive (got %d)", o.VUs)
	}
	if o.Duration <= 0 && o.Iterations <= 0 {
		return fmt.Errorf("duration or iterations must be set")
	}
	if o.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative")
	}
	if o.ThinkTime < 0 {
		return fmt.Errorf("think time must not be negative")
	}
	return nil
}
