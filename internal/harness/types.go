package harness

import (
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/roach88/conform/internal/value"
)

// Response is a fully received HTTP response. It is built only after the
// body has been read to the end and is read-only afterwards.
type Response struct {
	Status   int
	Header   http.Header
	Body     value.Value // nil when the body is not JSON
	Raw      []byte
	Duration time.Duration

	// Err is the server-reported error classified from the body or
	// status, or nil. It describes the response and is not a failure of
	// the exchange itself.
	Err error

	parseErr error
}

// ExpectationResult is the outcome of one expectation.
type ExpectationResult struct {
	Target   string `json:"target"`
	Op       string `json:"op"`
	Pass     bool   `json:"pass"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message,omitempty"`
}

// ScenarioResult is the outcome of one scenario run. Setup, auth,
// network, and assertion failures are recorded independently so a single
// run can report several at once.
type ScenarioResult struct {
	Name         string              `json:"name"`
	Status       int                 `json:"status,omitempty"`
	Duration     time.Duration       `json:"duration"`
	Expectations []ExpectationResult `json:"expectations,omitempty"`

	// ServerErr is the classified server error in the response, if any.
	// Scenarios that expect a server error assert on it via "error".
	ServerErr error `json:"-"`

	SetupErr     error           `json:"-"`
	AuthErr      error           `json:"-"`
	NetworkErr   error           `json:"-"`
	AssertionErr *AssertionError `json:"-"`
}

// Err combines every failure of the run, or returns nil if it passed.
func (r *ScenarioResult) Err() error {
	errs := []error{r.SetupErr, r.AuthErr, r.NetworkErr}
	if r.AssertionErr != nil {
		errs = append(errs, r.AssertionErr)
	}
	return multierr.Combine(errs...)
}

// Pass reports whether the run had no failures.
func (r *ScenarioResult) Pass() bool {
	return r.Err() == nil
}

// Errors returns each failure as a message, in a stable order.
func (r *ScenarioResult) Errors() []string {
	var out []string
	for _, err := range multierr.Errors(r.Err()) {
		out = append(out, err.Error())
	}
	return out
}

// SuiteResult is the outcome of a suite run.
type SuiteResult struct {
	Name      string            `json:"name"`
	Scenarios []*ScenarioResult `json:"scenarios"`
	Duration  time.Duration     `json:"duration"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	for _, sc := range r.Scenarios {
		if !sc.Pass() {
			return false
		}
	}
	return true
}

// Counts returns the number of passing and failing scenarios.
func (r *SuiteResult) Counts() (passed, failed int) {
	for _, sc := range r.Scenarios {
		if sc.Pass() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Find returns the result for the named scenario, or nil.
func (r *SuiteResult) Find(name string) *ScenarioResult {
	for _, sc := range r.Scenarios {
		if sc.Name == name {
			return sc
		}
	}
	return nil
}
