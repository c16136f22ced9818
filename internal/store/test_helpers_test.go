package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/load"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return createTestStoreAt(t, filepath.Join(t.TempDir(), "test.db"))
}

// createTestStoreAt opens the store at path and closes it on cleanup.
func createTestStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSuiteResult returns a suite result with one passing and one
// failing scenario.
func createTestSuiteResult() *harness.SuiteResult {
	return &harness.SuiteResult{
		Name:     "graphql-external",
		Duration: 1500 * time.Millisecond,
		Scenarios: []*harness.ScenarioResult{
			{
				Name:     "users",
				Status:   200,
				Duration: 40 * time.Millisecond,
				Expectations: []harness.ExpectationResult{
					{Target: "status", Op: "eq", Pass: true, Expected: "200", Actual: "200"},
				},
			},
			{
				Name:      "unknown product",
				Status:    200,
				Duration:  55 * time.Millisecond,
				ServerErr: &harness.NotFoundError{Message: "Produto não encontrado"},
				Expectations: []harness.ExpectationResult{
					{Target: "status", Op: "eq", Pass: false, Expected: "404", Actual: "200"},
				},
				AssertionErr: &harness.AssertionError{
					Scenario: "unknown product",
					Failures: []harness.ExpectationResult{
						{Target: "status", Op: "eq", Pass: false, Expected: "404", Actual: "200"},
					},
				},
			},
		},
	}
}

// createTestSummary returns a load summary with a breached threshold.
func createTestSummary() *load.Summary {
	return &load.Summary{
		Flow:         "user-checkout",
		VUs:          10,
		Elapsed:      20 * time.Second,
		Iterations:   180,
		Requests:     360,
		Failed:       9,
		FailedRate:   0.025,
		ChecksPassed: 351,
		ChecksFailed: 9,
		Latency:      load.LatencyStats{Avg: 120.5, Min: 12, Med: 98, Max: 2400, P90: 700, P95: 1800.25, P99: 2300},
		Thresholds: []load.ThresholdResult{
			{Metric: load.MetricFailed, Expr: "rate<0.01", Actual: 0.025, Pass: false},
		},
	}
}
