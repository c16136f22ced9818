package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/conform/internal/value"
)

// Snapshot renders the deterministic parts of a suite result as canonical
// JSON: statuses, classified server errors, failure classes, and per
// expectation pass/fail. Tokens, timings, and generated values are left
// out so snapshots are stable across runs.
func Snapshot(res *SuiteResult) ([]byte, error) {
	scenarios := make(value.Array, len(res.Scenarios))
	for i, sc := range res.Scenarios {
		scenarios[i] = scenarioSnapshot(sc)
	}
	return value.MarshalCanonical(value.Object{
		"suite":     value.String(res.Name),
		"scenarios": scenarios,
	})
}

func scenarioSnapshot(sc *ScenarioResult) value.Object {
	exps := make(value.Array, len(sc.Expectations))
	for i, e := range sc.Expectations {
		exps[i] = value.Object{
			"target": value.String(e.Target),
			"op":     value.String(e.Op),
			"pass":   value.Bool(e.Pass),
		}
	}

	failures := value.Array{}
	for _, f := range []struct {
		name string
		err  error
	}{
		{"setup", sc.SetupErr},
		{"auth", sc.AuthErr},
		{"network", sc.NetworkErr},
	} {
		if f.err != nil {
			failures = append(failures, value.String(f.name))
		}
	}
	if sc.AssertionErr != nil {
		failures = append(failures, value.String("assertion"))
	}

	return value.Object{
		"name":         value.String(sc.Name),
		"status":       value.Int(int64(sc.Status)),
		"error":        value.String(ErrorKind(sc.ServerErr)),
		"pass":         value.Bool(sc.Pass()),
		"failures":     failures,
		"expectations": exps,
	}
}

// AssertGolden compares a suite result against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, res *SuiteResult) {
	t.Helper()

	data, err := Snapshot(res)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
