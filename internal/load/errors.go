package load

import (
	"fmt"
	"strings"
)

// LoadError is returned when a run breaches one or more thresholds.
type LoadError struct {
	Flow     string
	Breached []ThresholdResult
}

func (e *LoadError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "load test %s breached %d threshold(s)", e.Flow, len(e.Breached))
	for _, b := range e.Breached {
		fmt.Fprintf(&buf, "\n  %s %s (actual %.4f)", b.Metric, b.Expr, b.Actual)
	}
	return buf.String()
}
