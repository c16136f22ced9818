package load

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Metrics that thresholds may reference.
const (
	MetricDuration = "http_req_duration" // milliseconds
	MetricFailed   = "http_req_failed"   // rate of failed requests
	MetricChecks   = "checks"            // rate of passed checks
	MetricRequests = "http_reqs"         // request count
)

// Threshold is one parsed expression such as "p(95)<=2000".
type Threshold struct {
	Metric string
	Stat   string // avg, min, med, max, count, rate, or p(N)
	Op     string
	Limit  float64
	Source string
}

var thresholdRe = regexp.MustCompile(`^\s*(avg|min|med|max|count|rate|p\(\d+(?:\.\d+)?\))\s*(<=|>=|==|!=|<|>)\s*(-?\d+(?:\.\d+)?)\s*$`)

// ParseThreshold parses expr for metric.
func ParseThreshold(metric, expr string) (Threshold, error) {
	m := thresholdRe.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("%s: invalid threshold %q", metric, expr)
	}
	limit, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("%s: invalid limit in %q: %w", metric, expr, err)
	}
	t := Threshold{Metric: metric, Stat: m[1], Op: m[2], Limit: limit, Source: strings.TrimSpace(expr)}

	switch metric {
	case MetricDuration:
		if t.Stat == "rate" || t.Stat == "count" {
			return Threshold{}, fmt.Errorf("%s: %s is not defined for a trend", metric, t.Stat)
		}
		if p, ok := t.percentile(); ok && (p < 0 || p > 100) {
			return Threshold{}, fmt.Errorf("%s: percentile out of range in %q", metric, expr)
		}
	case MetricFailed, MetricChecks:
		if t.Stat != "rate" {
			return Threshold{}, fmt.Errorf("%s: only rate is defined, got %s", metric, t.Stat)
		}
	case MetricRequests:
		if t.Stat != "count" {
			return Threshold{}, fmt.Errorf("%s: only count is defined, got %s", metric, t.Stat)
		}
	default:
		return Threshold{}, fmt.Errorf("unknown metric %q", metric)
	}
	return t, nil
}

// ParseThresholds parses every expression, in metric-name order.
func ParseThresholds(m map[string][]string) ([]Threshold, error) {
	metrics := make([]string, 0, len(m))
	for k := range m {
		metrics = append(metrics, k)
	}
	sort.Strings(metrics)

	var out []Threshold
	for _, metric := range metrics {
		for _, expr := range m[metric] {
			t, err := ParseThreshold(metric, expr)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func (t Threshold) percentile() (float64, bool) {
	inner, ok := strings.CutPrefix(t.Stat, "p(")
	if !ok {
		return 0, false
	}
	p, err := strconv.ParseFloat(strings.TrimSuffix(inner, ")"), 64)
	return p, err == nil
}

// ThresholdResult is a threshold evaluated against a summary.
type ThresholdResult struct {
	Metric string  `json:"metric"`
	Expr   string  `json:"expr"`
	Actual float64 `json:"actual"`
	Pass   bool    `json:"pass"`
}

// Evaluate checks t against s.
func (t Threshold) Evaluate(s *Summary) ThresholdResult {
	actual := t.actual(s)
	return ThresholdResult{
		Metric: t.Metric,
		Expr:   t.Source,
		Actual: actual,
		Pass:   t.holds(actual),
	}
}

func (t Threshold) actual(s *Summary) float64 {
	switch t.Metric {
	case MetricFailed:
		return s.FailedRate
	case MetricChecks:
		total := s.ChecksPassed + s.ChecksFailed
		if total == 0 {
			return 0
		}
		return float64(s.ChecksPassed) / float64(total)
	case MetricRequests:
		return float64(s.Requests)
	}

	switch t.Stat {
	case "avg":
		return s.Latency.Avg
	case "min":
		return s.Latency.Min
	case "med":
		return s.Latency.Med
	case "max":
		return s.Latency.Max
	}
	p, _ := t.percentile()
	return Percentile(s.durations, p)
}

func (t Threshold) holds(actual float64) bool {
	switch t.Op {
	case "<":
		return actual < t.Limit
	case "<=":
		return actual <= t.Limit
	case ">":
		return actual > t.Limit
	case ">=":
		return actual >= t.Limit
	case "==":
		return actual == t.Limit
	default:
		return actual != t.Limit
	}
}
