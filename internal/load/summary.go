package load

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Sample is one completed request.
type Sample struct {
	Step     string
	Duration time.Duration
	Status   int
	// Failed is set for transport errors and statuses of 400 or more.
	Failed bool
}

// LatencyStats summarizes request durations in milliseconds.
type LatencyStats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Med float64 `json:"med"`
	Max float64 `json:"max"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// StepSummary aggregates the samples of one step.
type StepSummary struct {
	Name     string       `json:"name"`
	Requests int          `json:"requests"`
	Failed   int          `json:"failed"`
	Latency  LatencyStats `json:"latency_ms"`
}

// Summary is the outcome of a load run.
type Summary struct {
	Flow         string            `json:"flow"`
	VUs          int               `json:"vus"`
	Elapsed      time.Duration     `json:"elapsed"`
	Iterations   int               `json:"iterations"`
	Aborted      int               `json:"aborted_iterations"`
	Requests     int               `json:"requests"`
	Failed       int               `json:"failed_requests"`
	FailedRate   float64           `json:"failed_rate"`
	ChecksPassed int               `json:"checks_passed"`
	ChecksFailed int               `json:"checks_failed"`
	Latency      LatencyStats      `json:"latency_ms"`
	Steps        []StepSummary     `json:"steps"`
	Thresholds   []ThresholdResult `json:"thresholds"`

	durations []float64 // sorted, milliseconds
}

// Pass reports whether every threshold held.
func (s *Summary) Pass() bool {
	for _, t := range s.Thresholds {
		if !t.Pass {
			return false
		}
	}
	return true
}

// Breached returns the thresholds that did not hold.
func (s *Summary) Breached() []ThresholdResult {
	var out []ThresholdResult
	for _, t := range s.Thresholds {
		if !t.Pass {
			out = append(out, t)
		}
	}
	return out
}

// Percentile returns the p-th percentile of sorted using linear
// interpolation between closest ranks. It returns 0 for no data.
func Percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case n == 1 || p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func latency(sorted []float64) LatencyStats {
	if len(sorted) == 0 {
		return LatencyStats{}
	}
	var sum float64
	for _, d := range sorted {
		sum += d
	}
	return LatencyStats{
		Avg: sum / float64(len(sorted)),
		Min: sorted[0],
		Med: Percentile(sorted, 50),
		Max: sorted[len(sorted)-1],
		P90: Percentile(sorted, 90),
		P95: Percentile(sorted, 95),
		P99: Percentile(sorted, 99),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// summarize aggregates merged per-VU results.
func summarize(flow string, opts Options, elapsed time.Duration, vus []*vuStats) *Summary {
	s := &Summary{Flow: flow, VUs: opts.VUs, Elapsed: elapsed}

	perStep := make(map[string][]float64)
	failedPerStep := make(map[string]int)
	var order []string

	for _, vu := range vus {
		s.Iterations += vu.iterations
		s.Aborted += vu.aborted
		s.ChecksPassed += vu.checksPassed
		s.ChecksFailed += vu.checksFailed
		for _, smp := range vu.samples {
			ms := millis(smp.Duration)
			s.durations = append(s.durations, ms)
			if _, seen := perStep[smp.Step]; !seen {
				order = append(order, smp.Step)
			}
			perStep[smp.Step] = append(perStep[smp.Step], ms)
			if smp.Failed {
				s.Failed++
				failedPerStep[smp.Step]++
			}
		}
	}

	s.Requests = len(s.durations)
	if s.Requests > 0 {
		s.FailedRate = float64(s.Failed) / float64(s.Requests)
	}
	sort.Float64s(s.durations)
	s.Latency = latency(s.durations)

	for _, name := range order {
		d := perStep[name]
		sort.Float64s(d)
		s.Steps = append(s.Steps, StepSummary{
			Name:     name,
			Requests: len(d),
			Failed:   failedPerStep[name],
			Latency:  latency(d),
		})
	}
	return s
}

// WriteJSON writes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteText renders the summary as tables.
func (s *Summary) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "flow %s: %d VUs, %d iterations (%d aborted) in %s\n\n",
		s.Flow, s.VUs, s.Iterations, s.Aborted, s.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"step", "reqs", "failed", "avg", "min", "med", "max", "p(90)", "p(95)", "p(99)"})
	row := func(name string, reqs, failed int, l LatencyStats) []string {
		return []string{
			name, strconv.Itoa(reqs), strconv.Itoa(failed),
			ms(l.Avg), ms(l.Min), ms(l.Med), ms(l.Max), ms(l.P90), ms(l.P95), ms(l.P99),
		}
	}
	for _, st := range s.Steps {
		table.Append(row(st.Name, st.Requests, st.Failed, st.Latency))
	}
	table.SetFooter(row("total", s.Requests, s.Failed, s.Latency))
	table.Render()

	if _, err := fmt.Fprintf(w, "\nchecks: %d passed, %d failed; http_req_failed: %.2f%%\n",
		s.ChecksPassed, s.ChecksFailed, s.FailedRate*100); err != nil {
		return err
	}

	if len(s.Thresholds) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	th := tablewriter.NewWriter(w)
	th.SetHeader([]string{"metric", "threshold", "actual", "result"})
	for _, t := range s.Thresholds {
		result := "ok"
		if !t.Pass {
			result = "BREACHED"
		}
		th.Append([]string{t.Metric, t.Expr, strconv.FormatFloat(t.Actual, 'f', 4, 64), result})
	}
	th.Render()
	return nil
}

func ms(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "ms"
}
