// Package load drives many concurrent virtual users (VUs) through a flow
// of requests and reports latency percentiles, failure rate, and check
// outcomes against k6-style thresholds.
//
// Each VU owns its own harness.Session per iteration and its own sample
// buffer; buffers are merged only after every VU has stopped.
package load
