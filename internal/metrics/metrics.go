package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Decision outcome indices for counter array
const (
	dGranted = iota
	dDenied
	dNotFound
	dAuthFailed
	dBadRequest
	dUpstream
	dOther
	decisionCount
)

func decisionIndex(outcome string) int {
	switch outcome {
	case "granted":
		return dGranted
	case "denied":
		return dDenied
	case "not_found":
		return dNotFound
	case "auth_failed":
		return dAuthFailed
	case "validation_error":
		return dBadRequest
	case "upstream_error":
		return dUpstream
	default:
		return dOther
	}
}

func decisionLabel(idx int) string {
	switch idx {
	case dGranted:
		return "granted"
	case dDenied:
		return "denied"
	case dNotFound:
		return "not_found"
	case dAuthFailed:
		return "auth_failed"
	case dBadRequest:
		return "validation_error"
	case dUpstream:
		return "upstream_error"
	default:
		return "other"
	}
}

// Collector tracks delivery decisions and exposes Prometheus-compatible
// /metrics.
type Collector struct {
	decisions     [decisionCount]atomic.Int64
	requestsTotal atomic.Int64
	startTime     time.Time
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// StartTime returns when the collector was created (server start time).
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// RecordRequest increments the request counter.
func (c *Collector) RecordRequest() {
	c.requestsTotal.Add(1)
}

// RecordDecision increments the counter for the given decision outcome.
func (c *Collector) RecordDecision(outcome string) {
	c.decisions[decisionIndex(outcome)].Add(1)
}

// ServeHTTP handles GET /metrics in Prometheus exposition format.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for i := 0; i < decisionCount; i++ {
		fmt.Fprintf(w, "filegate_decisions_total{outcome=%q} %d\n", decisionLabel(i), c.decisions[i].Load())
	}
	fmt.Fprintf(w, "filegate_requests_total %d\n", c.requestsTotal.Load())
	fmt.Fprintf(w, "filegate_uptime_seconds %d\n", int64(time.Since(c.startTime).Seconds()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(w, "filegate_goroutines %d\n", runtime.NumGoroutine())
	fmt.Fprintf(w, "filegate_heap_alloc_bytes %d\n", mem.HeapAlloc)
}
