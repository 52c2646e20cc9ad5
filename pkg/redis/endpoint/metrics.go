package endpoint

import (
	"strings"

	"go.uber.org/atomic"

	"github.com/mgtv-tech/redis-ferry/pkg/metric"
)

// Counters follow the endpoint address, sanitized so it is usable as a
// label or measurement tag : dots and colons become underscores.
var (
	sendCounter = metric.NewCounterVec(metric.CounterVecOpts{
		Namespace: "redisferry",
		Subsystem: "endpoint",
		Name:      "send",
		Labels:    []string{"address"},
	})
	successCounter = metric.NewCounterVec(metric.CounterVecOpts{
		Namespace: "redisferry",
		Subsystem: "endpoint",
		Name:      "success",
		Labels:    []string{"address"},
	})
	failureCounter = metric.NewCounterVec(metric.CounterVecOpts{
		Namespace: "redisferry",
		Subsystem: "endpoint",
		Name:      "failure",
		Labels:    []string{"address", "reason"},
	})
	reconnectCounter = metric.NewCounterVec(metric.CounterVecOpts{
		Namespace: "redisferry",
		Subsystem: "endpoint",
		Name:      "reconnect",
		Labels:    []string{"address"},
	})
	sendDuration = metric.NewHistogramVec(metric.HistogramVecOpts{
		Namespace: "redisferry",
		Subsystem: "endpoint",
		Name:      "send_duration_ns",
		Labels:    []string{"address"},
		Buckets:   []float64{1e4, 1e5, 1e6, 1e7, 1e8, 1e9},
	})
)

const (
	FailureRespond   = "respond"
	FailureConnect   = "connect"
	FailureCrossSlot = "cross-slot"
)

func sanitizeAddress(addr string) string {
	return strings.NewReplacer(".", "_", ":", "_").Replace(addr)
}

// Stats aggregates one endpoint's counters. The struct survives reopen, so
// a lane's history is continuous across reconnects.
type Stats struct {
	Send      atomic.Int64
	Success   atomic.Int64
	Failure   atomic.Int64
	Reconnect atomic.Int64
}

func (s *Stats) send(addr string, durationNs int64) {
	if s == nil {
		return
	}
	s.Send.Inc()
	sendCounter.Inc(addr)
	sendDuration.Observe(durationNs, addr)
}

func (s *Stats) success(addr string) {
	if s == nil {
		return
	}
	s.Success.Inc()
	successCounter.Inc(addr)
}

func (s *Stats) failure(addr string, reason string) {
	if s == nil {
		return
	}
	s.Failure.Inc()
	failureCounter.Inc(addr, reason)
}

func (s *Stats) reconnect(addr string) {
	if s == nil {
		return
	}
	s.Reconnect.Inc()
	reconnectCounter.Inc(addr)
}
