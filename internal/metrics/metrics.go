// Package metrics exposes Prometheus instrumentation for the trading core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesCompleted counts finished trading cycles per agent.
	CyclesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_cycles_completed_total",
		Help: "Completed trading cycles.",
	}, []string{"agent"})

	// CycleFailures counts cycles that ended in a skip-this-cycle error.
	CycleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_cycle_failures_total",
		Help: "Trading cycles that failed and were skipped.",
	}, []string{"agent"})

	// GateWaitSeconds observes how long agents wait for an execution slot.
	GateWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trader_gate_wait_seconds",
		Help:    "Time spent waiting for the execution gate.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	// GateTimeouts counts acquisitions abandoned at the wait timeout.
	GateTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trader_gate_timeouts_total",
		Help: "Execution gate acquisitions that timed out.",
	})

	// DecisionsExecuted counts decisions executed, labeled by action.
	DecisionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_decisions_executed_total",
		Help: "Decisions executed by the trading core.",
	}, []string{"agent", "action"})

	// DecisionsSkipped counts decisions rejected by sizing or execution.
	DecisionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_decisions_skipped_total",
		Help: "Decisions skipped due to sizing rejection or execution failure.",
	}, []string{"agent", "reason"})
)

// Serve starts a Prometheus scrape endpoint on addr. It blocks, so run it
// in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
