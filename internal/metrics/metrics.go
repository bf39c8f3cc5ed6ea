// Package metrics holds the Prometheus collectors shared by the API and the
// repair worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_scans_recorded_total",
		Help: "Scans written to both representations.",
	})

	// WriteFailures counts writes that failed after retries, by representation
	// ("nested" or "flat").
	WriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_scan_write_failures_total",
		Help: "Scan writes that failed after retries.",
	}, []string{"representation"})

	RepairsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_repairs_enqueued_total",
		Help: "Repair messages published for partially written scans.",
	})

	RepairsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_repairs_applied_total",
		Help: "Repair messages processed by the worker, by result.",
	}, []string{"result"})

	MaintenanceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_maintenance_updates_total",
		Help: "Documents updated by maintenance jobs.",
	}, []string{"job"})

	ReadFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_read_unordered_fallbacks_total",
		Help: "Ordered scan queries that fell back to an in-memory sort.",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkin_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})
)
