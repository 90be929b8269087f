// Package observability exposes prometheus metrics for the sync subsystem.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	syncSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "centimo",
			Subsystem: "sync",
			Name:      "sessions_total",
			Help:      "Sync sessions started, by role.",
		},
		[]string{"role"},
	)
	syncExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "centimo",
			Subsystem: "sync",
			Name:      "exchanges_total",
			Help:      "Completed or failed sync exchanges.",
		},
		[]string{"outcome"},
	)
	mergedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "centimo",
			Subsystem: "merge",
			Name:      "records_total",
			Help:      "Records applied by the merge engine.",
		},
	)
	suppressedDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "centimo",
			Subsystem: "merge",
			Name:      "duplicates_suppressed_total",
			Help:      "Incoming transactions suppressed as content duplicates.",
		},
	)
	mergeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "centimo",
			Subsystem: "merge",
			Name:      "failures_total",
			Help:      "Merge calls aborted by an error.",
		},
	)
	protocolRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "centimo",
			Subsystem: "protocol",
			Name:      "rejected_frames_total",
			Help:      "Inbound frames rejected before dispatch.",
		},
	)
)

// RegisterMetrics registers all collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			syncSessions,
			syncExchanges,
			mergedRecords,
			suppressedDuplicates,
			mergeFailures,
			protocolRejections,
		)
	})
}

// RecordSession counts a session start for the given role ("host"/"client").
func RecordSession(role string) {
	RegisterMetrics()
	syncSessions.WithLabelValues(role).Inc()
}

// RecordExchange counts a finished exchange ("success"/"failed"/"aborted").
func RecordExchange(outcome string) {
	RegisterMetrics()
	syncExchanges.WithLabelValues(outcome).Inc()
}

// RecordMerge counts the outcome of one successful merge call.
func RecordMerge(applied, duplicates int) {
	RegisterMetrics()
	mergedRecords.Add(float64(applied))
	suppressedDuplicates.Add(float64(duplicates))
}

// RecordMergeFailure counts an aborted merge call.
func RecordMergeFailure() {
	RegisterMetrics()
	mergeFailures.Inc()
}

// RecordProtocolRejection counts a frame rejected before dispatch.
func RecordProtocolRejection() {
	RegisterMetrics()
	protocolRejections.Inc()
}
