// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package metrics provides Prometheus instrumentation for the sync core:
// remote API calls, batch flushes, playback sessions, reconciliation passes
// and the embedded HTTP API. Collectors are registered with the default
// registry via promauto and exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API Metrics
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trakt_calls_total",
			Help: "Total number of remote API calls",
		},
		[]string{"operation", "status"}, // status: "success", "failure", "rejected"
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trakt_call_duration_seconds",
			Help:    "Remote API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RemoteAdmissionWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trakt_admission_wait_seconds",
			Help:    "Time spent waiting for an admission pool slot",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Batching Queue Metrics
	QueueEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_events_total",
			Help: "Total number of library-change events accepted by the queue",
		},
		[]string{"kind", "event"},
	)

	QueueEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_events_dropped_total",
			Help: "Total number of events dropped at the queue boundary",
		},
		[]string{"reason"}, // "unsupported_kind", "no_profile", "flush_failure"
	)

	QueueFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_flushes_total",
			Help: "Total number of batch flushes",
		},
		[]string{"kind", "event", "trigger"}, // trigger: "cap", "discontinuity", "timer", "drain"
	)

	QueueBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_batch_size",
			Help:    "Number of items in each flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200},
		},
	)

	// Playback Session Metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_sessions_active",
			Help: "Current number of tracked playback sessions",
		},
	)

	ScrobblesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobbles_total",
			Help: "Total number of playback-stop notifications sent",
		},
		[]string{"kind", "result"}, // result: "watched", "cancelled"
	)

	WatchingPingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watching_pings_total",
			Help: "Total number of now-watching pings sent",
		},
		[]string{"kind"},
	)

	// Reconciliation Metrics
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Duration of watched-state reconciliation passes",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ReconcileItemsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_items_updated_total",
			Help: "Total number of local play-state records rewritten",
		},
		[]string{"kind"},
	)

	ReconcileSoftFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_soft_failures_total",
			Help: "Total number of items skipped during reconciliation",
		},
		[]string{"kind", "reason"}, // reason: "read", "save", "lookup", "no_ids"
	)

	ReconcileLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconcile_last_success_timestamp",
			Help: "Unix timestamp of the last successful reconciliation pass",
		},
	)

	// Library Sync Metrics
	LibrarySyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "library_sync_duration_seconds",
			Help:    "Duration of full library sync passes",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	LibrarySyncItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_sync_items_total",
			Help: "Total number of library items pushed during full syncs",
		},
		[]string{"kind"},
	)

	LibrarySyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "library_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful full library sync",
		},
	)

	// Play-State Store Metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of play-state store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "get", "save", "delete"
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total number of failed play-state store queries",
		},
		[]string{"operation"},
	)

	// HTTP API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Event Bus Metrics
	BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of host events published on the internal bus",
		},
		[]string{"topic"},
	)

	BusHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_handler_errors_total",
			Help: "Total number of event handler failures",
		},
		[]string{"topic"},
	)
)

// RecordRemoteCall records one remote API call outcome with its duration.
func RecordRemoteCall(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	RemoteCallsTotal.WithLabelValues(operation, status).Inc()
	RemoteCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRemoteRejection records a call rejected before it reached the wire,
// either by the admission pool (context cancelled while queued) or by an
// open circuit breaker.
func RecordRemoteRejection(operation string) {
	RemoteCallsTotal.WithLabelValues(operation, "rejected").Inc()
}

// RecordBatchFlush records one flushed batch.
func RecordBatchFlush(kind, event, trigger string, size int) {
	QueueFlushesTotal.WithLabelValues(kind, event, trigger).Inc()
	QueueBatchSize.Observe(float64(size))
}

// RecordStoreQuery records one play-state store query outcome.
func RecordStoreQuery(operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records one HTTP API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
