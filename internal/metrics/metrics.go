// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

// Package metrics defines the Prometheus instrumentation for the sync
// engine: snapshot fetches, delta application by source, push-channel
// health, recommendation paths, and location resolution outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delta source label values.
const (
	SourcePoll       = "poll"
	SourcePush       = "push"
	SourceOptimistic = "optimistic"
	SourceRollback   = "rollback"
)

// Recommendation path label values.
const (
	PathRemote   = "remote"
	PathFallback = "fallback"
	PathUnranked = "unranked"
)

var (
	// Sync metrics

	SnapshotFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventscope_snapshot_fetch_duration_seconds",
			Help:    "Duration of upstream event snapshot fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // "success", "error"
	)

	DeltasApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_deltas_applied_total",
			Help: "Store updates applied by source; polls count one per snapshot replacement",
		},
		[]string{"source"},
	)

	DeltasIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_deltas_ignored_total",
			Help: "Participant deltas dropped as no-ops (idempotent repeats, unknown events)",
		},
		[]string{"source"},
	)

	StoreEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventscope_store_events",
			Help: "Events currently held in the canonical store",
		},
	)

	// Push channel metrics

	WSReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventscope_ws_reconnects_total",
			Help: "Push-channel reconnection attempts",
		},
	)

	WSFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventscope_ws_frames_dropped_total",
			Help: "Malformed or unrecognized push frames dropped",
		},
	)

	// Recommendation metrics

	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_recommendation_requests_total",
			Help: "Recommendation computations by ranking path",
		},
		[]string{"path"},
	)

	// Location metrics

	LocationResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_location_resolutions_total",
			Help: "Location pipeline completions by detection method",
		},
		[]string{"method"},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventscope_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventscope_circuit_breaker_trips_total",
			Help: "Circuit breaker transitions to the open state",
		},
		[]string{"name"},
	)
)
