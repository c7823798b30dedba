// Package metrics provides centralized Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch metrics track individual HTTP attempts made by the strategy chain
var (
	// FetchAttemptsTotal counts HTTP attempts by strategy and outcome
	// (success or the failure kind)
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_fetch_attempts_total",
			Help: "Total number of fetch attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// FetchDuration measures a single attempt in seconds
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedwatch_fetch_duration_seconds",
			Help:    "Fetch attempt duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"strategy"},
	)
)

// Pipeline metrics track whole runs for one feed
var (
	// PipelineRunsTotal counts runs by outcome (success, failed, skipped, cached)
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// PipelineDuration measures a run end to end
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedwatch_pipeline_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// ItemsProcessedTotal counts items by result (inserted, updated, dropped)
	ItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_items_processed_total",
			Help: "Total number of feed items processed by result",
		},
		[]string{"result"},
	)

	// HeavyPathTotal counts heavy path invocations by outcome
	HeavyPathTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_heavy_path_total",
			Help: "Total number of heavy path renders by outcome",
		},
		[]string{"outcome"},
	)

	// CacheLookupsTotal counts parsed-content cache lookups (hit, miss, error)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_cache_lookups_total",
			Help: "Total number of parsed-content cache lookups by result",
		},
		[]string{"result"},
	)
)

// Health metrics track status decisions
var (
	// StatusTransitionsTotal counts status changes
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_status_transitions_total",
			Help: "Total number of feed status transitions",
		},
		[]string{"from", "to"},
	)

	// AutoPausesTotal counts feeds paused by failure ceilings
	AutoPausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_auto_pauses_total",
			Help: "Total number of automatic feed pauses by ceiling",
		},
		[]string{"reason"},
	)

	// DiscoveryRunsTotal counts alternative discovery runs by outcome (found, none, error)
	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_discovery_runs_total",
			Help: "Total number of alternative URL discovery runs by outcome",
		},
		[]string{"outcome"},
	)

	// FeedsByStatus is the number of feeds per status, refreshed by the batch job
	FeedsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feedwatch_feeds",
			Help: "Number of feeds by status",
		},
		[]string{"status"},
	)
)

// Retention metrics
var (
	// CleanupDeletedTotal counts items removed by retention
	CleanupDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedwatch_cleanup_deleted_items_total",
			Help: "Total number of items deleted by retention cleanup",
		},
	)

	// ItemsStored is the item count observed by the last retention check
	ItemsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedwatch_items_stored",
			Help: "Number of stored items at the last retention check",
		},
	)
)
