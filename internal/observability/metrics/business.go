package metrics

import (
	"time"

	"feedwatch/internal/domain/entity"
)

// RecordFetchAttempt records one HTTP attempt. kind is empty on success.
func RecordFetchAttempt(strategy entity.Strategy, kind entity.FailureKind, elapsed time.Duration) {
	outcome := "success"
	if kind != entity.FailureNone {
		outcome = string(kind)
	}
	FetchAttemptsTotal.WithLabelValues(string(strategy), outcome).Inc()
	FetchDuration.WithLabelValues(string(strategy)).Observe(elapsed.Seconds())
}

// RecordPipelineRun records a finished run.
func RecordPipelineRun(outcome string, duration time.Duration) {
	PipelineRunsTotal.WithLabelValues(outcome).Inc()
	PipelineDuration.Observe(duration.Seconds())
}

// RecordItems records the per-item results of one upsert pass.
func RecordItems(inserted, updated, dropped int) {
	if inserted > 0 {
		ItemsProcessedTotal.WithLabelValues("inserted").Add(float64(inserted))
	}
	if updated > 0 {
		ItemsProcessedTotal.WithLabelValues("updated").Add(float64(updated))
	}
	if dropped > 0 {
		ItemsProcessedTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// RecordHeavyPath records a heavy path outcome.
func RecordHeavyPath(success bool) {
	if success {
		HeavyPathTotal.WithLabelValues("success").Inc()
		return
	}
	HeavyPathTotal.WithLabelValues("failure").Inc()
}

// RecordCacheLookup records a cache lookup result: hit, miss or error.
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordStatusTransition records a status change. Equal statuses are ignored.
func RecordStatusTransition(from, to entity.FeedStatus) {
	if from == to {
		return
	}
	StatusTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// RecordAutoPause records an automatic pause. reason is "consecutive" or "total".
func RecordAutoPause(reason string) {
	AutoPausesTotal.WithLabelValues(reason).Inc()
}

// RecordDiscovery records a discovery run.
func RecordDiscovery(found int, err error) {
	switch {
	case err != nil:
		DiscoveryRunsTotal.WithLabelValues("error").Inc()
	case found == 0:
		DiscoveryRunsTotal.WithLabelValues("none").Inc()
	default:
		DiscoveryRunsTotal.WithLabelValues("found").Inc()
	}
}

// RecordCleanup records a retention pass; remaining is the count after it.
func RecordCleanup(remaining int64, deleted int64) {
	ItemsStored.Set(float64(remaining))
	if deleted > 0 {
		CleanupDeletedTotal.Add(float64(deleted))
	}
}

// UpdateFeedsByStatus replaces the per-status gauges. Statuses missing from
// counts are reset to zero.
func UpdateFeedsByStatus(counts map[entity.FeedStatus]int) {
	for _, s := range []entity.FeedStatus{
		entity.FeedStatusActive,
		entity.FeedStatusDegraded,
		entity.FeedStatusBlocked,
		entity.FeedStatusUnreachable,
		entity.FeedStatusPaused,
	} {
		FeedsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
