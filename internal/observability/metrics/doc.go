// Package metrics holds the pipeline's Prometheus metrics.
//
// All metrics are registered with the default registry via promauto and
// exposed on the worker's /metrics endpoint.
//
//	start := time.Now()
//	res, err := chain.Fetch(ctx, req)
//	metrics.RecordPipelineRun("success", time.Since(start))
package metrics
