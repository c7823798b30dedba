// Package fetch runs the ingestion pipeline for one feed: fetch, parse,
// normalize, upsert, then health bookkeeping and the status decision.
package fetch

import "errors"

// Sentinel errors for fetch use case operations.
var (
	// ErrFeedNotFound is returned by callers that need the feed to exist.
	// Run itself reports a missing feed as a skip.
	ErrFeedNotFound = errors.New("feed not found")

	// ErrNoEntries indicates that neither the light nor the heavy path
	// produced a usable entry.
	ErrNoEntries = errors.New("no usable entries")
)
