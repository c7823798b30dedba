// Package feed provides the operator-facing feed management use cases:
// registering, importing, pausing, resuming and deactivating feeds.
package feed

import "errors"

// Sentinel errors for feed use case operations.
var (
	// ErrFeedNotFound indicates that the requested feed does not exist.
	ErrFeedNotFound = errors.New("feed not found")

	// ErrDuplicateFeed indicates that a feed with the same URL already exists.
	ErrDuplicateFeed = errors.New("feed with this URL already exists")
)
