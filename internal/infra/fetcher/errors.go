// Package fetcher retrieves raw feed payloads over HTTP through an ordered
// chain of header strategies, and renders pages for the heavy path.
package fetcher

import (
	"errors"
	"fmt"
	"time"

	"feedwatch/internal/domain/entity"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrPrivateIP is returned when a host resolves to a private address
	// while DenyPrivateIPs is set.
	ErrPrivateIP = errors.New("URL resolves to private IP address")

	// ErrTooManyRedirects is returned when the redirect chain is too long.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge is returned when a body exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrRenderFailed is returned when the heavy renderer produced nothing usable.
	ErrRenderFailed = errors.New("render failed")
)

// FetchError describes a failed strategy, or the whole chain when returned
// by Chain.Fetch. StatusCode is 0 when no response arrived.
type FetchError struct {
	Kind       entity.FailureKind
	StatusCode int
	Strategy   entity.Strategy
	Elapsed    time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s fetch failed (%s, HTTP %d): %v", e.Strategy, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch failed (%s): %v", e.Strategy, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError extracts a *FetchError from err's chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
