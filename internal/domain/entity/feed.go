package entity

import (
	"strings"
	"time"
)

// FeedStatus is the operational status derived from recent fetch outcomes.
type FeedStatus string

const (
	FeedStatusActive      FeedStatus = "active"
	FeedStatusDegraded    FeedStatus = "degraded"
	FeedStatusBlocked     FeedStatus = "blocked"
	FeedStatusUnreachable FeedStatus = "unreachable"
	FeedStatusPaused      FeedStatus = "paused"
)

// Valid reports whether s is one of the known statuses.
func (s FeedStatus) Valid() bool {
	switch s {
	case FeedStatusActive, FeedStatusDegraded, FeedStatusBlocked, FeedStatusUnreachable, FeedStatusPaused:
		return true
	}
	return false
}

// DefaultIntervalMinutes is the poll interval used when a feed does not specify one.
const DefaultIntervalMinutes = 30

// Feed is a remote content feed polled by the ingestion worker.
// Counters and timestamps are owned by the fetch pipeline; at most one
// pipeline run mutates a given feed at a time.
type Feed struct {
	ID                  int64
	Name                string
	URL                 string
	Active              bool
	Status              FeedStatus
	IntervalMinutes     int
	ConsecutiveFailures int
	TotalFailures       int
	LastFetchAt         *time.Time
	LastSuccessAt       *time.Time
	LastError           string
	TimeoutSeconds      int  // 0 uses the worker default
	RequiresHeavy       bool // set once the heavy path produced items
	Metadata            FeedMetadata
	CreatedAt           time.Time
}

// FeedMetadata is the free-form bag stored alongside a feed.
// Alternative URLs are suggestions only and are never applied automatically.
type FeedMetadata struct {
	AlternativeURLs []string   `json:"alternative_urls,omitempty" yaml:"alternative_urls,omitempty"`
	DiscoveredAt    *time.Time `json:"discovered_at,omitempty" yaml:"discovered_at,omitempty"`
}

// Interval returns the poll interval, falling back to DefaultIntervalMinutes.
func (f *Feed) Interval() time.Duration {
	if f.IntervalMinutes <= 0 {
		return DefaultIntervalMinutes * time.Minute
	}
	return time.Duration(f.IntervalMinutes) * time.Minute
}

// Timeout returns the per-attempt timeout override or def when unset.
func (f *Feed) Timeout(def time.Duration) time.Duration {
	if f.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Validate checks the fields an operator supplies when registering a feed.
func (f *Feed) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.URL = strings.TrimSpace(f.URL)

	if f.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if err := ValidateURL(f.URL); err != nil {
		return err
	}
	if f.IntervalMinutes < 0 {
		return &ValidationError{Field: "interval_minutes", Message: "interval must not be negative"}
	}
	if f.TimeoutSeconds < 0 {
		return &ValidationError{Field: "timeout_seconds", Message: "timeout must not be negative"}
	}
	if f.Status == "" {
		f.Status = FeedStatusActive
	}
	if !f.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown status " + string(f.Status)}
	}
	return nil
}
