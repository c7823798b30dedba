package health

import (
	"fmt"

	"feedwatch/internal/repository"
)

const (
	DefaultMaxConsecutiveFailures = 10
	DefaultMaxTotalFailures       = 100
)

// Pause reasons.
const (
	ReasonConsecutive = "consecutive"
	ReasonTotal       = "total"
)

// AutoPause pauses feeds whose failure counters exceed a ceiling.
// A ceiling of 0 disables that check.
type AutoPause struct {
	MaxConsecutive int
	MaxTotal       int
}

// NewAutoPause returns an AutoPause with the default ceilings.
func NewAutoPause() AutoPause {
	return AutoPause{MaxConsecutive: DefaultMaxConsecutiveFailures, MaxTotal: DefaultMaxTotalFailures}
}

// Check reports whether the counters, read after the failure was applied,
// exceed a ceiling. The consecutive ceiling is checked first.
func (a AutoPause) Check(counts repository.FeedFailureCounts) (pause bool, reason string) {
	if a.MaxConsecutive > 0 && counts.Consecutive > a.MaxConsecutive {
		return true, ReasonConsecutive
	}
	if a.MaxTotal > 0 && counts.Total > a.MaxTotal {
		return true, ReasonTotal
	}
	return false, ""
}

// Validate rejects negative ceilings.
func (a AutoPause) Validate() error {
	if a.MaxConsecutive < 0 || a.MaxTotal < 0 {
		return fmt.Errorf("auto-pause ceilings must not be negative: consecutive=%d total=%d", a.MaxConsecutive, a.MaxTotal)
	}
	return nil
}
