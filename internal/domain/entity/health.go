package entity

import "time"

// Strategy identifies which fetch approach produced an outcome.
type Strategy string

const (
	StrategyMinimal   Strategy = "minimal"
	StrategyBrowser   Strategy = "browser"
	StrategyAlternate Strategy = "alternate"
	StrategyHeavy     Strategy = "heavy"
	StrategyNone      Strategy = "none"
)

// HealthWindow is the number of recent attempts considered by status decisions.
const HealthWindow = 10

// HealthLogEntry records a single pipeline attempt for a feed.
type HealthLogEntry struct {
	ID           int64
	FeedID       int64
	AttemptedAt  time.Time
	Success      bool
	StatusCode   int // 0 when no HTTP response was received
	ResponseTime time.Duration
	Strategy     Strategy
	ErrorMessage string
	FailureKind  FailureKind
}

// CountSuccesses returns how many entries in log succeeded.
func CountSuccesses(log []*HealthLogEntry) int {
	n := 0
	for _, e := range log {
		if e.Success {
			n++
		}
	}
	return n
}
