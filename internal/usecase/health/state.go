package health

import "feedwatch/internal/domain/entity"

const (
	// EscalationThreshold is the consecutive failure count at which blocked
	// and timeout failures move a feed to blocked or unreachable.
	EscalationThreshold = 3
	// RecoverySuccesses is the minimum successes in the window for degraded -> active.
	RecoverySuccesses = 5
	// maxDegradingFailures bounds the failures in a full window that degrade an active feed.
	maxDegradingFailures = 2
)

// Input is everything StateMachine.Evaluate looks at.
type Input struct {
	Current     entity.FeedStatus
	Success     bool
	FailureKind entity.FailureKind
	// Consecutive is the counter after this attempt was applied.
	Consecutive int
	// Recent is the log newest first, including this attempt.
	Recent []*entity.HealthLogEntry
}

// Decision is the state machine output.
type Decision struct {
	Next entity.FeedStatus
	// Rule names the rule that fired, "" when nothing changed.
	Rule string
	// Discover is set when the feed entered blocked or unreachable.
	Discover bool
}

// Changed reports whether the decision moves the feed.
func (d Decision) Changed(from entity.FeedStatus) bool {
	return d.Next != from
}

// StateMachine derives the next status. The zero value is ready to use.
type StateMachine struct{}

// Evaluate applies the rules in order; the first match wins. Paused never
// changes here.
func (StateMachine) Evaluate(in Input) Decision {
	stay := Decision{Next: in.Current}
	if in.Current == entity.FeedStatusPaused {
		return stay
	}

	window := in.Recent
	if len(window) > entity.HealthWindow {
		window = window[:entity.HealthWindow]
	}
	successes := entity.CountSuccesses(window)

	if in.Success {
		if in.Consecutive == 0 && in.Current == entity.FeedStatusDegraded && successes >= RecoverySuccesses {
			return Decision{Next: entity.FeedStatusActive, Rule: "recovered"}
		}
		return stay
	}

	if in.FailureKind == entity.FailureBlocked && in.Consecutive >= EscalationThreshold {
		return enter(in.Current, entity.FeedStatusBlocked, "blocked")
	}
	if in.FailureKind == entity.FailureTimeout && in.Consecutive >= EscalationThreshold {
		return enter(in.Current, entity.FeedStatusUnreachable, "unreachable")
	}

	failures := len(window) - successes
	if in.Current == entity.FeedStatusActive && len(window) == entity.HealthWindow &&
		failures >= 1 && failures <= maxDegradingFailures {
		return Decision{Next: entity.FeedStatusDegraded, Rule: "degraded"}
	}
	return stay
}

// enter returns the move to target; discovery runs only on a real transition.
func enter(from, target entity.FeedStatus, rule string) Decision {
	if from == target {
		return Decision{Next: from}
	}
	return Decision{Next: target, Rule: rule, Discover: true}
}
