// Package health records fetch attempts and derives feed status from them.
//
// Tracker persists one log entry per pipeline attempt. StateMachine is a pure
// function of the current status, the attempt outcome and the recent log.
// AutoPause enforces failure ceilings on top of the state machine.
package health

import (
	"context"
	"fmt"
	"time"

	"feedwatch/internal/domain/entity"
	"feedwatch/internal/repository"
)

// Attempt is the outcome of one pipeline attempt.
type Attempt struct {
	FeedID       int64
	Success      bool
	StatusCode   int
	ResponseTime time.Duration
	Strategy     entity.Strategy
	ErrorMessage string
	FailureKind  entity.FailureKind
}

// Tracker is the append-only attempt log.
type Tracker struct {
	repo repository.HealthLogRepository
	now  func() time.Time
}

// NewTracker returns a Tracker. now may be nil.
func NewTracker(repo repository.HealthLogRepository, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{repo: repo, now: now}
}

// RecordAttempt appends one entry for the attempt.
func (t *Tracker) RecordAttempt(ctx context.Context, a Attempt) (*entity.HealthLogEntry, error) {
	entry := &entity.HealthLogEntry{
		FeedID:       a.FeedID,
		AttemptedAt:  t.now().UTC(),
		Success:      a.Success,
		StatusCode:   a.StatusCode,
		ResponseTime: a.ResponseTime,
		Strategy:     a.Strategy,
		ErrorMessage: a.ErrorMessage,
		FailureKind:  a.FailureKind,
	}
	if entry.Strategy == "" {
		entry.Strategy = entity.StrategyNone
	}
	if entry.Success {
		entry.ErrorMessage = ""
		entry.FailureKind = ""
	}
	if err := t.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append health log: %w", err)
	}
	return entry, nil
}

// Recent returns up to n entries, newest first. n <= 0 uses HealthWindow.
func (t *Tracker) Recent(ctx context.Context, feedID int64, n int) ([]*entity.HealthLogEntry, error) {
	if n <= 0 {
		n = entity.HealthWindow
	}
	entries, err := t.repo.Recent(ctx, feedID, n)
	if err != nil {
		return nil, fmt.Errorf("recent health log: %w", err)
	}
	return entries, nil
}
