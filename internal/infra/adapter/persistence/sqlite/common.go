package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
)

// errCritical marks failures that must not be retried by the lock retrier.
var errCritical = errors.New("critical database error")

// criticalError wraps an error to signal repeater to stop retrying.
type criticalError struct {
	err error
}

func (e *criticalError) Error() string        { return e.err.Error() }
func (e *criticalError) Unwrap() error        { return e.err }
func (e *criticalError) Is(target error) bool { return target == errCritical }

// isLockError checks if an error is a SQLite lock/busy error.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "database is locked") ||
		strings.Contains(s, "database table is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withLockRetry runs fn, retrying only on lock contention.
func withLockRetry(ctx context.Context, fn func() error) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	err := retrier.Do(ctx, func() error {
		err := fn()
		if err == nil || isLockError(err) {
			return err
		}
		return &criticalError{err: err}
	}, errCritical)

	var ce *criticalError
	if errors.As(err, &ce) {
		return ce.err
	}
	return err
}

// utc normalizes timestamps so text comparisons in SQLite stay consistent.
func utc(t time.Time) time.Time { return t.UTC() }

