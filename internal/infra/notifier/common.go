package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDFromContext returns the request id attached by a notifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RateLimitError represents a 429 from a webhook service.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a non-429 4xx from a webhook service.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx from a webhook service.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

func is429Error(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// isRetryableError: 5xx and transport errors retry, 4xx never does.
// 429 is handled separately by the caller.
func isRetryableError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// truncate cuts text to maxRunes runes including suffix.
func truncate(text string, maxRunes int, suffix string) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	keep := maxRunes - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	return string([]rune(text)[:keep]) + suffix
}

// postJSON posts payload and classifies the reply. retryAfter extracts the
// service-specific back-off from a 429.
func postJSON(ctx context.Context, client *http.Client, service, url string, payload any,
	retryAfter func(*http.Response, []byte) time.Duration) error {

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    service + " rate limit exceeded",
			RetryAfter: retryAfter(resp, body),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API client error: %s", service, string(body)),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s API server error: %s", service, string(body)),
		}
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// retryPolicy drives sendWithRetry.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// sendWithRetry calls send until it succeeds, a non-retryable error occurs
// or attempts run out. 429 replies sleep for their retry-after.
func sendWithRetry(ctx context.Context, service string, feedID int64, p retryPolicy, send func(context.Context) error) error {
	requestID := RequestIDFromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := send(ctx)
		if err == nil {
			slog.Info(service+" notification successful",
				slog.String("request_id", requestID),
				slog.Int64("feed_id", feedID),
				slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rl, ok := is429Error(err); ok {
			slog.Warn(service+" rate limit hit, backing off",
				slog.String("request_id", requestID),
				slog.Int64("feed_id", feedID),
				slog.Duration("retry_after", rl.RetryAfter),
				slog.Int("attempt", attempt))
			if attempt == p.maxAttempts {
				break
			}
			select {
			case <-time.After(rl.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			slog.Error(service+" notification failed with non-retryable error",
				slog.String("request_id", requestID),
				slog.Int64("feed_id", feedID),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < p.maxAttempts {
			delay := p.baseDelay * time.Duration(attempt)
			slog.Warn(service+" API request failed, retrying",
				slog.String("request_id", requestID),
				slog.Int64("feed_id", feedID),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	slog.Error(service+" notification failed after all retries",
		slog.String("request_id", requestID),
		slog.Int64("feed_id", feedID),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", p.maxAttempts))
	return fmt.Errorf("%s notification failed after %d attempts: %w", service, p.maxAttempts, lastErr)
}
