package entity

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// FailureKind is the closed set of fetch failure categories.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureTimeout         FailureKind = "timeout"
	FailureNetwork         FailureKind = "network"
	FailurePermanentClient FailureKind = "permanent_client"
	FailureClientError     FailureKind = "client_error"
	FailureBlocked         FailureKind = "blocked"
	FailureServerError     FailureKind = "server_error"
	FailureMalformed       FailureKind = "malformed"
	FailureUnknown         FailureKind = "unknown"
)

// Retryable reports whether the kind may succeed on an immediate retry
// within the same strategy.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout || k == FailureNetwork || k == FailureServerError
}

// blockSignatures are body or error fragments served by bot-protection layers.
var blockSignatures = []string{
	"access denied",
	"blocked",
	"captcha",
	"cf-chl",
	"attention required",
	"bot detection",
	"are you a robot",
	"forbidden",
}

var timeoutSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var networkSignatures = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"eof",
	"tls",
	"broken pipe",
}

// ClassifyFailure maps an HTTP status code, error text and transport error to
// a FailureKind. It is pure: the same inputs always yield the same kind.
// statusCode is 0 when no response was received.
func ClassifyFailure(statusCode int, errText string, transportErr error) FailureKind {
	switch {
	case statusCode == 404 || statusCode == 410:
		return FailurePermanentClient
	case statusCode == 403 || statusCode == 429 || statusCode == 503 || statusCode == 522 || statusCode == 524:
		return FailureBlocked
	case statusCode >= 500:
		return FailureServerError
	case statusCode >= 400:
		return FailureClientError
	}

	if transportErr != nil {
		if errors.Is(transportErr, context.DeadlineExceeded) || errors.Is(transportErr, os.ErrDeadlineExceeded) {
			return FailureTimeout
		}
		var netErr net.Error
		if errors.As(transportErr, &netErr) && netErr.Timeout() {
			return FailureTimeout
		}
	}

	text := strings.ToLower(errText)
	if text == "" && transportErr != nil {
		text = strings.ToLower(transportErr.Error())
	}

	switch {
	case containsAny(text, timeoutSignatures):
		return FailureTimeout
	case containsAny(text, blockSignatures):
		return FailureBlocked
	case strings.Contains(text, "parse") || strings.Contains(text, "malformed") || strings.Contains(text, "invalid feed"):
		return FailureMalformed
	case containsAny(text, networkSignatures):
		return FailureNetwork
	}

	if transportErr != nil {
		var netErr net.Error
		var opErr *net.OpError
		if errors.As(transportErr, &opErr) || errors.As(transportErr, &netErr) {
			return FailureNetwork
		}
	}
	return FailureUnknown
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
