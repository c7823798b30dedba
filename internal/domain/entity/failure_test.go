package entity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o wait exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		errText string
		err     error
		want    FailureKind
	}{
		{name: "404 is permanent", status: 404, want: FailurePermanentClient},
		{name: "410 is permanent", status: 410, want: FailurePermanentClient},
		{name: "403 is blocked", status: 403, want: FailureBlocked},
		{name: "429 is blocked", status: 429, want: FailureBlocked},
		{name: "503 is blocked", status: 503, want: FailureBlocked},
		{name: "522 is blocked", status: 522, want: FailureBlocked},
		{name: "524 is blocked", status: 524, want: FailureBlocked},
		{name: "500 is server error", status: 500, want: FailureServerError},
		{name: "502 is server error", status: 502, want: FailureServerError},
		{name: "400 is client error", status: 400, want: FailureClientError},
		{name: "401 is client error", status: 401, want: FailureClientError},
		{name: "status wins over text", status: 500, errText: "captcha", want: FailureServerError},
		{name: "context deadline", err: context.DeadlineExceeded, want: FailureTimeout},
		{name: "wrapped deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: FailureTimeout},
		{name: "net timeout", err: timeoutErr{}, want: FailureTimeout},
		{name: "timeout text", errText: "Client.Timeout exceeded while awaiting headers", want: FailureTimeout},
		{name: "captcha text", errText: "Attention Required! captcha page", want: FailureBlocked},
		{name: "explicit blocked", errText: "blocked by upstream", want: FailureBlocked},
		{name: "connection refused", errText: "dial tcp: connection refused", want: FailureNetwork},
		{name: "dns failure", errText: "lookup nope.invalid: no such host", want: FailureNetwork},
		{name: "parse failure", errText: "failed to parse feed", want: FailureMalformed},
		{name: "op error without text", err: &net.OpError{Op: "dial", Err: errors.New("boom")}, want: FailureNetwork},
		{name: "nothing known", errText: "something odd", want: FailureUnknown},
		{name: "empty", want: FailureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFailure(tt.status, tt.errText, tt.err)
			if got != tt.want {
				t.Errorf("ClassifyFailure(%d, %q, %v) = %q, want %q", tt.status, tt.errText, tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyFailure_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		if got := ClassifyFailure(403, "", nil); got != FailureBlocked {
			t.Fatalf("iteration %d: got %q", i, got)
		}
	}
}

func TestFailureKind_Retryable(t *testing.T) {
	retryable := map[FailureKind]bool{
		FailureTimeout:         true,
		FailureNetwork:         true,
		FailureServerError:     true,
		FailurePermanentClient: false,
		FailureBlocked:         false,
		FailureClientError:     false,
		FailureMalformed:       false,
		FailureUnknown:         false,
	}
	for kind, want := range retryable {
		if got := kind.Retryable(); got != want {
			t.Errorf("%q.Retryable() = %v, want %v", kind, got, want)
		}
	}
}
