package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHelperError(t *testing.T) {
	err := NewHelperError("helper did not exit", ErrHelperTimeout).
		WithPath("/opt/d2c/helper").
		WithExitCode(137).
		WithStderr("  killed\n")

	if !Is(err, ErrHelperTimeout) {
		t.Error("expected errors.Is(err, ErrHelperTimeout)")
	}
	if !err.IsRetryable() {
		t.Error("helper errors should be retryable")
	}
	if err.Stderr != "killed" {
		t.Errorf("Stderr = %q, want trimmed", err.Stderr)
	}
	msg := err.Error()
	for _, want := range []string{"helper error", "path=/opt/d2c/helper", "exit=137", "identity helper timed out"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestHelperErrorWithoutExitCode(t *testing.T) {
	err := NewHelperError("start failed", ErrHelperMissing)
	if strings.Contains(err.Error(), "exit=") {
		t.Errorf("Error() = %q, should omit exit code", err.Error())
	}
}

func TestExchangeErrorRetryability(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{401, false},
		{403, false},
		{502, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := NewExchangeError("exchange failed", tt.status, ErrExchangeRejected)
			if got := IsRetryable(err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
			if !Is(err, ErrExchangeRejected) {
				t.Error("cause lost")
			}
		})
	}
}

func TestChannelError(t *testing.T) {
	err := NewChannelError("decode", ErrDecode).
		WithEndpoint("wss://gc.example").
		WithTopic("QUEUE_STATE").
		WithRetryable(false)

	if IsRetryable(err) {
		t.Error("WithRetryable(false) ignored")
	}
	if !IsMalformed(err) {
		t.Error("decode failures should classify as malformed")
	}
	if !strings.Contains(err.Error(), "topic=QUEUE_STATE") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestBackendError(t *testing.T) {
	err := NewBackendError("get party", 429, nil)
	if !err.IsRetryable() {
		t.Error("429 should be retryable")
	}
	if err.Error() != "backend error [status=429]: get party failed" {
		t.Errorf("Error() = %q", err.Error())
	}

	var be *BackendError
	wrapped := Wrap(err, "refresh party")
	if !As(wrapped, &be) || be.Operation != "get party" {
		t.Error("errors.As through Wrap failed")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("exchange", 10*time.Second).WithCause(context.DeadlineExceeded)
	if !Is(err, ErrTimeout) {
		t.Error("TimeoutError should match ErrTimeout")
	}
	if !Is(err, context.DeadlineExceeded) {
		t.Error("cause should be reachable")
	}
	if !IsRetryable(err) {
		t.Error("timeouts are retryable")
	}
}

func TestIsCanceled(t *testing.T) {
	if !IsCanceled(fmt.Errorf("wrapped: %w", context.Canceled)) {
		t.Error("context.Canceled not recognized")
	}
	if !IsCanceled(ErrCanceled) {
		t.Error("ErrCanceled not recognized")
	}
	if IsCanceled(ErrTimeout) {
		t.Error("timeout is not cancellation")
	}
}

func TestGetSeverity(t *testing.T) {
	if GetSeverity(nil) != SeverityDebug {
		t.Error("nil should be debug")
	}
	if GetSeverity(New("plain")) != SeverityError {
		t.Error("untyped errors default to error")
	}
	if GetSeverity(NewBackendError("x", 500, nil)) != SeverityWarning {
		t.Error("backend errors are warnings")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "msg %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
	err := Wrapf(ErrStaleResult, "room %s", "r1")
	if err.Error() != "room r1: stale result discarded" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
}
