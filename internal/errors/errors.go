// Package errors provides the error vocabulary shared by the coordinator's
// components: sentinel errors, typed domain errors carrying context, and
// classification helpers used to decide between retry, backoff and fail.
//
// Domain errors:
//   - HelperError: failures invoking the identity helper executable
//   - ExchangeError: failures exchanging a session credential for an access token
//   - ChannelError: failures on the Game Coordinator channel
//   - BackendError: failures calling the matchmaking REST backend
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrHelperTimeout) { ... }
//
//	var exErr *errors.ExchangeError
//	if errors.As(err, &exErr) && exErr.StatusCode == 401 { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Identity sentinel errors
var (
	// ErrProviderNotRunning indicates the platform provider process is absent.
	ErrProviderNotRunning = New("identity provider not running")
	// ErrHelperMissing indicates the helper executable does not exist.
	ErrHelperMissing = New("identity helper not found")
	// ErrHelperTimeout indicates the helper did not exit in time and was killed.
	ErrHelperTimeout = New("identity helper timed out")
	// ErrMalformedSnapshot indicates the helper produced no usable snapshot.
	ErrMalformedSnapshot = New("malformed identity snapshot")
)

// Credential exchange sentinel errors
var (
	// ErrExchangeRejected indicates the backend refused the credential.
	ErrExchangeRejected = New("credential exchange rejected")
	// ErrEmptyToken indicates the backend accepted the call but returned no token.
	ErrEmptyToken = New("empty access token")
)

// Channel sentinel errors
var (
	// ErrNotConnected indicates a command was issued without a live connection.
	ErrNotConnected = New("not connected")
	// ErrHandshakeRejected indicates the server refused the auth handshake.
	ErrHandshakeRejected = New("handshake rejected")
	// ErrDecode indicates an inbound payload did not match its topic schema.
	ErrDecode = New("payload decode failed")
	// ErrUnknownTopic indicates an inbound topic with no registered schema.
	ErrUnknownTopic = New("unknown topic")
)

// Session sentinel errors
var (
	// ErrStaleResult indicates an async result was superseded before it arrived.
	ErrStaleResult = New("stale result discarded")
	// ErrNoAccessToken indicates an operation that needs a token ran without one.
	ErrNoAccessToken = New("no access token")
	// ErrPartyFull indicates the party is at capacity.
	ErrPartyFull = New("party is full")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// CoordinatorError is implemented by every typed error in this package.
type CoordinatorError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsRetryable() bool { return e.retryable }

func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// HelperError describes a failed identity helper invocation.
//
//	err := errors.NewHelperError("helper timed out", errors.ErrHelperTimeout).WithPath(p)
type HelperError struct {
	baseError
	Path     string
	ExitCode int
	Stderr   string
}

// NewHelperError creates a HelperError. Helper failures are retried by the
// supervisor with backoff, so they default to retryable.
func NewHelperError(message string, cause error) *HelperError {
	return &HelperError{
		baseError: baseError{message: message, cause: cause, severity: SeverityWarning, retryable: true},
		ExitCode:  -1,
	}
}

// WithPath records the helper executable path.
func (e *HelperError) WithPath(path string) *HelperError {
	e.Path = path
	return e
}

// WithExitCode records the helper's exit status.
func (e *HelperError) WithExitCode(code int) *HelperError {
	e.ExitCode = code
	return e
}

// WithStderr records a trimmed excerpt of the helper's stderr.
func (e *HelperError) WithStderr(stderr string) *HelperError {
	e.Stderr = strings.TrimSpace(stderr)
	return e
}

func (e *HelperError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.format("helper error", parts)
}

// ExchangeError describes a failed credential exchange.
type ExchangeError struct {
	baseError
	StatusCode int
}

// NewExchangeError creates an ExchangeError. A status of 0 means the
// request never got a response.
func NewExchangeError(message string, statusCode int, cause error) *ExchangeError {
	return &ExchangeError{
		baseError: baseError{
			message:   message,
			cause:     cause,
			severity:  SeverityWarning,
			retryable: statusCode == 0 || statusCode >= 500,
		},
		StatusCode: statusCode,
	}
}

func (e *ExchangeError) Error() string {
	var parts []string
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	return e.format("exchange error", parts)
}

// ChannelError describes a Game Coordinator channel failure.
type ChannelError struct {
	baseError
	Endpoint string
	Topic    string
}

// NewChannelError creates a ChannelError. Transport failures are retryable.
func NewChannelError(message string, cause error) *ChannelError {
	return &ChannelError{
		baseError: baseError{message: message, cause: cause, severity: SeverityWarning, retryable: true},
	}
}

// WithEndpoint records the server URL.
func (e *ChannelError) WithEndpoint(endpoint string) *ChannelError {
	e.Endpoint = endpoint
	return e
}

// WithTopic records the topic involved.
func (e *ChannelError) WithTopic(topic string) *ChannelError {
	e.Topic = topic
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ChannelError) WithRetryable(r bool) *ChannelError {
	e.retryable = r
	return e
}

func (e *ChannelError) Error() string {
	var parts []string
	if e.Endpoint != "" {
		parts = append(parts, "endpoint="+e.Endpoint)
	}
	if e.Topic != "" {
		parts = append(parts, "topic="+e.Topic)
	}
	return e.format("channel error", parts)
}

// BackendError describes a failed REST call.
type BackendError struct {
	baseError
	Operation  string
	StatusCode int
}

// NewBackendError creates a BackendError for the named operation.
func NewBackendError(operation string, statusCode int, cause error) *BackendError {
	return &BackendError{
		baseError: baseError{
			message:   operation + " failed",
			cause:     cause,
			severity:  SeverityWarning,
			retryable: statusCode == 0 || statusCode == 429 || statusCode >= 500,
		},
		Operation:  operation,
		StatusCode: statusCode,
	}
}

// WithRetryable sets whether the error is retryable.
func (e *BackendError) WithRetryable(r bool) *BackendError {
	e.retryable = r
	return e
}

func (e *BackendError) Error() string {
	var parts []string
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	return e.format("backend error", parts)
}

// TimeoutError reports that a named operation exceeded its deadline.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	cause     error
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(operation string, d time.Duration) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: d}
}

// WithCause attaches the underlying error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrTimeout) hold for any TimeoutError.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsRetryable reports whether err is transient: a typed error marked
// retryable, a TimeoutError, or anything wrapping ErrTimeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce CoordinatorError
	if As(err, &ce) {
		return ce.IsRetryable()
	}
	return Is(err, ErrTimeout) || Is(err, ErrHelperTimeout)
}

// IsTransient is IsRetryable under the name used by the refresh loops.
func IsTransient(err error) bool { return IsRetryable(err) }

// IsMalformed reports whether err stems from unusable data rather than a
// failed transport: bad snapshots, undecodable payloads and empty tokens.
func IsMalformed(err error) bool {
	return Is(err, ErrMalformedSnapshot) || Is(err, ErrDecode) || Is(err, ErrEmptyToken)
}

// IsCanceled reports whether err represents caller cancellation.
func IsCanceled(err error) bool {
	return Is(err, ErrCanceled) || Is(err, context.Canceled)
}

// GetSeverity returns the severity of a typed error, SeverityError otherwise.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var ce CoordinatorError
	if As(err, &ce) {
		return ce.Severity()
	}
	return SeverityError
}

// Wrap annotates err with message, returning nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message, returning nil for a nil err.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
