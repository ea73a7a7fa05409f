package allocate

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the machine-readable failure classification returned to callers.
// Values are part of the API contract; dialers branch on them.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidDestination Kind = "invalid_destination"
	KindRateLimited        Kind = "rate_limited"
	KindNoneAvailable      Kind = "none_available"
	KindUnavailable        Kind = "unavailable"
	KindConflict           Kind = "conflict"
)

// Error is the typed failure surfaced by the allocator. Store internals stay
// in the wrapped cause and never reach the Reason string.
type Error struct {
	Kind   Kind
	Reason string

	// RetryAfter is set only for KindRateLimited.
	RetryAfter time.Duration

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

// AsError unwraps a typed allocation error, if err carries one.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf classifies any error; unknown errors count as unavailable so
// callers fail safe on the retryable side.
func KindOf(err error) Kind {
	if ae, ok := AsError(err); ok {
		return ae.Kind
	}
	return KindUnavailable
}

func errInvalidInput(reason string) *Error {
	return &Error{Kind: KindInvalidInput, Reason: reason}
}

func errInvalidDestination(reason string) *Error {
	return &Error{Kind: KindInvalidDestination, Reason: reason}
}

func errRateLimited(agent string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Reason:     fmt.Sprintf("agent %s exceeded the per-minute allocation limit", agent),
		RetryAfter: retryAfter,
	}
}

func errNoneAvailable() *Error {
	return &Error{Kind: KindNoneAvailable, Reason: "no caller id available"}
}

func errUnavailable(reason string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Reason: reason, cause: cause}
}
