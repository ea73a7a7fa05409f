// Package coord provides the ephemeral coordination store used for
// reservation locks, usage counters and rate-limit counters.
//
// All primitives are single-key atomic. Cross-process correctness of the
// allocator rests entirely on SetIfAbsent; everything else is commutative.
package coord

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks transient transport failures (timeouts, connection
// loss). Callers map it to a retryable failure; it is never used for
// "absent" or "exists" outcomes.
var ErrUnavailable = errors.New("coordination store unavailable")

// Store is the coordination store port.
type Store interface {
	// SetIfAbsent writes key=value with ttl only when the key does not
	// exist. Returns true when the key was created.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes the key. Returns true when a key was deleted.
	Delete(ctx context.Context, key string) (bool, error)

	// IncrementWithTTL atomically increments an integer key and returns the
	// post-increment value. The TTL is applied only when the increment
	// created the key, so bucket lifetimes are anchored at first use.
	IncrementWithTTL(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error)

	// Decrement decrements an integer key, deleting it at or below zero.
	// Used only for best-effort cap compensation; drift heals at TTL expiry.
	Decrement(ctx context.Context, key string) error

	// TTL reports the remaining lifetime of a key, zero when absent.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Key builders. These formats are part of the external contract; ops
// tooling scans them directly. Buckets align to UTC calendar boundaries.

func ReservationKey(number string) string {
	return "reservation:" + number
}

func HourlyUsageKey(number string, t time.Time) string {
	return fmt.Sprintf("usage:hourly:%s:%s", number, t.UTC().Format("2006010215"))
}

func DailyUsageKey(number string, t time.Time) string {
	return fmt.Sprintf("usage:daily:%s:%s", number, t.UTC().Format("20060102"))
}

func AgentRateKey(agent string, t time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s", agent, t.UTC().Format("200601021504"))
}
