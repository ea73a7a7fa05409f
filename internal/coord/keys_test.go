package coord

import (
	"testing"
	"time"
)

// Key formats are observed by ops tooling; changing them is a breaking change.

func TestKeyFormats(t *testing.T) {
	at := time.Date(2025, 3, 9, 14, 7, 30, 0, time.UTC)

	if got := ReservationKey("2125551001"); got != "reservation:2125551001" {
		t.Fatalf("reservation key = %q", got)
	}
	if got := HourlyUsageKey("2125551001", at); got != "usage:hourly:2125551001:2025030914" {
		t.Fatalf("hourly key = %q", got)
	}
	if got := DailyUsageKey("2125551001", at); got != "usage:daily:2125551001:20250309" {
		t.Fatalf("daily key = %q", got)
	}
	if got := AgentRateKey("agent-7", at); got != "ratelimit:agent-7:202503091407" {
		t.Fatalf("rate key = %q", got)
	}
}

func TestKeyBucketsUseUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2025, 3, 9, 22, 30, 0, 0, est) // 2025-03-10 03:30 UTC

	if got := DailyUsageKey("n", local); got != "usage:daily:n:20250310" {
		t.Fatalf("daily bucket must align to UTC calendar, got %q", got)
	}
	if got := HourlyUsageKey("n", local); got != "usage:hourly:n:2025031003" {
		t.Fatalf("hourly bucket must align to UTC calendar, got %q", got)
	}
}
