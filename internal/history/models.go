package history

import "time"

// Record is an immutable, append-only allocation log row.
//
// Invariants:
// - Records are never updated or deleted.
// - Number is empty when the request produced no allocation.
// - Dashboards are the only consumer; the allocator never reads these.
type Record struct {
	ID string    `json:"id" db:"id"`
	At time.Time `json:"at" db:"at"`

	Number      string `json:"number,omitempty" db:"number"`
	Destination string `json:"destination" db:"destination"`
	Campaign    string `json:"campaign" db:"campaign"`
	Agent       string `json:"agent" db:"agent"`

	// Outcome is the allocator's result classification.
	Outcome string `json:"outcome" db:"outcome"`

	LatencyMS int `json:"latency_ms" db:"latency_ms"`
}

const (
	OutcomeAllocated = "allocated"
)
