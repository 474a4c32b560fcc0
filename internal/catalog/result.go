package catalog

import "time"

// State classifies what a read returned. The UI never sees an error from a
// read; the state lets callers that care distinguish "genuinely no data"
// from "fetch failed, showing the best we have".
type State string

const (
	// StateFresh means the records come from a snapshot within the TTL (or
	// straight from a just-completed fetch).
	StateFresh State = "fresh"
	// StateStale means the records come from a snapshot past the TTL; a
	// background refresh has been scheduled.
	StateStale State = "stale"
	// StateDegraded means the remote fetch failed and no usable snapshot
	// exists; Records is empty.
	StateDegraded State = "degraded"
)

// Result is the outcome of a collection read. Records is never nil.
type Result[T any] struct {
	Records     []T       `json:"records"`
	State       State     `json:"state"`
	RefreshedAt time.Time `json:"refreshed_at,omitzero"`
}
