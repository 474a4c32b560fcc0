package cachestore

import "time"

// DefaultTTL is the reference freshness window for cached collections.
const DefaultTTL = 10 * time.Minute

// IsFresh reports whether a snapshot refreshed at refreshedAt is still fresh
// at now, given the ttl. A collection that has never been refreshed (zero
// time) is never fresh. Pure function, no side effects.
func IsFresh(refreshedAt time.Time, ttl time.Duration, now time.Time) bool {
	if refreshedAt.IsZero() {
		return false
	}
	return now.Sub(refreshedAt) < ttl
}
