package store

import (
	"errors"
	"time"
)

// Common errors for store operations
var (
	// ErrTooLarge is returned when a single entry exceeds the store capacity
	ErrTooLarge = errors.New("entry too large for cache")
)

// Status marks what an entry records: a usable value or a remembered failure.
type Status int

const (
	// StatusValid marks an entry holding a successfully loaded value
	StatusValid Status = iota

	// StatusNegative marks an entry recording a failed load
	StatusNegative
)

// String returns the string representation of the entry status
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNegative:
		return "negative"
	default:
		return "unknown"
	}
}

// Entry is a single cache record. Entries are handed out by value; the
// store keeps the canonical copy.
type Entry struct {
	Key    string
	Value  any   // nil for negative entries
	Err    error // recorded failure, set only for negative entries
	Status Status

	// Accounting
	Size int64         // size estimate in capacity units
	TTL  time.Duration // 0 means never time-expires

	// Bookkeeping
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Hits           int64
}

// expired reports whether the entry's TTL has elapsed at now.
// Entries with no TTL never expire.
func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) >= e.TTL
}

// ExpiresAt returns the time the entry expires, or the zero time for
// entries with no TTL.
func (e *Entry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.TTL)
}

// Stats holds store performance counters
type Stats struct {
	// Configuration
	Capacity int64 // Maximum total size in capacity units

	// Current state
	Size    int64 // Current total size in capacity units
	Entries int64 // Number of entries in the store

	// Performance metrics
	Hits         int64   // Lookups that returned an entry
	Misses       int64   // Lookups that found nothing usable
	Evictions    int64   // Entries removed to make room
	Expired      int64   // Entries removed because their TTL elapsed
	NegativeHits int64   // Hits that returned a remembered failure
	HitRate      float64 // hits / (hits + misses)
}

// Info is the diagnostic view of a single entry. Values are never included.
type Info struct {
	Key            string    `json:"key"`
	Status         string    `json:"status"`
	Size           int64     `json:"size"`
	Hits           int64     `json:"hits"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}
