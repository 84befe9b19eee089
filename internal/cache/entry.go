package cache

import (
	"time"
)

// Entry wraps a cached value with its TTL and access metadata.
// All mutation happens under the owning cache's lock.
type Entry struct {
	Value        interface{}
	CreatedAt    time.Time
	ExpiresAt    time.Time
	TTL          time.Duration
	AccessCount  int64
	LastAccessed time.Time
}

// NewEntry creates an entry for value with the given TTL.
// ExpiresAt is fixed at creation and never recomputed on access.
func NewEntry(value interface{}, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Value:        value,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		TTL:          ttl,
		AccessCount:  0,
		LastAccessed: now,
	}
}

// Touch records a read of the entry.
func (e *Entry) Touch() {
	e.AccessCount++
	e.LastAccessed = time.Now()
}

// IsExpired reports whether the entry is past its TTL at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// IsStale reports whether the entry is older than threshold at now.
// Staleness is independent of expiry: an expired entry may still be
// fresh enough for degraded reads, and a long-lived entry may be stale
// before it expires.
func (e *Entry) IsStale(now time.Time, threshold time.Duration) bool {
	return now.After(e.CreatedAt.Add(threshold))
}

// Age returns how long ago the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
