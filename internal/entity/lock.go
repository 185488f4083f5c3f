package entity

import "time"

// LockMarker exists only while a run for Source is active.
type LockMarker struct {
	Source    string
	Owner     string
	CreatedAt time.Time
}

// Expired reports whether the marker is older than ttl. A zero ttl never expires.
func (m *LockMarker) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(m.CreatedAt) > ttl
}
