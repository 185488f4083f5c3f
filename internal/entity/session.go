package entity

import "time"

// Cookies maps cookie name to value for one source.
type Cookies map[string]string

type Session struct {
	Source  string
	Cookies Cookies
	SavedAt time.Time
}

// Fresh reports whether the session was saved within maxAge of now.
func (s *Session) Fresh(now time.Time, maxAge time.Duration) bool {
	return !s.SavedAt.IsZero() && now.Sub(s.SavedAt) <= maxAge
}
