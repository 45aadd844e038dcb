package profile

import "time"

// Session is the authentication state embedded in a Profile.
//
// Authenticated implies a non-empty Token and a set ExpiresAt. Expiry is
// lazy: Valid flips the session back to unauthenticated when it notices
// the deadline has passed.
type Session struct {
	Authenticated bool      `json:"authenticated"`
	Token         string    `json:"token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *Session) start(token string, expiresAt time.Time) {
	s.Authenticated = true
	s.Token = token
	s.ExpiresAt = expiresAt
}

// Valid reports whether the session is authenticated at now. A non-empty
// token must also match exactly.
func (s *Session) Valid(now time.Time, token string) bool {
	if !s.Authenticated || s.Token == "" || s.ExpiresAt.IsZero() {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		s.End()
		return false
	}
	if token != "" && token != s.Token {
		return false
	}
	return true
}

// End clears the session unconditionally.
func (s *Session) End() {
	s.Authenticated = false
	s.Token = ""
	s.ExpiresAt = time.Time{}
}
