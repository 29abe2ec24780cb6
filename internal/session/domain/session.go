package domain

import (
	"time"

	"retroboard/backend/internal/fingerprint"
)

// Session represents an authenticated user session bound to the fingerprint
// captured at login.
type Session struct {
	ID           string
	UserID       string
	Fingerprint  fingerprint.Fingerprint
	IssuedAt     time.Time
	ExpiresAt    time.Time
	TerminatedAt *time.Time // nil while the session is live
	LastSeenAt   *time.Time
	// RotatedFrom is the previous session id when this session was minted by
	// rotation; empty for sessions created at login.
	RotatedFrom string
}

// Live reports whether the session is usable at the given time: not
// terminated and not past its expiry.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.TerminatedAt == nil && now.Before(s.ExpiresAt)
}

// Activity is one entry of a session's ordered activity log. The fingerprint
// captured with each activity forms the history used for anomaly scoring.
type Activity struct {
	ID          int64
	SessionID   string
	Action      string
	Fingerprint fingerprint.Fingerprint
	CreatedAt   time.Time
}
