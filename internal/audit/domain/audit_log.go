package domain

import "time"

// AuditLog is one durable record of a security-relevant action: a violation
// verdict, a forced rotation, a session termination.
type AuditLog struct {
	ID        string
	UserID    string
	SessionID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
