package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the trust layer and the hub.
const (
	EventSecurityViolation = "security_violation"
	EventSessionRotated    = "session_rotated"
	EventSessionSwept      = "session_swept"
	EventHijackSuspected   = "hijack_suspected"
	EventConnectionDenied  = "connection_denied"
)

// SecurityEvent is a structured security/telemetry event. Serialized as JSON
// for the Kafka pipeline; field names are stable because the Loki worker
// parses them for labels.
type SecurityEvent struct {
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	BoardID   string          `json:"boardId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Severity  string          `json:"severity,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
