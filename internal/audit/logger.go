// Package audit records security-relevant actions durably. Logging is
// best-effort: a failed write never affects the request that triggered it.
package audit

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"retroboard/backend/internal/audit/domain"
	auditrepo "retroboard/backend/internal/audit/repository"
)

// Actions recorded by the trust layer and the hub.
const (
	ActionSecurityViolation = "security_violation"
	ActionSessionRotated    = "session_rotated"
	ActionSessionTerminated = "session_terminated"
	ActionConnectionDenied  = "connection_denied"
)

// IPExtractor returns the client IP for the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, sessionID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP
// extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor
// for client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not
// returned. Request metadata must already be stripped of secrets by the
// caller; this logger never sees raw tokens.
func (l *Logger) LogEvent(ctx context.Context, userID, sessionID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

type ctxKey int

const requestIPKey ctxKey = 0

// WithRequestIP stores the request's remote IP in the context for the audit
// logger.
func WithRequestIP(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestIPKey, r.RemoteAddr)
}

// RequestIP extracts the IP stored by WithRequestIP, or "unknown".
func RequestIP(ctx context.Context) string {
	if ip, ok := ctx.Value(requestIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
