// Package service implements session lifecycle and the composite trust check
// that gates every connection and state-changing request.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"retroboard/backend/internal/audit"
	"retroboard/backend/internal/fingerprint"
	"retroboard/backend/internal/session/domain"
	"retroboard/backend/internal/session/repository"
	"retroboard/backend/internal/telemetry"
	telemetrydomain "retroboard/backend/internal/telemetry/domain"
	"retroboard/backend/internal/trust"
)

// Sentinel errors; handlers map them to HTTP statuses.
var (
	// ErrSessionNotFound is returned when the session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned for terminated or past-expiry sessions.
	// A transient auth failure: redirect to login, not a security event.
	ErrSessionExpired = errors.New("session expired or terminated")
	// ErrSecurityViolation is returned when the trust check terminated the
	// session. The caller must clear cookies and force re-authentication.
	ErrSecurityViolation = errors.New("security violation")
)

// ConnectionDropper force-disconnects live realtime connections bound to a
// session. Implemented by the hub; the drop may complete asynchronously but
// within a bounded delay.
type ConnectionDropper interface {
	DisconnectSession(sessionID string)
}

// Service manages sessions and computes composite trust verdicts.
type Service struct {
	repo       repository.Repository
	auditLog   audit.AuditLogger
	emitter    telemetry.EventEmitter
	dropper    ConnectionDropper
	cookieCfg  trust.CookieConfig
	sessionTTL time.Duration
	fpTTL      time.Duration
	production bool
	nowF       func() time.Time
}

// New returns a session Service. auditLog, emitter, and dropper may be nil
// (best-effort collaborators). sessionTTL is the session lifetime; fpTTL the
// fingerprint comparison window (zero means the fingerprint default).
func New(repo repository.Repository, auditLog audit.AuditLogger, emitter telemetry.EventEmitter, dropper ConnectionDropper, cookieCfg trust.CookieConfig, sessionTTL, fpTTL time.Duration, production bool) *Service {
	return &Service{
		repo:       repo,
		auditLog:   auditLog,
		emitter:    emitter,
		dropper:    dropper,
		cookieCfg:  cookieCfg,
		sessionTTL: sessionTTL,
		fpTTL:      fpTTL,
		production: production,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// SetConnectionDropper wires the hub in after construction. The hub and the
// session service reference each other, so one side is attached late.
func (s *Service) SetConnectionDropper(d ConnectionDropper) {
	s.dropper = d
}

// Create mints a new session for userID with the given login fingerprint.
func (s *Service) Create(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*domain.Session, error) {
	id, err := trust.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	sess := &domain.Session{
		ID:          id,
		UserID:      userID,
		Fingerprint: fp,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.sessionTTL),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.recordActivity(ctx, sess.ID, "login", fp)
	return sess, nil
}

// Get returns the session for id. Returns ErrSessionNotFound or
// ErrSessionExpired as appropriate.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.Live(s.nowF()) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Rotate issues a fresh session id for the session, terminating the old one.
// The authenticated identity and login fingerprint carry over.
func (s *Service) Rotate(ctx context.Context, sessionID string) (*domain.Session, error) {
	old, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	id, err := trust.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	fresh := &domain.Session{
		ID:          id,
		UserID:      old.UserID,
		Fingerprint: old.Fingerprint,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.sessionTTL),
		RotatedFrom: old.ID,
	}
	if err := s.repo.Create(ctx, fresh); err != nil {
		return nil, err
	}
	if err := s.repo.Terminate(ctx, old.ID); err != nil {
		return nil, err
	}
	s.audit(ctx, old.UserID, old.ID, audit.ActionSessionRotated, "session", `{"newSessionId":"`+fresh.ID+`"}`)
	s.emit(ctx, telemetrydomain.EventSessionRotated, old.UserID, old.ID, "", "")
	return fresh, nil
}

// Terminate marks the session terminated and drops its live connections.
func (s *Service) Terminate(ctx context.Context, sessionID string) error {
	if err := s.repo.Terminate(ctx, sessionID); err != nil {
		return err
	}
	if s.dropper != nil {
		s.dropper.DisconnectSession(sessionID)
	}
	return nil
}

// RecordActivity appends one activity entry with the current fingerprint and
// bumps last-seen. Best-effort.
func (s *Service) RecordActivity(ctx context.Context, sessionID, action string, fp fingerprint.Fingerprint) {
	s.recordActivity(ctx, sessionID, action, fp)
	if err := s.repo.UpdateLastSeen(ctx, sessionID, s.nowF()); err != nil {
		log.Printf("session: update last seen: %v", err)
	}
}

// SweepExpired terminates all past-expiry sessions. Run periodically.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.SweepExpired(ctx, s.nowF())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.emit(ctx, telemetrydomain.EventSessionSwept, "", "", "", "")
	}
	return n, nil
}

// Check runs the full trust check for the request against the session:
// hijack scan, token structure, fingerprint comparison, anomaly scoring, and
// cookie security. A hard failure terminates the session, drops its
// connections, and records an audit entry plus a telemetry event; the
// returned verdict never fails open.
func (s *Service) Check(ctx context.Context, r *http.Request, sess *domain.Session) trust.Verdict {
	if sess == nil || !sess.Live(s.nowF()) {
		return trust.Verdict{IsValid: false, ShouldClearCookies: true, Reason: "session expired"}
	}

	hijack := trust.DetectSessionHijacking(r)
	if hijack.Risk == trust.RiskHigh {
		return s.violation(ctx, r, sess, "hijack risk high", hijack.Indicators)
	}

	current := fingerprint.Generate(r)
	if cmp := fingerprint.Compare(sess.Fingerprint, current, s.fpTTL); !cmp.IsValid {
		return s.violation(ctx, r, sess, "fingerprint: "+cmp.Reason, nil)
	}

	history, err := s.repo.FingerprintHistory(ctx, sess.ID)
	if err != nil {
		// Fail closed: without history we cannot score the request.
		log.Printf("session: fingerprint history: %v", err)
		return s.violation(ctx, r, sess, "trust check unavailable", nil)
	}
	anomaly := trust.DetectAnomaly(history, current)
	if anomaly.Risk == trust.RiskHigh {
		return s.violation(ctx, r, sess, "anomaly: "+anomaly.Reasons[0], anomaly.Reasons)
	}

	verdict := trust.ValidateCookieSecurity(r, sess.IssuedAt, s.cookieCfg, s.production)
	if !verdict.IsValid {
		if verdict.ShouldClearCookies {
			// Tampered or absent token is a hard violation; plain insecure
			// transport already carries its own reason.
			return s.violation(ctx, r, sess, verdict.Reason, nil)
		}
		return verdict
	}

	if anomaly.IsAnomalous {
		verdict.Recommendations = append(verdict.Recommendations, anomaly.Reasons...)
	}
	s.RecordActivity(ctx, sess.ID, r.Method+" "+r.URL.Path, current)
	return verdict
}

// violation terminates the session, force-disconnects its connections, and
// records the violation. Never fails silently: even when internal writes
// error the caller still receives an invalid, clear-cookies verdict.
func (s *Service) violation(ctx context.Context, r *http.Request, sess *domain.Session, reason string, indicators []string) trust.Verdict {
	if err := s.Terminate(ctx, sess.ID); err != nil {
		log.Printf("session: terminate after violation: %v", err)
	}
	meta, _ := json.Marshal(map[string]any{
		"reason":     reason,
		"indicators": indicators,
		"method":     r.Method,
		"path":       r.URL.Path,
	})
	s.audit(ctx, sess.UserID, sess.ID, audit.ActionSecurityViolation, "session", string(meta))
	s.emitViolation(ctx, sess.UserID, sess.ID, meta)
	log.Printf("session: security violation user=%s session=%s reason=%q", sess.UserID, sess.ID, reason)
	return trust.Verdict{IsValid: false, ShouldClearCookies: true, Reason: reason}
}

func (s *Service) recordActivity(ctx context.Context, sessionID, action string, fp fingerprint.Fingerprint) {
	a := &domain.Activity{
		SessionID:   sessionID,
		Action:      action,
		Fingerprint: fp,
		CreatedAt:   s.nowF(),
	}
	if err := s.repo.AppendActivity(ctx, a); err != nil {
		log.Printf("session: append activity: %v", err)
	}
}

func (s *Service) audit(ctx context.Context, userID, sessionID, action, resource, metadata string) {
	if s.auditLog != nil {
		s.auditLog.LogEvent(ctx, userID, sessionID, action, resource, metadata)
	}
}

func (s *Service) emit(ctx context.Context, eventType, userID, sessionID, boardID, severity string) {
	if s.emitter == nil {
		return
	}
	telemetry.EmitAsync(s.emitter, ctx, &telemetrydomain.SecurityEvent{
		UserID:    userID,
		SessionID: sessionID,
		BoardID:   boardID,
		EventType: eventType,
		Source:    "session",
		Severity:  severity,
		CreatedAt: s.nowF(),
	})
}

func (s *Service) emitViolation(ctx context.Context, userID, sessionID string, metadata []byte) {
	if s.emitter == nil {
		return
	}
	telemetry.EmitAsync(s.emitter, ctx, &telemetrydomain.SecurityEvent{
		UserID:    userID,
		SessionID: sessionID,
		EventType: telemetrydomain.EventSecurityViolation,
		Source:    "session",
		Severity:  trust.RiskHigh.String(),
		Metadata:  metadata,
		CreatedAt: s.nowF(),
	})
}
