package server

import (
	"context"
	"errors"
	"log"
	"net/http"

	"retroboard/backend/internal/audit"
	sessiondomain "retroboard/backend/internal/session/domain"
	sessionservice "retroboard/backend/internal/session/service"
	"retroboard/backend/internal/trust"
	userdomain "retroboard/backend/internal/user/domain"
)

// AuthContext is the authenticated principal attached to a request after the
// session middleware has run.
type AuthContext struct {
	Session  *sessiondomain.Session
	Identity userdomain.PublicIdentity
}

type authCtxKey int

const authKey authCtxKey = 0

// AuthFrom returns the request's authenticated principal, or nil outside the
// authenticated route group.
func AuthFrom(ctx context.Context) *AuthContext {
	ac, _ := ctx.Value(authKey).(*AuthContext)
	return ac
}

// authenticate resolves the session token, loads the session, and runs the
// composite trust check on every request. Transient failures (absent or
// expired credentials) get 401; a security verdict gets 403 with cookies
// cleared. When the verdict recommends rotation the session is rotated
// inline and the fresh cookie rides on this response.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestIP(r.Context(), r)
		r = r.WithContext(ctx)

		token := trust.SessionToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if res := trust.ValidateTokenStructure(token); !res.IsValid {
			s.clearSessionCookie(w)
			respondError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		sessionID, userID, err := s.tokens.Validate(token)
		if err != nil {
			s.clearSessionCookie(w)
			respondError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, sessionservice.ErrSessionNotFound) || errors.Is(err, sessionservice.ErrSessionExpired) {
				s.clearSessionCookie(w)
				respondError(w, http.StatusUnauthorized, "session expired")
				return
			}
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if sess.UserID != userID {
			// Token and session disagree about the owner; treat as tampering.
			s.clearSessionCookie(w)
			respondError(w, http.StatusForbidden, "session mismatch")
			return
		}

		verdict := s.sessions.Check(ctx, r, sess)
		if !verdict.IsValid {
			if verdict.ShouldClearCookies {
				s.clearSessionCookie(w)
			}
			respondError(w, http.StatusForbidden, verdict.Reason)
			return
		}
		if verdict.ShouldRotateSession {
			sess = s.rotateInline(ctx, w, sess)
		}

		u, err := s.users.GetByID(ctx, sess.UserID)
		if err != nil || u == nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		ac := &AuthContext{
			Session:  sess,
			Identity: userdomain.PublicIdentity{UserID: u.ID, UserName: u.Name},
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, authKey, ac)))
	})
}

// rotateInline swaps the session for a fresh id and sets the new cookie on
// the response. Rotation failure is not fatal; the old session stays valid
// until its own expiry.
func (s *Server) rotateInline(ctx context.Context, w http.ResponseWriter, sess *sessiondomain.Session) *sessiondomain.Session {
	fresh, err := s.sessions.Rotate(ctx, sess.ID)
	if err != nil {
		log.Printf("server: inline rotation: %v", err)
		return sess
	}
	token, expiresAt, err := s.tokens.Issue(fresh.ID, fresh.UserID)
	if err != nil {
		log.Printf("server: issue token after rotation: %v", err)
		return sess
	}
	s.setSessionCookie(w, token, expiresAt)
	return fresh
}
