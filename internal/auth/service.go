// Package auth implements credential login and logout on top of the session
// and trust layers. Successful login mints a server-side session plus a
// signed token delivered in the session cookie.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"retroboard/backend/internal/fingerprint"
	"retroboard/backend/internal/security"
	sessiondomain "retroboard/backend/internal/session/domain"
	"retroboard/backend/internal/user/domain"
	"retroboard/backend/internal/user/repository"
)

var (
	// ErrInvalidCredentials is returned for unknown emails and wrong
	// passwords alike; the two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned when the account exists but may not
	// log in.
	ErrAccountDisabled = errors.New("account disabled")
)

// SessionMinter is the slice of the session layer auth needs.
type SessionMinter interface {
	Create(ctx context.Context, userID string, fp fingerprint.Fingerprint) (*sessiondomain.Session, error)
	Terminate(ctx context.Context, sessionID string) error
}

// Service authenticates users and issues session tokens.
type Service struct {
	users    repository.Repository
	sessions SessionMinter
	hasher   *security.Hasher
	tokens   *security.TokenProvider
}

// New returns an auth Service.
func New(users repository.Repository, sessions SessionMinter, hasher *security.Hasher, tokens *security.TokenProvider) *Service {
	return &Service{users: users, sessions: sessions, hasher: hasher, tokens: tokens}
}

// LoginResult carries everything a handler needs to complete a login: the
// session, the signed token for the cookie, and the public identity for the
// response body.
type LoginResult struct {
	Session   *sessiondomain.Session
	Token     string
	ExpiresAt time.Time
	Identity  domain.PublicIdentity
}

// Login verifies the credentials and mints a session bound to the request's
// fingerprint. The bcrypt comparison runs even when the email is unknown so
// response timing does not reveal which accounts exist.
func (s *Service) Login(ctx context.Context, r *http.Request, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.hasher.CompareDecoy([]byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Status != domain.UserStatusActive {
		return nil, ErrAccountDisabled
	}
	fp := fingerprint.Generate(r)
	sess, err := s.sessions.Create(ctx, u.ID, fp)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.Issue(sess.ID, u.ID)
	if err != nil {
		// The session is unusable without its token.
		_ = s.sessions.Terminate(ctx, sess.ID)
		return nil, err
	}
	return &LoginResult{
		Session:   sess,
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  domain.PublicIdentity{UserID: u.ID, UserName: u.Name},
	}, nil
}

// Logout terminates the session. Idempotent from the client's point of view:
// terminating an already-terminated session is not an error surfaced to the
// user.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Terminate(ctx, sessionID)
}
