package repository

import (
	"context"
	"time"

	"retroboard/backend/internal/fingerprint"
	"retroboard/backend/internal/session/domain"
)

// Repository defines persistence for sessions and their activity log.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Terminate(ctx context.Context, id string) error
	TerminateAllByUser(ctx context.Context, userID string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	AppendActivity(ctx context.Context, a *domain.Activity) error
	// FingerprintHistory returns the fingerprints of the session's activity
	// log, oldest first.
	FingerprintHistory(ctx context.Context, sessionID string) ([]fingerprint.Fingerprint, error)
	// SweepExpired terminates all sessions whose expiry is before now and
	// returns how many were swept.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
