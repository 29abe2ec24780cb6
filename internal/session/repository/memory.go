package repository

import (
	"context"
	"sync"
	"time"

	"retroboard/backend/internal/fingerprint"
	"retroboard/backend/internal/session/domain"
)

// MemoryRepository is an in-memory Repository implementation used by tests
// and single-process development runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	activity map[string][]*domain.Activity
	nextID   int64
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*domain.Session),
		activity: make(map[string][]*domain.Activity),
	}
}

// GetByID returns a copy of the session for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// Create stores the session.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

// Terminate marks the session as terminated.
func (r *MemoryRepository) Terminate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.TerminatedAt == nil {
		now := time.Now().UTC()
		s.TerminatedAt = &now
	}
	return nil
}

// TerminateAllByUser terminates every live session for the user.
func (r *MemoryRepository) TerminateAllByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range r.sessions {
		if s.UserID == userID && s.TerminatedAt == nil {
			t := now
			s.TerminatedAt = &t
		}
	}
	return nil
}

// UpdateLastSeen sets the session's last-seen timestamp.
func (r *MemoryRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		t := at
		s.LastSeenAt = &t
	}
	return nil
}

// AppendActivity adds one activity entry for the session.
func (r *MemoryRepository) AppendActivity(ctx context.Context, a *domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *a
	cp.ID = r.nextID
	r.activity[a.SessionID] = append(r.activity[a.SessionID], &cp)
	return nil
}

// FingerprintHistory returns the fingerprints of the session's activity log,
// oldest first.
func (r *MemoryRepository) FingerprintHistory(ctx context.Context, sessionID string) ([]fingerprint.Fingerprint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.activity[sessionID]
	out := make([]fingerprint.Fingerprint, len(entries))
	for i, a := range entries {
		out[i] = a.Fingerprint
	}
	return out, nil
}

// SweepExpired terminates all sessions past expiry and returns the count.
func (r *MemoryRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.TerminatedAt == nil && s.ExpiresAt.Before(now) {
			t := now
			s.TerminatedAt = &t
			n++
		}
	}
	return n, nil
}
