package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"retroboard/backend/internal/fingerprint"
	"retroboard/backend/internal/session/domain"
)

// PostgresRepository persists sessions and activity in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	const q = `
		SELECT id, user_id, ip_hash, user_agent_hash, fingerprint_at_ms,
		       issued_at, expires_at, terminated_at, last_seen_at, rotated_from
		FROM sessions WHERE id = $1`
	var (
		s           domain.Session
		terminated  sql.NullTime
		lastSeen    sql.NullTime
		rotatedFrom sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.UserID, &s.Fingerprint.IPHash, &s.Fingerprint.UserAgentHash,
		&s.Fingerprint.CapturedAtMs, &s.IssuedAt, &s.ExpiresAt,
		&terminated, &lastSeen, &rotatedFrom,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.TerminatedAt = nullTimeToPtr(terminated)
	s.LastSeenAt = nullTimeToPtr(lastSeen)
	s.RotatedFrom = rotatedFrom.String
	return &s, nil
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	const q = `
		INSERT INTO sessions (id, user_id, ip_hash, user_agent_hash, fingerprint_at_ms,
		                      issued_at, expires_at, terminated_at, last_seen_at, rotated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.Fingerprint.IPHash, s.Fingerprint.UserAgentHash,
		s.Fingerprint.CapturedAtMs, s.IssuedAt, s.ExpiresAt,
		timeToNullTime(s.TerminatedAt), timeToNullTime(s.LastSeenAt),
		sql.NullString{String: s.RotatedFrom, Valid: s.RotatedFrom != ""},
	)
	return err
}

// Terminate marks the session with the given id as terminated.
func (r *PostgresRepository) Terminate(ctx context.Context, id string) error {
	const q = `UPDATE sessions SET terminated_at = $2 WHERE id = $1 AND terminated_at IS NULL`
	_, err := r.db.ExecContext(ctx, q, id, time.Now().UTC())
	return err
}

// TerminateAllByUser terminates all live sessions for the given user.
func (r *PostgresRepository) TerminateAllByUser(ctx context.Context, userID string) error {
	const q = `UPDATE sessions SET terminated_at = $2 WHERE user_id = $1 AND terminated_at IS NULL`
	_, err := r.db.ExecContext(ctx, q, userID, time.Now().UTC())
	return err
}

// UpdateLastSeen sets the session's last-seen timestamp.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, at)
	return err
}

// AppendActivity adds one entry to the session's activity log.
func (r *PostgresRepository) AppendActivity(ctx context.Context, a *domain.Activity) error {
	const q = `
		INSERT INTO session_activity (session_id, action, ip_hash, user_agent_hash, fingerprint_at_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, q,
		a.SessionID, a.Action, a.Fingerprint.IPHash, a.Fingerprint.UserAgentHash,
		a.Fingerprint.CapturedAtMs, a.CreatedAt,
	)
	return err
}

// FingerprintHistory returns the fingerprints of the session's activity log,
// oldest first.
func (r *PostgresRepository) FingerprintHistory(ctx context.Context, sessionID string) ([]fingerprint.Fingerprint, error) {
	const q = `
		SELECT ip_hash, user_agent_hash, fingerprint_at_ms
		FROM session_activity WHERE session_id = $1 ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []fingerprint.Fingerprint
	for rows.Next() {
		var fp fingerprint.Fingerprint
		if err := rows.Scan(&fp.IPHash, &fp.UserAgentHash, &fp.CapturedAtMs); err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// SweepExpired terminates all sessions past expiry and returns the count.
func (r *PostgresRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE sessions SET terminated_at = $1 WHERE terminated_at IS NULL AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
