package repository

import (
	"context"
	"database/sql"

	"retroboard/backend/internal/audit/domain"
)

// PostgresRepository persists audit log entries in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts one audit log entry.
func (r *PostgresRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	const q = `
		INSERT INTO audit_log (id, user_id, session_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, q,
		entry.ID, entry.UserID, entry.SessionID, entry.Action,
		entry.Resource, entry.IP, entry.Metadata, entry.CreatedAt,
	)
	return err
}
