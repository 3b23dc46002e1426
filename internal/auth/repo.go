package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindCredentials(ctx context.Context, email string) (*Credentials, error)
	CreateSession(ctx context.Context, id string, staffID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindCredentials fetches login credentials by email.
func (r *PGRepository) FindCredentials(ctx context.Context, email string) (*Credentials, error) {
	var creds Credentials
	err := r.pool.QueryRow(ctx,
		`SELECT id, password_hash, is_active FROM staff WHERE email = $1`,
		email,
	).Scan(&creds.StaffID, &creds.PasswordHash, &creds.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &creds, nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, staffID int64, expiresAt time.Time, ip, ua string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `INSERT INTO auth_sessions (id, staff_id, created_at, expires_at, ip, ua)
VALUES ($1, $2, $3, $4, $5, $6)`,
		id, staffID,
		pgtype.Timestamptz{Time: now, Valid: true},
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""},
	)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id)
	return err
}

var _ Repository = (*PGRepository)(nil)
