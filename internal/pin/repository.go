package pin

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines persistence operations for PIN credentials.
type RepositoryPort interface {
	Get(ctx context.Context, staffID int64) (*Credential, error)
	Upsert(ctx context.Context, staffID int64, hash string, now time.Time) error
	Delete(ctx context.Context, staffID int64) error
}

// Repository implements RepositoryPort using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches the credential row for a staff member.
func (r *Repository) Get(ctx context.Context, staffID int64) (*Credential, error) {
	var cred Credential
	err := r.pool.QueryRow(ctx,
		`SELECT staff_id, pin_hash, created_at, updated_at FROM pin_credentials WHERE staff_id = $1`,
		staffID,
	).Scan(&cred.StaffID, &cred.Hash, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	return &cred, nil
}

// Upsert creates the credential row or replaces the existing hash.
func (r *Repository) Upsert(ctx context.Context, staffID int64, hash string, now time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO pin_credentials (staff_id, pin_hash, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (staff_id) DO UPDATE SET pin_hash = EXCLUDED.pin_hash, updated_at = EXCLUDED.updated_at`,
		staffID, hash, now)
	return err
}

// Delete removes the credential row; removing an absent row is not an error.
func (r *Repository) Delete(ctx context.Context, staffID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM pin_credentials WHERE staff_id = $1`, staffID)
	return err
}

var _ RepositoryPort = (*Repository)(nil)
