package staff

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines data access for staff profiles.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (*Actor, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectActor = `SELECT id, email, name, role, store_id, is_active, created_at, updated_at FROM staff`

// FindByID fetches a staff profile by id. Callers resolve the actor fresh on
// every request so role changes take effect without re-authentication.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Actor, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectActor+` WHERE id = $1`, id))
}

func (r *Repository) scanOne(row pgx.Row) (*Actor, error) {
	var (
		actor   Actor
		rawRole string
	)
	err := row.Scan(&actor.ID, &actor.Email, &actor.Name, &rawRole, &actor.StoreID, &actor.IsActive, &actor.CreatedAt, &actor.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return nil, err
	}
	actor.Role = role
	return &actor, nil
}

var _ RepositoryPort = (*Repository)(nil)
