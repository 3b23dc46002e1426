package validators

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/staff"
)

// CandidateRow couples a candidate with its server-side PIN existence flag.
type CandidateRow struct {
	Candidate
	HasPin bool
}

// RepositoryPort is the privileged directory read path: it may observe PIN
// existence across actors, which the normal per-actor data path never does.
type RepositoryPort interface {
	ManagersByStore(ctx context.Context, storeID int64) ([]CandidateRow, error)
	Admins(ctx context.Context) ([]CandidateRow, error)
}

// Repository implements RepositoryPort using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ManagersByStore lists active managers assigned to the store.
func (r *Repository) ManagersByStore(ctx context.Context, storeID int64) ([]CandidateRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.name, s.role, s.store_id, p.staff_id IS NOT NULL
FROM staff s
LEFT JOIN pin_credentials p ON p.staff_id = s.id
WHERE s.role = 'manager' AND s.store_id = $1 AND s.is_active
ORDER BY s.name`, storeID)
	if err != nil {
		return nil, err
	}
	return collectCandidates(rows)
}

// Admins lists all active admins regardless of store.
func (r *Repository) Admins(ctx context.Context) ([]CandidateRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.name, s.role, s.store_id, p.staff_id IS NOT NULL
FROM staff s
LEFT JOIN pin_credentials p ON p.staff_id = s.id
WHERE s.role = 'admin' AND s.is_active
ORDER BY s.name`)
	if err != nil {
		return nil, err
	}
	return collectCandidates(rows)
}

func collectCandidates(rows pgx.Rows) ([]CandidateRow, error) {
	defer rows.Close()
	var out []CandidateRow
	for rows.Next() {
		var (
			row  CandidateRow
			role string
		)
		if err := rows.Scan(&row.ID, &row.Name, &role, &row.StoreID, &row.HasPin); err != nil {
			return nil, err
		}
		row.Role = staff.Role(role)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ RepositoryPort = (*Repository)(nil)
