package till

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewSessionRow carries the columns written when a till is opened.
type NewSessionRow struct {
	ID            uuid.UUID
	StoreID       int64
	CashierID     int64
	OpeningAmount float64
	Notes         string
	At            time.Time
}

// ClosingRow carries the columns written when a till is closed.
type ClosingRow struct {
	ClosingAmount    float64
	ExpectedClosing  float64
	Discrepancy      float64
	Notes            string
	RequiresApproval bool
	ApprovedBy       *int64
	At               time.Time
}

// Repository defines persistence operations for cash sessions. Transitions
// run through WithTx so status checks and writes share one atomic unit.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ActiveByCashier(ctx context.Context, storeID, cashierID int64) (*Session, error)
	ActiveForActor(ctx context.Context, cashierID int64) (*Session, error)
}

// TxRepository is the transactional slice of the repository.
type TxRepository interface {
	InsertSession(ctx context.Context, row NewSessionRow) (Session, error)
	LoadSessionForUpdate(ctx context.Context, id uuid.UUID) (Session, error)
	MarkLocked(ctx context.Context, id uuid.UUID, by int64, at time.Time) (Session, error)
	MarkUnlocked(ctx context.Context, id uuid.UUID, at time.Time) (Session, error)
	MarkClosed(ctx context.Context, id uuid.UUID, closing ClosingRow) (Session, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("till: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const sessionColumns = `id, store_id, cashier_id, status, opening_amount, opening_notes,
total_cash_sales, total_card_sales, total_mobile_sales, total_other_sales, transaction_count,
locked_at, locked_by, closing_amount, expected_closing_amount, discrepancy, closing_notes,
requires_approval, approved_by, closed_at, created_at, updated_at`

// ActiveByCashier returns the cashier's open or locked session at the store,
// or nil when none exists.
func (r *PGRepository) ActiveByCashier(ctx context.Context, storeID, cashierID int64) (*Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM cash_sessions
WHERE store_id = $1 AND cashier_id = $2 AND status IN ('open', 'locked')`,
		storeID, cashierID)
	return scanOptionalSession(row)
}

// ActiveForActor returns the cashier's open or locked session at any store,
// or nil when none exists.
func (r *PGRepository) ActiveForActor(ctx context.Context, cashierID int64) (*Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM cash_sessions
WHERE cashier_id = $1 AND status IN ('open', 'locked')
ORDER BY created_at DESC LIMIT 1`,
		cashierID)
	return scanOptionalSession(row)
}

type pgTxRepository struct {
	tx pgx.Tx
}

// InsertSession creates a new open session. The partial unique index on
// (store_id, cashier_id) for active statuses makes the existence check and
// the insert one atomic operation: concurrent opens cannot both succeed.
func (r *pgTxRepository) InsertSession(ctx context.Context, row NewSessionRow) (Session, error) {
	res := r.tx.QueryRow(ctx, `INSERT INTO cash_sessions
(id, store_id, cashier_id, status, opening_amount, opening_notes, created_at, updated_at)
VALUES ($1, $2, $3, 'open', $4, $5, $6, $6)
RETURNING `+sessionColumns,
		row.ID, row.StoreID, row.CashierID, row.OpeningAmount, row.Notes, row.At)
	sess, err := scanSession(res)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Session{}, ErrActiveSessionExists
		}
		return Session{}, err
	}
	return sess, nil
}

// LoadSessionForUpdate locks the session row for the transaction.
func (r *pgTxRepository) LoadSessionForUpdate(ctx context.Context, id uuid.UUID) (Session, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM cash_sessions WHERE id = $1 FOR UPDATE`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return sess, nil
}

// MarkLocked flips an open session to locked. The status predicate keeps the
// write conditional even though the caller holds the row lock.
func (r *pgTxRepository) MarkLocked(ctx context.Context, id uuid.UUID, by int64, at time.Time) (Session, error) {
	row := r.tx.QueryRow(ctx, `UPDATE cash_sessions
SET status = 'locked', locked_at = $2, locked_by = $3, updated_at = $2
WHERE id = $1 AND status = 'open'
RETURNING `+sessionColumns,
		id, at, by)
	return scanTransition(row)
}

// MarkUnlocked flips a locked session back to open and clears the lock data.
func (r *pgTxRepository) MarkUnlocked(ctx context.Context, id uuid.UUID, at time.Time) (Session, error) {
	row := r.tx.QueryRow(ctx, `UPDATE cash_sessions
SET status = 'open', locked_at = NULL, locked_by = NULL, updated_at = $2
WHERE id = $1 AND status = 'locked'
RETURNING `+sessionColumns,
		id, at)
	return scanTransition(row)
}

// MarkClosed moves an open session to its terminal state and records all
// closing fields in the same statement.
func (r *pgTxRepository) MarkClosed(ctx context.Context, id uuid.UUID, closing ClosingRow) (Session, error) {
	row := r.tx.QueryRow(ctx, `UPDATE cash_sessions
SET status = 'closed', closing_amount = $2, expected_closing_amount = $3, discrepancy = $4,
    closing_notes = $5, requires_approval = $6, approved_by = $7, closed_at = $8, updated_at = $8
WHERE id = $1 AND status = 'open'
RETURNING `+sessionColumns,
		id, closing.ClosingAmount, closing.ExpectedClosing, closing.Discrepancy,
		closing.Notes, closing.RequiresApproval, closing.ApprovedBy, closing.At)
	return scanTransition(row)
}

func scanTransition(row pgx.Row) (Session, error) {
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row vanished or changed status despite the FOR UPDATE lock.
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return sess, nil
}

func scanOptionalSession(row pgx.Row) (*Session, error) {
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess   Session
		status string
	)
	err := row.Scan(
		&sess.ID, &sess.StoreID, &sess.CashierID, &status,
		&sess.OpeningAmount, &sess.OpeningNotes,
		&sess.TotalCashSales, &sess.TotalCardSales, &sess.TotalMobileSales, &sess.TotalOtherSales,
		&sess.TransactionCount,
		&sess.LockedAt, &sess.LockedBy,
		&sess.ClosingAmount, &sess.ExpectedClosing, &sess.Discrepancy, &sess.ClosingNotes,
		&sess.RequiresApproval, &sess.ApprovedBy, &sess.ClosedAt,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return Session{}, err
	}
	sess.Status = Status(status)
	return sess, nil
}

var _ Repository = (*PGRepository)(nil)
