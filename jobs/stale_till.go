package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StaleTillScanJob reports till sessions that stayed open or locked past the
// configured age. It is operational tooling: it never mutates session state,
// it only surfaces drawers nobody closed.
type StaleTillScanJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	clock  func() time.Time
}

// NewStaleTillScanJob initialises the stale till scan handler.
func NewStaleTillScanJob(pool *pgxpool.Pool, logger *slog.Logger) *StaleTillScanJob {
	return &StaleTillScanJob{
		Pool:   pool,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the clock for deterministic tests.
func (j *StaleTillScanJob) WithClock(clock func() time.Time) {
	if clock != nil {
		j.clock = clock
	}
}

// Handle executes the stale till scan.
func (j *StaleTillScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("stale till scan: handler not configured")
	}
	var payload StaleTillScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxAgeHours <= 0 {
		payload.MaxAgeHours = 24
	}

	cutoff := j.clock().Add(-time.Duration(payload.MaxAgeHours) * time.Hour)
	rows, err := j.Pool.Query(ctx, `SELECT id, store_id, cashier_id, status, created_at
FROM cash_sessions
WHERE status IN ('open', 'locked') AND created_at < $1
ORDER BY created_at`, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id        string
			storeID   int64
			cashierID int64
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&id, &storeID, &cashierID, &status, &createdAt); err != nil {
			return err
		}
		count++
		if j.Logger != nil {
			j.Logger.Warn("stale till session",
				slog.String("session_id", id),
				slog.Int64("store_id", storeID),
				slog.Int64("cashier_id", cashierID),
				slog.String("status", status),
				slog.Time("created_at", createdAt),
			)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("stale till scan complete", slog.Int("flagged", count))
	}
	return nil
}
