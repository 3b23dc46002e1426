package till

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/staff"
)

// StaffDirectory resolves staff profiles for validator and approver checks.
// Profiles are read fresh so a role change takes effect immediately.
type StaffDirectory interface {
	FindByID(ctx context.Context, id int64) (*staff.Actor, error)
}

// PinVerifier checks a candidate PIN against a staff member's credential.
type PinVerifier interface {
	Verify(ctx context.Context, staffID int64, candidate string) error
}

// Service owns the session state machine: open → (lock ⇄ unlock)* → closed.
// Every transition runs inside one transaction holding the session row lock,
// so a status check and its write are never separated by a concurrent
// request.
type Service struct {
	repo  Repository
	staff StaffDirectory
	pins  PinVerifier
	audit shared.AuditRecorder
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, directory StaffDirectory, pins PinVerifier, audit shared.AuditRecorder) *Service {
	return &Service{
		repo:  repo,
		staff: directory,
		pins:  pins,
		audit: audit,
		now:   time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Open starts a new session for the actor at the store. The uniqueness of
// active sessions per (store, cashier) is enforced by the insert itself, not
// by a prior read.
func (s *Service) Open(ctx context.Context, actor *staff.Actor, in OpenInput) (Session, error) {
	if err := in.Validate(); err != nil {
		return Session{}, err
	}
	if !CanOpen(actor, in.StoreID) {
		return Session{}, ErrNotAuthorized
	}

	var sess Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var e error
		sess, e = tx.InsertSession(ctx, NewSessionRow{
			ID:            uuid.New(),
			StoreID:       in.StoreID,
			CashierID:     actor.ID,
			OpeningAmount: in.OpeningAmount,
			Notes:         in.Notes,
			At:            s.now().UTC(),
		})
		return e
	})
	if err != nil {
		if err == ErrActiveSessionExists {
			return Session{}, s.activeConflict(ctx, in.StoreID, actor.ID)
		}
		return Session{}, err
	}

	s.record(ctx, actor.ID, "till.open", sess, nil)
	return sess, nil
}

// activeConflict distinguishes whether the blocking session is open or
// locked so the caller can react.
func (s *Service) activeConflict(ctx context.Context, storeID, cashierID int64) error {
	active, err := s.repo.ActiveByCashier(ctx, storeID, cashierID)
	if err != nil || active == nil {
		return ErrSessionAlreadyOpen
	}
	if active.Status == StatusLocked {
		return ErrSessionAlreadyLocked
	}
	return ErrSessionAlreadyOpen
}

// Active returns the actor's current open or locked session, or nil.
func (s *Service) Active(ctx context.Context, actor *staff.Actor) (*Session, error) {
	return s.repo.ActiveForActor(ctx, actor.ID)
}

// Lock suspends an open session. Only the owning cashier locks their till.
func (s *Service) Lock(ctx context.Context, actor *staff.Actor, sessionID uuid.UUID) (Session, error) {
	var sess Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := requireStatus(current, StatusOpen); err != nil {
			return err
		}
		if !CanLock(actor, current) {
			return ErrNotAuthorized
		}
		sess, err = tx.MarkLocked(ctx, sessionID, actor.ID, s.now().UTC())
		return err
	})
	if err != nil {
		return Session{}, err
	}

	s.record(ctx, actor.ID, "till.lock", sess, nil)
	return sess, nil
}

// Unlock resumes a locked session, either by the owner with their own PIN or
// by a manager/admin validator with the validator's PIN.
func (s *Service) Unlock(ctx context.Context, actor *staff.Actor, in UnlockInput) (Session, error) {
	var sess Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadSessionForUpdate(ctx, in.SessionID)
		if err != nil {
			return err
		}
		if err := requireStatus(current, StatusLocked); err != nil {
			return err
		}

		credentialOwner := actor.ID
		if in.ValidatorID == nil {
			if !CanUnlockSelf(actor, current) {
				return ErrNotAuthorized
			}
		} else {
			if actor.ID != *in.ValidatorID && !actor.Role.Elevated() {
				return ErrNotAuthorized
			}
			validator, err := s.staff.FindByID(ctx, *in.ValidatorID)
			if err != nil {
				if err == staff.ErrNotFound {
					return ErrValidatorNotFound
				}
				return err
			}
			if !CanActAsValidator(validator, current) {
				return ErrNotAuthorized
			}
			credentialOwner = validator.ID
		}

		if err := s.pins.Verify(ctx, credentialOwner, in.Pin); err != nil {
			return err
		}

		sess, err = tx.MarkUnlocked(ctx, in.SessionID, s.now().UTC())
		return err
	})
	if err != nil {
		return Session{}, err
	}

	meta := map[string]any{}
	if in.ValidatorID != nil {
		meta["validator_id"] = *in.ValidatorID
	}
	s.record(ctx, actor.ID, "till.unlock", sess, meta)
	return sess, nil
}

// Close counts the drawer and moves the session to its terminal state. A
// nonzero discrepancy without an approver yields an ApprovalRequired result
// and leaves the session untouched; with an approver, their PIN is verified
// and recorded. The sales totals are snapshotted in the same transaction
// that flips the status.
func (s *Service) Close(ctx context.Context, actor *staff.Actor, in CloseInput) (CloseResult, error) {
	if in.ClosingAmount < 0 {
		return CloseResult{}, ErrAmountNegative
	}

	var result CloseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LoadSessionForUpdate(ctx, in.SessionID)
		if err != nil {
			return err
		}
		if err := requireStatus(current, StatusOpen); err != nil {
			return err
		}
		if !CanClose(actor, current) {
			return ErrNotAuthorized
		}

		expected := ExpectedClosing(current)
		discrepancy := ComputeDiscrepancy(expected, in.ClosingAmount)
		requiresApproval := RequiresApproval(discrepancy)

		var approvedBy *int64
		if requiresApproval {
			if in.ApproverID == nil {
				result = CloseResult{ApprovalRequired: true, Discrepancy: discrepancy}
				return nil
			}
			approver, err := s.staff.FindByID(ctx, *in.ApproverID)
			if err != nil {
				if err == staff.ErrNotFound {
					return ErrValidatorNotFound
				}
				return err
			}
			if !CanActAsValidator(approver, current) {
				return ErrNotAuthorized
			}
			if err := s.pins.Verify(ctx, approver.ID, in.ApproverPin); err != nil {
				return err
			}
			approvedBy = &approver.ID
		}

		closed, err := tx.MarkClosed(ctx, in.SessionID, ClosingRow{
			ClosingAmount:    in.ClosingAmount,
			ExpectedClosing:  expected,
			Discrepancy:      discrepancy,
			Notes:            in.Notes,
			RequiresApproval: requiresApproval,
			ApprovedBy:       approvedBy,
			At:               s.now().UTC(),
		})
		if err != nil {
			return err
		}
		result = CloseResult{
			Discrepancy: discrepancy,
			Session:     &closed,
			Summary:     summarize(closed),
		}
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}

	if result.Session != nil {
		s.record(ctx, actor.ID, "till.close", *result.Session, map[string]any{
			"discrepancy":       result.Discrepancy,
			"requires_approval": result.Session.RequiresApproval,
		})
	}
	return result, nil
}

func summarize(sess Session) *CloseSummary {
	summary := &CloseSummary{
		OpeningAmount:    sess.OpeningAmount,
		TotalCashSales:   sess.TotalCashSales,
		TotalCardSales:   sess.TotalCardSales,
		TotalMobileSales: sess.TotalMobileSales,
		TotalOtherSales:  sess.TotalOtherSales,
		TransactionCount: sess.TransactionCount,
	}
	if sess.ExpectedClosing != nil {
		summary.ExpectedClosing = *sess.ExpectedClosing
	}
	if sess.ClosingAmount != nil {
		summary.ClosingAmount = *sess.ClosingAmount
	}
	if sess.Discrepancy != nil {
		summary.Discrepancy = *sess.Discrepancy
	}
	return summary
}

// requireStatus maps a status precondition failure onto the conflict error
// naming the session's current state.
func requireStatus(sess Session, want Status) error {
	if sess.Status == want {
		return nil
	}
	switch sess.Status {
	case StatusClosed:
		return ErrSessionClosed
	case StatusLocked:
		if want == StatusOpen {
			return ErrSessionLocked
		}
		return ErrSessionAlreadyLocked
	default:
		return ErrSessionNotLocked
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, sess Session, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "cash_session",
		EntityID: sess.ID.String(),
		Meta:     meta,
	})
}
