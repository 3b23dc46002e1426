package pin

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/staff"
)

// Service is the credential vault: it owns PIN format, hashing, and
// verification. Verification fails closed when no credential exists.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
	cost  int
	decoy []byte
	now   func() time.Time
}

// NewService constructs a Service. Cost below bcrypt.DefaultCost is raised to
// it; short PINs do not get a cheaper hash than passwords.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, cost int) *Service {
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	// Hash compared when no credential row exists, so the missing-row path
	// costs the same as a mismatch.
	decoy, _ := bcrypt.GenerateFromPassword([]byte("000000-decoy"), cost)
	return &Service{
		repo:  repo,
		audit: audit,
		cost:  cost,
		decoy: decoy,
		now:   time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetPin creates or replaces the actor's PIN. Only managers and admins may
// hold a PIN; cashiers never do.
func (s *Service) SetPin(ctx context.Context, actor *staff.Actor, candidate string) error {
	if !actor.Role.Elevated() {
		return ErrRoleNotAllowed
	}
	if !ValidFormat(candidate) {
		return ErrInvalidFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(candidate), s.cost)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, actor.ID, string(hash), s.now().UTC()); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "pin.set")
	return nil
}

// Status reports whether the actor has a PIN configured. The hash is never
// exposed.
func (s *Service) Status(ctx context.Context, actor *staff.Actor) (Status, error) {
	if !actor.Role.Elevated() {
		return Status{}, ErrRoleNotAllowed
	}
	cred, err := s.repo.Get(ctx, actor.ID)
	if err != nil {
		if err == ErrNotConfigured {
			return Status{HasPin: false}, nil
		}
		return Status{}, err
	}
	return Status{HasPin: true, CreatedAt: &cred.CreatedAt, UpdatedAt: &cred.UpdatedAt}, nil
}

// Verify checks a candidate PIN against the stored credential for staffID.
// Returns ErrNotConfigured when no credential exists and ErrMismatch on a
// wrong PIN; callers must render both with the same HTTP status.
func (s *Service) Verify(ctx context.Context, staffID int64, candidate string) error {
	cred, err := s.repo.Get(ctx, staffID)
	if err != nil {
		if err == ErrNotConfigured {
			_ = bcrypt.CompareHashAndPassword(s.decoy, []byte(candidate))
			return ErrNotConfigured
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.Hash), []byte(candidate)); err != nil {
		return ErrMismatch
	}
	return nil
}

// DeletePin removes the actor's PIN. Idempotent.
func (s *Service) DeletePin(ctx context.Context, actorID int64) error {
	if err := s.repo.Delete(ctx, actorID); err != nil {
		return err
	}
	s.record(ctx, actorID, "pin.delete")
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "pin_credential",
		EntityID: strconv.FormatInt(actorID, 10),
	})
}
