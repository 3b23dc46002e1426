package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials and returns the staff id.
func (s *Service) Authenticate(ctx context.Context, email, password string) (int64, error) {
	creds, err := s.repo.FindCredentials(ctx, email)
	if err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	if !creds.IsActive {
		return 0, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	return creds.StaffID, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, staffID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, staffID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
