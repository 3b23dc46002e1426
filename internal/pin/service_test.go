package pin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/staff"
)

type memoryCredentialRepo struct {
	credentials map[int64]Credential
}

func newMemoryCredentialRepo() *memoryCredentialRepo {
	return &memoryCredentialRepo{credentials: make(map[int64]Credential)}
}

func (r *memoryCredentialRepo) Get(ctx context.Context, staffID int64) (*Credential, error) {
	cred, ok := r.credentials[staffID]
	if !ok {
		return nil, ErrNotConfigured
	}
	return &cred, nil
}

func (r *memoryCredentialRepo) Upsert(ctx context.Context, staffID int64, hash string, now time.Time) error {
	cred, ok := r.credentials[staffID]
	if !ok {
		cred = Credential{StaffID: staffID, CreatedAt: now}
	}
	cred.Hash = hash
	cred.UpdatedAt = now
	r.credentials[staffID] = cred
	return nil
}

func (r *memoryCredentialRepo) Delete(ctx context.Context, staffID int64) error {
	delete(r.credentials, staffID)
	return nil
}

func manager(id int64) *staff.Actor {
	store := int64(1)
	return &staff.Actor{ID: id, Role: staff.RoleManager, StoreID: &store, IsActive: true}
}

func cashier(id int64) *staff.Actor {
	store := int64(1)
	return &staff.Actor{ID: id, Role: staff.RoleCashier, StoreID: &store, IsActive: true}
}

func TestValidFormat(t *testing.T) {
	require.True(t, ValidFormat("123456"))
	require.True(t, ValidFormat("000000"))
	require.False(t, ValidFormat("12345"))
	require.False(t, ValidFormat("1234567"))
	require.False(t, ValidFormat("12345a"))
	require.False(t, ValidFormat(""))
	require.False(t, ValidFormat("12 456"))
}

func TestSetPinAndVerify(t *testing.T) {
	repo := newMemoryCredentialRepo()
	svc := NewService(repo, shared.NopAuditRecorder{}, bcrypt.MinCost)
	ctx := context.Background()

	require.NoError(t, svc.SetPin(ctx, manager(20), "123456"))

	require.NoError(t, svc.Verify(ctx, 20, "123456"))
	require.ErrorIs(t, svc.Verify(ctx, 20, "654321"), ErrMismatch)
}

func TestSetPinRejectsBadFormat(t *testing.T) {
	svc := NewService(newMemoryCredentialRepo(), shared.NopAuditRecorder{}, bcrypt.MinCost)

	require.ErrorIs(t, svc.SetPin(context.Background(), manager(20), "12345"), ErrInvalidFormat)
	require.ErrorIs(t, svc.SetPin(context.Background(), manager(20), "abcdef"), ErrInvalidFormat)
}

func TestSetPinRejectsCashier(t *testing.T) {
	repo := newMemoryCredentialRepo()
	svc := NewService(repo, shared.NopAuditRecorder{}, bcrypt.MinCost)

	require.ErrorIs(t, svc.SetPin(context.Background(), cashier(10), "123456"), ErrRoleNotAllowed)
	require.Empty(t, repo.credentials)
}

func TestSetPinReplacesExisting(t *testing.T) {
	repo := newMemoryCredentialRepo()
	svc := NewService(repo, shared.NopAuditRecorder{}, bcrypt.MinCost)
	ctx := context.Background()

	require.NoError(t, svc.SetPin(ctx, manager(20), "111111"))
	require.NoError(t, svc.SetPin(ctx, manager(20), "222222"))

	require.ErrorIs(t, svc.Verify(ctx, 20, "111111"), ErrMismatch)
	require.NoError(t, svc.Verify(ctx, 20, "222222"))
}

func TestVerifyWithoutCredential(t *testing.T) {
	svc := NewService(newMemoryCredentialRepo(), shared.NopAuditRecorder{}, bcrypt.MinCost)

	require.ErrorIs(t, svc.Verify(context.Background(), 20, "123456"), ErrNotConfigured)
}

func TestStatus(t *testing.T) {
	repo := newMemoryCredentialRepo()
	svc := NewService(repo, shared.NopAuditRecorder{}, bcrypt.MinCost)
	ctx := context.Background()

	status, err := svc.Status(ctx, manager(20))
	require.NoError(t, err)
	require.False(t, status.HasPin)
	require.Nil(t, status.CreatedAt)

	require.NoError(t, svc.SetPin(ctx, manager(20), "123456"))

	status, err = svc.Status(ctx, manager(20))
	require.NoError(t, err)
	require.True(t, status.HasPin)
	require.NotNil(t, status.CreatedAt)

	_, err = svc.Status(ctx, cashier(10))
	require.ErrorIs(t, err, ErrRoleNotAllowed)
}

func TestDeletePinIdempotent(t *testing.T) {
	repo := newMemoryCredentialRepo()
	svc := NewService(repo, shared.NopAuditRecorder{}, bcrypt.MinCost)
	ctx := context.Background()

	require.NoError(t, svc.SetPin(ctx, manager(20), "123456"))
	require.NoError(t, svc.DeletePin(ctx, 20))
	require.ErrorIs(t, svc.Verify(ctx, 20, "123456"), ErrNotConfigured)

	// Deleting again is not an error.
	require.NoError(t, svc.DeletePin(ctx, 20))
}
