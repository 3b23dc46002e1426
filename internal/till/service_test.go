package till

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/pin"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/staff"
)

// memorySessionRepo serializes transactions behind a mutex, mirroring the
// row-lock semantics of the PostgreSQL repository closely enough for the
// state machine tests.
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[uuid.UUID]Session)}
}

func (r *memorySessionRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memorySessionTx{repo: r})
}

func (r *memorySessionRepo) ActiveByCashier(ctx context.Context, storeID, cashierID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.sessions {
		if sess.StoreID == storeID && sess.CashierID == cashierID && sess.Active() {
			copied := sess
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memorySessionRepo) ActiveForActor(ctx context.Context, cashierID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.sessions {
		if sess.CashierID == cashierID && sess.Active() {
			copied := sess
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memorySessionRepo) setTotals(id uuid.UUID, cash, card float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[id]
	sess.TotalCashSales = cash
	sess.TotalCardSales = card
	r.sessions[id] = sess
}

func (r *memorySessionRepo) get(id uuid.UUID) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

type memorySessionTx struct {
	repo *memorySessionRepo
}

func (t *memorySessionTx) InsertSession(ctx context.Context, row NewSessionRow) (Session, error) {
	for _, sess := range t.repo.sessions {
		if sess.StoreID == row.StoreID && sess.CashierID == row.CashierID && sess.Active() {
			return Session{}, ErrActiveSessionExists
		}
	}
	sess := Session{
		ID:            row.ID,
		StoreID:       row.StoreID,
		CashierID:     row.CashierID,
		Status:        StatusOpen,
		OpeningAmount: row.OpeningAmount,
		OpeningNotes:  row.Notes,
		CreatedAt:     row.At,
		UpdatedAt:     row.At,
	}
	t.repo.sessions[row.ID] = sess
	return sess, nil
}

func (t *memorySessionTx) LoadSessionForUpdate(ctx context.Context, id uuid.UUID) (Session, error) {
	sess, ok := t.repo.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (t *memorySessionTx) MarkLocked(ctx context.Context, id uuid.UUID, by int64, at time.Time) (Session, error) {
	sess, ok := t.repo.sessions[id]
	if !ok || sess.Status != StatusOpen {
		return Session{}, ErrSessionNotFound
	}
	sess.Status = StatusLocked
	sess.LockedAt = &at
	sess.LockedBy = &by
	sess.UpdatedAt = at
	t.repo.sessions[id] = sess
	return sess, nil
}

func (t *memorySessionTx) MarkUnlocked(ctx context.Context, id uuid.UUID, at time.Time) (Session, error) {
	sess, ok := t.repo.sessions[id]
	if !ok || sess.Status != StatusLocked {
		return Session{}, ErrSessionNotFound
	}
	sess.Status = StatusOpen
	sess.LockedAt = nil
	sess.LockedBy = nil
	sess.UpdatedAt = at
	t.repo.sessions[id] = sess
	return sess, nil
}

func (t *memorySessionTx) MarkClosed(ctx context.Context, id uuid.UUID, closing ClosingRow) (Session, error) {
	sess, ok := t.repo.sessions[id]
	if !ok || sess.Status != StatusOpen {
		return Session{}, ErrSessionNotFound
	}
	sess.Status = StatusClosed
	sess.ClosingAmount = &closing.ClosingAmount
	sess.ExpectedClosing = &closing.ExpectedClosing
	sess.Discrepancy = &closing.Discrepancy
	sess.ClosingNotes = closing.Notes
	sess.RequiresApproval = closing.RequiresApproval
	sess.ApprovedBy = closing.ApprovedBy
	sess.ClosedAt = &closing.At
	sess.UpdatedAt = closing.At
	t.repo.sessions[id] = sess
	return sess, nil
}

type memoryDirectory map[int64]*staff.Actor

func (d memoryDirectory) FindByID(ctx context.Context, id int64) (*staff.Actor, error) {
	actor, ok := d[id]
	if !ok {
		return nil, staff.ErrNotFound
	}
	return actor, nil
}

type memoryPins map[int64]string

func (p memoryPins) Verify(ctx context.Context, staffID int64, candidate string) error {
	stored, ok := p[staffID]
	if !ok {
		return pin.ErrNotConfigured
	}
	if stored != candidate {
		return pin.ErrMismatch
	}
	return nil
}

type tillFixture struct {
	repo    *memorySessionRepo
	service *Service

	cashier      *staff.Actor
	otherCashier *staff.Actor
	manager      *staff.Actor
	otherManager *staff.Actor
	admin        *staff.Actor
}

func newTillFixture(t *testing.T, pins memoryPins) *tillFixture {
	t.Helper()
	f := &tillFixture{
		repo:         newMemorySessionRepo(),
		cashier:      testActor(10, staff.RoleCashier, storeRef(1)),
		otherCashier: testActor(11, staff.RoleCashier, storeRef(1)),
		manager:      testActor(20, staff.RoleManager, storeRef(1)),
		otherManager: testActor(21, staff.RoleManager, storeRef(2)),
		admin:        testActor(1, staff.RoleAdmin, nil),
	}
	directory := memoryDirectory{
		f.cashier.ID:      f.cashier,
		f.otherCashier.ID: f.otherCashier,
		f.manager.ID:      f.manager,
		f.otherManager.ID: f.otherManager,
		f.admin.ID:        f.admin,
	}
	f.service = NewService(f.repo, directory, pins, shared.NopAuditRecorder{})
	f.service.WithNow(func() time.Time {
		return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	})
	return f
}

func (f *tillFixture) open(t *testing.T) Session {
	t.Helper()
	sess, err := f.service.Open(context.Background(), f.cashier, OpenInput{StoreID: 1, OpeningAmount: 1000})
	require.NoError(t, err)
	return sess
}

func (f *tillFixture) lock(t *testing.T, id uuid.UUID) Session {
	t.Helper()
	sess, err := f.service.Lock(context.Background(), f.cashier, id)
	require.NoError(t, err)
	return sess
}

func TestOpenCreatesSession(t *testing.T) {
	f := newTillFixture(t, memoryPins{})

	sess := f.open(t)
	require.Equal(t, StatusOpen, sess.Status)
	require.Equal(t, int64(1), sess.StoreID)
	require.Equal(t, f.cashier.ID, sess.CashierID)
	require.Equal(t, 1000.0, sess.OpeningAmount)
	require.NotEqual(t, uuid.Nil, sess.ID)
}

func TestOpenValidatesInput(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	_, err := f.service.Open(ctx, f.cashier, OpenInput{StoreID: 0, OpeningAmount: 100})
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = f.service.Open(ctx, f.cashier, OpenInput{StoreID: 1, OpeningAmount: -1})
	require.ErrorIs(t, err, ErrAmountNegative)
}

func TestOpenDeniedOutsideAssignedStore(t *testing.T) {
	f := newTillFixture(t, memoryPins{})

	_, err := f.service.Open(context.Background(), f.cashier, OpenInput{StoreID: 2, OpeningAmount: 100})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestOpenAdminAnyStore(t *testing.T) {
	f := newTillFixture(t, memoryPins{})

	sess, err := f.service.Open(context.Background(), f.admin, OpenInput{StoreID: 2, OpeningAmount: 50})
	require.NoError(t, err)
	require.Equal(t, int64(2), sess.StoreID)
}

func TestOpenSecondActiveSessionConflicts(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)

	_, err := f.service.Open(ctx, f.cashier, OpenInput{StoreID: 1, OpeningAmount: 100})
	require.ErrorIs(t, err, ErrSessionAlreadyOpen)

	f.lock(t, sess.ID)
	_, err = f.service.Open(ctx, f.cashier, OpenInput{StoreID: 1, OpeningAmount: 100})
	require.ErrorIs(t, err, ErrSessionAlreadyLocked)
}

func TestOpenConcurrentSingleWinner(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Open(ctx, f.cashier, OpenInput{StoreID: 1, OpeningAmount: 1000})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var opened, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			opened++
		default:
			require.ErrorIs(t, err, ErrSessionAlreadyOpen)
			conflicts++
		}
	}
	require.Equal(t, 1, opened)
	require.Equal(t, attempts-1, conflicts)
}

func TestActiveReturnsCurrentSession(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	active, err := f.service.Active(ctx, f.cashier)
	require.NoError(t, err)
	require.Nil(t, active)

	sess := f.open(t)
	active, err = f.service.Active(ctx, f.cashier)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, sess.ID, active.ID)
}

func TestLockByOwner(t *testing.T) {
	f := newTillFixture(t, memoryPins{})

	sess := f.open(t)
	locked := f.lock(t, sess.ID)
	require.Equal(t, StatusLocked, locked.Status)
	require.NotNil(t, locked.LockedAt)
	require.NotNil(t, locked.LockedBy)
	require.Equal(t, f.cashier.ID, *locked.LockedBy)
}

func TestLockDeniedForNonOwner(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	_, err := f.service.Lock(ctx, f.otherCashier, sess.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.service.Lock(ctx, f.manager, sess.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestLockConflicts(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	_, err := f.service.Lock(ctx, f.cashier, uuid.New())
	require.ErrorIs(t, err, ErrSessionNotFound)

	sess := f.open(t)
	f.lock(t, sess.ID)
	_, err = f.service.Lock(ctx, f.cashier, sess.ID)
	require.ErrorIs(t, err, ErrSessionAlreadyLocked)
}

func TestUnlockSelf(t *testing.T) {
	f := newTillFixture(t, memoryPins{10: "123456"})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	unlocked, err := f.service.Unlock(ctx, f.cashier, UnlockInput{SessionID: sess.ID, Pin: "123456"})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, unlocked.Status)
	require.Nil(t, unlocked.LockedAt)
	require.Nil(t, unlocked.LockedBy)
}

func TestUnlockSelfWrongPin(t *testing.T) {
	f := newTillFixture(t, memoryPins{10: "123456"})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	_, err := f.service.Unlock(ctx, f.cashier, UnlockInput{SessionID: sess.ID, Pin: "654321"})
	require.ErrorIs(t, err, pin.ErrMismatch)
	require.Equal(t, StatusLocked, f.repo.get(sess.ID).Status)
}

func TestUnlockSelfWithoutCredential(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	_, err := f.service.Unlock(ctx, f.cashier, UnlockInput{SessionID: sess.ID, Pin: "123456"})
	require.ErrorIs(t, err, pin.ErrNotConfigured)
}

func TestUnlockSelfDeniedForNonOwner(t *testing.T) {
	f := newTillFixture(t, memoryPins{11: "123456"})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	_, err := f.service.Unlock(ctx, f.otherCashier, UnlockInput{SessionID: sess.ID, Pin: "123456"})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestUnlockOverrideByManager(t *testing.T) {
	f := newTillFixture(t, memoryPins{20: "222222"})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	validatorID := f.manager.ID
	unlocked, err := f.service.Unlock(ctx, f.manager, UnlockInput{
		SessionID:   sess.ID,
		Pin:         "222222",
		ValidatorID: &validatorID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, unlocked.Status)
}

func TestUnlockOverrideManagerWrongStore(t *testing.T) {
	f := newTillFixture(t, memoryPins{21: "333333"})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	// Correct PIN does not rescue a store-scoping failure.
	validatorID := f.otherManager.ID
	_, err := f.service.Unlock(ctx, f.otherManager, UnlockInput{
		SessionID:   sess.ID,
		Pin:         "333333",
		ValidatorID: &validatorID,
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestUnlockOverrideByAdmin(t *testing.T) {
	f := newTillFixture(t, memoryPins{1: "999999"})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	validatorID := f.admin.ID
	unlocked, err := f.service.Unlock(ctx, f.admin, UnlockInput{
		SessionID:   sess.ID,
		Pin:         "999999",
		ValidatorID: &validatorID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusOpen, unlocked.Status)
}

func TestUnlockOverrideValidatorMissing(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	validatorID := int64(404)
	_, err := f.service.Unlock(ctx, f.manager, UnlockInput{
		SessionID:   sess.ID,
		Pin:         "222222",
		ValidatorID: &validatorID,
	})
	require.ErrorIs(t, err, ErrValidatorNotFound)
}

func TestUnlockOverrideCashierCannotName(t *testing.T) {
	f := newTillFixture(t, memoryPins{20: "222222"})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	validatorID := f.manager.ID
	_, err := f.service.Unlock(ctx, f.cashier, UnlockInput{
		SessionID:   sess.ID,
		Pin:         "222222",
		ValidatorID: &validatorID,
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestUnlockOpenSession(t *testing.T) {
	f := newTillFixture(t, memoryPins{10: "123456"})
	ctx := context.Background()

	sess := f.open(t)
	_, err := f.service.Unlock(ctx, f.cashier, UnlockInput{SessionID: sess.ID, Pin: "123456"})
	require.ErrorIs(t, err, ErrSessionNotLocked)
}

func TestCloseBalancedDrawer(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	f.repo.setTotals(sess.ID, 500, 2200)

	result, err := f.service.Close(ctx, f.cashier, CloseInput{SessionID: sess.ID, ClosingAmount: 1500})
	require.NoError(t, err)
	require.False(t, result.ApprovalRequired)
	require.NotNil(t, result.Session)
	require.Equal(t, StatusClosed, result.Session.Status)
	require.False(t, result.Session.RequiresApproval)
	require.Nil(t, result.Session.ApprovedBy)

	require.NotNil(t, result.Summary)
	require.Equal(t, 1500.0, result.Summary.ExpectedClosing)
	require.Equal(t, 1500.0, result.Summary.ClosingAmount)
	require.Zero(t, result.Summary.Discrepancy)
	require.Equal(t, 2200.0, result.Summary.TotalCardSales)
}

func TestCloseDiscrepancyPromptsForApproval(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	f.repo.setTotals(sess.ID, 500, 0)

	result, err := f.service.Close(ctx, f.cashier, CloseInput{SessionID: sess.ID, ClosingAmount: 1400})
	require.NoError(t, err)
	require.True(t, result.ApprovalRequired)
	require.InDelta(t, -100.0, result.Discrepancy, 1e-9)
	require.Nil(t, result.Session)

	// Nothing changed: the session is still open and can be closed later.
	require.Equal(t, StatusOpen, f.repo.get(sess.ID).Status)
}

func TestCloseDiscrepancyWithApprover(t *testing.T) {
	f := newTillFixture(t, memoryPins{20: "222222"})
	ctx := context.Background()

	sess := f.open(t)
	f.repo.setTotals(sess.ID, 500, 0)

	approverID := f.manager.ID
	result, err := f.service.Close(ctx, f.cashier, CloseInput{
		SessionID:     sess.ID,
		ClosingAmount: 1400,
		ApproverID:    &approverID,
		ApproverPin:   "222222",
	})
	require.NoError(t, err)
	require.False(t, result.ApprovalRequired)
	require.NotNil(t, result.Session)
	require.Equal(t, StatusClosed, result.Session.Status)
	require.True(t, result.Session.RequiresApproval)
	require.NotNil(t, result.Session.ApprovedBy)
	require.Equal(t, f.manager.ID, *result.Session.ApprovedBy)
	require.NotNil(t, result.Session.Discrepancy)
	require.InDelta(t, -100.0, *result.Session.Discrepancy, 1e-9)
}

func TestCloseApproverWrongPinLeavesSessionOpen(t *testing.T) {
	f := newTillFixture(t, memoryPins{20: "222222"})
	ctx := context.Background()

	sess := f.open(t)
	f.repo.setTotals(sess.ID, 500, 0)

	approverID := f.manager.ID
	_, err := f.service.Close(ctx, f.cashier, CloseInput{
		SessionID:     sess.ID,
		ClosingAmount: 1400,
		ApproverID:    &approverID,
		ApproverPin:   "000000",
	})
	require.ErrorIs(t, err, pin.ErrMismatch)
	require.Equal(t, StatusOpen, f.repo.get(sess.ID).Status)
}

func TestCloseApproverWrongStore(t *testing.T) {
	f := newTillFixture(t, memoryPins{21: "333333"})
	ctx := context.Background()

	sess := f.open(t)
	f.repo.setTotals(sess.ID, 500, 0)

	approverID := f.otherManager.ID
	_, err := f.service.Close(ctx, f.cashier, CloseInput{
		SessionID:     sess.ID,
		ClosingAmount: 1400,
		ApproverID:    &approverID,
		ApproverPin:   "333333",
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestCloseByManagerOfStore(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	f.repo.setTotals(sess.ID, 0, 0)

	result, err := f.service.Close(ctx, f.manager, CloseInput{SessionID: sess.ID, ClosingAmount: 1000})
	require.NoError(t, err)
	require.Equal(t, StatusClosed, result.Session.Status)
}

func TestCloseDeniedForUnrelatedCashier(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	_, err := f.service.Close(ctx, f.otherCashier, CloseInput{SessionID: sess.ID, ClosingAmount: 1000})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestCloseLockedSession(t *testing.T) {
	f := newTillFixture(t, memoryPins{})
	ctx := context.Background()

	sess := f.open(t)
	f.lock(t, sess.ID)

	_, err := f.service.Close(ctx, f.cashier, CloseInput{SessionID: sess.ID, ClosingAmount: 1000})
	require.ErrorIs(t, err, ErrSessionLocked)
}

func TestClosedSessionIsTerminal(t *testing.T) {
	f := newTillFixture(t, memoryPins{10: "123456"})
	ctx := context.Background()

	sess := f.open(t)
	f.repo.setTotals(sess.ID, 0, 0)
	_, err := f.service.Close(ctx, f.cashier, CloseInput{SessionID: sess.ID, ClosingAmount: 1000})
	require.NoError(t, err)

	_, err = f.service.Lock(ctx, f.cashier, sess.ID)
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = f.service.Unlock(ctx, f.cashier, UnlockInput{SessionID: sess.ID, Pin: "123456"})
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = f.service.Close(ctx, f.cashier, CloseInput{SessionID: sess.ID, ClosingAmount: 1000})
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestCloseNegativeAmount(t *testing.T) {
	f := newTillFixture(t, memoryPins{})

	_, err := f.service.Close(context.Background(), f.cashier, CloseInput{SessionID: uuid.New(), ClosingAmount: -1})
	require.ErrorIs(t, err, ErrAmountNegative)
}
