package till

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the cash session lifecycle stages.
type Status string

const (
	StatusOpen   Status = "open"
	StatusLocked Status = "locked"
	StatusClosed Status = "closed"
)

// Session is the record of one cashier's custody of a cash drawer from open
// to close. The per-method sales totals are maintained by the ledger as
// sales post; this package only reads them.
type Session struct {
	ID        uuid.UUID `json:"id"`
	StoreID   int64     `json:"store_id"`
	CashierID int64     `json:"cashier_id"`
	Status    Status    `json:"status"`

	OpeningAmount float64 `json:"opening_amount"`
	OpeningNotes  string  `json:"opening_notes,omitempty"`

	TotalCashSales   float64 `json:"total_cash_sales"`
	TotalCardSales   float64 `json:"total_card_sales"`
	TotalMobileSales float64 `json:"total_mobile_sales"`
	TotalOtherSales  float64 `json:"total_other_sales"`
	TransactionCount int64   `json:"transaction_count"`

	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy *int64     `json:"locked_by,omitempty"`

	ClosingAmount    *float64   `json:"closing_amount,omitempty"`
	ExpectedClosing  *float64   `json:"expected_closing_amount,omitempty"`
	Discrepancy      *float64   `json:"discrepancy,omitempty"`
	ClosingNotes     string     `json:"closing_notes,omitempty"`
	RequiresApproval bool       `json:"requires_approval"`
	ApprovedBy       *int64     `json:"approved_by,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the session still holds the drawer.
func (s Session) Active() bool {
	return s.Status == StatusOpen || s.Status == StatusLocked
}

// OpenInput bundles parameters for opening a till.
type OpenInput struct {
	StoreID       int64
	OpeningAmount float64
	Notes         string
}

// Validate ensures the open input is coherent.
func (in OpenInput) Validate() error {
	if in.StoreID == 0 {
		return ErrStoreRequired
	}
	if in.OpeningAmount < 0 {
		return ErrAmountNegative
	}
	return nil
}

// UnlockInput bundles parameters for unlocking a till. ValidatorID nil means
// self-unlock against the owner's own credential.
type UnlockInput struct {
	SessionID   uuid.UUID
	Pin         string
	ValidatorID *int64
}

// CloseInput bundles parameters for closing a till. Approver fields are only
// consulted when the counted cash does not match the expected amount.
type CloseInput struct {
	SessionID     uuid.UUID
	ClosingAmount float64
	Notes         string
	ApproverID    *int64
	ApproverPin   string
}

// CloseSummary is returned alongside the closed session.
type CloseSummary struct {
	OpeningAmount    float64 `json:"opening_amount"`
	TotalCashSales   float64 `json:"total_cash_sales"`
	TotalCardSales   float64 `json:"total_card_sales"`
	TotalMobileSales float64 `json:"total_mobile_sales"`
	TotalOtherSales  float64 `json:"total_other_sales"`
	TransactionCount int64   `json:"transaction_count"`
	ExpectedClosing  float64 `json:"expected_closing_amount"`
	ClosingAmount    float64 `json:"closing_amount"`
	Discrepancy      float64 `json:"discrepancy"`
}

// CloseResult distinguishes a completed close from a close that needs a
// PIN-verified approver. ApprovalRequired is a prompt to the caller, not a
// failure: no session state changed.
type CloseResult struct {
	ApprovalRequired bool
	Discrepancy      float64
	Session          *Session
	Summary          *CloseSummary
}

// ErrSessionNotFound indicates the session does not exist.
var ErrSessionNotFound = errors.New("till: session not found")

// ErrValidatorNotFound indicates the named validator/approver does not exist.
var ErrValidatorNotFound = errors.New("till: validator not found")

// ErrActiveSessionExists is the repository-level conflict raised when the
// single-active-session constraint rejects an insert.
var ErrActiveSessionExists = errors.New("till: active session exists")

// ErrSessionAlreadyOpen indicates the cashier already has an open session at
// this store.
var ErrSessionAlreadyOpen = errors.New("till: an open session already exists")

// ErrSessionAlreadyLocked indicates the cashier already has a locked session
// at this store, or a lock was requested on a locked session.
var ErrSessionAlreadyLocked = errors.New("till: session is already locked")

// ErrSessionLocked indicates an operation that requires an open session hit a
// locked one.
var ErrSessionLocked = errors.New("till: session is locked")

// ErrSessionNotLocked indicates an unlock was requested on a session that is
// not locked.
var ErrSessionNotLocked = errors.New("till: session is not locked")

// ErrSessionClosed indicates the session reached its terminal state; closed
// sessions never mutate.
var ErrSessionClosed = errors.New("till: session already closed")

// ErrNotAuthorized is a generic denial. It deliberately does not say why.
var ErrNotAuthorized = errors.New("till: not authorized")

// ErrStoreRequired indicates a missing store id.
var ErrStoreRequired = errors.New("till: store id required")

// ErrAmountNegative indicates a negative cash amount.
var ErrAmountNegative = errors.New("till: amount must not be negative")
