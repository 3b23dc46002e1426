package validators

import (
	"errors"

	"github.com/tillpoint/tillpoint/internal/staff"
)

// Candidate is a manager or admin who could validate an unlock override or
// approve a closing discrepancy. Only identity and scope are exposed; the
// PIN hash never is.
type Candidate struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Role    staff.Role `json:"role"`
	StoreID *int64     `json:"store_id,omitempty"`
}

// Candidates partitions approvers by whether a PIN is configured. The
// partition is computed server-side; this enumerated list is the only way a
// caller learns about PIN existence.
type Candidates struct {
	WithPin    []Candidate `json:"with_pin"`
	WithoutPin []Candidate `json:"without_pin"`
}

// ErrStoreRequired indicates no store scope could be determined for the
// lookup.
var ErrStoreRequired = errors.New("validators: store id required")
