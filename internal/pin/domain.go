package pin

import (
	"errors"
	"regexp"
	"time"
)

// pinPattern is the only accepted PIN shape: exactly six digits.
var pinPattern = regexp.MustCompile(`^\d{6}$`)

// ValidFormat reports whether the candidate is a well-formed PIN.
func ValidFormat(candidate string) bool {
	return pinPattern.MatchString(candidate)
}

// Credential is a stored PIN hash. The hash never leaves this package.
type Credential struct {
	StaffID   int64
	Hash      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status is the only credential information exposed to its owner.
type Status struct {
	HasPin    bool       `json:"has_pin"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ErrInvalidFormat indicates the PIN is not exactly six digits.
var ErrInvalidFormat = errors.New("pin: must be exactly 6 digits")

// ErrNotConfigured indicates no credential row exists for the actor.
var ErrNotConfigured = errors.New("pin: not configured")

// ErrMismatch indicates the supplied PIN does not match the stored hash.
var ErrMismatch = errors.New("pin: invalid")

// ErrRoleNotAllowed indicates the actor's role may not hold a PIN.
var ErrRoleNotAllowed = errors.New("pin: only managers and admins hold a PIN")
