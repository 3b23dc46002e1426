package staff

import (
	"errors"
	"fmt"
	"time"
)

// Role is the closed set of staff roles. Authorization decisions branch on
// this type, never on raw strings from storage.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

// ParseRole maps a stored role string onto the closed variant.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleCashier:
		return Role(s), nil
	default:
		return "", fmt.Errorf("staff: unknown role %q", s)
	}
}

// Elevated reports whether the role carries manager-level authority.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleManager
}

// Actor represents an authenticated staff member. StoreID is nil only for
// admins, whose authority is not scoped to a single store.
type Actor struct {
	ID        int64
	Email     string
	Name      string
	Role      Role
	StoreID   *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssignedTo reports whether the actor is assigned to the given store.
// Admins are considered assigned everywhere.
func (a Actor) AssignedTo(storeID int64) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return a.StoreID != nil && *a.StoreID == storeID
}

// ErrNotFound indicates the staff row does not exist.
var ErrNotFound = errors.New("staff: not found")
