package till

import "github.com/tillpoint/tillpoint/internal/staff"

// Authorization gates for the session lifecycle. These are pure functions
// over the actor's role, store assignment, and session ownership; the
// service consults them before every transition.

// CanOpen reports whether the actor may open a till at the store. Managers
// and cashiers are bound to their assigned store; admins are not.
func CanOpen(actor *staff.Actor, storeID int64) bool {
	return actor.AssignedTo(storeID)
}

// CanLock reports whether the actor may lock the session. Only the owning
// cashier locks their own till.
func CanLock(actor *staff.Actor, sess Session) bool {
	return actor.ID == sess.CashierID
}

// CanUnlockSelf reports whether the actor may self-unlock the session.
func CanUnlockSelf(actor *staff.Actor, sess Session) bool {
	return actor.ID == sess.CashierID
}

// CanActAsValidator reports whether the actor may validate an unlock
// override or approve a close discrepancy for the session. Managers are
// limited to the session's store; admins are not.
func CanActAsValidator(actor *staff.Actor, sess Session) bool {
	if !actor.Role.Elevated() {
		return false
	}
	return actor.AssignedTo(sess.StoreID)
}

// CanClose reports whether the actor may close the session: the owner, or a
// manager/admin under the validator store rule.
func CanClose(actor *staff.Actor, sess Session) bool {
	if actor.ID == sess.CashierID {
		return true
	}
	return CanActAsValidator(actor, sess)
}
