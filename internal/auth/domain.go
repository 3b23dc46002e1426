package auth

// Credentials carries the columns needed to verify a login. The actor
// profile itself is always loaded fresh through the staff repository.
type Credentials struct {
	StaffID      int64
	PasswordHash string
	IsActive     bool
}
