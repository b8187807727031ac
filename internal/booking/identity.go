package booking

import "strings"

// Role is the caller's role as asserted by the auth layer.
type Role string

const (
	RoleStudent      Role = "student"
	RoleTeacher      Role = "teacher"
	RoleStaff        Role = "staff"
	RoleLibraryAdmin Role = "library_admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleStaff, RoleLibraryAdmin:
		return true
	}
	return false
}

// Identity is the opaque authenticated user handed over by the auth layer.
type Identity struct {
	UserID string
	Role   Role
}

// Authenticated reports whether the identity carries a user id.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != ""
}

// IsStaff reports whether the identity may act on other users' reservations.
func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff || i.Role == RoleLibraryAdmin
}
