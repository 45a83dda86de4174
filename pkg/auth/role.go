package auth

import "fmt"

// Role is the closed set of authorization levels a user can hold.
// The string values are what the users table stores.
type Role string

const (
	// RoleAdmin can manage sections, users, and all content.
	RoleAdmin Role = "admin"
	// RoleMod can moderate content and warn or ban users.
	RoleMod Role = "mod"
	// RoleUser is the default role for registered accounts.
	RoleUser Role = "user"
)

// ParseRole maps a stored or submitted string onto the closed enum.
// Anything outside the three known values is rejected rather than
// silently downgraded.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleMod, RoleUser:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// String returns the stored representation of the role.
func (r Role) String() string {
	return string(r)
}

// Staff reports whether the role carries moderation privileges.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleMod
}
