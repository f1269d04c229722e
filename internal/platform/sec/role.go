// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted system access, including log decryption
	RoleAdmin UserRole = "admin"

	// Can review audit trails and reset user 2FA state
	RoleSupport UserRole = "support"

	// Default role for standard registered users
	RoleMember UserRole = "member"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-40) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 40
	case RoleSupport:
		return 30
	case RoleMember:
		return 10
	default:
		return 0
	}
}

// # Session Identity

// Identity is the per-request resolved identity attached to the context by
// the session authentication middleware.
//
// It is reconstructed from the server-side session record on every request,
// so a rotated security stamp invalidates it immediately.
type Identity struct {
	UserID    string
	Username  string
	Role      UserRole
	SessionID string
}
