package auth

import (
	"fmt"
	"strings"
)

// Role is the access level carried in the token's "role" claim.
// Viewers read alerts and manage their own inbox. Operators also reach the
// other mutating endpoints, and admins manage the signal directory.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ParseRole reads a role claim, ignoring case and surrounding space.
func ParseRole(claim string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(claim)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// Satisfies reports whether r grants at least the access of required.
func (r Role) Satisfies(required Role) bool {
	rank, ok := roleRanks[r]
	return ok && rank >= roleRanks[required]
}

// AccessRole returns the validated role of the token holder.
func (c *Claims) AccessRole() (Role, error) {
	role, ok := ParseRole(c.Role)
	if !ok {
		return "", fmt.Errorf("%w: role %q", ErrInvalidToken, c.Role)
	}
	return role, nil
}
