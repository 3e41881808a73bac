// Package rbac holds role normalization and the permission evaluator.
package rbac

import "strings"

// Role is a canonical actor role
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleProjectManager Role = "PROJECT_MANAGER"
	RoleFinanceUser    Role = "FINANCE_USER"
	RoleVendor         Role = "VENDOR"
)

// IsCanonical reports whether r is one of the four canonical roles
func (r Role) IsCanonical() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleFinanceUser, RoleVendor:
		return true
	default:
		return false
	}
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// roleAliases maps lower-cased, separator-collapsed spellings to canonical roles
var roleAliases = map[string]Role{
	"admin":           RoleAdmin,
	"administrator":   RoleAdmin,
	"project manager": RoleProjectManager,
	"projectmanager":  RoleProjectManager,
	"pm":              RoleProjectManager,
	"finance user":    RoleFinanceUser,
	"finance":         RoleFinanceUser,
	"financeuser":     RoleFinanceUser,
	"vendor":          RoleVendor,
	"supplier":        RoleVendor,
}

// Normalize maps a free-form role string to its canonical role.
// Unrecognized input is returned unchanged and grants nothing.
func Normalize(raw string) Role {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")

	if role, ok := roleAliases[key]; ok {
		return role
	}
	return Role(raw)
}
