package rbac

import (
	"slices"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Roles assignable to profiles.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleAccountant = "accountant"
)

// Profile is the subset of a profile row needed for authorization.
type Profile struct {
	ID       int64
	Email    string
	FullName string
	Role     string
	Active   bool
}

var rolePermissions = map[string][]string{
	RoleAdmin: shared.AllPermissions(),
	RoleManager: {
		shared.PermDashboardView,
		shared.PermShopsView, shared.PermShopsEdit,
		shared.PermTenantsView, shared.PermTenantsEdit,
		shared.PermContractsView, shared.PermContractsEdit,
		shared.PermInvoicesView, shared.PermInvoicesEdit,
		shared.PermPaymentsView, shared.PermPaymentsEdit,
		shared.PermActivityView,
	},
	RoleAccountant: {
		shared.PermDashboardView,
		shared.PermInvoicesView, shared.PermInvoicesEdit,
		shared.PermPaymentsView, shared.PermPaymentsEdit,
	},
}

// Roles returns the assignable roles in display order.
func Roles() []string {
	return []string{RoleAdmin, RoleManager, RoleAccountant}
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// PermissionsForRole returns a copy of the permissions granted to role.
func PermissionsForRole(role string) []string {
	return slices.Clone(rolePermissions[role])
}
