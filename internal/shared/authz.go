package shared

// Permissions checked by route groups.
const (
	PermDashboardView = "dashboard.view"

	PermShopsView = "shops.view"
	PermShopsEdit = "shops.edit"

	PermTenantsView = "tenants.view"
	PermTenantsEdit = "tenants.edit"

	PermContractsView = "contracts.view"
	PermContractsEdit = "contracts.edit"

	PermInvoicesView = "invoices.view"
	PermInvoicesEdit = "invoices.edit"

	PermPaymentsView = "payments.view"
	PermPaymentsEdit = "payments.edit"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermActivityView = "activity.view"

	PermJobsRun = "jobs.run"
)

// AllPermissions lists every permission known to the console.
func AllPermissions() []string {
	return []string{
		PermDashboardView,
		PermShopsView, PermShopsEdit,
		PermTenantsView, PermTenantsEdit,
		PermContractsView, PermContractsEdit,
		PermInvoicesView, PermInvoicesEdit,
		PermPaymentsView, PermPaymentsEdit,
		PermUsersView, PermUsersEdit,
		PermActivityView,
		PermJobsRun,
	}
}
