package tenants

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Tenant is a company renting one or more shops.
type Tenant struct {
	ID                 int64
	CompanyName        string
	ContactName        string
	Email              string
	Phone              string
	Address            string
	TaxID              string
	RegistrationNumber string
	BusinessType       string
	Notes              string
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Label renders "<company> (<contact>)" for selects.
func (t Tenant) Label() string {
	return t.CompanyName + " (" + t.ContactName + ")"
}

// Input carries create/update form values.
type Input struct {
	CompanyName        string `validate:"required,max=200"`
	ContactName        string `validate:"required,max=200"`
	Email              string `validate:"required,email"`
	Phone              string `validate:"required,max=40"`
	Address            string `validate:"max=500"`
	TaxID              string `validate:"max=60"`
	RegistrationNumber string `validate:"max=60"`
	BusinessType       string `validate:"max=120"`
	Notes              string
	Active             bool
}

// ListFilter narrows the tenant list. Active is "", "active" or "inactive".
type ListFilter struct {
	shared.ListParams
	Active string
}

// ContractSummary is a contract row on the tenant detail page.
type ContractSummary struct {
	ID        int64
	Title     string
	ShopLabel string
	Status    string
	StartDate time.Time
	EndDate   *time.Time
	Rent      decimal.Decimal
	Currency  string
}

// Balance is the amount still owed by a tenant in one currency.
type Balance struct {
	Currency    string
	Outstanding decimal.Decimal
}

// Detail aggregates what the tenant page shows.
type Detail struct {
	Tenant    Tenant
	Contracts []ContractSummary
	Balances  []Balance
}

// ErrTenantInUse is returned when deleting a tenant referenced by contracts.
var ErrTenantInUse = shared.NewPublicError("Ce locataire a des contrats et ne peut pas être supprimé.")
