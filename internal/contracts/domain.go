package contracts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
)

// Status of a lease contract.
type Status string

// Contract statuses.
const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
	StatusExpired    Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusTerminated, StatusExpired:
		return true
	}
	return false
}

// Contract types.
const (
	TypeCommercial  = "commercial"
	TypeResidential = "residential"
	TypeMixed       = "mixed"
)

// DefaultRenewalMonths is the renewal term when none is given.
const DefaultRenewalMonths = 12

// Contract binds a tenant to a shop.
type Contract struct {
	ID            int64
	ShopID        int64
	TenantID      int64
	Title         string
	ContractType  string
	StartDate     time.Time
	EndDate       *time.Time
	RentAmount    decimal.Decimal
	Charges       decimal.Decimal
	Deposit       decimal.Decimal
	Currency      string
	PaymentDay    int
	AutoRenewal   bool
	RenewalMonths int
	Status        Status
	Notes         string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	ShopNumber    string
	ShopName      string
	ShopFloor     string
	ShopLocation  string
	TenantName    string
	TenantContact string
}

// ShopLabel renders the contract's shop like shop selects do.
func (c Contract) ShopLabel() string {
	return shops.Label(c.ShopNumber, c.ShopName, c.ShopFloor, c.ShopLocation)
}

// Label renders "<title> - <tenant>" for selects.
func (c Contract) Label() string {
	return c.Title + " - " + c.TenantName
}

// MonthlyDue is the amount billed each month.
func (c Contract) MonthlyDue() decimal.Decimal {
	return c.RentAmount.Add(c.Charges)
}

// Expiry levels shown next to end dates.
const (
	ExpiryNone    = ""
	ExpiryWarning = "warning"
	ExpiryDanger  = "danger"
	ExpiryExpired = "expired"
)

// Expiry describes how close a contract is to its end date.
type Expiry struct {
	Level    string
	DaysLeft int
}

// Badge returns the CSS class of the expiry level.
func (e Expiry) Badge() string {
	switch e.Level {
	case ExpiryExpired, ExpiryDanger:
		return "badge-danger"
	case ExpiryWarning:
		return "badge-warning"
	}
	return ""
}

// Text is the badge caption.
func (e Expiry) Text() string {
	switch e.Level {
	case ExpiryExpired:
		return fmt.Sprintf("Expiré depuis %d j", -e.DaysLeft)
	case ExpiryDanger, ExpiryWarning:
		if e.DaysLeft == 0 {
			return "Expire aujourd'hui"
		}
		return fmt.Sprintf("Expire dans %d j", e.DaysLeft)
	}
	return ""
}

// ExpiryOn classifies the contract's end date relative to today: expired once
// past, danger within 30 days, warning within 90 days.
func (c Contract) ExpiryOn(today time.Time) Expiry {
	if c.EndDate == nil || c.Status == StatusTerminated {
		return Expiry{}
	}
	days := shared.DaysBetween(today, *c.EndDate)
	switch {
	case days < 0:
		return Expiry{Level: ExpiryExpired, DaysLeft: days}
	case days <= 30:
		return Expiry{Level: ExpiryDanger, DaysLeft: days}
	case days <= 90:
		return Expiry{Level: ExpiryWarning, DaysLeft: days}
	}
	return Expiry{DaysLeft: days}
}

// Input carries create/update form values.
type Input struct {
	ShopID        int64  `validate:"required"`
	TenantID      int64  `validate:"required"`
	Title         string `validate:"required,max=200"`
	ContractType  string `validate:"required,oneof=commercial residential mixed"`
	StartDate     time.Time
	EndDate       *time.Time
	RentAmount    decimal.Decimal
	Charges       decimal.Decimal
	Deposit       decimal.Decimal
	Currency      string `validate:"required,oneof=EUR USD XAF MAD"`
	PaymentDay    int    `validate:"gte=1,lte=31"`
	AutoRenewal   bool
	RenewalMonths int    `validate:"gt=0"`
	Status        Status `validate:"required,oneof=pending active terminated expired"`
	Notes         string
}

// ListFilter narrows the contract list.
type ListFilter struct {
	shared.ListParams
	Status Status
}

// Row is a list entry with its expiry classification.
type Row struct {
	Contract
	Expiry Expiry
}

var (
	// ErrContractInUse is returned when deleting a contract referenced by invoices.
	ErrContractInUse = shared.NewPublicError("Ce contrat a des factures et ne peut pas être supprimé.")
	// ErrContractClosed is returned when terminating a contract that is no longer running.
	ErrContractClosed = shared.NewPublicError("Ce contrat est déjà résilié ou expiré.")
	// ErrContractTerminated is returned when renewing a terminated contract.
	ErrContractTerminated = shared.NewPublicError("Un contrat résilié ne peut pas être renouvelé.")
)
