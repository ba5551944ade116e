package shops

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Status of a rental unit.
type Status string

// Shop statuses.
const (
	StatusVacant          Status = "vacant"
	StatusOccupied        Status = "occupied"
	StatusUnderRenovation Status = "under_renovation"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusVacant, StatusOccupied, StatusUnderRenovation:
		return true
	}
	return false
}

// Shop is a rental unit.
type Shop struct {
	ID               int64
	ShopNumber       string
	Name             string
	Status           Status
	SurfaceArea      decimal.Decimal
	Floor            string
	Location         string
	ActivityCategory string
	MonthlyRent      decimal.NullDecimal
	Description      string
	CreatedBy        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Filled on reads from the active contract, if any.
	TenantID   int64
	TenantName string
	ContractID int64
}

// Label renders the shop the way selects and invoice descriptions show it.
func (s Shop) Label() string {
	return Label(s.ShopNumber, s.Name, s.Floor, s.Location)
}

// Label formats "<number> - <name> (Étage <floor>, <location>)".
func Label(number, name, floor, location string) string {
	return fmt.Sprintf("%s - %s (Étage %s, %s)", number, name, floor, location)
}

// Input carries create/update form values.
type Input struct {
	ShopNumber       string `validate:"required,max=40"`
	Name             string `validate:"required,max=200"`
	Status           Status `validate:"required,oneof=vacant occupied under_renovation"`
	SurfaceArea      decimal.Decimal
	Floor            string `validate:"required,max=40"`
	Location         string `validate:"required,max=200"`
	ActivityCategory string `validate:"max=120"`
	MonthlyRent      decimal.NullDecimal
	Description      string
	TenantID         int64
}

// ListFilter narrows the shop list.
type ListFilter struct {
	shared.ListParams
	Status Status
}

// ActiveLease is the active contract occupying a shop.
type ActiveLease struct {
	ContractID int64
	TenantID   int64
}

// Lease is the contract created automatically when a shop is marked occupied.
type Lease struct {
	ShopID       int64
	TenantID     int64
	Title        string
	StartDate    time.Time
	EndDate      time.Time
	RentAmount   decimal.Decimal
	Deposit      decimal.Decimal
	Currency     string
	PaymentDay   int
	ContractType string
	CreatedBy    int64
}

var (
	// ErrShopDoubleBooked is returned when another tenant holds an active contract.
	ErrShopDoubleBooked = shared.NewPublicError("Ce local a déjà un contrat actif avec un autre locataire.")
	// ErrShopInUse is returned when deleting a shop referenced by contracts.
	ErrShopInUse = shared.NewPublicError("Ce local est référencé par des contrats et ne peut pas être supprimé.")
)
