package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
)

// Status of an invoice.
type Status string

// Invoice statuses.
const (
	StatusUnpaid    Status = "unpaid"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether an invoice in status s still expects money.
func (s Status) Open() bool {
	return s == StatusUnpaid || s == StatusPartial || s == StatusOverdue
}

// OpenStatuses lists the statuses counted as pending.
func OpenStatuses() []string {
	return []string{string(StatusUnpaid), string(StatusPartial), string(StatusOverdue)}
}

// Invoice is a bill issued against a contract.
type Invoice struct {
	ID             int64
	Number         string
	ContractID     int64
	TenantID       int64
	ShopID         int64
	Period         string
	IssueDate      time.Time
	DueDate        time.Time
	AmountTotal    decimal.Decimal
	Currency       string
	Status         Status
	Description    string
	ReminderSentAt *time.Time
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	TenantName    string
	TenantContact string
	TenantEmail   string
	ContractTitle string
	ShopNumber    string
	ShopName      string
	ShopFloor     string
	ShopLocation  string
	PaidAmount    decimal.Decimal
}

// Balance is the amount still due.
func (i Invoice) Balance() decimal.Decimal {
	b := i.AmountTotal.Sub(i.PaidAmount)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// ShopLabel renders the invoiced shop.
func (i Invoice) ShopLabel() string {
	return shops.Label(i.ShopNumber, i.ShopName, i.ShopFloor, i.ShopLocation)
}

// DaysOverdue counts days past the due date as of today, zero when not due.
func (i Invoice) DaysOverdue(today time.Time) int {
	d := shared.DaysBetween(i.DueDate, today)
	if d < 0 {
		return 0
	}
	return d
}

// Input carries create/update form values. Zero values take defaults on create.
type Input struct {
	ContractID  int64  `validate:"required"`
	Number      string `validate:"max=60"`
	IssueDate   time.Time
	DueDate     time.Time
	AmountTotal decimal.NullDecimal
	Description string `validate:"max=500"`
	Status      Status
}

// ContractTerms are the contract values an invoice derives from.
type ContractTerms struct {
	ContractID int64
	TenantID   int64
	ShopID     int64
	Currency   string
	RentAmount decimal.Decimal
	Charges    decimal.Decimal
	ShopLabel  string
	Status     string
}

// ListFilter narrows the invoice list.
type ListFilter struct {
	shared.ListParams
	Status Status
}

// Totals sums the filtered invoices of one currency.
type Totals struct {
	Currency string
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Pending  decimal.Decimal
}

// PaymentLine is a payment shown on the invoice detail page.
type PaymentLine struct {
	ID        int64
	Amount    decimal.Decimal
	Currency  string
	Method    string
	PaidAt    time.Time
	Reference string
	Notes     string
}

// Detail is an invoice with its payments.
type Detail struct {
	Invoice
	Payments []PaymentLine
}

// Aging buckets outstanding balances of one currency by days past due.
type Aging struct {
	Currency string
	Current  decimal.Decimal
	Days30   decimal.Decimal
	Days60   decimal.Decimal
	Days90   decimal.Decimal
	Over90   decimal.Decimal
}

// Total sums every bucket.
func (a Aging) Total() decimal.Decimal {
	return a.Current.Add(a.Days30).Add(a.Days60).Add(a.Days90).Add(a.Over90)
}

// ExportLimit caps CSV exports.
const ExportLimit = 5000

var (
	// ErrInvoiceHasPayments is returned when deleting an invoice with payments.
	ErrInvoiceHasPayments = shared.NewPublicError("Cette facture a des paiements : annulez-la au lieu de la supprimer.")
	// ErrContractTerminated is returned when invoicing a terminated contract.
	ErrContractTerminated = shared.NewPublicError("Impossible de facturer un contrat résilié.")
)
