package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/invoices"
	"github.com/rentdesk/rentdesk/internal/shared"
)

// Method is how a payment was made.
type Method string

// Payment methods.
const (
	MethodBankTransfer Method = "bank_transfer"
	MethodCash         Method = "cash"
	MethodCheck        Method = "check"
	MethodMobileMoney  Method = "mobile_money"
	MethodCard         Method = "card"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodCash, MethodCheck, MethodMobileMoney, MethodCard:
		return true
	}
	return false
}

// Payment is money received against an invoice.
type Payment struct {
	ID        int64
	InvoiceID int64
	Amount    decimal.Decimal
	Currency  string
	Method    Method
	PaidAt    time.Time
	Reference string
	Notes     string
	CreatedBy int64
	CreatedAt time.Time

	InvoiceNumber string
	TenantName    string
	ShopID        int64
}

// Input carries the payment form.
type Input struct {
	InvoiceID      int64 `validate:"required"`
	Amount         decimal.Decimal
	Method         Method
	PaidAt         time.Time
	Reference      string `validate:"max=120"`
	Notes          string `validate:"max=500"`
	IdempotencyKey string `validate:"max=64"`
}

// ListFilter narrows the payment list.
type ListFilter struct {
	shared.ListParams
	Method Method
}

// InvoiceState is the locked invoice row a payment is applied to.
type InvoiceState struct {
	ID          int64
	Number      string
	Status      invoices.Status
	AmountTotal decimal.Decimal
	Currency    string
	DueDate     time.Time
	ShopID      int64
	Paid        decimal.Decimal
}

// Payable is an open invoice offered on the payment form.
type Payable struct {
	ID         int64
	Number     string
	TenantName string
	Balance    decimal.Decimal
	Currency   string
	DueDate    time.Time
}

// StatusAfterPayment is the invoice status once paid has been received.
func StatusAfterPayment(total, paid decimal.Decimal) invoices.Status {
	if paid.GreaterThanOrEqual(total) {
		return invoices.StatusPaid
	}
	return invoices.StatusPartial
}

// StatusAfterRemoval is the invoice status once a payment is withdrawn and
// paid remains.
func StatusAfterRemoval(total, paid decimal.Decimal, due, today time.Time) invoices.Status {
	switch {
	case paid.IsPositive() && paid.GreaterThanOrEqual(total):
		return invoices.StatusPaid
	case due.Before(today):
		return invoices.StatusOverdue
	case paid.IsPositive():
		return invoices.StatusPartial
	}
	return invoices.StatusUnpaid
}

// ErrInvoiceNotPayable is returned for payments on paid or cancelled invoices.
var ErrInvoiceNotPayable = shared.NewPublicError("Cette facture n'accepte plus de paiement (payée ou annulée).")

// ErrDuplicateSubmission is returned when a payment form is posted twice.
var ErrDuplicateSubmission = shared.NewPublicError("Ce paiement a déjà été enregistré.")

// IdempotencyModule scopes the keys issued by the payment form.
const IdempotencyModule = "payments.record"
