// Package billing holds the scheduled business rules: overdue marking,
// payment reminders, contract renewal and monthly invoicing.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Rule names, used as activity entity ids and metric labels.
const (
	RuleMarkOverdue     = "mark-overdue"
	RuleReminders       = "reminders"
	RuleAutoRenew       = "auto-renew"
	RuleMonthlyInvoices = "monthly-invoices"
	RuleDaily           = "daily"
)

// Mailer delivers an email, usually by enqueueing a mail task.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// Options tunes the rules.
type Options struct {
	ReminderLeadDays int
	ReminderInterval time.Duration
	Location         *time.Location
	BaseURL          string
}

// Report summarises one daily run.
type Report struct {
	Timestamp       time.Time `json:"timestamp"`
	MarkedOverdue   int       `json:"marked_overdue"`
	Renewed         int       `json:"renewed"`
	Expired         int       `json:"expired"`
	Reminders       int       `json:"reminders"`
	InvoicesCreated int       `json:"invoices_created"`
}

// ReminderCandidate is an open invoice whose tenant should be reminded.
type ReminderCandidate struct {
	InvoiceID   int64
	Number      string
	TenantName  string
	Email       string
	AmountTotal decimal.Decimal
	Paid        decimal.Decimal
	Currency    string
	DueDate     time.Time
	ShopID      int64
	RemindedAt  *time.Time
}

// Balance is the amount still due.
func (c ReminderCandidate) Balance() decimal.Decimal {
	return c.AmountTotal.Sub(c.Paid)
}

// LapsedContract is an active contract whose end date has passed.
type LapsedContract struct {
	ID            int64
	ShopID        int64
	EndDate       time.Time
	AutoRenewal   bool
	RenewalMonths int
}

// BillableContract is an active contract to invoice for a month.
type BillableContract struct {
	ID         int64
	TenantID   int64
	ShopID     int64
	RentAmount decimal.Decimal
	Charges    decimal.Decimal
	Currency   string
	PaymentDay int
	ShopLabel  string
}

// MonthStart returns the first day of t's month at UTC midnight.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DueDate places paymentDay within the month starting at monthStart, clamped
// to the month length.
func DueDate(monthStart time.Time, paymentDay int) time.Time {
	last := monthStart.AddDate(0, 1, -1).Day()
	day := min(max(paymentDay, 1), last)
	return time.Date(monthStart.Year(), monthStart.Month(), day, 0, 0, 0, 0, time.UTC)
}

// InvoiceNumber formats the number of a generated monthly invoice.
func InvoiceNumber(monthStart time.Time, contractID int64) string {
	return fmt.Sprintf("FAC-%s-%04d", monthStart.Format("200601"), contractID)
}

// RenewedEnd advances end by whole terms of months until it is not before
// today. Each term is counted from the original end so a month-end date does
// not drift.
func RenewedEnd(end time.Time, months int, today time.Time) time.Time {
	if months <= 0 {
		months = 12
	}
	renewed := end
	for terms := 1; renewed.Before(today); terms++ {
		renewed = shared.AddMonths(end, terms*months)
	}
	return renewed
}
