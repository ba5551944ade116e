package invoices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Options tunes invoice rules.
type Options struct {
	Location *time.Location
}

// Service implements invoice rules.
type Service struct {
	repo     Repository
	activity shared.ActivityRecorder
	opts     Options
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, activity shared.ActivityRecorder, opts Options) *Service {
	if activity == nil {
		activity = shared.NopActivity{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{repo: repo, activity: activity, opts: opts, now: time.Now}
}

// Today returns the current calendar date in the business timezone.
func (s *Service) Today() time.Time {
	return shared.CalendarDate(s.now().In(s.opts.Location))
}

// List returns a page of invoices with per-currency totals of the whole filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, []Totals, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, shared.Pagination{}, fmt.Errorf("list invoices: %w", err)
	}
	totals, err := s.repo.Totals(ctx, filter)
	if err != nil {
		return nil, nil, shared.Pagination{}, fmt.Errorf("invoice totals: %w", err)
	}
	return items, totals, shared.NewPagination(filter.Page, filter.Limit(), total), nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// Detail returns an invoice with its payments.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	payments, err := s.repo.Payments(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("invoice payments: %w", err)
	}
	return Detail{Invoice: inv, Payments: payments}, nil
}

// Export returns the invoices matching filter for CSV download.
func (s *Service) Export(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	return s.repo.Export(ctx, filter, ExportLimit)
}

// Aging buckets the outstanding balances as of today.
func (s *Service) Aging(ctx context.Context) ([]Aging, time.Time, error) {
	items, err := s.repo.Outstanding(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("outstanding invoices: %w", err)
	}
	today := s.Today()
	return BucketAging(items, today), today, nil
}

// Create issues an invoice. Tenant, shop and currency come from the contract;
// blank number, dates, amount and description take defaults.
func (s *Service) Create(ctx context.Context, in Input) (Invoice, error) {
	inv, err := s.build(ctx, in, true)
	if err != nil {
		return Invoice{}, err
	}
	if actor, ok := shared.CurrentUserID(ctx); ok {
		inv.CreatedBy = actor
	}
	id, err := s.repo.Insert(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	inv.ID = id
	s.record(ctx, shared.ActionCreate, inv, nil)
	return s.repo.Get(ctx, id)
}

// Update rewrites an invoice.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Invoice, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if in.Number == "" {
		in.Number = current.Number
	}
	if in.Status == "" {
		in.Status = current.Status
	}
	inv, err := s.build(ctx, in, false)
	if err != nil {
		return Invoice{}, err
	}
	inv.ID = id
	if err := s.repo.Update(ctx, inv); err != nil {
		return Invoice{}, err
	}
	s.record(ctx, shared.ActionUpdate, inv, nil)
	return s.repo.Get(ctx, id)
}

// SetStatus changes an invoice status from the list.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return shared.NewValidationError("Status", "Valeur non autorisée.")
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.record(ctx, shared.ActionUpdate, inv, map[string]any{"status": string(status), "previous_status": string(inv.Status)})
	return nil
}

// Delete removes an invoice without payments.
func (s *Service) Delete(ctx context.Context, id int64) error {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if inv.PaidAmount.IsPositive() {
		return ErrInvoiceHasPayments
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.ActionDelete, inv, nil)
	return nil
}

func (s *Service) build(ctx context.Context, in Input, creating bool) (Invoice, error) {
	in.Number = strings.TrimSpace(in.Number)
	in.Description = strings.TrimSpace(in.Description)
	verr := &shared.ValidationError{}
	if err := shared.ValidateStruct(in); err != nil {
		fields := shared.FieldErrors(err)
		if fields == nil {
			return Invoice{}, err
		}
		for k, v := range fields {
			verr.Add(k, v)
		}
	}
	if in.Status != "" && !in.Status.Valid() {
		verr.Add("Status", "Valeur non autorisée.")
	}
	if in.AmountTotal.Valid && in.AmountTotal.Decimal.IsNegative() {
		verr.Add("AmountTotal", "Le montant ne peut pas être négatif.")
	}
	if err := verr.OrNil(); err != nil {
		return Invoice{}, err
	}

	terms, err := s.repo.ContractTerms(ctx, in.ContractID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Invoice{}, shared.NewValidationError("ContractID", "Contrat introuvable.")
		}
		return Invoice{}, err
	}
	if creating && terms.Status == "terminated" {
		return Invoice{}, ErrContractTerminated
	}

	now := s.now().In(s.opts.Location)
	inv := Invoice{
		Number:      in.Number,
		ContractID:  terms.ContractID,
		TenantID:    terms.TenantID,
		ShopID:      terms.ShopID,
		IssueDate:   in.IssueDate,
		DueDate:     in.DueDate,
		Currency:    terms.Currency,
		Status:      in.Status,
		Description: in.Description,
	}
	if inv.Number == "" {
		inv.Number = DefaultNumber(now)
	}
	if inv.IssueDate.IsZero() {
		inv.IssueDate = shared.CalendarDate(now)
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = shared.AddMonths(inv.IssueDate, 1)
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return Invoice{}, shared.NewValidationError("DueDate", "L'échéance doit suivre la date d'émission.")
	}
	if in.AmountTotal.Valid {
		inv.AmountTotal = in.AmountTotal.Decimal
	} else {
		inv.AmountTotal = terms.RentAmount.Add(terms.Charges)
	}
	if inv.Status == "" {
		inv.Status = StatusUnpaid
	}
	if inv.Description == "" {
		inv.Description = "Loyer - " + terms.ShopLabel
	}
	return inv, nil
}

// DefaultNumber formats the invoice number used when none is entered.
func DefaultNumber(at time.Time) string {
	return "FAC-" + at.Format("20060102150405")
}

// BucketAging groups open balances by currency and days past due.
func BucketAging(items []Invoice, today time.Time) []Aging {
	byCurrency := map[string]*Aging{}
	for _, inv := range items {
		if !inv.Status.Open() {
			continue
		}
		balance := inv.Balance()
		if balance.IsZero() {
			continue
		}
		a, ok := byCurrency[inv.Currency]
		if !ok {
			a = &Aging{Currency: inv.Currency}
			byCurrency[inv.Currency] = a
		}
		days := shared.DaysBetween(inv.DueDate, today)
		switch {
		case days <= 0:
			a.Current = a.Current.Add(balance)
		case days <= 30:
			a.Days30 = a.Days30.Add(balance)
		case days <= 60:
			a.Days60 = a.Days60.Add(balance)
		case days <= 90:
			a.Days90 = a.Days90.Add(balance)
		default:
			a.Over90 = a.Over90.Add(balance)
		}
	}
	out := make([]Aging, 0, len(byCurrency))
	for _, a := range byCurrency {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func (s *Service) record(ctx context.Context, action string, inv Invoice, extra map[string]any) {
	details := map[string]any{
		"invoice_number": inv.Number,
		"amount":         inv.AmountTotal.StringFixed(2),
		"currency":       inv.Currency,
	}
	for k, v := range extra {
		details[k] = v
	}
	s.activity.Record(ctx, shared.Activity{
		Action:   action,
		Entity:   "invoice",
		EntityID: shared.EntityRef(inv.ID),
		ShopID:   inv.ShopID,
		Details:  details,
	})
}
