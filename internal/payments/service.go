package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rentdesk/rentdesk/internal/invoices"
	"github.com/rentdesk/rentdesk/internal/shared"
)

// Service records payments and keeps invoice statuses in step.
type Service struct {
	repo     Repository
	activity shared.ActivityRecorder
	loc      *time.Location
	now      func() time.Time
}

// NewService constructs a Service. Dates are taken in loc.
func NewService(repo Repository, activity shared.ActivityRecorder, loc *time.Location) *Service {
	if activity == nil {
		activity = shared.NopActivity{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, activity: activity, loc: loc, now: time.Now}
}

// Today returns the current calendar date in the business timezone.
func (s *Service) Today() time.Time {
	return shared.CalendarDate(s.now().In(s.loc))
}

// List returns a page of payments.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Payment, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list payments: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.Limit(), total), nil
}

// Get returns one payment.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

// Payable lists invoices that still accept payments.
func (s *Service) Payable(ctx context.Context) ([]Payable, error) {
	return s.repo.Payable(ctx)
}

// Record stores a payment and moves the invoice to partial or paid. A non
// empty IdempotencyKey is claimed in the same transaction, so a replayed form
// returns ErrDuplicateSubmission without a second payment.
func (s *Service) Record(ctx context.Context, in Input) (Payment, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Method == "" {
		in.Method = MethodBankTransfer
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = s.Today()
	}
	verr := &shared.ValidationError{}
	if err := shared.ValidateStruct(in); err != nil {
		fields := shared.FieldErrors(err)
		if fields == nil {
			return Payment{}, err
		}
		for k, v := range fields {
			verr.Add(k, v)
		}
	}
	if !in.Amount.IsPositive() {
		verr.Add("Amount", "Le montant doit être supérieur à zéro.")
	}
	if !in.Method.Valid() {
		verr.Add("Method", "Valeur non autorisée.")
	}
	if err := verr.OrNil(); err != nil {
		return Payment{}, err
	}

	p := Payment{
		InvoiceID: in.InvoiceID,
		Amount:    in.Amount,
		Method:    in.Method,
		PaidAt:    shared.CalendarDate(in.PaidAt),
		Reference: in.Reference,
		Notes:     in.Notes,
	}
	if actor, ok := shared.CurrentUserID(ctx); ok {
		p.CreatedBy = actor
	}
	var status invoices.Status
	var state InvoiceState
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != "" {
			if err := tx.ClaimKey(ctx, in.IdempotencyKey); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					return ErrDuplicateSubmission
				}
				return err
			}
		}
		var err error
		state, err = tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.NewValidationError("InvoiceID", "Facture introuvable.")
			}
			return err
		}
		if state.Status == invoices.StatusPaid || state.Status == invoices.StatusCancelled {
			return ErrInvoiceNotPayable
		}
		p.Currency = state.Currency
		if p.ID, err = tx.Insert(ctx, p); err != nil {
			return err
		}
		status = StatusAfterPayment(state.AmountTotal, state.Paid.Add(p.Amount))
		return tx.SetInvoiceStatus(ctx, state.ID, status)
	})
	if err != nil {
		return Payment{}, err
	}
	p.InvoiceNumber = state.Number
	p.ShopID = state.ShopID
	s.activity.Record(ctx, shared.Activity{
		Action:   shared.ActionCreate,
		Entity:   "payment",
		EntityID: shared.EntityRef(p.ID),
		ShopID:   state.ShopID,
		Details: map[string]any{
			"invoice_number": state.Number,
			"amount":         p.Amount.StringFixed(2),
			"currency":       p.Currency,
			"method":         string(p.Method),
			"invoice_status": string(status),
		},
	})
	return p, nil
}

// Delete withdraws a payment and recomputes the invoice status.
func (s *Service) Delete(ctx context.Context, id int64) (Payment, error) {
	var p Payment
	var status invoices.Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if p, err = tx.Payment(ctx, id); err != nil {
			return err
		}
		state, err := tx.LockInvoice(ctx, p.InvoiceID)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		if state.Status == invoices.StatusCancelled {
			status = state.Status
			return nil
		}
		status = StatusAfterRemoval(state.AmountTotal, state.Paid.Sub(p.Amount), state.DueDate, s.Today())
		return tx.SetInvoiceStatus(ctx, state.ID, status)
	})
	if err != nil {
		return Payment{}, err
	}
	s.activity.Record(ctx, shared.Activity{
		Action:   shared.ActionDelete,
		Entity:   "payment",
		EntityID: shared.EntityRef(p.ID),
		ShopID:   p.ShopID,
		Details: map[string]any{
			"invoice_number": p.InvoiceNumber,
			"amount":         p.Amount.StringFixed(2),
			"currency":       p.Currency,
			"invoice_status": string(status),
		},
	})
	return p, nil
}
