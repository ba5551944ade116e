package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rentdesk/rentdesk/internal/invoices"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// Service applies the billing rules.
type Service struct {
	repo     Repository
	mailer   Mailer
	activity shared.ActivityRecorder
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// NewService constructs a Service. mailer may be nil, which disables reminders.
func NewService(repo Repository, mailer Mailer, activity shared.ActivityRecorder, logger *slog.Logger, opts Options) *Service {
	if activity == nil {
		activity = shared.NopActivity{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ReminderInterval <= 0 {
		opts.ReminderInterval = 7 * 24 * time.Hour
	}
	return &Service{repo: repo, mailer: mailer, activity: activity, logger: logger, opts: opts, now: time.Now}
}

// Today returns the business date.
func (s *Service) Today() time.Time {
	return shared.CalendarDate(s.now().In(s.opts.Location))
}

// MarkOverdue flags open invoices past their due date.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	n, err := s.repo.MarkOverdue(ctx, s.Today())
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	s.record(ctx, RuleMarkOverdue, map[string]any{"marked": n})
	return n, nil
}

// SendPaymentReminders emails tenants whose invoices are due within the lead
// window. Each invoice is claimed before sending; an invoice claimed by a
// concurrent run is skipped. A failed email is logged and the claim released,
// so the invoice stays eligible.
func (s *Service) SendPaymentReminders(ctx context.Context) (int, error) {
	if s.mailer == nil {
		return 0, nil
	}
	today := s.Today()
	dueBy := today.AddDate(0, 0, s.opts.ReminderLeadDays)
	candidates, err := s.repo.ReminderCandidates(ctx, dueBy, s.now().Add(-s.opts.ReminderInterval))
	if err != nil {
		return 0, fmt.Errorf("reminder candidates: %w", err)
	}
	// PostgreSQL keeps microseconds; the release compares against this value.
	at := s.now().Truncate(time.Microsecond)
	var (
		sent int
		errs []error
	)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		claimed, err := s.repo.ClaimReminder(ctx, c.InvoiceID, c.RemindedAt, at)
		if err != nil {
			errs = append(errs, fmt.Errorf("claim reminder %s: %w", c.Number, err))
			continue
		}
		if !claimed {
			continue
		}
		subject, body := s.reminderMessage(c, today)
		if err := s.mailer.SendMail(ctx, c.Email, subject, body); err != nil {
			s.logger.Warn("payment reminder failed", slog.String("invoice", c.Number), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("reminder %s: %w", c.Number, err))
			if err := s.repo.ReleaseReminder(context.WithoutCancel(ctx), c.InvoiceID, at, c.RemindedAt); err != nil {
				errs = append(errs, fmt.Errorf("release reminder %s: %w", c.Number, err))
			}
			continue
		}
		sent++
	}
	s.record(ctx, RuleReminders, map[string]any{"sent": sent, "failed": len(errs)})
	return sent, errors.Join(errs...)
}

func (s *Service) reminderMessage(c ReminderCandidate, today time.Time) (string, string) {
	subject := fmt.Sprintf("Rappel de paiement - facture %s", c.Number)
	var b strings.Builder
	fmt.Fprintf(&b, "Bonjour %s,\n\n", c.TenantName)
	if c.DueDate.Before(today) {
		fmt.Fprintf(&b, "La facture %s était à régler le %s et reste impayée.\n", c.Number, c.DueDate.Format("02/01/2006"))
	} else {
		fmt.Fprintf(&b, "La facture %s arrive à échéance le %s.\n", c.Number, c.DueDate.Format("02/01/2006"))
	}
	fmt.Fprintf(&b, "Montant restant dû : %s\n", view.FormatMoney(c.Balance(), c.Currency))
	if s.opts.BaseURL != "" {
		fmt.Fprintf(&b, "\nDétail : %s/invoices/%d\n", s.opts.BaseURL, c.InvoiceID)
	}
	b.WriteString("\nCordialement,\nLe service gestion locative\n")
	return subject, b.String()
}

// AutoRenewContracts extends lapsed contracts flagged for auto renewal and
// expires the others, freeing shops left without an active contract.
func (s *Service) AutoRenewContracts(ctx context.Context) (renewed, expired int, err error) {
	today := s.Today()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		renewed, expired = 0, 0
		lapsed, err := tx.LapsedContracts(ctx, today)
		if err != nil {
			return err
		}
		for _, c := range lapsed {
			if c.AutoRenewal {
				if err := tx.ExtendContract(ctx, c.ID, RenewedEnd(c.EndDate, c.RenewalMonths, today)); err != nil {
					return err
				}
				renewed++
				continue
			}
			if err := tx.ExpireContract(ctx, c.ID); err != nil {
				return err
			}
			expired++
			active, err := tx.ShopHasActiveContract(ctx, c.ShopID)
			if err != nil {
				return err
			}
			if !active {
				if err := tx.VacateShop(ctx, c.ShopID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("auto renew contracts: %w", err)
	}
	s.record(ctx, RuleAutoRenew, map[string]any{"renewed": renewed, "expired": expired})
	return renewed, expired, nil
}

// GenerateMonthlyInvoices issues one invoice per active contract for the month
// containing period. Contracts already invoiced for that month are skipped.
func (s *Service) GenerateMonthlyInvoices(ctx context.Context, period time.Time) (int, error) {
	start := MonthStart(period)
	end := start.AddDate(0, 1, -1)
	contracts, err := s.repo.BillableContracts(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("billable contracts: %w", err)
	}
	created := 0
	for _, c := range contracts {
		inv := invoices.Invoice{
			Number:      InvoiceNumber(start, c.ID),
			ContractID:  c.ID,
			TenantID:    c.TenantID,
			ShopID:      c.ShopID,
			Period:      start.Format("2006-01"),
			IssueDate:   start,
			DueDate:     DueDate(start, c.PaymentDay),
			AmountTotal: c.RentAmount.Add(c.Charges),
			Currency:    c.Currency,
			Status:      invoices.StatusUnpaid,
			Description: fmt.Sprintf("Loyer %s - %s", start.Format("01/2006"), c.ShopLabel),
		}
		ok, err := s.repo.InsertInvoice(ctx, inv)
		if err != nil {
			return created, fmt.Errorf("insert invoice %s: %w", inv.Number, err)
		}
		if ok {
			created++
		}
	}
	s.record(ctx, RuleMonthlyInvoices, map[string]any{
		"period":    start.Format("2006-01"),
		"created":   created,
		"contracts": len(contracts),
	})
	return created, nil
}

// RunDaily applies every rule in order, generating the month's invoices on
// its first day only. Later rules still run when an earlier one fails.
func (s *Service) RunDaily(ctx context.Context) (Report, error) {
	report := Report{Timestamp: s.now().UTC()}
	var (
		errs []error
		err  error
	)

	if report.MarkedOverdue, err = s.MarkOverdue(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.Renewed, report.Expired, err = s.AutoRenewContracts(ctx); err != nil {
		errs = append(errs, err)
	}
	if report.Reminders, err = s.SendPaymentReminders(ctx); err != nil {
		errs = append(errs, err)
	}
	if today := s.Today(); today.Day() == 1 {
		if report.InvoicesCreated, err = s.GenerateMonthlyInvoices(ctx, today); err != nil {
			errs = append(errs, err)
		}
	}
	return report, errors.Join(errs...)
}

func (s *Service) record(ctx context.Context, rule string, details map[string]any) {
	s.activity.Record(ctx, shared.Activity{
		Action:   shared.ActionSystem,
		Entity:   "billing",
		EntityID: rule,
		Details:  details,
	})
}
