package billing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/invoices"
	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/shops"
)

// Repository runs the bulk statements behind the rules.
type Repository interface {
	MarkOverdue(ctx context.Context, today time.Time) (int, error)
	ReminderCandidates(ctx context.Context, dueBy, remindedBefore time.Time) ([]ReminderCandidate, error)
	ClaimReminder(ctx context.Context, invoiceID int64, previous *time.Time, at time.Time) (bool, error)
	ReleaseReminder(ctx context.Context, invoiceID int64, at time.Time, previous *time.Time) error
	BillableContracts(ctx context.Context, monthStart, monthEnd time.Time) ([]BillableContract, error)
	InsertInvoice(ctx context.Context, inv invoices.Invoice) (bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository serialises contract renewals.
type TxRepository interface {
	LapsedContracts(ctx context.Context, today time.Time) ([]LapsedContract, error)
	ExtendContract(ctx context.Context, id int64, end time.Time) error
	ExpireContract(ctx context.Context, id int64) error
	ShopHasActiveContract(ctx context.Context, shopID int64) (bool, error)
	VacateShop(ctx context.Context, shopID int64) error
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// MarkOverdue flags unpaid and partial invoices past due.
func (r *PGRepository) MarkOverdue(ctx context.Context, today time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = 'overdue', updated_at = NOW()
WHERE status IN ('unpaid', 'partial') AND due_date < $1`, today)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ReminderCandidates lists open invoices due by dueBy whose tenant has an
// email and was not reminded since remindedBefore.
func (r *PGRepository) ReminderCandidates(ctx context.Context, dueBy, remindedBefore time.Time) ([]ReminderCandidate, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.invoice_number, t.company_name, t.email, i.amount_total,
	COALESCE((SELECT SUM(amount) FROM payments WHERE invoice_id = i.id), 0), i.currency, i.due_date, i.shop_id,
	i.reminder_sent_at
FROM invoices i
JOIN tenants t ON t.id = i.tenant_id
WHERE i.status IN ('unpaid', 'partial', 'overdue')
	AND i.due_date <= $1
	AND t.email <> ''
	AND (i.reminder_sent_at IS NULL OR i.reminder_sent_at < $2)
ORDER BY i.due_date, i.id`, dueBy, remindedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReminderCandidate
	for rows.Next() {
		var c ReminderCandidate
		if err := rows.Scan(&c.InvoiceID, &c.Number, &c.TenantName, &c.Email, &c.AmountTotal, &c.Paid,
			&c.Currency, &c.DueDate, &c.ShopID, &c.RemindedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClaimReminder stamps the invoice with at only if its reminder timestamp is
// still previous, so concurrent runs cannot both send the same reminder.
func (r *PGRepository) ClaimReminder(ctx context.Context, invoiceID int64, previous *time.Time, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET reminder_sent_at = $3
WHERE id = $1 AND reminder_sent_at IS NOT DISTINCT FROM $2`, invoiceID, previous, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseReminder restores the previous timestamp after a failed send, unless
// another run stamped the invoice meanwhile.
func (r *PGRepository) ReleaseReminder(ctx context.Context, invoiceID int64, at time.Time, previous *time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE invoices SET reminder_sent_at = $3 WHERE id = $1 AND reminder_sent_at = $2`,
		invoiceID, at, previous)
	return err
}

// BillableContracts lists active contracts overlapping the month.
func (r *PGRepository) BillableContracts(ctx context.Context, monthStart, monthEnd time.Time) ([]BillableContract, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.tenant_id, c.shop_id, c.rent_amount, c.charges, c.currency, c.payment_day,
	s.shop_number, s.name, s.floor, s.location
FROM contracts c
JOIN shops s ON s.id = c.shop_id
WHERE c.status = 'active' AND c.start_date <= $2 AND (c.end_date IS NULL OR c.end_date >= $1)
ORDER BY c.id`, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BillableContract
	for rows.Next() {
		var (
			c                             BillableContract
			number, name, floor, location string
		)
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ShopID, &c.RentAmount, &c.Charges, &c.Currency, &c.PaymentDay,
			&number, &name, &floor, &location); err != nil {
			return nil, err
		}
		c.ShopLabel = shops.Label(number, name, floor, location)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertInvoice creates a monthly invoice, reporting false when the contract
// already has one for the period.
func (r *PGRepository) InsertInvoice(ctx context.Context, inv invoices.Invoice) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO invoices (invoice_number, contract_id, tenant_id, shop_id, period,
	issue_date, due_date, amount_total, currency, status, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT DO NOTHING`,
		inv.Number, inv.ContractID, inv.TenantID, inv.ShopID, inv.Period, inv.IssueDate, inv.DueDate,
		inv.AmountTotal, inv.Currency, string(inv.Status), inv.Description)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// WithTx runs fn inside a transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) LapsedContracts(ctx context.Context, today time.Time) ([]LapsedContract, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, shop_id, end_date, auto_renewal, renewal_months
FROM contracts
WHERE status = 'active' AND end_date < $1
ORDER BY id
FOR UPDATE`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LapsedContract
	for rows.Next() {
		var c LapsedContract
		if err := rows.Scan(&c.ID, &c.ShopID, &c.EndDate, &c.AutoRenewal, &c.RenewalMonths); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txRepo) ExtendContract(ctx context.Context, id int64, end time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE contracts SET end_date = $2, updated_at = NOW() WHERE id = $1`, id, end)
	return err
}

func (t *txRepo) ExpireContract(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE contracts SET status = 'expired', updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (t *txRepo) ShopHasActiveContract(ctx context.Context, shopID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE shop_id = $1 AND status = 'active')`, shopID).Scan(&exists)
	return exists, err
}

func (t *txRepo) VacateShop(ctx context.Context, shopID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE shops SET status = 'vacant', updated_at = NOW() WHERE id = $1 AND status = 'occupied'`, shopID)
	return err
}
