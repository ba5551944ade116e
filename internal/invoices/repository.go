package invoices

import (
	"context"
	"errors"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
)

// Repository provides persistence for invoices.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
	Totals(ctx context.Context, filter ListFilter) ([]Totals, error)
	Export(ctx context.Context, filter ListFilter, limit int) ([]Invoice, error)
	Outstanding(ctx context.Context) ([]Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	Payments(ctx context.Context, invoiceID int64) ([]PaymentLine, error)
	ContractTerms(ctx context.Context, contractID int64) (ContractTerms, error)
	Insert(ctx context.Context, inv Invoice) (int64, error)
	Update(ctx context.Context, inv Invoice) error
	SetStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const invoiceFrom = `
FROM invoices i
JOIN tenants t ON t.id = i.tenant_id
JOIN contracts c ON c.id = i.contract_id
JOIN shops s ON s.id = i.shop_id
LEFT JOIN (SELECT invoice_id, SUM(amount) AS paid FROM payments GROUP BY invoice_id) p ON p.invoice_id = i.id`

const selectInvoice = `SELECT i.id, i.invoice_number, i.contract_id, i.tenant_id, i.shop_id, COALESCE(i.period, ''),
	i.issue_date, i.due_date, i.amount_total, i.currency, i.status, i.description, i.reminder_sent_at,
	COALESCE(i.created_by, 0), i.created_at, i.updated_at,
	t.company_name, t.contact_name, t.email, c.title, s.shop_number, s.name, s.floor, s.location,
	COALESCE(p.paid, 0)` + invoiceFrom

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.ContractID, &inv.TenantID, &inv.ShopID, &inv.Period,
		&inv.IssueDate, &inv.DueDate, &inv.AmountTotal, &inv.Currency, &inv.Status, &inv.Description, &inv.ReminderSentAt,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
		&inv.TenantName, &inv.TenantContact, &inv.TenantEmail, &inv.ContractTitle, &inv.ShopNumber, &inv.ShopName,
		&inv.ShopFloor, &inv.ShopLocation, &inv.PaidAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, err
}

func collect(rows pgx.Rows) ([]Invoice, error) {
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func conditions(filter ListFilter) db.Conditions {
	var conds db.Conditions
	if term := shared.FoldSearch(filter.Search); term != "" {
		conds.Add(`lower(unaccent(i.invoice_number || ' ' || t.company_name || ' ' || t.contact_name || ' ' || c.title)) LIKE $?`,
			shared.LikePattern(term))
	}
	if filter.Status != "" {
		conds.Add("i.status = $?", string(filter.Status))
	}
	return conds
}

// List returns a page of invoices, latest issue first.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	conds := conditions(filter)
	where := conds.Where()
	countArgs := slices.Clone(conds.Args())

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+invoiceFrom+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := conds.Next(filter.Limit())
	offset := conds.Next(filter.Offset())
	rows, err := r.pool.Query(ctx, selectInvoice+where+` ORDER BY i.issue_date DESC, i.id DESC LIMIT `+limit+` OFFSET `+offset, conds.Args()...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

// Totals sums amounts of every invoice matching filter, per currency.
func (r *PGRepository) Totals(ctx context.Context, filter ListFilter) ([]Totals, error) {
	conds := conditions(filter)
	rows, err := r.pool.Query(ctx, `SELECT i.currency,
	COALESCE(SUM(i.amount_total) FILTER (WHERE i.status <> 'cancelled'), 0),
	COALESCE(SUM(i.amount_total) FILTER (WHERE i.status = 'paid'), 0),
	COALESCE(SUM(i.amount_total) FILTER (WHERE i.status IN ('unpaid', 'partial', 'overdue')), 0)`+
		invoiceFrom+conds.Where()+` GROUP BY i.currency ORDER BY i.currency`, conds.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Totals
	for rows.Next() {
		var t Totals
		if err := rows.Scan(&t.Currency, &t.Total, &t.Paid, &t.Pending); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Export returns up to limit invoices matching filter.
func (r *PGRepository) Export(ctx context.Context, filter ListFilter, limit int) ([]Invoice, error) {
	conds := conditions(filter)
	where := conds.Where()
	lim := conds.Next(limit)
	rows, err := r.pool.Query(ctx, selectInvoice+where+` ORDER BY i.issue_date DESC, i.id DESC LIMIT `+lim, conds.Args()...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Outstanding returns every open invoice.
func (r *PGRepository) Outstanding(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, selectInvoice+` WHERE i.status IN ('unpaid', 'partial', 'overdue') ORDER BY i.due_date`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Get fetches one invoice.
func (r *PGRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, selectInvoice+` WHERE i.id = $1`, id))
}

// Payments lists the payments of an invoice, oldest first.
func (r *PGRepository) Payments(ctx context.Context, invoiceID int64) ([]PaymentLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, amount, currency, method, paid_at, reference, notes
FROM payments WHERE invoice_id = $1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentLine
	for rows.Next() {
		var p PaymentLine
		if err := rows.Scan(&p.ID, &p.Amount, &p.Currency, &p.Method, &p.PaidAt, &p.Reference, &p.Notes); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ContractTerms loads the values an invoice derives from its contract.
func (r *PGRepository) ContractTerms(ctx context.Context, contractID int64) (ContractTerms, error) {
	var (
		terms                         ContractTerms
		number, name, floor, location string
	)
	err := r.pool.QueryRow(ctx, `SELECT c.id, c.tenant_id, c.shop_id, c.currency, c.rent_amount, c.charges, c.status,
	s.shop_number, s.name, s.floor, s.location
FROM contracts c JOIN shops s ON s.id = c.shop_id WHERE c.id = $1`, contractID).
		Scan(&terms.ContractID, &terms.TenantID, &terms.ShopID, &terms.Currency, &terms.RentAmount, &terms.Charges,
			&terms.Status, &number, &name, &floor, &location)
	if errors.Is(err, pgx.ErrNoRows) {
		return ContractTerms{}, shared.ErrNotFound
	}
	terms.ShopLabel = shops.Label(number, name, floor, location)
	return terms, err
}

// Insert creates an invoice.
func (r *PGRepository) Insert(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO invoices (invoice_number, contract_id, tenant_id, shop_id, period,
	issue_date, due_date, amount_total, currency, status, description, created_by)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		inv.Number, inv.ContractID, inv.TenantID, inv.ShopID, inv.Period,
		inv.IssueDate, inv.DueDate, inv.AmountTotal, inv.Currency, string(inv.Status), inv.Description,
		nullableID(inv.CreatedBy)).Scan(&id)
	return id, mapWriteErr(err)
}

// Update rewrites an invoice.
func (r *PGRepository) Update(ctx context.Context, inv Invoice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET invoice_number = $2, contract_id = $3, tenant_id = $4, shop_id = $5,
	issue_date = $6, due_date = $7, amount_total = $8, currency = $9, status = $10, description = $11, updated_at = NOW()
WHERE id = $1`,
		inv.ID, inv.Number, inv.ContractID, inv.TenantID, inv.ShopID,
		inv.IssueDate, inv.DueDate, inv.AmountTotal, inv.Currency, string(inv.Status), inv.Description)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus changes the status only.
func (r *PGRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an invoice without payments.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return ErrInvoiceHasPayments
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	if shared.IsUniqueViolation(err) {
		return shared.NewValidationError("Number", "Ce numéro de facture existe déjà.")
	}
	return err
}

func nullableID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

var _ Repository = (*PGRepository)(nil)

