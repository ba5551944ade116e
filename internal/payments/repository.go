package payments

import (
	"context"
	"errors"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/invoices"
	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/shared"
)

// Repository provides persistence for payments.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Payment, int, error)
	Get(ctx context.Context, id int64) (Payment, error)
	Payable(ctx context.Context) ([]Payable, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes performed while an invoice row is locked.
type TxRepository interface {
	ClaimKey(ctx context.Context, key string) error
	Payment(ctx context.Context, id int64) (Payment, error)
	LockInvoice(ctx context.Context, invoiceID int64) (InvoiceState, error)
	Insert(ctx context.Context, p Payment) (int64, error)
	Delete(ctx context.Context, id int64) error
	SetInvoiceStatus(ctx context.Context, invoiceID int64, status invoices.Status) error
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectPayment = `SELECT p.id, p.invoice_id, p.amount, p.currency, p.method, p.paid_at, p.reference, p.notes,
	COALESCE(p.created_by, 0), p.created_at, i.invoice_number, t.company_name, i.shop_id
FROM payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN tenants t ON t.id = i.tenant_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Currency, &p.Method, &p.PaidAt, &p.Reference, &p.Notes,
		&p.CreatedBy, &p.CreatedAt, &p.InvoiceNumber, &p.TenantName, &p.ShopID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.ErrNotFound
	}
	return p, err
}

// List returns a page of payments, latest first.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Payment, int, error) {
	var conds db.Conditions
	if term := shared.FoldSearch(filter.Search); term != "" {
		conds.Add(`(lower(i.invoice_number) LIKE $? OR lower(unaccent(t.company_name)) LIKE $? OR lower(unaccent(p.reference)) LIKE $?)`,
			shared.LikePattern(term))
	}
	if filter.Method != "" {
		conds.Add("p.method = $?", string(filter.Method))
	}
	where := conds.Where()
	countArgs := slices.Clone(conds.Args())

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN tenants t ON t.id = i.tenant_id`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := conds.Next(filter.Limit())
	offset := conds.Next(filter.Offset())
	rows, err := r.pool.Query(ctx, selectPayment+where+` ORDER BY p.paid_at DESC, p.id DESC LIMIT `+limit+` OFFSET `+offset, conds.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Get fetches a payment by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, selectPayment+` WHERE p.id = $1`, id))
}

// Payable lists open invoices with what remains due, oldest due date first.
func (r *PGRepository) Payable(ctx context.Context) ([]Payable, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.invoice_number, t.company_name,
	i.amount_total - COALESCE((SELECT SUM(amount) FROM payments WHERE invoice_id = i.id), 0), i.currency, i.due_date
FROM invoices i
JOIN tenants t ON t.id = i.tenant_id
WHERE i.status IN ('unpaid', 'partial', 'overdue')
ORDER BY i.due_date, i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payable
	for rows.Next() {
		var p Payable
		if err := rows.Scan(&p.ID, &p.Number, &p.TenantName, &p.Balance, &p.Currency, &p.DueDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
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

func (t *txRepo) ClaimKey(ctx context.Context, key string) error {
	return shared.NewIdempotencyStore(t.tx).CheckAndInsert(ctx, key, IdempotencyModule)
}

func (t *txRepo) Payment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, selectPayment+` WHERE p.id = $1`, id))
}

func (t *txRepo) LockInvoice(ctx context.Context, invoiceID int64) (InvoiceState, error) {
	var s InvoiceState
	err := t.tx.QueryRow(ctx, `SELECT id, invoice_number, status, amount_total, currency, due_date, shop_id
FROM invoices WHERE id = $1 FOR UPDATE`, invoiceID).
		Scan(&s.ID, &s.Number, &s.Status, &s.AmountTotal, &s.Currency, &s.DueDate, &s.ShopID)
	if errors.Is(err, pgx.ErrNoRows) {
		return InvoiceState{}, shared.ErrNotFound
	}
	if err != nil {
		return InvoiceState{}, err
	}
	err = t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&s.Paid)
	return s, err
}

func (t *txRepo) Insert(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, amount, currency, method, paid_at, reference, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0)) RETURNING id`,
		p.InvoiceID, p.Amount, p.Currency, string(p.Method), p.PaidAt, p.Reference, p.Notes, p.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) SetInvoiceStatus(ctx context.Context, invoiceID int64, status invoices.Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, invoiceID, string(status))
	return err
}
