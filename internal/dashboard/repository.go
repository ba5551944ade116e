package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Repository runs the dashboard aggregates.
type Repository interface {
	Counts(ctx context.Context, today time.Time) (Counts, error)
	MonthlyRevenue(ctx context.Context) ([]Amount, error)
	Expiring(ctx context.Context, today, until time.Time, limit int) ([]ExpiringContract, error)
	OldestOverdue(ctx context.Context, today time.Time, limit int) ([]OverdueInvoice, error)
	PendingPayments(ctx context.Context) ([]Amount, error)
	RecentContracts(ctx context.Context, limit int) ([]RecentContract, error)
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Counts returns the headline counters in one round trip.
func (r *PGRepository) Counts(ctx context.Context, today time.Time) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM shops),
	(SELECT COUNT(*) FROM shops WHERE status = 'occupied'),
	(SELECT COUNT(*) FROM tenants WHERE active),
	(SELECT COUNT(*) FROM contracts WHERE status = 'active'),
	(SELECT COUNT(*) FROM invoices WHERE status IN ('unpaid', 'partial', 'overdue') AND due_date < $1)`, today).
		Scan(&c.TotalShops, &c.OccupiedShops, &c.ActiveTenants, &c.ActiveContracts, &c.OverdueInvoices)
	return c, err
}

// MonthlyRevenue sums the rent of active contracts per currency.
func (r *PGRepository) MonthlyRevenue(ctx context.Context) ([]Amount, error) {
	return r.amounts(ctx, `SELECT currency, SUM(rent_amount) FROM contracts WHERE status = 'active'
GROUP BY currency ORDER BY currency`)
}

// PendingPayments sums what is still owed on open invoices, per currency.
func (r *PGRepository) PendingPayments(ctx context.Context) ([]Amount, error) {
	return r.amounts(ctx, `SELECT i.currency,
	SUM(GREATEST(i.amount_total - COALESCE(p.paid, 0), 0))
FROM invoices i
LEFT JOIN (SELECT invoice_id, SUM(amount) AS paid FROM payments GROUP BY invoice_id) p ON p.invoice_id = i.id
WHERE i.status IN ('unpaid', 'partial', 'overdue')
GROUP BY i.currency ORDER BY i.currency`)
}

func (r *PGRepository) amounts(ctx context.Context, query string) ([]Amount, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Amount
	for rows.Next() {
		var a Amount
		if err := rows.Scan(&a.Currency, &a.Value); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Expiring lists active contracts ending between today and until.
func (r *PGRepository) Expiring(ctx context.Context, today, until time.Time, limit int) ([]ExpiringContract, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.title, t.company_name, s.shop_number, c.end_date
FROM contracts c
JOIN tenants t ON t.id = c.tenant_id
JOIN shops s ON s.id = c.shop_id
WHERE c.status = 'active' AND c.end_date BETWEEN $1 AND $2
ORDER BY c.end_date, c.id
LIMIT $3`, today, until, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExpiringContract
	for rows.Next() {
		var c ExpiringContract
		if err := rows.Scan(&c.ID, &c.Title, &c.TenantName, &c.ShopNumber, &c.EndDate); err != nil {
			return nil, err
		}
		c.DaysLeft = shared.DaysBetween(today, c.EndDate)
		out = append(out, c)
	}
	return out, rows.Err()
}

// OldestOverdue lists open invoices past due, oldest first.
func (r *PGRepository) OldestOverdue(ctx context.Context, today time.Time, limit int) ([]OverdueInvoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.invoice_number, t.company_name, i.due_date,
	i.amount_total - COALESCE((SELECT SUM(amount) FROM payments WHERE invoice_id = i.id), 0), i.currency
FROM invoices i
JOIN tenants t ON t.id = i.tenant_id
WHERE i.status IN ('unpaid', 'partial', 'overdue') AND i.due_date < $1
ORDER BY i.due_date, i.id
LIMIT $2`, today, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OverdueInvoice
	for rows.Next() {
		var inv OverdueInvoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.TenantName, &inv.DueDate, &inv.Balance, &inv.Currency); err != nil {
			return nil, err
		}
		inv.DaysLate = shared.DaysBetween(inv.DueDate, today)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// RecentContracts lists the latest contracts created, whatever their status.
func (r *PGRepository) RecentContracts(ctx context.Context, limit int) ([]RecentContract, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.title, t.company_name, s.shop_number, c.status, c.start_date, c.created_at
FROM contracts c
JOIN tenants t ON t.id = c.tenant_id
JOIN shops s ON s.id = c.shop_id
ORDER BY c.created_at DESC, c.id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecentContract
	for rows.Next() {
		var c RecentContract
		if err := rows.Scan(&c.ID, &c.Title, &c.TenantName, &c.ShopNumber, &c.Status, &c.StartDate, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
