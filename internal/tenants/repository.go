package tenants

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

// Repository provides persistence for tenants.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Tenant, int, error)
	Get(ctx context.Context, id int64) (Tenant, error)
	Options(ctx context.Context) ([]Tenant, error)
	Create(ctx context.Context, t Tenant) (int64, error)
	Update(ctx context.Context, t Tenant) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
	Contracts(ctx context.Context, tenantID int64) ([]ContractSummary, error)
	Balances(ctx context.Context, tenantID int64) ([]Balance, error)
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const tenantColumns = `id, company_name, contact_name, email, phone, address, tax_id, registration_number,
	business_type, notes, active, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.CompanyName, &t.ContactName, &t.Email, &t.Phone, &t.Address, &t.TaxID,
		&t.RegistrationNumber, &t.BusinessType, &t.Notes, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func collectTenants(rows pgx.Rows) ([]Tenant, error) {
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// List returns a page of tenants ordered by company name.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Tenant, int, error) {
	var conds db.Conditions
	if term := shared.FoldSearch(filter.Search); term != "" {
		conds.Add(`(lower(unaccent(company_name)) LIKE $? OR lower(unaccent(contact_name)) LIKE $?
	OR lower(email) LIKE $? OR phone LIKE $?)`, shared.LikePattern(term))
	}
	switch filter.Active {
	case "active":
		conds.AddRaw("active")
	case "inactive":
		conds.AddRaw("NOT active")
	}
	where := conds.Where()
	countArgs := slices.Clone(conds.Args())

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := conds.Next(filter.Limit())
	offset := conds.Next(filter.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants`+where+
		` ORDER BY lower(company_name), id LIMIT `+limit+` OFFSET `+offset, conds.Args()...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectTenants(rows)
	return items, total, err
}

// Get fetches a tenant by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Tenant, error) {
	t, err := scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, shared.ErrNotFound
	}
	return t, err
}

// Options lists active tenants for select inputs.
func (r *PGRepository) Options(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE active ORDER BY lower(company_name)`)
	if err != nil {
		return nil, err
	}
	return collectTenants(rows)
}

// Create inserts a tenant.
func (r *PGRepository) Create(ctx context.Context, t Tenant) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO tenants (company_name, contact_name, email, phone, address, tax_id,
	registration_number, business_type, notes, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		t.CompanyName, t.ContactName, t.Email, t.Phone, t.Address, t.TaxID,
		t.RegistrationNumber, t.BusinessType, t.Notes, t.Active).Scan(&id)
	return id, err
}

// Update rewrites a tenant.
func (r *PGRepository) Update(ctx context.Context, t Tenant) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tenants SET company_name = $2, contact_name = $3, email = $4, phone = $5,
	address = $6, tax_id = $7, registration_number = $8, business_type = $9, notes = $10, active = $11, updated_at = NOW()
WHERE id = $1`,
		t.ID, t.CompanyName, t.ContactName, t.Email, t.Phone, t.Address, t.TaxID,
		t.RegistrationNumber, t.BusinessType, t.Notes, t.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetActive toggles the active flag.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tenants SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a tenant. Contracts referencing it block the delete.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return ErrTenantInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Contracts lists the tenant's contracts, newest first.
func (r *PGRepository) Contracts(ctx context.Context, tenantID int64) ([]ContractSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.title, s.shop_number, s.name, s.floor, s.location, c.status, c.start_date, c.end_date,
	c.rent_amount, c.currency
FROM contracts c
JOIN shops s ON s.id = c.shop_id
WHERE c.tenant_id = $1
ORDER BY c.start_date DESC, c.id DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContractSummary
	for rows.Next() {
		var (
			c                             ContractSummary
			number, name, floor, location string
		)
		if err := rows.Scan(&c.ID, &c.Title, &number, &name, &floor, &location, &c.Status, &c.StartDate, &c.EndDate,
			&c.Rent, &c.Currency); err != nil {
			return nil, err
		}
		c.ShopLabel = shops.Label(number, name, floor, location)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Balances sums what remains unpaid on the tenant's open invoices, per currency.
func (r *PGRepository) Balances(ctx context.Context, tenantID int64) ([]Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.currency, SUM(i.amount_total - COALESCE(p.paid, 0))
FROM invoices i
LEFT JOIN (SELECT invoice_id, SUM(amount) AS paid FROM payments GROUP BY invoice_id) p ON p.invoice_id = i.id
WHERE i.tenant_id = $1 AND i.status IN ('unpaid', 'partial', 'overdue')
GROUP BY i.currency
ORDER BY i.currency`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.Currency, &b.Outstanding); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
