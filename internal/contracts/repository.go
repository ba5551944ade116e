package contracts

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
)

// Repository provides persistence for contracts.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Contract, int, error)
	Get(ctx context.Context, id int64) (Contract, error)
	Options(ctx context.Context) ([]Contract, error)
	Delete(ctx context.Context, id int64) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	Lock(ctx context.Context, id int64) (Contract, error)
	Insert(ctx context.Context, c Contract) (int64, error)
	Update(ctx context.Context, c Contract) error
	SetStatus(ctx context.Context, id int64, status Status, endDate *time.Time) error
	// OtherActiveOnShop returns the ID of an active contract on shopID other
	// than excludeID, or 0.
	OtherActiveOnShop(ctx context.Context, shopID, excludeID int64) (int64, error)
	SetShopStatus(ctx context.Context, shopID int64, status shops.Status) error
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectContract = `SELECT c.id, c.shop_id, c.tenant_id, c.title, c.contract_type, c.start_date, c.end_date,
	c.rent_amount, c.charges, c.deposit, c.currency, c.payment_day, c.auto_renewal, c.renewal_months,
	c.status, c.notes, COALESCE(c.created_by, 0), c.created_at, c.updated_at,
	s.shop_number, s.name, s.floor, s.location, t.company_name, t.contact_name
FROM contracts c
JOIN shops s ON s.id = c.shop_id
JOIN tenants t ON t.id = c.tenant_id`

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	err := row.Scan(&c.ID, &c.ShopID, &c.TenantID, &c.Title, &c.ContractType, &c.StartDate, &c.EndDate,
		&c.RentAmount, &c.Charges, &c.Deposit, &c.Currency, &c.PaymentDay, &c.AutoRenewal, &c.RenewalMonths,
		&c.Status, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&c.ShopNumber, &c.ShopName, &c.ShopFloor, &c.ShopLocation, &c.TenantName, &c.TenantContact)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contract{}, shared.ErrNotFound
	}
	return c, err
}

func collect(rows pgx.Rows) ([]Contract, error) {
	defer rows.Close()
	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns a page of contracts, most recent start first.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Contract, int, error) {
	var conds db.Conditions
	if term := shared.FoldSearch(filter.Search); term != "" {
		conds.Add(`lower(unaccent(c.title || ' ' || t.company_name || ' ' || t.contact_name || ' ' || s.shop_number || ' ' || s.name)) LIKE $?`,
			shared.LikePattern(term))
	}
	if filter.Status != "" {
		conds.Add("c.status = $?", string(filter.Status))
	}
	where := conds.Where()
	countArgs := slices.Clone(conds.Args())

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contracts c
JOIN shops s ON s.id = c.shop_id
JOIN tenants t ON t.id = c.tenant_id`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := conds.Next(filter.Limit())
	offset := conds.Next(filter.Offset())
	rows, err := r.pool.Query(ctx, selectContract+where+` ORDER BY c.start_date DESC, c.id DESC LIMIT `+limit+` OFFSET `+offset, conds.Args()...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

// Get fetches a contract by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Contract, error) {
	return scanContract(r.pool.QueryRow(ctx, selectContract+` WHERE c.id = $1`, id))
}

// Options lists contracts that can still be invoiced.
func (r *PGRepository) Options(ctx context.Context) ([]Contract, error) {
	rows, err := r.pool.Query(ctx, selectContract+` WHERE c.status <> 'terminated' ORDER BY t.company_name, c.title`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Delete removes a contract without invoices.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contracts WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return ErrContractInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
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

func (t *txRepo) Lock(ctx context.Context, id int64) (Contract, error) {
	return scanContract(t.tx.QueryRow(ctx, selectContract+` WHERE c.id = $1 FOR UPDATE OF c`, id))
}

func (t *txRepo) Insert(ctx context.Context, c Contract) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO contracts (shop_id, tenant_id, title, contract_type, start_date, end_date,
	rent_amount, charges, deposit, currency, payment_day, auto_renewal, renewal_months, status, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`,
		c.ShopID, c.TenantID, c.Title, c.ContractType, c.StartDate, c.EndDate,
		c.RentAmount, c.Charges, c.Deposit, c.Currency, c.PaymentDay, c.AutoRenewal, c.RenewalMonths,
		string(c.Status), c.Notes, nullableID(c.CreatedBy)).Scan(&id)
	return id, mapWriteErr(err)
}

func (t *txRepo) Update(ctx context.Context, c Contract) error {
	tag, err := t.tx.Exec(ctx, `UPDATE contracts SET shop_id = $2, tenant_id = $3, title = $4, contract_type = $5,
	start_date = $6, end_date = $7, rent_amount = $8, charges = $9, deposit = $10, currency = $11,
	payment_day = $12, auto_renewal = $13, renewal_months = $14, status = $15, notes = $16, updated_at = NOW()
WHERE id = $1`,
		c.ID, c.ShopID, c.TenantID, c.Title, c.ContractType, c.StartDate, c.EndDate,
		c.RentAmount, c.Charges, c.Deposit, c.Currency, c.PaymentDay, c.AutoRenewal, c.RenewalMonths,
		string(c.Status), c.Notes)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status, endDate *time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE contracts SET status = $2, end_date = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), endDate)
	return mapWriteErr(err)
}

func (t *txRepo) OtherActiveOnShop(ctx context.Context, shopID, excludeID int64) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM contracts WHERE shop_id = $1 AND status = 'active' AND id <> $2 FOR UPDATE`,
		shopID, excludeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (t *txRepo) SetShopStatus(ctx context.Context, shopID int64, status shops.Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE shops SET status = $2, updated_at = NOW() WHERE id = $1`, shopID, string(status))
	return err
}

func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case shared.IsUniqueViolation(err):
		return shops.ErrShopDoubleBooked
	case shared.IsForeignKeyViolation(err):
		return shared.NewValidationError("ShopID", "Local ou locataire introuvable.")
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
