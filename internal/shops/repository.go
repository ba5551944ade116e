package shops

import (
	"context"
	"errors"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/platform/db"
	"github.com/rentdesk/rentdesk/internal/shared"
)

// Repository provides persistence for shops.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Shop, int, error)
	Get(ctx context.Context, id int64) (Shop, error)
	Options(ctx context.Context) ([]shared.Option, error)
	Delete(ctx context.Context, id int64) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, shop Shop) (int64, error)
	Update(ctx context.Context, shop Shop) error
	LockActiveLease(ctx context.Context, shopID int64) (*ActiveLease, error)
	TenantName(ctx context.Context, tenantID int64) (string, error)
	InsertLease(ctx context.Context, lease Lease) (int64, error)
}

// PGRepository implements Repository with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectShop = `SELECT s.id, s.shop_number, s.name, s.status, s.surface_area, s.floor, s.location,
	s.activity_category, s.monthly_rent, s.description, COALESCE(s.created_by, 0), s.created_at, s.updated_at,
	COALESCE(c.id, 0), COALESCE(c.tenant_id, 0), COALESCE(t.company_name, '')
FROM shops s
LEFT JOIN contracts c ON c.shop_id = s.id AND c.status = 'active'
LEFT JOIN tenants t ON t.id = c.tenant_id`

func scanShop(row pgx.Row) (Shop, error) {
	var s Shop
	err := row.Scan(&s.ID, &s.ShopNumber, &s.Name, &s.Status, &s.SurfaceArea, &s.Floor, &s.Location,
		&s.ActivityCategory, &s.MonthlyRent, &s.Description, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
		&s.ContractID, &s.TenantID, &s.TenantName)
	return s, err
}

// List returns a page of shops ordered by shop number.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Shop, int, error) {
	var conds db.Conditions
	if term := shared.FoldSearch(filter.Search); term != "" {
		conds.Add(`(lower(unaccent(s.shop_number)) LIKE $? OR lower(unaccent(s.name)) LIKE $?
	OR lower(unaccent(s.location)) LIKE $? OR lower(unaccent(s.activity_category)) LIKE $?)`, shared.LikePattern(term))
	}
	if filter.Status != "" {
		conds.Add("s.status = $?", string(filter.Status))
	}
	where := conds.Where()
	countArgs := slices.Clone(conds.Args())

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shops s`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := conds.Next(filter.Limit())
	offset := conds.Next(filter.Offset())
	rows, err := r.pool.Query(ctx, selectShop+where+` ORDER BY s.shop_number LIMIT `+limit+` OFFSET `+offset, conds.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Shop
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Get fetches a shop by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (Shop, error) {
	s, err := scanShop(r.pool.QueryRow(ctx, selectShop+` WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Shop{}, shared.ErrNotFound
	}
	return s, err
}

// Options lists every shop for select inputs.
func (r *PGRepository) Options(ctx context.Context) ([]shared.Option, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shop_number, name, floor, location FROM shops ORDER BY shop_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.Option
	for rows.Next() {
		var (
			id                            int64
			number, name, floor, location string
		)
		if err := rows.Scan(&id, &number, &name, &floor, &location); err != nil {
			return nil, err
		}
		out = append(out, shared.Option{ID: id, Label: Label(number, name, floor, location)})
	}
	return out, rows.Err()
}

// Delete removes a shop. Contracts referencing it block the delete.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shops WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return ErrShopInUse
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

func (t *txRepo) Insert(ctx context.Context, s Shop) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO shops (shop_number, name, status, surface_area, floor, location,
	activity_category, monthly_rent, description, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		s.ShopNumber, s.Name, string(s.Status), s.SurfaceArea, s.Floor, s.Location,
		s.ActivityCategory, s.MonthlyRent, s.Description, nullableID(s.CreatedBy)).Scan(&id)
	if shared.IsUniqueViolation(err) {
		return 0, shared.NewValidationError("ShopNumber", "Ce numéro de local existe déjà.")
	}
	return id, err
}

func (t *txRepo) Update(ctx context.Context, s Shop) error {
	tag, err := t.tx.Exec(ctx, `UPDATE shops SET shop_number = $2, name = $3, status = $4, surface_area = $5,
	floor = $6, location = $7, activity_category = $8, monthly_rent = $9, description = $10, updated_at = NOW()
WHERE id = $1`,
		s.ID, s.ShopNumber, s.Name, string(s.Status), s.SurfaceArea, s.Floor, s.Location,
		s.ActivityCategory, s.MonthlyRent, s.Description)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.NewValidationError("ShopNumber", "Ce numéro de local existe déjà.")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) LockActiveLease(ctx context.Context, shopID int64) (*ActiveLease, error) {
	var lease ActiveLease
	err := t.tx.QueryRow(ctx, `SELECT id, tenant_id FROM contracts WHERE shop_id = $1 AND status = 'active' FOR UPDATE`, shopID).
		Scan(&lease.ContractID, &lease.TenantID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

func (t *txRepo) TenantName(ctx context.Context, tenantID int64) (string, error) {
	var name string
	err := t.tx.QueryRow(ctx, `SELECT company_name FROM tenants WHERE id = $1`, tenantID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return name, err
}

func (t *txRepo) InsertLease(ctx context.Context, l Lease) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO contracts (shop_id, tenant_id, title, contract_type, start_date, end_date,
	rent_amount, charges, deposit, currency, payment_day, auto_renewal, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, FALSE, 'active', $11) RETURNING id`,
		l.ShopID, l.TenantID, l.Title, l.ContractType, l.StartDate, l.EndDate,
		l.RentAmount, l.Deposit, l.Currency, l.PaymentDay, nullableID(l.CreatedBy)).Scan(&id)
	if shared.IsUniqueViolation(err) {
		return 0, ErrShopDoubleBooked
	}
	return id, err
}

func nullableID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

var _ Repository = (*PGRepository)(nil)
