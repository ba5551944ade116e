package shops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Options tunes shop rules.
type Options struct {
	DefaultCurrency string
	Location        *time.Location
}

// Service implements shop rules.
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
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "EUR"
	}
	return &Service{repo: repo, activity: activity, opts: opts, now: time.Now}
}

// List returns a page of shops.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Shop, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list shops: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.Limit(), total), nil
}

// Get returns one shop.
func (s *Service) Get(ctx context.Context, id int64) (Shop, error) {
	return s.repo.Get(ctx, id)
}

// Options lists shops for select inputs.
func (s *Service) Options(ctx context.Context) ([]shared.Option, error) {
	return s.repo.Options(ctx)
}

// Create inserts a shop and, when it is occupied, its lease.
func (s *Service) Create(ctx context.Context, in Input) (Shop, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return Shop{}, err
	}
	shop := fromInput(in)
	if actor, ok := shared.CurrentUserID(ctx); ok {
		shop.CreatedBy = actor
	}
	var contractID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, shop)
		if err != nil {
			return err
		}
		shop.ID = id
		contractID, err = s.occupy(ctx, tx, shop, in.TenantID)
		return err
	})
	if err != nil {
		return Shop{}, err
	}
	s.recordWrite(ctx, shared.ActionCreate, shop, contractID)
	return s.repo.Get(ctx, shop.ID)
}

// Update rewrites a shop and applies the occupancy rule.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Shop, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return Shop{}, err
	}
	shop := fromInput(in)
	shop.ID = id
	var contractID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Update(ctx, shop); err != nil {
			return err
		}
		var err error
		contractID, err = s.occupy(ctx, tx, shop, in.TenantID)
		return err
	})
	if err != nil {
		return Shop{}, err
	}
	s.recordWrite(ctx, shared.ActionUpdate, shop, contractID)
	return s.repo.Get(ctx, id)
}

// Delete removes a shop that no contract references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	shop, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.activity.Record(ctx, shared.Activity{
		Action:   shared.ActionDelete,
		Entity:   "shop",
		EntityID: shared.EntityRef(id),
		Details:  map[string]any{"shop_number": shop.ShopNumber, "name": shop.Name},
	})
	return nil
}

// occupy creates the lease of an occupied shop. It returns the new contract
// ID, or 0 when the tenant already holds the active contract.
func (s *Service) occupy(ctx context.Context, tx TxRepository, shop Shop, tenantID int64) (int64, error) {
	if shop.Status != StatusOccupied || tenantID == 0 {
		return 0, nil
	}
	active, err := tx.LockActiveLease(ctx, shop.ID)
	if err != nil {
		return 0, err
	}
	if active != nil {
		if active.TenantID != tenantID {
			return 0, ErrShopDoubleBooked
		}
		return 0, nil
	}
	company, err := tx.TenantName(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, shared.NewValidationError("TenantID", "Locataire introuvable.")
		}
		return 0, err
	}
	today := shared.CalendarDate(s.now().In(s.opts.Location))
	rent := decimal.Zero
	if shop.MonthlyRent.Valid {
		rent = shop.MonthlyRent.Decimal
	}
	return tx.InsertLease(ctx, Lease{
		ShopID:       shop.ID,
		TenantID:     tenantID,
		Title:        fmt.Sprintf("Bail %s - %s", shop.ShopNumber, company),
		StartDate:    today,
		EndDate:      shared.AddMonths(today, 12),
		RentAmount:   rent,
		Deposit:      rent.Mul(decimal.NewFromInt(2)),
		Currency:     s.opts.DefaultCurrency,
		PaymentDay:   1,
		ContractType: "commercial",
		CreatedBy:    shop.CreatedBy,
	})
}

func (s *Service) recordWrite(ctx context.Context, action string, shop Shop, contractID int64) {
	details := map[string]any{"shop_number": shop.ShopNumber, "status": string(shop.Status)}
	if contractID > 0 {
		details["contract_id"] = contractID
	}
	s.activity.Record(ctx, shared.Activity{
		Action:   action,
		Entity:   "shop",
		EntityID: shared.EntityRef(shop.ID),
		ShopID:   shop.ID,
		Details:  details,
	})
}

func normalize(in Input) Input {
	in.ShopNumber = strings.TrimSpace(in.ShopNumber)
	in.Name = strings.TrimSpace(in.Name)
	in.Floor = strings.TrimSpace(in.Floor)
	in.Location = strings.TrimSpace(in.Location)
	in.ActivityCategory = strings.TrimSpace(in.ActivityCategory)
	in.Description = strings.TrimSpace(in.Description)
	if in.Status == "" {
		in.Status = StatusVacant
	}
	return in
}

func validate(in Input) error {
	verr := &shared.ValidationError{}
	if err := shared.ValidateStruct(in); err != nil {
		fields := shared.FieldErrors(err)
		if fields == nil {
			return err
		}
		for k, v := range fields {
			verr.Add(k, v)
		}
	}
	if !in.SurfaceArea.IsPositive() {
		verr.Add("SurfaceArea", "La surface doit être positive.")
	}
	if in.MonthlyRent.Valid && in.MonthlyRent.Decimal.IsNegative() {
		verr.Add("MonthlyRent", "Le loyer ne peut pas être négatif.")
	}
	if in.Status == StatusOccupied && in.TenantID == 0 {
		verr.Add("TenantID", "Sélectionnez le locataire occupant le local.")
	}
	return verr.OrNil()
}

func fromInput(in Input) Shop {
	return Shop{
		ShopNumber:       in.ShopNumber,
		Name:             in.Name,
		Status:           in.Status,
		SurfaceArea:      in.SurfaceArea,
		Floor:            in.Floor,
		Location:         in.Location,
		ActivityCategory: in.ActivityCategory,
		MonthlyRent:      in.MonthlyRent,
		Description:      in.Description,
	}
}
