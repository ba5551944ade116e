package contracts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
)

// Options tunes contract rules.
type Options struct {
	DefaultCurrency string
	Location        *time.Location
}

// Service implements contract rules.
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

// Today returns the current calendar date in the business timezone.
func (s *Service) Today() time.Time {
	return shared.CalendarDate(s.now().In(s.opts.Location))
}

// DefaultCurrency is the currency preselected on new contracts.
func (s *Service) DefaultCurrency() string {
	return s.opts.DefaultCurrency
}

// List returns a page of contracts with their expiry classification.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Row, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list contracts: %w", err)
	}
	today := s.Today()
	rows := make([]Row, 0, len(items))
	for _, c := range items {
		rows = append(rows, Row{Contract: c, Expiry: c.ExpiryOn(today)})
	}
	return rows, shared.NewPagination(filter.Page, filter.Limit(), total), nil
}

// Get returns one contract.
func (s *Service) Get(ctx context.Context, id int64) (Contract, error) {
	return s.repo.Get(ctx, id)
}

// Options lists contracts that can be invoiced as select options.
func (s *Service) Options(ctx context.Context) ([]shared.Option, error) {
	items, err := s.repo.Options(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]shared.Option, 0, len(items))
	for _, c := range items {
		out = append(out, shared.Option{ID: c.ID, Label: c.Label()})
	}
	return out, nil
}

// Create inserts a contract. An active contract occupies its shop.
func (s *Service) Create(ctx context.Context, in Input) (Contract, error) {
	in = s.normalize(in)
	if err := validate(in); err != nil {
		return Contract{}, err
	}
	c := fromInput(in)
	if actor, ok := shared.CurrentUserID(ctx); ok {
		c.CreatedBy = actor
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if c.Status == StatusActive {
			if err := ensureShopFree(ctx, tx, c.ShopID, 0); err != nil {
				return err
			}
		}
		id, err := tx.Insert(ctx, c)
		if err != nil {
			return err
		}
		c.ID = id
		if c.Status == StatusActive {
			return tx.SetShopStatus(ctx, c.ShopID, shops.StatusOccupied)
		}
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	s.record(ctx, shared.ActionCreate, c, nil)
	return s.repo.Get(ctx, c.ID)
}

// Update rewrites a contract and keeps shop occupancy in line with its status.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Contract, error) {
	in = s.normalize(in)
	if err := validate(in); err != nil {
		return Contract{}, err
	}
	c := fromInput(in)
	c.ID = id
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prev, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == StatusActive {
			if err := ensureShopFree(ctx, tx, c.ShopID, id); err != nil {
				return err
			}
		}
		if err := tx.Update(ctx, c); err != nil {
			return err
		}
		if c.Status == StatusActive {
			if err := tx.SetShopStatus(ctx, c.ShopID, shops.StatusOccupied); err != nil {
				return err
			}
		}
		if prev.Status == StatusActive && (c.Status != StatusActive || prev.ShopID != c.ShopID) {
			return vacateIfFree(ctx, tx, prev.ShopID, id)
		}
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	s.record(ctx, shared.ActionUpdate, c, nil)
	return s.repo.Get(ctx, id)
}

// Terminate ends a running contract today and frees its shop when no other
// active contract remains.
func (s *Service) Terminate(ctx context.Context, id int64) (Contract, error) {
	today := s.Today()
	var c Contract
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusActive && c.Status != StatusPending {
			return ErrContractClosed
		}
		end := c.EndDate
		if end == nil || end.After(today) {
			end = &today
		}
		if end.Before(c.StartDate) {
			start := c.StartDate
			end = &start
		}
		wasActive := c.Status == StatusActive
		c.Status, c.EndDate = StatusTerminated, end
		if err := tx.SetStatus(ctx, id, StatusTerminated, end); err != nil {
			return err
		}
		if wasActive {
			return vacateIfFree(ctx, tx, c.ShopID, id)
		}
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	s.record(ctx, shared.ActionUpdate, c, map[string]any{"operation": "terminate"})
	return s.repo.Get(ctx, id)
}

// Renew extends the end date by the renewal term and (re)activates the contract.
func (s *Service) Renew(ctx context.Context, id int64) (Contract, error) {
	var c Contract
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		c, err = tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == StatusTerminated {
			return ErrContractTerminated
		}
		if c.Status != StatusActive {
			if err := ensureShopFree(ctx, tx, c.ShopID, id); err != nil {
				return err
			}
		}
		months := c.RenewalMonths
		if months <= 0 {
			months = DefaultRenewalMonths
		}
		base := s.Today()
		if c.EndDate != nil {
			base = *c.EndDate
		}
		end := shared.AddMonths(base, months)
		c.Status, c.EndDate = StatusActive, &end
		if err := tx.SetStatus(ctx, id, StatusActive, &end); err != nil {
			return err
		}
		return tx.SetShopStatus(ctx, c.ShopID, shops.StatusOccupied)
	})
	if err != nil {
		return Contract{}, err
	}
	s.record(ctx, shared.ActionUpdate, c, map[string]any{"operation": "renew", "end_date": c.EndDate.Format(shared.DateLayout)})
	return s.repo.Get(ctx, id)
}

// Delete removes a contract that no invoice references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.ActionDelete, c, nil)
	return nil
}

func ensureShopFree(ctx context.Context, tx TxRepository, shopID, contractID int64) error {
	other, err := tx.OtherActiveOnShop(ctx, shopID, contractID)
	if err != nil {
		return err
	}
	if other != 0 {
		return shops.ErrShopDoubleBooked
	}
	return nil
}

func vacateIfFree(ctx context.Context, tx TxRepository, shopID, contractID int64) error {
	other, err := tx.OtherActiveOnShop(ctx, shopID, contractID)
	if err != nil {
		return err
	}
	if other != 0 {
		return nil
	}
	return tx.SetShopStatus(ctx, shopID, shops.StatusVacant)
}

func (s *Service) record(ctx context.Context, action string, c Contract, extra map[string]any) {
	details := map[string]any{"title": c.Title, "status": string(c.Status), "tenant_id": c.TenantID}
	for k, v := range extra {
		details[k] = v
	}
	s.activity.Record(ctx, shared.Activity{
		Action:   action,
		Entity:   "contract",
		EntityID: shared.EntityRef(c.ID),
		ShopID:   c.ShopID,
		Details:  details,
	})
}

func (s *Service) normalize(in Input) Input {
	in.Title = strings.TrimSpace(in.Title)
	in.Notes = strings.TrimSpace(in.Notes)
	in.Currency = shared.NormalizeCurrency(in.Currency, s.opts.DefaultCurrency)
	if in.ContractType == "" {
		in.ContractType = TypeCommercial
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.PaymentDay == 0 {
		in.PaymentDay = 1
	}
	if in.RenewalMonths == 0 {
		in.RenewalMonths = DefaultRenewalMonths
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
	if in.StartDate.IsZero() {
		verr.Add("StartDate", "Champ obligatoire.")
	}
	if in.EndDate != nil && !in.StartDate.IsZero() && in.EndDate.Before(in.StartDate) {
		verr.Add("EndDate", "La date de fin doit suivre la date de début.")
	}
	if in.RentAmount.IsNegative() {
		verr.Add("RentAmount", "Le loyer ne peut pas être négatif.")
	}
	if in.Charges.IsNegative() {
		verr.Add("Charges", "Les charges ne peuvent pas être négatives.")
	}
	if in.Deposit.IsNegative() {
		verr.Add("Deposit", "Le dépôt de garantie ne peut pas être négatif.")
	}
	return verr.OrNil()
}

func fromInput(in Input) Contract {
	return Contract{
		ShopID:        in.ShopID,
		TenantID:      in.TenantID,
		Title:         in.Title,
		ContractType:  in.ContractType,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		RentAmount:    in.RentAmount,
		Charges:       in.Charges,
		Deposit:       in.Deposit,
		Currency:      in.Currency,
		PaymentDay:    in.PaymentDay,
		AutoRenewal:   in.AutoRenewal,
		RenewalMonths: in.RenewalMonths,
		Status:        in.Status,
		Notes:         in.Notes,
	}
}
