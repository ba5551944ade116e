package tenants

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Service implements tenant rules.
type Service struct {
	repo     Repository
	activity shared.ActivityRecorder
}

// NewService constructs a Service.
func NewService(repo Repository, activity shared.ActivityRecorder) *Service {
	if activity == nil {
		activity = shared.NopActivity{}
	}
	return &Service{repo: repo, activity: activity}
}

// List returns a page of tenants.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Tenant, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list tenants: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.Limit(), total), nil
}

// Get returns a tenant.
func (s *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Detail loads a tenant with its contracts and outstanding balance.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	tenant, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	contracts, err := s.repo.Contracts(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("tenant contracts: %w", err)
	}
	balances, err := s.repo.Balances(ctx, id)
	if err != nil {
		return Detail{}, fmt.Errorf("tenant balance: %w", err)
	}
	return Detail{Tenant: tenant, Contracts: contracts, Balances: balances}, nil
}

// Options lists active tenants as select options.
func (s *Service) Options(ctx context.Context) ([]shared.Option, error) {
	items, err := s.repo.Options(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]shared.Option, 0, len(items))
	for _, t := range items {
		out = append(out, shared.Option{ID: t.ID, Label: t.Label()})
	}
	return out, nil
}

// Create registers a tenant.
func (s *Service) Create(ctx context.Context, in Input) (Tenant, error) {
	in = normalize(in)
	if err := shared.ValidateStruct(in); err != nil {
		return Tenant{}, err
	}
	t := fromInput(in)
	id, err := s.repo.Create(ctx, t)
	if err != nil {
		return Tenant{}, err
	}
	t.ID = id
	s.record(ctx, shared.ActionCreate, t, nil)
	return s.repo.Get(ctx, id)
}

// Update rewrites a tenant.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Tenant, error) {
	in = normalize(in)
	if err := shared.ValidateStruct(in); err != nil {
		return Tenant{}, err
	}
	t := fromInput(in)
	t.ID = id
	if err := s.repo.Update(ctx, t); err != nil {
		return Tenant{}, err
	}
	s.record(ctx, shared.ActionUpdate, t, nil)
	return s.repo.Get(ctx, id)
}

// ToggleActive flips the active flag and returns the new value.
func (s *Service) ToggleActive(ctx context.Context, id int64) (bool, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	active := !t.Active
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return false, err
	}
	s.record(ctx, shared.ActionUpdate, t, map[string]any{"active": active})
	return active, nil
}

// Delete removes a tenant without contracts.
func (s *Service) Delete(ctx context.Context, id int64) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.ActionDelete, t, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, t Tenant, extra map[string]any) {
	details := map[string]any{"company_name": t.CompanyName}
	for k, v := range extra {
		details[k] = v
	}
	s.activity.Record(ctx, shared.Activity{
		Action:   action,
		Entity:   "tenant",
		EntityID: shared.EntityRef(t.ID),
		Details:  details,
	})
}

func normalize(in Input) Input {
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.ContactName = strings.TrimSpace(in.ContactName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.TaxID = strings.TrimSpace(in.TaxID)
	in.RegistrationNumber = strings.TrimSpace(in.RegistrationNumber)
	in.BusinessType = strings.TrimSpace(in.BusinessType)
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

func fromInput(in Input) Tenant {
	return Tenant{
		CompanyName:        in.CompanyName,
		ContactName:        in.ContactName,
		Email:              in.Email,
		Phone:              in.Phone,
		Address:            in.Address,
		TaxID:              in.TaxID,
		RegistrationNumber: in.RegistrationNumber,
		BusinessType:       in.BusinessType,
		Notes:              in.Notes,
		Active:             in.Active,
	}
}
