package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/rentdesk/rentdesk/internal/auth"
	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
)

// Service handles user business logic.
type Service struct {
	repo     Repository
	activity shared.ActivityRecorder
}

// NewService builds Service instance.
func NewService(repo Repository, activity shared.ActivityRecorder) *Service {
	if activity == nil {
		activity = shared.NopActivity{}
	}
	return &Service{repo: repo, activity: activity}
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]User, shared.Pagination, error) {
	if filter.Role != "" && !rbac.ValidRole(filter.Role) {
		filter.Role = ""
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list users: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.Limit(), total), nil
}

// Get returns a user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers an active profile on behalf of an admin.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := shared.ValidateStruct(in); err != nil {
		return User{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	id, err := s.repo.Create(ctx, User{Email: in.Email, FullName: in.FullName, Role: in.Role, Active: true}, hash)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, shared.ActionCreate, id, map[string]any{"email": in.Email, "role": in.Role})
	return s.repo.Get(ctx, id)
}

// ChangeRole assigns role to target. An admin cannot demote themselves.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID int64, role string) error {
	if !rbac.ValidRole(role) {
		return shared.NewValidationError("Role", "Valeur non autorisée.")
	}
	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == role {
		return nil
	}
	if actorID == targetID && target.Role == rbac.RoleAdmin {
		return ErrSelfDemote
	}
	if err := s.repo.SetRole(ctx, targetID, role); err != nil {
		return err
	}
	s.record(ctx, shared.ActionUpdate, targetID, map[string]any{"role": role, "previous_role": target.Role})
	return nil
}

// SetActive enables or disables target. Nobody can deactivate themselves.
func (s *Service) SetActive(ctx context.Context, actorID, targetID int64, active bool) error {
	if !active && actorID == targetID {
		return ErrSelfDeactivate
	}
	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Active == active {
		return nil
	}
	if err := s.repo.SetActive(ctx, targetID, active); err != nil {
		return err
	}
	s.record(ctx, shared.ActionUpdate, targetID, map[string]any{"active": active})
	return nil
}

func (s *Service) record(ctx context.Context, action string, id int64, details map[string]any) {
	s.activity.Record(ctx, shared.Activity{
		Action:   action,
		Entity:   "profile",
		EntityID: shared.EntityRef(id),
		Details:  details,
	})
}
