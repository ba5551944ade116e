package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Repository loads profiles for authorization checks.
type Repository interface {
	FindProfile(ctx context.Context, id int64) (Profile, error)
}

// PGRepository reads profiles from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindProfile fetches the profile by ID.
func (r *PGRepository) FindProfile(ctx context.Context, id int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `SELECT id, email, full_name, role, active FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, shared.ErrNotFound
	}
	return p, err
}

// Service resolves roles into permissions.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EffectivePermissions returns the permissions of the profile. Inactive or
// unknown profiles get none.
func (s *Service) EffectivePermissions(ctx context.Context, profileID int64) ([]string, error) {
	viewer, err := s.Viewer(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if viewer == nil {
		return nil, nil
	}
	perms := make([]string, 0, len(viewer.Permissions))
	for p := range viewer.Permissions {
		perms = append(perms, p)
	}
	return perms, nil
}

// Viewer builds the request viewer for the profile. It returns nil without
// error when the profile is unknown or deactivated.
func (s *Service) Viewer(ctx context.Context, profileID int64) (*shared.Viewer, error) {
	profile, err := s.repo.FindProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !profile.Active {
		return nil, nil
	}
	granted := make(map[string]bool)
	for _, p := range rolePermissions[profile.Role] {
		granted[p] = true
	}
	return &shared.Viewer{
		ID:          profile.ID,
		Email:       profile.Email,
		FullName:    profile.FullName,
		Role:        profile.Role,
		Permissions: granted,
	}, nil
}

var _ Repository = (*PGRepository)(nil)
