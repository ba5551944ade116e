package users

import (
	"time"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// User is a profile as seen from the management screens.
type User struct {
	ID          int64
	Email       string
	FullName    string
	Role        string
	Active      bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListFilter narrows the user list. Active is "", "active" or "inactive".
type ListFilter struct {
	shared.ListParams
	Role   string
	Active string
}

// CreateInput carries the admin "new user" form.
type CreateInput struct {
	Email    string `validate:"required,email"`
	FullName string `validate:"required,max=200"`
	Role     string `validate:"required,oneof=admin manager accountant"`
	Password string `validate:"required,password"`
}

var (
	// ErrSelfDemote prevents an admin from removing their own admin role.
	ErrSelfDemote = shared.NewPublicError("Vous ne pouvez pas retirer votre propre rôle administrateur.")
	// ErrSelfDeactivate prevents a user from disabling their own account.
	ErrSelfDeactivate = shared.NewPublicError("Vous ne pouvez pas désactiver votre propre compte.")
)
