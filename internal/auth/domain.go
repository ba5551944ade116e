package auth

import (
	"errors"
	"time"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// User represents a profile able to sign in.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	Role         string
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DefaultSignupRole is granted to self-registered profiles.
const DefaultSignupRole = "accountant"

var (
	// ErrEmailTaken is returned when a profile already uses the email.
	ErrEmailTaken = shared.NewPublicError("Un compte existe déjà avec cet email.")
	// ErrResetTokenInvalid is returned for unknown, used or expired reset tokens.
	ErrResetTokenInvalid = shared.NewPublicError("Le lien de réinitialisation est invalide ou a expiré.")
	// ErrSignupDisabled is returned when self-registration is turned off.
	ErrSignupDisabled = shared.NewPublicError("Les inscriptions sont désactivées.")
	// ErrWrongPassword is returned when the current password does not match.
	ErrWrongPassword = errors.New("auth: current password mismatch")
)
