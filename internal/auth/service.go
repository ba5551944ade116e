package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/rentdesk/rentdesk/internal/shared"
)

// Mailer delivers transactional emails, usually by enqueueing a mail task.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// Options tunes the auth service.
type Options struct {
	BaseURL       string
	SignupEnabled bool
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   TokenStore
	mailer   Mailer
	activity shared.ActivityRecorder
	opts     Options
	now      func() time.Time
}

// NewService constructs a new Service. tokens, mailer and activity may be nil
// for tools that only authenticate.
func NewService(repo Repository, tokens TokenStore, mailer Mailer, activity shared.ActivityRecorder, opts Options) *Service {
	if activity == nil {
		activity = shared.NopActivity{}
	}
	return &Service{repo: repo, tokens: tokens, mailer: mailer, activity: activity, opts: opts, now: time.Now}
}

// SignupEnabled reports whether self-registration is available.
func (s *Service) SignupEnabled() bool {
	return s.opts.SignupEnabled
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// CompleteLogin records the session row, last login timestamp and activity.
func (s *Service) CompleteLogin(ctx context.Context, user *User, sessionID string, expiresAt time.Time, ip, ua string) error {
	if err := s.repo.CreateSession(ctx, sessionID, user.ID, expiresAt, ip, ua); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	if err := s.repo.TouchLogin(ctx, user.ID, s.now()); err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	s.activity.Record(ctx, shared.Activity{
		ActorID:  user.ID,
		Action:   shared.ActionLogin,
		Entity:   "profile",
		EntityID: shared.EntityRef(user.ID),
		Details:  map[string]any{"ip": ip},
	})
	return nil
}

// Logout removes the session row and records the sign-out.
func (s *Service) Logout(ctx context.Context, userID int64, sessionID string) error {
	if userID > 0 {
		s.activity.Record(ctx, shared.Activity{
			ActorID:  userID,
			Action:   shared.ActionLogout,
			Entity:   "profile",
			EntityID: shared.EntityRef(userID),
		})
	}
	return s.repo.DeleteSession(ctx, sessionID)
}

type signupInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,password"`
	FullName string `validate:"required,max=120"`
}

type passwordInput struct {
	Password string `validate:"required,password"`
}

// SignUp registers a new active accountant profile.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*User, error) {
	if !s.opts.SignupEnabled {
		return nil, ErrSignupDisabled
	}
	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if err := shared.ValidateStruct(signupInput{Email: email, Password: password, FullName: fullName}); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, User{Email: email, FullName: fullName, PasswordHash: hash, Role: DefaultSignupRole, IsActive: true})
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, shared.Activity{
		ActorID:  user.ID,
		Action:   shared.ActionCreate,
		Entity:   "profile",
		EntityID: shared.EntityRef(user.ID),
		Details:  map[string]any{"email": user.Email, "source": "signup"},
	})
	return user, nil
}

// RequestPasswordReset sends a reset link when the email is known. Unknown
// emails succeed silently so the form does not reveal which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.tokens == nil || s.mailer == nil {
		return errors.New("auth: password reset not configured")
	}
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	link := s.opts.BaseURL + "/auth/reset?token=" + url.QueryEscape(token)
	body := fmt.Sprintf("Bonjour %s,\n\nPour choisir un nouveau mot de passe, ouvrez le lien suivant (valable une heure) :\n%s\n\nSi vous n'êtes pas à l'origine de cette demande, ignorez ce message.\n", displayName(user), link)
	return s.mailer.SendMail(ctx, user.Email, "Réinitialisation de votre mot de passe", body)
}

// ResetPassword consumes token and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := shared.ValidateStruct(passwordInput{Password: password}); err != nil {
		return err
	}
	if s.tokens == nil {
		return ErrResetTokenInvalid
	}
	userID, err := s.tokens.Consume(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	s.activity.Record(ctx, shared.Activity{
		ActorID:  userID,
		Action:   shared.ActionUpdate,
		Entity:   "profile",
		EntityID: shared.EntityRef(userID),
		Details:  map[string]any{"field": "password", "source": "reset"},
	})
	return nil
}

// ChangePassword updates the password of a signed-in profile.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return shared.NewValidationError("Current", "Mot de passe actuel incorrect.")
	}
	if err := shared.ValidateStruct(passwordInput{Password: next}); err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.activity.Record(ctx, shared.Activity{
		ActorID:  userID,
		Action:   shared.ActionUpdate,
		Entity:   "profile",
		EntityID: shared.EntityRef(userID),
		Details:  map[string]any{"field": "password"},
	})
	return nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func displayName(u *User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
