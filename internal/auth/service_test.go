package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/auth"
	"github.com/rentdesk/rentdesk/internal/shared"
)

func TestSignUpValidation(t *testing.T) {
	svc := auth.NewService(newMemRepo(), nil, nil, nil, auth.Options{SignupEnabled: true})
	_, err := svc.SignUp(context.Background(), "not-an-email", "short", "")
	require.Error(t, err)
	fields := shared.FieldErrors(err)
	assert.Contains(t, fields, "Email")
	assert.Contains(t, fields, "Password")
	assert.Contains(t, fields, "FullName")
}

func TestSignUpDisabled(t *testing.T) {
	svc := auth.NewService(newMemRepo(), nil, nil, nil, auth.Options{SignupEnabled: false})
	_, err := svc.SignUp(context.Background(), "a@b.fr", "longenough", "A")
	assert.ErrorIs(t, err, auth.ErrSignupDisabled)
}

func TestChangePassword(t *testing.T) {
	repo := newMemRepo()
	u := repo.add(t, "user@test.local", "oldpassword", true)
	svc := auth.NewService(repo, nil, nil, nil, auth.Options{})

	err := svc.ChangePassword(context.Background(), u.ID, "wrong", "newpassword")
	assert.Contains(t, shared.FieldErrors(err), "Current")

	err = svc.ChangePassword(context.Background(), u.ID, "oldpassword", "ééééééé")
	assert.Contains(t, shared.FieldErrors(err), "Password")
	err = svc.ChangePassword(context.Background(), u.ID, "oldpassword", strings.Repeat("a", shared.MaxPasswordBytes+1))
	assert.Contains(t, shared.FieldErrors(err), "Password")

	require.NoError(t, svc.ChangePassword(context.Background(), u.ID, "oldpassword", "newpassword"))
	_, err = svc.Authenticate(context.Background(), "user@test.local", "newpassword")
	assert.NoError(t, err)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := auth.NewService(newMemRepo(), nil, nil, nil, auth.Options{})
	_, err := svc.Authenticate(context.Background(), "ghost@test.local", "whatever")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
