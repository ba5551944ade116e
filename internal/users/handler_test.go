package users

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/testing/webtest"
)

func TestHandlerAdminOnly(t *testing.T) {
	h := NewHandler(nil, NewService(seeded(), nil), webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{})

	manager := webtest.NewClient(t, "/users", webtest.Viewer(5, rbac.RoleManager), h.MountRoutes)
	assert.Equal(t, 403, manager.Get("/users").Code)

	admin := webtest.NewClient(t, "/users", webtest.Viewer(1, rbac.RoleAdmin), h.MountRoutes)
	res := admin.Get("/users?role=accountant")
	require.Equal(t, 200, res.Code)
	assert.Contains(t, res.Body.String(), "Bruno Compta")
	assert.NotContains(t, res.Body.String(), "Amélie Admin")

	res = admin.Post("/users/1/active", url.Values{"active": {"false"}})
	require.Equal(t, 303, res.Code)
	flash := admin.LastFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashError, flash.Kind)
	assert.Equal(t, ErrSelfDeactivate.Error(), flash.Message)

	res = admin.Post("/users", url.Values{"email": {"new@rentdesk.test"}, "full_name": {"Nouveau"}, "role": {"manager"}, "password": {"secret123"}})
	require.Equal(t, 303, res.Code)
	assert.Equal(t, "/users", res.Header().Get("Location"))
}

func TestPermissionsMatrixPage(t *testing.T) {
	h := rbac.NewPermissionsHandler(nil, webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{})
	client := webtest.NewClient(t, "/users/permissions", webtest.Viewer(1, rbac.RoleAdmin), h.MountRoutes)
	res := client.Get("/users/permissions")
	require.Equal(t, 200, res.Code)
	assert.Contains(t, res.Body.String(), "jobs.run")
	assert.Contains(t, res.Body.String(), "Comptable")
}
