package shops

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/testing/webtest"
)

func TestHandlerCreateAndList(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	h := NewHandler(nil, svc, nil, webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{})
	client := webtest.NewClient(t, "/shops", webtest.Viewer(1, rbac.RoleManager), h.MountRoutes)

	res := client.Post("/shops", url.Values{
		"shop_number":  {"B-01"},
		"name":         {"Épicerie Fine"},
		"surface_area": {"30,5"},
		"floor":        {"0"},
		"location":     {"Galerie"},
		"status":       {"vacant"},
	})
	require.Equal(t, 303, res.Code)
	assert.Equal(t, "/shops/1", res.Header().Get("Location"))

	list := client.Get("/shops?q=epicerie")
	require.Equal(t, 200, list.Code)
	assert.Contains(t, list.Body.String(), "Épicerie Fine")

	bad := client.Post("/shops", url.Values{"shop_number": {"B-02"}, "surface_area": {"abc"}})
	assert.Equal(t, 400, bad.Code)
	assert.Contains(t, bad.Body.String(), "Montant invalide.")
}

func TestHandlerForbiddenForAccountant(t *testing.T) {
	h := NewHandler(nil, newTestService(newMemoryRepo()), nil, webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{})
	client := webtest.NewClient(t, "/shops", webtest.Viewer(2, rbac.RoleAccountant), h.MountRoutes)
	assert.Equal(t, 403, client.Get("/shops").Code)
}
