package contracts

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/shops"
	"github.com/rentdesk/rentdesk/internal/testing/webtest"
)

func TestHandlerCreateAndTerminate(t *testing.T) {
	repo := newMemoryRepo()
	h := NewHandler(nil, newTestService(repo), nil, nil, webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{})
	client := webtest.NewClient(t, "/contracts", webtest.Viewer(1, rbac.RoleManager), h.MountRoutes)

	res := client.Post("/contracts", url.Values{
		"shop_id":     {"2"},
		"tenant_id":   {"1"},
		"title":       {"Bail B-01"},
		"start_date":  {"2024-01-01"},
		"end_date":    {"2024-04-01"},
		"rent_amount": {"200 000"},
		"status":      {"active"},
	})
	require.Equal(t, 303, res.Code)
	assert.Equal(t, "/contracts/1", res.Header().Get("Location"))
	assert.Equal(t, shops.StatusOccupied, repo.shopStatus[2])

	detail := client.Get("/contracts/1")
	require.Equal(t, 200, detail.Code)
	assert.Contains(t, detail.Body.String(), "Expire dans 17 j")

	res = client.Post("/contracts/1/terminate", url.Values{})
	require.Equal(t, 303, res.Code)
	assert.Equal(t, shared.FlashSuccess, client.LastFlash().Kind)
	assert.Equal(t, shops.StatusVacant, repo.shopStatus[2])

	bad := client.Post("/contracts", url.Values{"start_date": {"01/01/2024"}})
	assert.Equal(t, 400, bad.Code)
	assert.Contains(t, bad.Body.String(), "Date invalide.")
}
