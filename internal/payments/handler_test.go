package payments

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/invoices"
	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/testing/webtest"
)

func TestHandlerRecordAndList(t *testing.T) {
	repo := newMemoryRepo()
	h := NewHandler(nil, newTestService(repo, nil), webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{})
	client := webtest.NewClient(t, "/payments", webtest.Viewer(1, rbac.RoleAccountant), h.MountRoutes)

	form := client.Get("/payments/new?invoice_id=2")
	require.Equal(t, 200, form.Code)
	assert.Contains(t, form.Body.String(), "FAC-202402-0001")
	assert.NotContains(t, form.Body.String(), "FAC-202401-0001")
	assert.Regexp(t, `name="idempotency_key" value="[0-9a-f-]{36}"`, form.Body.String())

	submitted := url.Values{
		"invoice_id":      {"2"},
		"amount":          {"160 000"},
		"method":          {"mobile_money"},
		"paid_at":         {"2024-03-14"},
		"reference":       {"MM-778"},
		"idempotency_key": {"2d9a7c1e-5b0f-4c43-9d52-6f1e8a3b7c10"},
	}
	res := client.Post("/payments", submitted)
	require.Equal(t, 303, res.Code)
	assert.Equal(t, "/invoices/2", res.Header().Get("Location"))
	assert.Equal(t, invoices.StatusPaid, repo.invoices[2].Status)

	again := client.Post("/payments", submitted)
	require.Equal(t, 303, again.Code)
	assert.Equal(t, "/invoices/2", again.Header().Get("Location"))
	assert.Len(t, repo.payments, 1)

	list := client.Get("/payments?method=mobile_money")
	require.Equal(t, 200, list.Code)
	assert.Contains(t, list.Body.String(), "MM-778")
	assert.Contains(t, list.Body.String(), "Mobile money")

	bad := client.Post("/payments", url.Values{"invoice_id": {"1"}, "amount": {"abc"}})
	assert.Equal(t, 400, bad.Code)
	assert.Contains(t, bad.Body.String(), "Montant invalide.")

	res = client.Post("/payments/1/delete", url.Values{})
	require.Equal(t, 303, res.Code)
	assert.Equal(t, invoices.StatusOverdue, repo.invoices[2].Status)
}
