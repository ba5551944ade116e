package dashboard

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/testing/webtest"
)

func TestHandlerRendersStats(t *testing.T) {
	svc, _ := newTestService(t, &stubRepo{})
	h := NewHandler(nil, svc, webtest.Engine(t), shared.NewCSRFManager("secret"), rbac.Middleware{})
	client := webtest.NewClient(t, "/", webtest.Viewer(1, rbac.RoleAccountant), h.MountRoutes)

	res := client.Get("/")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "75 %")
	assert.Contains(t, body, "Bail A-12")
	assert.Contains(t, body, "FAC-202401-0004")
	assert.Contains(t, body, "+40 j")
	assert.Contains(t, body, "Paiements en attente")
	assert.Contains(t, body, "FCFA")
	assert.Contains(t, body, "Contrats récents")
	assert.Contains(t, body, "Bail B-03")
	assert.Contains(t, body, "En attente")
}
