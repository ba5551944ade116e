// Package webtest holds helpers for handler tests.
package webtest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// Engine parses the embedded templates or fails the test.
func Engine(t *testing.T) *view.Engine {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	return engine
}

// Viewer returns a signed-in viewer holding the permissions of role.
func Viewer(id int64, role string) *shared.Viewer {
	perms := make(map[string]bool)
	for _, p := range rbac.PermissionsForRole(role) {
		perms[p] = true
	}
	return &shared.Viewer{ID: id, Email: role + "@rentdesk.test", FullName: "Test " + role, Role: role, Permissions: perms}
}

// Client drives a router mounted under prefix with a fixed viewer.
type Client struct {
	t       *testing.T
	router  chi.Router
	Viewer  *shared.Viewer
	Session *shared.Session
}

// NewClient mounts routes under prefix.
func NewClient(t *testing.T, prefix string, viewer *shared.Viewer, mount func(chi.Router)) *Client {
	t.Helper()
	r := chi.NewRouter()
	r.Route(prefix, mount)
	sess := &shared.Session{ID: "test-session"}
	if viewer != nil {
		sess.SetUser(shared.EntityRef(viewer.ID))
	}
	return &Client{t: t, router: r, Viewer: viewer, Session: sess}
}

// Get performs a GET request.
func (c *Client) Get(target string) *httptest.ResponseRecorder {
	return c.Do(http.MethodGet, target, nil)
}

// Post submits form values.
func (c *Client) Post(target string, form url.Values) *httptest.ResponseRecorder {
	return c.Do(http.MethodPost, target, form)
}

// Do performs a request with the viewer and session attached.
func (c *Client) Do(method, target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := shared.ContextWithSession(req.Context(), c.Session)
	if c.Viewer != nil {
		ctx = shared.ContextWithViewer(ctx, c.Viewer)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

// LastFlash pops the flash queued by the previous request.
func (c *Client) LastFlash() *shared.FlashMessage {
	return c.Session.PopFlash()
}
