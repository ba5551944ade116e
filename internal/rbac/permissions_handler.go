package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// PermissionsHandler shows the role/permission matrix.
type PermissionsHandler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/", h.listPermissions)
	})
}

// MatrixRow is one permission with the roles granting it.
type MatrixRow struct {
	Permission string
	Granted    map[string]bool
}

// Matrix lists every permission against every role.
func Matrix() []MatrixRow {
	rows := make([]MatrixRow, 0, len(shared.AllPermissions()))
	for _, perm := range shared.AllPermissions() {
		row := MatrixRow{Permission: perm, Granted: make(map[string]bool)}
		for _, role := range Roles() {
			for _, p := range rolePermissions[role] {
				if p == perm {
					row.Granted[role] = true
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	data := view.NewTemplateData(r, h.csrf, "Rôles et permissions", map[string]any{
		"Roles":  Roles(),
		"Matrix": Matrix(),
	})
	if err := h.templates.Render(w, "pages/users/permissions.html", data); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
