package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermUsersEdit))
		r.Get("/new", h.showCreateUserForm)
		r.Post("/", h.createUser)
		r.Post("/{id}/role", h.changeRole)
		r.Post("/{id}/active", h.setActive)
	})
}

type formPage struct {
	Form   CreateInput
	Roles  []string
	Errors map[string]string
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{ListParams: shared.ParseListParams(r), Role: q.Get("role"), Active: q.Get("active")}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users/list.html", "Utilisateurs", map[string]any{
		"Users":      items,
		"Filter":     filter,
		"Roles":      rbac.Roles(),
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) showCreateUserForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/users/form.html", "Nouvel utilisateur", formPage{Form: CreateInput{Role: rbac.RoleAccountant}, Roles: rbac.Roles()}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	f := shared.NewFormReader(r)
	in := CreateInput{
		Email:    f.String("email"),
		FullName: f.String("full_name"),
		Role:     f.String("role"),
		Password: r.PostForm.Get("password"),
	}
	if _, err := h.service.Create(r.Context(), in); err != nil {
		in.Password = ""
		h.render(w, r, "pages/users/form.html", "Nouvel utilisateur", formPage{Form: in, Roles: rbac.Roles(), Errors: shared.MergeErrors(nil, err)}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/users", shared.FlashSuccess, "Utilisateur créé.")
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	err := h.service.ChangeRole(r.Context(), h.actorID(r), id, r.PostForm.Get("role"))
	h.afterChange(w, r, "change role", err, "Rôle mis à jour.")
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	active, _ := strconv.ParseBool(r.PostForm.Get("active"))
	msg := "Compte désactivé."
	if active {
		msg = "Compte réactivé."
	}
	err := h.service.SetActive(r.Context(), h.actorID(r), id, active)
	h.afterChange(w, r, "set user active", err, msg)
}

func (h *Handler) afterChange(w http.ResponseWriter, r *http.Request, op string, err error, success string) {
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Warn(op, slog.Any("error", err))
		view.RedirectWithFlash(w, r, "/users", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/users", shared.FlashSuccess, success)
}

func (h *Handler) actorID(r *http.Request) int64 {
	if v := shared.ViewerFromContext(r.Context()); v != nil {
		return v.ID
	}
	return 0
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
