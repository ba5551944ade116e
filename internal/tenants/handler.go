package tenants

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

// Handler manages tenant endpoints.
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

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermTenantsView))
		r.Get("/", h.list)
		r.With(h.rbac.RequireAll(shared.PermTenantsEdit)).Get("/new", h.showCreate)
		r.Get("/{id}", h.detail)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermTenantsEdit))
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}", h.update)
		r.Post("/{id}/toggle", h.toggle)
		r.Post("/{id}/delete", h.delete)
	})
}

type formPage struct {
	Tenant Tenant
	Form   Input
	Errors map[string]string
	IsEdit bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{ListParams: shared.ParseListParams(r), Active: r.URL.Query().Get("active")}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list tenants", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/tenants/list.html", "Locataires", map[string]any{
		"Tenants":    items,
		"Filter":     filter,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.fail(w, r, "tenant detail", err)
		return
	}
	h.render(w, r, "pages/tenants/detail.html", detail.Tenant.CompanyName, detail, http.StatusOK)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/tenants/form.html", "Nouveau locataire", formPage{Form: Input{Active: true}}, http.StatusOK)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}
	form := Input{
		CompanyName:        tenant.CompanyName,
		ContactName:        tenant.ContactName,
		Email:              tenant.Email,
		Phone:              tenant.Phone,
		Address:            tenant.Address,
		TaxID:              tenant.TaxID,
		RegistrationNumber: tenant.RegistrationNumber,
		BusinessType:       tenant.BusinessType,
		Notes:              tenant.Notes,
		Active:             tenant.Active,
	}
	h.render(w, r, "pages/tenants/form.html", "Modifier "+tenant.CompanyName, formPage{Tenant: tenant, Form: form, IsEdit: true}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := parseInput(r)
	tenant, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.render(w, r, "pages/tenants/form.html", "Nouveau locataire", formPage{Form: in, Errors: shared.MergeErrors(nil, err)}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/tenants/"+strconv.FormatInt(tenant.ID, 10), shared.FlashSuccess, "Locataire créé.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := parseInput(r)
	if _, err := h.service.Update(r.Context(), tenant.ID, in); err != nil {
		h.render(w, r, "pages/tenants/form.html", "Modifier "+tenant.CompanyName, formPage{Tenant: tenant, Form: in, IsEdit: true, Errors: shared.MergeErrors(nil, err)}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/tenants/"+strconv.FormatInt(tenant.ID, 10), shared.FlashSuccess, "Locataire mis à jour.")
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	active, err := h.service.ToggleActive(r.Context(), id)
	target := "/tenants/" + strconv.FormatInt(id, 10)
	if err != nil {
		h.logger.Warn("toggle tenant", slog.Any("error", err))
		view.RedirectWithFlash(w, r, target, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	msg := "Locataire désactivé."
	if active {
		msg = "Locataire réactivé."
	}
	view.RedirectWithFlash(w, r, target, shared.FlashSuccess, msg)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete tenant", slog.Any("error", err))
		view.RedirectWithFlash(w, r, "/tenants/"+strconv.FormatInt(id, 10), shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/tenants", shared.FlashSuccess, "Locataire supprimé.")
}

func parseInput(r *http.Request) Input {
	f := shared.NewFormReader(r)
	return Input{
		CompanyName:        f.String("company_name"),
		ContactName:        f.String("contact_name"),
		Email:              f.String("email"),
		Phone:              f.String("phone"),
		Address:            f.String("address"),
		TaxID:              f.String("tax_id"),
		RegistrationNumber: f.String("registration_number"),
		BusinessType:       f.String("business_type"),
		Notes:              f.String("notes"),
		Active:             f.Bool("active"),
	}
}

func (h *Handler) loadTenant(w http.ResponseWriter, r *http.Request) (Tenant, bool) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return Tenant{}, false
	}
	tenant, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get tenant", err)
		return Tenant{}, false
	}
	return tenant, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
