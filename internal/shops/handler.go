package shops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// TenantOptions lists tenants for the occupancy select.
type TenantOptions interface {
	Options(ctx context.Context) ([]shared.Option, error)
}

// Handler manages shop endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tenants   TenantOptions
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tenants TenantOptions, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, tenants: tenants, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers shop routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermShopsView))
		r.Get("/", h.list)
		r.With(h.rbac.RequireAll(shared.PermShopsEdit)).Get("/new", h.showCreate)
		r.Get("/{id}", h.detail)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermShopsEdit))
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

type formPage struct {
	Shop    Shop
	Form    Input
	Tenants []shared.Option
	Errors  map[string]string
	IsEdit  bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{ListParams: shared.ParseListParams(r), Status: Status(r.URL.Query().Get("status"))}
	if !filter.Status.Valid() {
		filter.Status = ""
	}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list shops", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/shops/list.html", "Locaux", map[string]any{
		"Shops":      items,
		"Filter":     filter,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.loadShop(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/shops/detail.html", shop.Label(), map[string]any{"Shop": shop}, http.StatusOK)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, formPage{Form: Input{Status: StatusVacant}}, http.StatusOK)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.loadShop(w, r)
	if !ok {
		return
	}
	form := Input{
		ShopNumber:       shop.ShopNumber,
		Name:             shop.Name,
		Status:           shop.Status,
		SurfaceArea:      shop.SurfaceArea,
		Floor:            shop.Floor,
		Location:         shop.Location,
		ActivityCategory: shop.ActivityCategory,
		MonthlyRent:      shop.MonthlyRent,
		Description:      shop.Description,
		TenantID:         shop.TenantID,
	}
	h.renderForm(w, r, formPage{Shop: shop, Form: form, IsEdit: true}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, parseErr := parseInput(r)
	if parseErr != nil {
		h.renderForm(w, r, formPage{Form: in, Errors: shared.MergeErrors(parseErr, nil)}, http.StatusBadRequest)
		return
	}
	shop, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logFailure("create shop", err)
		h.renderForm(w, r, formPage{Form: in, Errors: shared.MergeErrors(nil, err)}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/shops/"+strconv.FormatInt(shop.ID, 10), shared.FlashSuccess, "Local créé.")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.loadShop(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, parseErr := parseInput(r)
	if parseErr != nil {
		h.renderForm(w, r, formPage{Shop: shop, Form: in, IsEdit: true, Errors: shared.MergeErrors(parseErr, nil)}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), shop.ID, in); err != nil {
		h.logFailure("update shop", err)
		h.renderForm(w, r, formPage{Shop: shop, Form: in, IsEdit: true, Errors: shared.MergeErrors(nil, err)}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/shops/"+strconv.FormatInt(shop.ID, 10), shared.FlashSuccess, "Local mis à jour.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logFailure("delete shop", err)
		view.RedirectWithFlash(w, r, "/shops/"+strconv.FormatInt(id, 10), shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/shops", shared.FlashSuccess, "Local supprimé.")
}

func parseInput(r *http.Request) (Input, error) {
	f := shared.NewFormReader(r)
	in := Input{
		ShopNumber:       f.String("shop_number"),
		Name:             f.String("name"),
		Status:           Status(f.String("status")),
		SurfaceArea:      f.Decimal("surface_area", "SurfaceArea"),
		Floor:            f.String("floor"),
		Location:         f.String("location"),
		ActivityCategory: f.String("activity_category"),
		MonthlyRent:      f.OptionalDecimal("monthly_rent", "MonthlyRent"),
		Description:      f.String("description"),
		TenantID:         f.ID("tenant_id", "TenantID"),
	}
	return in, f.Err()
}

func (h *Handler) loadShop(w http.ResponseWriter, r *http.Request) (Shop, bool) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return Shop{}, false
	}
	shop, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return Shop{}, false
		}
		h.logger.Error("get shop", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return Shop{}, false
	}
	return shop, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, page formPage, status int) {
	if h.tenants != nil {
		tenants, err := h.tenants.Options(r.Context())
		if err != nil {
			h.logger.Error("tenant options", slog.Any("error", err))
		}
		page.Tenants = tenants
	}
	title := "Nouveau local"
	if page.IsEdit {
		title = "Modifier " + page.Shop.ShopNumber
	}
	h.render(w, r, "pages/shops/form.html", title, page, status)
}

func (h *Handler) logFailure(msg string, err error) {
	if shared.FieldErrors(err) != nil {
		return
	}
	h.logger.Warn(msg, slog.Any("error", err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
