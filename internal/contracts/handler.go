package contracts

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

// OptionSource lists entities for select inputs.
type OptionSource interface {
	Options(ctx context.Context) ([]shared.Option, error)
}

// Handler manages contract endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	shops     OptionSource
	tenants   OptionSource
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, shops, tenants OptionSource, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, shops: shops, tenants: tenants, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers contract routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermContractsView))
		r.Get("/", h.list)
		r.With(h.rbac.RequireAll(shared.PermContractsEdit)).Get("/new", h.showCreate)
		r.Get("/{id}", h.detail)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermContractsEdit))
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}", h.update)
		r.Post("/{id}/terminate", h.terminate)
		r.Post("/{id}/renew", h.renew)
		r.Post("/{id}/delete", h.delete)
	})
}

type formPage struct {
	Contract Contract
	Form     Input
	Shops    []shared.Option
	Tenants  []shared.Option
	Errors   map[string]string
	IsEdit   bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{ListParams: shared.ParseListParams(r), Status: Status(r.URL.Query().Get("status"))}
	if !filter.Status.Valid() {
		filter.Status = ""
	}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list contracts", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/contracts/list.html", "Contrats", map[string]any{
		"Contracts":  items,
		"Filter":     filter,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	h.render(w, r, "pages/contracts/detail.html", c.Title, Row{Contract: c, Expiry: c.ExpiryOn(h.service.Today())}, http.StatusOK)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	form := Input{
		ShopID:        idParam(r, "shop_id"),
		TenantID:      idParam(r, "tenant_id"),
		ContractType:  TypeCommercial,
		StartDate:     h.service.Today(),
		Currency:      h.service.DefaultCurrency(),
		PaymentDay:    1,
		RenewalMonths: DefaultRenewalMonths,
		Status:        StatusPending,
	}
	h.renderForm(w, r, "Nouveau contrat", formPage{Form: form}, http.StatusOK)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	form := Input{
		ShopID:        c.ShopID,
		TenantID:      c.TenantID,
		Title:         c.Title,
		ContractType:  c.ContractType,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		RentAmount:    c.RentAmount,
		Charges:       c.Charges,
		Deposit:       c.Deposit,
		Currency:      c.Currency,
		PaymentDay:    c.PaymentDay,
		AutoRenewal:   c.AutoRenewal,
		RenewalMonths: c.RenewalMonths,
		Status:        c.Status,
		Notes:         c.Notes,
	}
	h.renderForm(w, r, "Modifier "+c.Title, formPage{Contract: c, Form: form, IsEdit: true}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, parseErr := parseInput(r)
	var err error
	if parseErr == nil {
		var c Contract
		if c, err = h.service.Create(r.Context(), in); err == nil {
			view.RedirectWithFlash(w, r, "/contracts/"+strconv.FormatInt(c.ID, 10), shared.FlashSuccess, "Contrat créé.")
			return
		}
	}
	h.renderForm(w, r, "Nouveau contrat", formPage{Form: in, Errors: shared.MergeErrors(parseErr, err)}, http.StatusBadRequest)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadContract(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, parseErr := parseInput(r)
	var err error
	if parseErr == nil {
		if _, err = h.service.Update(r.Context(), c.ID, in); err == nil {
			view.RedirectWithFlash(w, r, "/contracts/"+strconv.FormatInt(c.ID, 10), shared.FlashSuccess, "Contrat mis à jour.")
			return
		}
	}
	h.renderForm(w, r, "Modifier "+c.Title, formPage{Contract: c, Form: in, IsEdit: true, Errors: shared.MergeErrors(parseErr, err)}, http.StatusBadRequest)
}

func (h *Handler) terminate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "terminate contract", h.service.Terminate, "Contrat résilié.")
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "renew contract", h.service.Renew, "Contrat renouvelé.")
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) (Contract, error), success string) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	target := "/contracts/" + strconv.FormatInt(id, 10)
	if _, err := fn(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Warn(op, slog.Int64("contract_id", id), slog.Any("error", err))
		view.RedirectWithFlash(w, r, target, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, target, shared.FlashSuccess, success)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete contract", slog.Any("error", err))
		view.RedirectWithFlash(w, r, "/contracts/"+strconv.FormatInt(id, 10), shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/contracts", shared.FlashSuccess, "Contrat supprimé.")
}

func parseInput(r *http.Request) (Input, error) {
	f := shared.NewFormReader(r)
	in := Input{
		ShopID:        f.ID("shop_id", "ShopID"),
		TenantID:      f.ID("tenant_id", "TenantID"),
		Title:         f.String("title"),
		ContractType:  f.String("contract_type"),
		StartDate:     f.Date("start_date", "StartDate"),
		EndDate:       f.OptionalDate("end_date", "EndDate"),
		RentAmount:    f.Decimal("rent_amount", "RentAmount"),
		Charges:       f.Decimal("charges", "Charges"),
		Deposit:       f.Decimal("deposit", "Deposit"),
		Currency:      f.String("currency"),
		PaymentDay:    f.Int("payment_day", "PaymentDay", 1),
		AutoRenewal:   f.Bool("auto_renewal"),
		RenewalMonths: f.Int("renewal_months", "RenewalMonths", DefaultRenewalMonths),
		Status:        Status(f.String("status")),
		Notes:         f.String("notes"),
	}
	return in, f.Err()
}

func idParam(r *http.Request, name string) int64 {
	id, _ := shared.ParseID(r.URL.Query().Get(name))
	return id
}

func (h *Handler) loadContract(w http.ResponseWriter, r *http.Request) (Contract, bool) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return Contract{}, false
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return Contract{}, false
		}
		h.logger.Error("get contract", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return Contract{}, false
	}
	return c, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title string, page formPage, status int) {
	var err error
	if h.shops != nil {
		if page.Shops, err = h.shops.Options(r.Context()); err != nil {
			h.logger.Error("shop options", slog.Any("error", err))
		}
	}
	if h.tenants != nil {
		if page.Tenants, err = h.tenants.Options(r.Context()); err != nil {
			h.logger.Error("tenant options", slog.Any("error", err))
		}
	}
	h.render(w, r, "pages/contracts/form.html", title, page, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
