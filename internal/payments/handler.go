package payments

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// Handler manages payment endpoints.
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

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPaymentsView))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentsEdit))
		r.Get("/new", h.showCreate)
		r.Post("/", h.create)
		r.Post("/{id}/delete", h.delete)
	})
}

type formPage struct {
	Form     Input
	Invoices []Payable
	Errors   map[string]string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{ListParams: shared.ParseListParams(r), Method: Method(r.URL.Query().Get("method"))}
	if !filter.Method.Valid() {
		filter.Method = ""
	}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list payments", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/payments/list.html", "Paiements", map[string]any{
		"Payments":   items,
		"Filter":     filter,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.ParseID(r.URL.Query().Get("invoice_id"))
	h.renderForm(w, r, formPage{Form: Input{InvoiceID: id, Method: MethodBankTransfer, PaidAt: h.service.Today(), IdempotencyKey: uuid.NewString()}}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	f := shared.NewFormReader(r)
	in := Input{
		InvoiceID:      f.ID("invoice_id", "InvoiceID"),
		Amount:         f.Decimal("amount", "Amount"),
		Method:         Method(f.String("method")),
		PaidAt:         f.Date("paid_at", "PaidAt"),
		Reference:      f.String("reference"),
		Notes:          f.String("notes"),
		IdempotencyKey: f.String("idempotency_key"),
	}
	parseErr := f.Err()
	var err error
	if parseErr == nil {
		var p Payment
		if p, err = h.service.Record(r.Context(), in); err == nil {
			view.RedirectWithFlash(w, r, "/invoices/"+strconv.FormatInt(p.InvoiceID, 10), shared.FlashSuccess, "Paiement enregistré.")
			return
		}
		if errors.Is(err, ErrDuplicateSubmission) {
			view.RedirectWithFlash(w, r, "/invoices/"+strconv.FormatInt(in.InvoiceID, 10), shared.FlashInfo, shared.UserSafeMessage(err))
			return
		}
	}
	h.renderForm(w, r, formPage{Form: in, Errors: shared.MergeErrors(parseErr, err)}, http.StatusBadRequest)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Warn("delete payment", slog.Any("error", err))
		view.RedirectWithFlash(w, r, "/payments", shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/payments", shared.FlashSuccess, "Paiement supprimé.")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, page formPage, status int) {
	payable, err := h.service.Payable(r.Context())
	if err != nil {
		h.logger.Error("payable invoices", slog.Any("error", err))
	}
	page.Invoices = payable
	h.render(w, r, "pages/payments/form.html", "Nouveau paiement", page, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
