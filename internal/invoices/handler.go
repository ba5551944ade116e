package invoices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/shopspring/decimal"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// OptionSource lists contracts for the invoice form.
type OptionSource interface {
	Options(ctx context.Context) ([]shared.Option, error)
}

// PDFRenderer converts an HTML document to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler manages invoice endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	contracts OptionSource
	pdf       PDFRenderer
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, contracts OptionSource, pdf PDFRenderer, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, contracts: contracts, pdf: pdf, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInvoicesView))
		r.Get("/", h.list)
		r.With(httprate.LimitByIP(10, time.Minute)).Get("/export.csv", h.exportCSV)
		r.Get("/aging", h.aging)
		r.With(h.rbac.RequireAll(shared.PermInvoicesEdit)).Get("/new", h.showCreate)
		r.Get("/{id}", h.detail)
		r.With(httprate.LimitByIP(10, time.Minute)).Get("/{id}/pdf", h.exportPDF)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInvoicesEdit))
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}", h.update)
		r.Post("/{id}/status", h.setStatus)
		r.Post("/{id}/delete", h.delete)
	})
}

type formPage struct {
	Invoice   Invoice
	Form      Input
	Contracts []shared.Option
	Errors    map[string]string
	IsEdit    bool
}

func parseFilter(r *http.Request) ListFilter {
	filter := ListFilter{ListParams: shared.ParseListParams(r), Status: Status(r.URL.Query().Get("status"))}
	if !filter.Status.Valid() {
		filter.Status = ""
	}
	return filter
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	items, totals, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/invoices/list.html", "Factures", map[string]any{
		"Invoices":   items,
		"Totals":     totals,
		"Filter":     filter,
		"Pagination": pagination,
		"Today":      h.service.Today(),
	}, http.StatusOK)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Export(r.Context(), parseFilter(r))
	if err != nil {
		h.logger.Error("export invoices", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=factures-%s.csv", h.service.Today().Format("20060102")))
	if err := WriteCSV(w, items); err != nil {
		h.logger.Error("write invoices csv", slog.Any("error", err))
	}
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	buckets, asOf, err := h.service.Aging(r.Context())
	if err != nil {
		h.logger.Error("invoice aging", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/invoices/aging.html", "Balance âgée", map[string]any{
		"Buckets": buckets,
		"AsOf":    asOf,
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
		h.fail(w, r, "invoice detail", err)
		return
	}
	h.render(w, r, "pages/invoices/detail.html", "Facture "+detail.Number, map[string]any{
		"Invoice":  detail,
		"Overdue":  detail.DaysOverdue(h.service.Today()),
	}, http.StatusOK)
}

type pdfData struct {
	Invoice     Detail
	GeneratedAt time.Time
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.fail(w, r, "invoice pdf", err)
		return
	}
	if h.pdf == nil {
		http.Error(w, "PDF export unavailable", http.StatusServiceUnavailable)
		return
	}
	var html bytes.Buffer
	if err := h.templates.Execute(&html, "pdf/invoice.html", pdfData{Invoice: detail, GeneratedAt: time.Now()}); err != nil {
		h.logger.Error("render invoice pdf template", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html.String())
	if err != nil {
		h.logger.Error("render invoice pdf", slog.Int64("invoice_id", id), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.pdf", detail.Number))
	_, _ = w.Write(pdf)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.ParseID(r.URL.Query().Get("contract_id"))
	h.renderForm(w, r, "Nouvelle facture", formPage{Form: Input{ContractID: id, IssueDate: h.service.Today()}}, http.StatusOK)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	form := Input{
		ContractID:  inv.ContractID,
		Number:      inv.Number,
		IssueDate:   inv.IssueDate,
		DueDate:     inv.DueDate,
		AmountTotal: decimal.NewNullDecimal(inv.AmountTotal),
		Description: inv.Description,
		Status:      inv.Status,
	}
	h.renderForm(w, r, "Modifier la facture "+inv.Number, formPage{Invoice: inv, Form: form, IsEdit: true}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in, parseErr := parseInput(r)
	var err error
	if parseErr == nil {
		var inv Invoice
		if inv, err = h.service.Create(r.Context(), in); err == nil {
			view.RedirectWithFlash(w, r, "/invoices/"+strconv.FormatInt(inv.ID, 10), shared.FlashSuccess, "Facture "+inv.Number+" créée.")
			return
		}
	}
	h.renderForm(w, r, "Nouvelle facture", formPage{Form: in, Errors: shared.MergeErrors(parseErr, err)}, http.StatusBadRequest)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadInvoice(w, r)
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
		if _, err = h.service.Update(r.Context(), inv.ID, in); err == nil {
			view.RedirectWithFlash(w, r, "/invoices/"+strconv.FormatInt(inv.ID, 10), shared.FlashSuccess, "Facture mise à jour.")
			return
		}
	}
	h.renderForm(w, r, "Modifier la facture "+inv.Number, formPage{Invoice: inv, Form: in, IsEdit: true, Errors: shared.MergeErrors(parseErr, err)}, http.StatusBadRequest)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := safeBack(r, "/invoices/"+strconv.FormatInt(id, 10))
	if err := h.service.SetStatus(r.Context(), id, Status(r.PostForm.Get("status"))); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Warn("set invoice status", slog.Any("error", err))
		view.RedirectWithFlash(w, r, back, shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, back, shared.FlashSuccess, "Statut mis à jour.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete invoice", slog.Any("error", err))
		view.RedirectWithFlash(w, r, "/invoices/"+strconv.FormatInt(id, 10), shared.FlashError, shared.UserSafeMessage(err))
		return
	}
	view.RedirectWithFlash(w, r, "/invoices", shared.FlashSuccess, "Facture supprimée.")
}

func parseInput(r *http.Request) (Input, error) {
	f := shared.NewFormReader(r)
	in := Input{
		ContractID:  f.ID("contract_id", "ContractID"),
		Number:      f.String("invoice_number"),
		IssueDate:   f.Date("issue_date", "IssueDate"),
		DueDate:     f.Date("due_date", "DueDate"),
		AmountTotal: f.OptionalDecimal("amount_total", "AmountTotal"),
		Description: f.String("description"),
		Status:      Status(f.String("status")),
	}
	return in, f.Err()
}

// safeBack returns the local path posted as "back", or fallback.
func safeBack(r *http.Request, fallback string) string {
	back := r.PostForm.Get("back")
	if len(back) > 1 && back[0] == '/' && back[1] != '/' && back[1] != '\\' {
		return back
	}
	return fallback
}

func (h *Handler) loadInvoice(w http.ResponseWriter, r *http.Request) (Invoice, bool) {
	id, ok := shared.ParseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return Invoice{}, false
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get invoice", err)
		return Invoice{}, false
	}
	return inv, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title string, page formPage, status int) {
	if h.contracts != nil {
		options, err := h.contracts.Options(r.Context())
		if err != nil {
			h.logger.Error("contract options", slog.Any("error", err))
		}
		page.Contracts = options
	}
	h.render(w, r, "pages/invoices/form.html", title, page, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}
