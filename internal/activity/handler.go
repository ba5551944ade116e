package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rentdesk/rentdesk/internal/rbac"
	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

const (
	defaultDateRange = 30
	maxDateRangeDays = 366
	rateLimit        = 10
	rateWindow       = time.Minute
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
	Export(ctx context.Context, filters TimelineFilters) ([]Entry, error)
}

// Handler serves the activity timeline.
type Handler struct {
	logger    *slog.Logger
	service   TimelineService
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	loc       *time.Location
	now       func() time.Time
}

// NewHandler builds the timeline handler. Date filters are read in loc.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, loc: loc, now: time.Now}
}

// MountRoutes registers the timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermActivityView))
		r.Get("/", h.timeline)
		r.With(limiter).Get("/export.csv", h.export)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, r, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load activity timeline", err)
		return
	}
	vm := ViewModel{Filters: filters, Rows: result.Rows, Paging: result.Paging, Entities: Entities()}
	h.render(w, r, vm, http.StatusOK)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, r, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export activity timeline", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"activite.csv\"")
	if err := WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	today := shared.CalendarDate(h.now().In(h.loc))
	to := today
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			return TimelineFilters{}, validationError{field: "to"}
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -defaultDateRange)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			return TimelineFilters{}, validationError{field: "from"}
		}
		from = parsed
	}
	if from.After(to) || shared.DaysBetween(from, to) > maxDateRangeDays {
		return TimelineFilters{}, validationError{field: "range"}
	}

	page := 1
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "page"}
		}
		page = shared.ClampPage(parsed)
	}
	pageSize := DefaultPageSize
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return TimelineFilters{}, validationError{field: "page_size"}
		}
		pageSize = min(parsed, MaxPageSize)
	}
	action := strings.TrimSpace(q.Get("action"))
	if action != "" && !validAction(action) {
		return TimelineFilters{}, validationError{field: "action"}
	}

	// Dates are calendar days in the business timezone.
	return TimelineFilters{
		From:     time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, h.loc),
		To:       time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, h.loc),
		Search:   strings.TrimSpace(q.Get("q")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		Action:   action,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func validAction(action string) bool {
	switch action {
	case shared.ActionCreate, shared.ActionUpdate, shared.ActionDelete, shared.ActionLogin, shared.ActionLogout, shared.ActionSystem:
		return true
	}
	return false
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, vm ViewModel, status int) {
	data := view.NewTemplateData(r, h.csrf, "Journal d'activité", vm)
	if err := h.templates.RenderStatus(w, status, "pages/activity/timeline.html", data); err != nil {
		h.logger.Error("render template", slog.String("template", "pages/activity/timeline.html"), slog.Any("error", err))
	}
}

func (h *Handler) handleFilterError(w http.ResponseWriter, r *http.Request, err error) {
	var v validationError
	if errors.As(err, &v) {
		if strings.HasSuffix(r.URL.Path, ".csv") {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.render(w, r, ViewModel{Entities: Entities(), Errors: map[string]string{v.field: v.Error()}}, http.StatusBadRequest)
		return
	}
	h.handleServerError(w, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	if v.field == "range" {
		return fmt.Sprintf("Période invalide (%d jours maximum).", maxDateRangeDays)
	}
	return "Filtre invalide."
}

func rateLimitKey(r *http.Request) (string, error) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
