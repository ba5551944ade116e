package view

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates       *template.Template
	defaultCurrency string
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithDefaultCurrency sets the currency used for amounts that carry none, such
// as a shop's reference rent.
func WithDefaultCurrency(code string) EngineOption {
	return func(e *Engine) {
		if code != "" {
			e.defaultCurrency = code
		}
	}
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Query       url.Values
	Viewer      *shared.Viewer
	Data        any
}

var templateGlobs = []string{
	"templates/layouts/*.html",
	"templates/partials/*.html",
	"templates/pages/*.html",
	"templates/pages/*/*.html",
	"templates/pdf/*.html",
}

// NewEngine parses the embedded templates.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{defaultCurrency: "EUR"}
	for _, opt := range opts {
		opt(e)
	}
	funcs := funcMap()
	funcs["defaultCurrency"] = func() string { return e.defaultCurrency }
	tpl, err := template.New("root").Funcs(funcs).ParseFS(web.Templates, templateGlobs...)
	if err != nil {
		return nil, err
	}
	e.templates = tpl
	return e, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template and writes it with status.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	// Render into a buffer so a template error does not leave half a page.
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Execute writes a named template to an arbitrary writer (PDF sources, emails).
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

// CSRFSource issues tokens for the request session.
type CSRFSource interface {
	EnsureToken(ctx context.Context, sess *shared.Session) (string, error)
}

// NewTemplateData collects the per-request values every page needs: CSRF token,
// pending flash, viewer and query string.
func NewTemplateData(r *http.Request, csrf CSRFSource, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	var token string
	if csrf != nil && sess != nil {
		token, _ = csrf.EnsureToken(r.Context(), sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	return TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Query:       r.URL.Query(),
		Viewer:      shared.ViewerFromContext(r.Context()),
		Data:        data,
	}
}

// RedirectWithFlash queues a flash message and redirects with 303.
func RedirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}
