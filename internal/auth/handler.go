package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rentdesk/rentdesk/internal/shared"
	"github.com/rentdesk/rentdesk/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	requireLogin   func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. requireLogin guards the password
// change page.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, requireLogin func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if requireLogin == nil {
		requireLogin = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		requireLogin:   requireLogin,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limited := httprate.LimitByIP(10, time.Minute)
	r.Get("/login", h.showLogin)
	r.With(limited).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/signup", h.showSignup)
	r.With(limited).Post("/signup", h.handleSignup)
	r.Get("/forgot", h.showForgot)
	r.With(limited).Post("/forgot", h.handleForgot)
	r.Get("/reset", h.showReset)
	r.Post("/reset", h.handleReset)
	r.Group(func(r chi.Router) {
		r.Use(h.requireLogin)
		r.Get("/password", h.showPassword)
		r.Post("/password", h.handlePassword)
	})
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Next     string
}

type signupForm struct {
	Email    string
	FullName string
}

type formPageData struct {
	Form          any
	Errors        map[string]string
	Token         string
	SignupEnabled bool
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data formPageData, status int) {
	data.SignupEnabled = h.service.SignupEnabled()
	viewData := view.NewTemplateData(r, h.csrfManager, title, data)
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render auth page", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if shared.ViewerFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/auth/login.html", "Connexion", formPageData{Form: loginForm{Next: safeNext(r.URL.Query().Get("next"))}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Next:     safeNext(r.PostFormValue("next")),
	}
	errs := shared.FieldErrors(shared.ValidateStruct(form))
	if errs == nil {
		errs = make(map[string]string)
	}
	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil && sess != nil {
			h.sessionManager.Renew(sess)
			sess.SetUser(strconv.FormatInt(user.ID, 10))
			sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: "Bienvenue " + displayName(user)})
			expiresAt := time.Now().Add(h.sessionManager.TTL())
			if err := h.service.CompleteLogin(r.Context(), user, sess.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
				h.logger.Warn("complete login", slog.Any("error", err))
			}
			target := form.Next
			if target == "" {
				target = "/"
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		if err != nil && !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		if sess == nil {
			h.logger.Error("session missing during login")
		}
		errs["general"] = "Email ou mot de passe invalide."
	}
	form.Password = ""
	h.render(w, r, "pages/auth/login.html", "Connexion", formPageData{Form: form, Errors: errs}, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		userID, _ := shared.CurrentUserID(r.Context())
		if err := h.service.Logout(r.Context(), userID, sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	if !h.service.SignupEnabled() {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "pages/auth/signup.html", "Créer un compte", formPageData{Form: signupForm{}}, http.StatusOK)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !h.service.SignupEnabled() {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signupForm{Email: r.PostFormValue("email"), FullName: r.PostFormValue("full_name")}
	password := r.PostFormValue("password")
	if password != r.PostFormValue("password_confirm") {
		h.render(w, r, "pages/auth/signup.html", "Créer un compte", formPageData{Form: form, Errors: map[string]string{"PasswordConfirm": "Les mots de passe ne correspondent pas."}}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.SignUp(r.Context(), form.Email, password, form.FullName); err != nil {
		errs := shared.FieldErrors(err)
		if errs == nil {
			errs = map[string]string{"general": shared.UserSafeMessage(err)}
		}
		h.render(w, r, "pages/auth/signup.html", "Créer un compte", formPageData{Form: form, Errors: errs}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/auth/login", shared.FlashSuccess, "Compte créé. Vous pouvez vous connecter.")
}

func (h *Handler) showForgot(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/forgot.html", "Mot de passe oublié", formPageData{}, http.StatusOK)
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), r.PostFormValue("email")); err != nil {
		h.logger.Error("request password reset", slog.Any("error", err))
	}
	view.RedirectWithFlash(w, r, "/auth/login", shared.FlashInfo, "Si un compte existe pour cet email, un lien de réinitialisation vient d'être envoyé.")
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/reset.html", "Nouveau mot de passe", formPageData{Token: r.URL.Query().Get("token")}, http.StatusOK)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	token := r.PostFormValue("token")
	password := r.PostFormValue("password")
	if password != r.PostFormValue("password_confirm") {
		h.render(w, r, "pages/auth/reset.html", "Nouveau mot de passe", formPageData{Token: token, Errors: map[string]string{"PasswordConfirm": "Les mots de passe ne correspondent pas."}}, http.StatusBadRequest)
		return
	}
	if err := h.service.ResetPassword(r.Context(), token, password); err != nil {
		errs := shared.FieldErrors(err)
		if errs == nil {
			errs = map[string]string{"general": shared.UserSafeMessage(err)}
		}
		h.render(w, r, "pages/auth/reset.html", "Nouveau mot de passe", formPageData{Token: token, Errors: errs}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/auth/login", shared.FlashSuccess, "Mot de passe mis à jour. Connectez-vous.")
}

func (h *Handler) showPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/auth/password.html", "Changer de mot de passe", formPageData{}, http.StatusOK)
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	userID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	next := r.PostFormValue("password")
	if next != r.PostFormValue("password_confirm") {
		h.render(w, r, "pages/auth/password.html", "Changer de mot de passe", formPageData{Errors: map[string]string{"PasswordConfirm": "Les mots de passe ne correspondent pas."}}, http.StatusBadRequest)
		return
	}
	if err := h.service.ChangePassword(r.Context(), userID, r.PostFormValue("current"), next); err != nil {
		errs := shared.FieldErrors(err)
		if errs == nil {
			h.logger.Error("change password", slog.Any("error", err))
			errs = map[string]string{"general": shared.UserSafeMessage(err)}
		}
		h.render(w, r, "pages/auth/password.html", "Changer de mot de passe", formPageData{Errors: errs}, http.StatusBadRequest)
		return
	}
	view.RedirectWithFlash(w, r, "/", shared.FlashSuccess, "Mot de passe modifié.")
}

// safeNext keeps redirects on this site.
func safeNext(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	return raw
}
