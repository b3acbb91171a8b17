// Package handler contains the HTTP handlers of the login gateway: the OAuth
// flow, the HTML pages and the JSON API.
//
// Handlers parse the request, call a service, and write the response. They
// hold no business rules.
package handler

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/auth"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"title": func(p model.Provider) string {
		s := p.String()
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}

// PageHandler renders the login and profile pages.
// Templates are parsed once at startup; each page is base.html plus its own
// "content" block.
type PageHandler struct {
	login     *template.Template
	profile   *template.Template
	providers *auth.Registry
	auth      *service.AuthService
	logger    *slog.Logger
}

// NewPageHandler parses the embedded templates.
func NewPageHandler(providers *auth.Registry, authService *service.AuthService, logger *slog.Logger) (*PageHandler, error) {
	login, err := parsePage("login.html")
	if err != nil {
		return nil, err
	}
	profile, err := parsePage("profile.html")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		login:     login,
		profile:   profile,
		providers: providers,
		auth:      authService,
		logger:    logger,
	}, nil
}

func parsePage(page string) (*template.Template, error) {
	tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+page)
	if err != nil {
		return nil, fmt.Errorf("handler: parsing %s: %w", page, err)
	}
	return tmpl, nil
}

// HandleIndex serves the login page.
//
// HTTP: GET /
// Auth: Optional (a signed-in user gets a link to the profile)
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	_, signedIn := auth.UserIDFromContext(r.Context())

	h.render(w, h.login, map[string]any{
		"Title":     "Sign in",
		"Flash":     popFlash(w, r),
		"SignedIn":  signedIn,
		"Providers": h.providers.Names(),
	})
}

// HandleProfile shows the signed-in user.
//
// HTTP: GET /profile
// Auth: Required (RequireSession middleware)
//
// A valid token whose user row no longer exists is a stale session: the
// cookie is cleared and the browser is sent back to the login page.
func (h *PageHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if errors.Is(err, apperror.ErrNotFound) {
		h.logger.Warn("profile: session for unknown user", slog.String("userID", userID))
		clearSession(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		h.logger.Error("profile: user lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.render(w, h.profile, map[string]any{
		"Title": "Profile",
		"User":  user,
	})
}

// render buffers the page so a template error can still become a clean 500.
func (h *PageHandler) render(w http.ResponseWriter, tmpl *template.Template, data map[string]any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
