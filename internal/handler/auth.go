package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/login-gateway/internal/apperror"
	"github.com/sakif/login-gateway/internal/auth"
	"github.com/sakif/login-gateway/internal/model"
	"github.com/sakif/login-gateway/internal/service"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

// CookieConfig controls the session cookie the callback sets.
type CookieConfig struct {
	Secure bool          // send only over HTTPS
	TTL    time.Duration // lifetime of the session cookie
}

// AuthHandler runs the OAuth login flow for every registered provider.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin    → redirect the browser to the provider's consent page
//   - HandleCallback → check state, exchange the code, reconcile, set the session
//   - HandleLogout   → clear the session cookie
//   - HandleMe       → return the logged-in user as JSON
//
// DEPENDENCY CHAIN:
//   - providers *auth.Registry       → per-provider code exchange
//   - auth      *service.AuthService → reconcile + issue the session token
type AuthHandler struct {
	providers *auth.Registry
	auth      *service.AuthService
	cookies   CookieConfig
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	providers *auth.Registry,
	authService *service.AuthService,
	cookies CookieConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		providers: providers,
		auth:      authService,
		cookies:   cookies,
		logger:    logger,
	}
}

// HandleLogin redirects the user to the provider's authorization page.
//
// HTTP: GET /auth/{provider}/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// consent URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the login for the provider named in the URL.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	h.callback(w, r, chi.URLParam(r, "provider"))
}

// CallbackFor serves a fixed provider's callback on a path without the
// {provider} segment, e.g. /auth/callback for Google.
func (h *AuthHandler) CallbackFor(p model.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.callback(w, r, p.String())
	}
}

// callback FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a provider profile
//  3. Reconcile the profile into one local user and issue a session token
//  4. Store the token in an HttpOnly cookie and redirect to /profile
//
// Failures never surface as errors to the browser: the user lands back on
// the login page with a flash message.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request, name string) {
	provider, err := h.providers.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	log := h.logger.With(slog.String("provider", name))

	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		log.Warn("auth callback: missing or mismatched state")
		h.fail(w, r, flashAuthFailed)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		log.Info("auth callback: user denied authorization", slog.String("error", errParam))
		h.fail(w, r, flashAuthFailed)
		return
	}

	// --- Step 2: Exchange code for profile ---
	profile, err := provider.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		log.Error("auth callback: exchange failed", slog.String("error", err.Error()))
		h.fail(w, r, flashAuthFailed)
		return
	}

	// --- Step 3: Reconcile and issue token ---
	result, err := h.auth.Login(r.Context(), profile)
	if err != nil {
		log.Error("auth callback: login failed", slog.String("error", err.Error()))
		if errors.Is(err, apperror.ErrUnauthorized) || errors.Is(err, apperror.ErrValidation) {
			h.fail(w, r, flashAuthFailed)
		} else {
			h.fail(w, r, flashSaveFailed)
		}
		return
	}

	// --- Step 4: Bind the session ---
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(h.cookies.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, msg string) {
	setFlash(w, msg)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie and returns to the login page.
//
// HTTP: GET /logout
//
// Sessions are stateless JWTs, so logging out only removes the cookie. The
// token stays valid until it expires, but the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleAPILogout is the JSON variant of HandleLogout.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleAPILogout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth middleware sets userID in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.ProviderAuthFailed("session", nil))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
