package handler

import (
	"encoding/base64"
	"net/http"
)

// Messages shown on the login page after a failed login.
const (
	flashAuthFailed = "Failed to authorize."
	flashSaveFailed = "Internal error saving user."
)

const flashCookie = "flash"

// setFlash stores a one-shot message for the next page render. The value is
// base64 encoded because cookie values cannot carry spaces or punctuation
// unquoted.
func setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(msg)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending message, if any, and deletes the cookie.
func popFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})

	msg, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}
