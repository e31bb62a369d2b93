package http

import (
	"net/http"
	"time"
)

const refreshCookieName = "refresh_token"

// refreshCookiePath scopes the cookie to the auth endpoints so it never rides
// along on ordinary API traffic.
const refreshCookiePath = "/auth"

// CookieConfig carries the deployment-dependent parts of the refresh cookie.
type CookieConfig struct {
	// Secure is on in production; local development runs plain HTTP.
	Secure bool
}

func (c CookieConfig) set(w http.ResponseWriter, token string, expiresAt, now time.Time) {
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func refreshCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
