package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// RefreshHandler handles POST /auth/refresh-token. The refresh token arrives
// only via the httpOnly cookie; it is never accepted from the body.
type RefreshHandler struct {
	SessionService *service.SessionService
	Cookies        CookieConfig
}

// Machine-readable 401 codes so the frontend can distinguish "log in again"
// from "your session was compromised".
const (
	refreshCodeInvalidToken   = "INVALID_TOKEN"
	refreshCodeSecurityIssue  = "SECURITY_ISSUE"
	refreshCodeSessionExpired = "SESSION_EXPIRED"
)

type refreshErrorResponse struct {
	Code string `json:"code"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	presented := refreshCookieValue(r)
	if presented == "" {
		httpx.WriteJSON(w, http.StatusUnauthorized, refreshErrorResponse{Code: refreshCodeInvalidToken})
		return
	}

	pair, err := h.SessionService.Refresh(ctx, presented, clientMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			httpx.WriteJSON(w, http.StatusUnauthorized, refreshErrorResponse{Code: refreshCodeInvalidToken})
		case errors.Is(err, service.ErrReplayDetected):
			// Someone presented a spent token; the family is gone. Drop the
			// cookie so the client stops retrying with it.
			log.Warn("refresh token replay detected")
			h.Cookies.clear(w)
			httpx.WriteJSON(w, http.StatusUnauthorized, refreshErrorResponse{Code: refreshCodeSecurityIssue})
		case errors.Is(err, service.ErrSessionExpired):
			h.Cookies.clear(w)
			httpx.WriteJSON(w, http.StatusUnauthorized, refreshErrorResponse{Code: refreshCodeSessionExpired})
		default:
			log.Error("refresh failed", "err", err)
			httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"message": "Internal server error",
			})
		}
		return
	}

	h.Cookies.set(w, pair.RefreshToken, pair.RefreshExpiresAt, time.Now())
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"accessToken": pair.AccessToken,
	})
}
