package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// TwoFactorHandler handles POST /auth/2fa/verify, the second step of a login
// on a 2FA-enabled account.
type TwoFactorHandler struct {
	SessionService *service.SessionService
	Cookies        CookieConfig
}

type twoFactorVerifyRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func (h *TwoFactorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req twoFactorVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Invalid JSON body",
		})
		return
	}
	if req.UserID == "" || req.Token == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "userId and token are required",
		})
		return
	}

	res, err := h.SessionService.CompleteTwoFactor(ctx, req.UserID, req.Token, clientMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTwoFactorCode):
			httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
				"message": "Invalid two-factor code",
			})
		case errors.Is(err, service.ErrTooManyAttempts):
			httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
				"message": "Too many attempts. Sign in again.",
			})
		default:
			log.Error("2fa verify failed", "err", err)
			httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"message": "Internal server error",
			})
		}
		return
	}

	user, err := h.SessionService.Store.Users().GetUserByID(ctx, res.UserID)
	if err != nil {
		log.Error("load user after 2fa", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
		return
	}

	writeAuthenticated(w, h.Cookies, res, user.Email)
}
