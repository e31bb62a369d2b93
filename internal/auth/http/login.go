package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// LoginHandler handles POST /auth/login.
type LoginHandler struct {
	SessionService *service.SessionService
	Cookies        CookieConfig
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// authenticatedResponse is the completed-login shape shared with the 2FA
// verify endpoint. The refresh token travels only in the cookie.
type authenticatedResponse struct {
	AccessToken string    `json:"accessToken"`
	User        loginUser `json:"user"`
}

type twoFactorPendingResponse struct {
	RequireTwoFactor bool   `json:"requireTwoFactor"`
	UserID           string `json:"userId"`
}

type lockedResponse struct {
	Message             string    `json:"message"`
	IsLocked            bool      `json:"isLocked"`
	LockedUntil         time.Time `json:"lockedUntil"`
	RequiresAdminUnlock bool      `json:"requiresAdminUnlock"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Invalid JSON body",
		})
		return
	}

	res, err := h.SessionService.Login(ctx, req.Email, req.Password, clientMeta(r))
	if err != nil {
		writeLoginError(w, log, err)
		return
	}

	if res.TwoFactorRequired {
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, twoFactorPendingResponse{
			RequireTwoFactor: true,
			UserID:           res.UserID,
		})
		return
	}

	writeAuthenticated(w, h.Cookies, res, req.Email)
}

// writeLoginError maps service failures for both login steps. Lockout is the
// only specific credential failure; everything else collapses into one 401.
func writeLoginError(w http.ResponseWriter, log *slog.Logger, err error) {
	var locked *service.AccountLockedError
	switch {
	case errors.As(err, &locked):
		httpx.WriteJSON(w, http.StatusUnauthorized, lockedResponse{
			Message:             "Account locked. Try again later.",
			IsLocked:            true,
			LockedUntil:         locked.Until,
			RequiresAdminUnlock: locked.RequiresAdminUnlock,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"message": "Invalid email or password",
		})
	case errors.Is(err, service.ErrEmailNotVerified):
		// Still a login failure, but with its own code so the frontend can
		// steer the user to verification instead of a password prompt.
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"message": "Email address has not been verified",
			"code":    "EMAIL_NOT_VERIFIED",
		})
	default:
		log.Error("login failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
	}
}

func writeAuthenticated(w http.ResponseWriter, cookies CookieConfig, res service.LoginResult, email string) {
	cookies.set(w, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt, time.Now())
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authenticatedResponse{
		AccessToken: res.Tokens.AccessToken,
		User: loginUser{
			ID:    res.UserID,
			Email: strings.ToLower(strings.TrimSpace(email)),
		},
	})
}

// clientMeta pulls the forensic request context recorded on ledger rows.
func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		UserAgent: r.UserAgent(),
		IPAddress: httpx.IPKeyExtractor(r),
	}
}
