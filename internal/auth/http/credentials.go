package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// CredentialsHandler handles account and credential management: signup,
// password change and TOTP enrolment.
type CredentialsHandler struct {
	CredentialService *service.CredentialService
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister handles POST /auth/register.
func (h *CredentialsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Invalid JSON body",
		})
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Email and a password of at least 8 characters are required",
		})
		return
	}

	user, err := h.CredentialService.Register(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			httpx.WriteJSON(w, http.StatusConflict, map[string]string{
				"message": "An account with this email already exists",
			})
			return
		}
		log.Error("register failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, loginUser{ID: user.ID, Email: user.Email})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// HandleChangePassword handles POST /auth/password. All sessions end with
// the old password; the client must sign in again.
func (h *CredentialsHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Invalid JSON body",
		})
		return
	}
	if len(req.NewPassword) < 8 {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "New password must be at least 8 characters",
		})
		return
	}

	err := h.CredentialService.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "Password changed. Sign in again.",
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"message": "Current password is incorrect",
		})
	case errors.Is(err, service.ErrPasswordReused):
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "New password was used recently",
		})
	default:
		log.Error("change password failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
	}
}

type twoFactorEnrollResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// HandleEnrollTwoFactor handles POST /auth/2fa/enroll.
func (h *CredentialsHandler) HandleEnrollTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	secret, url, err := h.CredentialService.EnrollTwoFactor(ctx, userID)
	if err != nil {
		log.Error("2fa enroll failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, twoFactorEnrollResponse{Secret: secret, URL: url})
}

type twoFactorCodeRequest struct {
	Token string `json:"token"`
}

// HandleConfirmTwoFactor handles POST /auth/2fa/confirm.
func (h *CredentialsHandler) HandleConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.handleTwoFactorToggle(w, r, h.CredentialService.ConfirmTwoFactor, "Two-factor authentication enabled")
}

// HandleDisableTwoFactor handles POST /auth/2fa/disable.
func (h *CredentialsHandler) HandleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.handleTwoFactorToggle(w, r, h.CredentialService.DisableTwoFactor, "Two-factor authentication disabled")
}

func (h *CredentialsHandler) handleTwoFactorToggle(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, userID, code string) error,
	okMessage string,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Invalid JSON body",
		})
		return
	}

	err := op(ctx, userID, req.Token)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": okMessage})
	case errors.Is(err, service.ErrInvalidTwoFactorCode):
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Invalid two-factor code",
		})
	default:
		log.Error("2fa toggle failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
	}
}
