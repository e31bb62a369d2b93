package http

import (
	"errors"
	"net/http"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// SessionsHandler handles the device-management endpoints. Both require a
// valid, non-blacklisted access token; the user id comes from the context the
// authn middleware populated.
type SessionsHandler struct {
	SessionService *service.SessionService
}

type sessionListResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

// HandleList handles GET /auth/sessions.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	sessions, err := h.SessionService.ListSessions(ctx, userID)
	if err != nil {
		log.Error("list sessions failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions})
}

// HandleRevoke handles DELETE /auth/sessions/{sessionID}. A session belonging
// to another user is indistinguishable from one that does not exist.
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromContext(ctx)
	if userID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	sessionID := r.PathValue("sessionID")
	if err := h.SessionService.RevokeSession(ctx, sessionID, userID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{
				"message": "Session not found",
			})
			return
		}
		log.Error("revoke session failed", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Internal server error",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
