package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// LogoutHandler handles POST /auth/logout. Logout always succeeds from the
// client's point of view: the cookie is cleared and 200 returned no matter
// what the backend managed to revoke.
type LogoutHandler struct {
	SessionService *service.SessionService
	Cookies        CookieConfig
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// The access token is optional here; if one is presented and verifies,
	// its jti gets blacklisted alongside the refresh-family revocation. The
	// claim's expiry rides along so the blacklist entry dies exactly when the
	// token would have.
	var (
		accessJTI    string
		accessExpiry time.Time
	)
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
		if claims, err := h.SessionService.Codec.VerifyAccess(raw); err == nil {
			accessJTI = claims.ID
			if claims.ExpiresAt != nil {
				accessExpiry = claims.ExpiresAt.Time
			}
		}
	}

	if err := h.SessionService.Logout(ctx, refreshCookieValue(r), accessJTI, accessExpiry); err != nil {
		// Best-effort: the client still logs out locally.
		log.Error("logout revocation failed", "err", err)
	}

	h.Cookies.clear(w)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out",
	})
}
