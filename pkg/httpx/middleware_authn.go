package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/fairmarketlabs/tradejournal/pkg/jwtx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// AccessVerifier validates an access token and returns its claims.
type AccessVerifier interface {
	VerifyAccess(token string) (jwtx.AccessClaims, error)
}

// Blacklist answers whether an access-token jti has been revoked before its
// natural expiry. Every access-token verification must consult it; signature
// and expiry checks alone cannot see a logout.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// AuthnMiddleware verifies the bearer access token and rejects blacklisted
// jtis. On success the user id and jti are injected into the request context.
func AuthnMiddleware(v AccessVerifier, bl Blacklist) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.VerifyAccess(raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				log.Warn("jwt verify failed", "err", err)
				return
			}

			revoked, err := bl.IsBlacklisted(ctx, claims.ID)
			if err != nil {
				// Store trouble is a server fault, not an auth failure.
				log.Error("blacklist lookup failed", "err", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if revoked {
				writeBearerError(w, "token revoked")
				return
			}

			ctx = context.WithValue(ctx, CtxKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, CtxKeyJTI, claims.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}
