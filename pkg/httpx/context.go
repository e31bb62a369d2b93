package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyJTI    ctxKey = "jti"
)

// UserIDFromContext returns the authenticated user id set by AuthnMiddleware.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// JTIFromContext returns the access-token jti set by AuthnMiddleware.
func JTIFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyJTI).(string); ok {
		return v
	}
	return ""
}
