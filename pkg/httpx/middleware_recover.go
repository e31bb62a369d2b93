package httpx

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// Recoverer converts a handler panic into a 500 response instead of tearing
// down the connection. The panic is reported to Sentry; without an initialized
// client the capture calls are no-ops, so the middleware is safe to install
// unconditionally.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				// The server uses this sentinel to abort the response.
				panic(rec)
			}

			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetExtra("stack", string(debug.Stack()))
				scope.SetTag("path", r.URL.Path)
				scope.SetTag("method", r.Method)
				if err, ok := rec.(error); ok {
					sentry.CaptureException(err)
				} else {
					sentry.CaptureMessage(fmt.Sprintf("panic: %v", rec))
				}
			})

			slogx.FromContext(r.Context()).Error("panic recovered",
				"path", r.URL.Path,
				"method", r.Method,
				"panic", rec,
			)

			WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"message": "Internal server error",
			})
		}()

		next.ServeHTTP(w, r)
	})
}
