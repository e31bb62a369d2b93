package http

import (
	"net/http"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
)

// ReadyzHandler is the readiness probe: it checks the critical dependencies
// and reports 503 when any of them are down.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &healthChecks{Database: "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		// Check database connectivity
		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, statusCode, healthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
