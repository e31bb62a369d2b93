package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/pkg/httpx"
	"github.com/fairmarketlabs/tradejournal/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	cookies      CookieConfig

	store             store.Store
	SessionService    *service.SessionService
	CredentialService *service.CredentialService
}

func NewRouter(
	st store.Store,
	logger *slog.Logger,
	buildVersion string,
	cookies CookieConfig,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		cookies:      cookies,
		store:        st,
	}

	// Set default middleware chain. The logger goes outermost so the
	// recoverer has a contextual logger when a handler panics.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recoverer,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerCredentials()
	r.registerSessions()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	loginHandler := &LoginHandler{SessionService: r.SessionService, Cookies: r.cookies}
	twoFactorHandler := &TwoFactorHandler{SessionService: r.SessionService, Cookies: r.cookies}
	refreshHandler := &RefreshHandler{SessionService: r.SessionService, Cookies: r.cookies}
	logoutHandler := &LogoutHandler{SessionService: r.SessionService, Cookies: r.cookies}

	// POST /auth/login - strict rate limit by IP (credential guessing)
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/2fa/verify - strict rate limit by IP (code guessing)
	r.Mux.Handle("POST /auth/2fa/verify",
		httpx.Chain(twoFactorHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/refresh-token - moderate rate limit (silent refresh traffic)
	r.Mux.Handle("POST /auth/refresh-token",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /auth/logout - moderate rate limit
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(logoutHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerCredentials() {
	h := &CredentialsHandler{CredentialService: r.CredentialService}

	authn := httpx.AuthnMiddleware(r.SessionService.Codec, r.SessionService)

	// POST /auth/register - strict rate limit by IP (public signup endpoint)
	r.Mux.Handle("POST /auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /auth/password - strict rate limit by user (verifies the current
	// password, so it is a credential-guessing surface too)
	r.Mux.Handle("POST /auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			authn,
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /auth/2fa/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnrollTwoFactor),
			authn,
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /auth/2fa/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirmTwoFactor),
			authn,
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /auth/2fa/disable",
		httpx.Chain(http.HandlerFunc(h.HandleDisableTwoFactor),
			authn,
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{SessionService: r.SessionService}

	authn := httpx.AuthnMiddleware(r.SessionService.Codec, r.SessionService)

	r.Mux.Handle("GET /auth/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			authn,
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /auth/sessions/{sessionID}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			authn,
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
