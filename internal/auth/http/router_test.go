package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairmarketlabs/tradejournal/internal/auth/domain"
	"github.com/fairmarketlabs/tradejournal/internal/auth/service"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store"
	"github.com/fairmarketlabs/tradejournal/internal/auth/store/drivers/sqlite"
	"github.com/fairmarketlabs/tradejournal/pkg/cryptox"
	"github.com/fairmarketlabs/tradejournal/pkg/idx"
	"github.com/fairmarketlabs/tradejournal/pkg/jwtx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "http-test-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper.key"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := sqlite.NewStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	codec := &jwtx.Codec{
		AccessSecret:  []byte("access-secret-for-tests-only!!"),
		RefreshSecret: []byte("refresh-secret-for-tests-only!"),
		Issuer:        "tradejournal-test",
	}
	ledger := &service.RefreshLedger{
		Store:        s,
		Codec:        codec,
		TokenTTL:     jwtx.DefaultRefreshTokenTTL,
		MaxFamilyAge: service.DefaultSessionMaxAge,
		MaxRotations: service.DefaultMaxRotations,
	}
	sessions := &service.SessionService{
		Store:          s,
		Codec:          codec,
		Ledger:         ledger,
		Lockout:        service.DefaultLockoutPolicy(),
		AccessTokenTTL: jwtx.DefaultAccessTokenTTL,
	}

	router := NewRouter(s, slog.Default(), "test", CookieConfig{})
	router.SessionService = sessions
	router.CredentialService = &service.CredentialService{Store: s, Issuer: codec.Issuer}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, s
}

func seedUser(t *testing.T, s store.Store, email, password string) domain.User {
	t.Helper()
	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		IsVerified:   true,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func postJSON(t *testing.T, url string, body any, cookie *http.Cookie) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v), "body: %s", raw)
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func TestHTTP_LoginRefreshReplayFlow(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "trader@example.com", "correct horse battery")

	// Wrong password: generic 401 and no cookie.
	resp := postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email": "trader@example.com", "password": "wrong",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Nil(t, refreshCookie(resp))
	resp.Body.Close()

	// Good login: access token in body, refresh token only in the cookie.
	resp = postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email": "trader@example.com", "password": "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := refreshCookie(resp)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/auth", cookie.Path)
	require.Positive(t, cookie.MaxAge)

	var login struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeBody(t, resp, &login)
	require.NotEmpty(t, login.AccessToken)
	require.Equal(t, "trader@example.com", login.User.Email)
	require.NotEqual(t, login.AccessToken, cookie.Value)

	// Silent refresh rotates the cookie.
	resp = postJSON(t, srv.URL+"/auth/refresh-token", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := refreshCookie(resp)
	require.NotNil(t, rotated)
	require.NotEqual(t, cookie.Value, rotated.Value)
	var refreshed struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, resp, &refreshed)
	require.NotEmpty(t, refreshed.AccessToken)

	// Replaying the pre-rotation cookie is a security issue and clears it.
	resp = postJSON(t, srv.URL+"/auth/refresh-token", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	cleared := refreshCookie(resp)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	var replay struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &replay)
	require.Equal(t, "SECURITY_ISSUE", replay.Code)

	// The family died, so the rotated cookie is dead too.
	resp = postJSON(t, srv.URL+"/auth/refresh-token", nil, rotated)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_RefreshWithoutCookie(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/auth/refresh-token", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, "INVALID_TOKEN", body.Code)
}

func TestHTTP_LogoutAlwaysSucceeds(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "trader@example.com", "correct horse battery")

	// Logout with no session at all still returns 200 and clears the cookie.
	resp := postJSON(t, srv.URL+"/auth/logout", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := refreshCookie(resp)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email": "trader@example.com", "password": "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := refreshCookie(resp)
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, resp, &login)

	// Logout with the cookie and access token kills both.
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	req.AddCookie(cookie)
	logoutResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)
	logoutResp.Body.Close()

	resp = postJSON(t, srv.URL+"/auth/refresh-token", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The blacklisted access token no longer passes the authn middleware.
	req, err = http.NewRequest(http.MethodGet, srv.URL+"/auth/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, listResp.StatusCode)
	listResp.Body.Close()
}

func TestHTTP_SessionManagement(t *testing.T) {
	srv, s := newTestServer(t)
	seedUser(t, s, "trader@example.com", "correct horse battery")

	resp := postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email": "trader@example.com", "password": "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	decodeBody(t, resp, &login)

	authedDo := func(method, path string) *http.Response {
		req, err := http.NewRequest(method, srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+login.AccessToken)
		r, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return r
	}

	listResp := authedDo(http.MethodGet, "/auth/sessions")
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var list struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	decodeBody(t, listResp, &list)
	require.Len(t, list.Sessions, 1)

	delResp := authedDo(http.MethodDelete, "/auth/sessions/"+list.Sessions[0].ID)
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)
	delResp.Body.Close()

	// Revoking again, or revoking nonsense, is 404.
	delResp = authedDo(http.MethodDelete, "/auth/sessions/"+list.Sessions[0].ID)
	require.Equal(t, http.StatusNotFound, delResp.StatusCode)
	delResp.Body.Close()

	// Without a token the endpoints are closed.
	anonResp, err := http.Get(srv.URL + "/auth/sessions")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, anonResp.StatusCode)
	anonResp.Body.Close()
}

func TestHTTP_RegisterAndChangePassword(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/auth/register", map[string]string{
		"email": "new@example.com", "password": "short",
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/auth/register", map[string]string{
		"email": "new@example.com", "password": "a long enough password",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	resp = postJSON(t, srv.URL+"/auth/register", map[string]string{
		"email": "new@example.com", "password": "a long enough password",
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Fresh accounts cannot log in until verified: 401 with a code the
	// frontend can tell apart from bad credentials.
	resp = postJSON(t, srv.URL+"/auth/login", map[string]string{
		"email": "new@example.com", "password": "a long enough password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var unverified struct {
		Code string `json:"code"`
	}
	decodeBody(t, resp, &unverified)
	require.Equal(t, "EMAIL_NOT_VERIFIED", unverified.Code)

	// Password change requires authentication.
	resp = postJSON(t, srv.URL+"/auth/password", map[string]string{
		"currentPassword": "a long enough password", "newPassword": "a different password",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_HealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	var live struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &live)
	require.Equal(t, "ok", live.Status)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	var ready struct {
		Status string `json:"status"`
		Checks struct {
			Database string `json:"database"`
		} `json:"checks"`
	}
	decodeBody(t, resp, &ready)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
}
