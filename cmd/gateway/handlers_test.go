package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocodeci/wozif-gateway/internal/backend"
	"github.com/nocodeci/wozif-gateway/internal/cache"
	"github.com/nocodeci/wozif-gateway/internal/config"
	"github.com/nocodeci/wozif-gateway/internal/errors"
	"github.com/nocodeci/wozif-gateway/internal/guard"
	"github.com/nocodeci/wozif-gateway/internal/logging"
	"github.com/nocodeci/wozif-gateway/internal/rewrite"
	"github.com/nocodeci/wozif-gateway/internal/session"
	memorystore "github.com/nocodeci/wozif-gateway/internal/storage/memory"
	"github.com/nocodeci/wozif-gateway/internal/store"
	"github.com/nocodeci/wozif-gateway/internal/tenant"
)

// fakeBackend stands in for the platform API across auth, store listing and
// slug checks.
type fakeBackend struct {
	password string
	user     backend.User
	stores   []store.Store
	taken    map[string]bool
}

func (f *fakeBackend) Me(ctx context.Context, token string) (backend.User, error) {
	if token != "tok-good" {
		return backend.User{}, errors.AuthTokenInvalid(nil)
	}
	return f.user, nil
}

func (f *fakeBackend) Login(ctx context.Context, creds backend.Credentials) (backend.LoginResult, error) {
	if creds.Password != f.password {
		return backend.LoginResult{}, errors.Unauthorized("invalid credentials")
	}
	return backend.LoginResult{Token: "tok-good", User: f.user}, nil
}

func (f *fakeBackend) ListStores(ctx context.Context, token string) ([]store.Store, error) {
	return f.stores, nil
}

func (f *fakeBackend) CheckSlug(ctx context.Context, slug string) (tenant.Availability, error) {
	if f.taken[slug] {
		return tenant.Availability{Exists: true, Message: "already in use"}, nil
	}
	return tenant.Availability{Exists: false, Message: "available"}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	api := &fakeBackend{
		password: "s3cret",
		user:     backend.User{ID: "u1", Name: "Awa", Email: "awa@example.com"},
		stores: []store.Store{
			{ID: "st1", Name: "Acme", Slug: "acme", Status: store.StatusActive},
		},
		taken: map[string]bool{"acme": true},
	}

	cfg := config.Default()
	cfg.UpstreamURL = ""

	log := logging.NewNop()
	port := memorystore.New()
	users := cache.New[backend.User]()
	lists := cache.New[[]store.Store]()
	slugs := cache.New[tenant.Availability]()

	sessions := session.NewManager(api, port, users, log)
	stores := store.NewRegistry(api, port, lists, log)
	sessions.OnDrop(stores.Drop)
	checker := tenant.NewChecker(api, slugs, log)
	chain := guard.New(sessions, stores, nil, log)
	rewriter := rewrite.New(cfg.RootDomain, cfg.SubdomainAliases)

	return newRouter(cfg, log, sessions, stores, checker, chain, rewriter, users, lists)
}

func authCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == guard.AuthTokenCookie {
			return c
		}
	}
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, version, body["version"])
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "caches")
}

func TestLoginJSONSetsCookieAndReturnsToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"awa@example.com","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token string       `json:"token"`
		User  backend.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tok-good", body.Token)
	assert.Equal(t, "u1", body.User.ID)

	cookie := authCookie(t, rec.Result())
	require.NotNil(t, cookie)
	assert.Equal(t, "tok-good", cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"awa@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, authCookie(t, rec.Result()))
}

func TestLoginRejectsMissingFields(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"awa@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignInFormRedirectsToRequestedPath(t *testing.T) {
	router := newTestRouter(t)

	form := "email=awa%40example.com&password=s3cret"
	req := httptest.NewRequest(http.MethodPost, "/sign-in?redirect=%2Facme%2Fdashboard",
		strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/acme/dashboard", rec.Header().Get("Location"))
	require.NotNil(t, authCookie(t, rec.Result()))
}

func TestSignInIgnoresOffsiteRedirect(t *testing.T) {
	router := newTestRouter(t)

	form := "email=awa%40example.com&password=s3cret"
	req := httptest.NewRequest(http.MethodPost, "/sign-in?redirect=https%3A%2F%2Fevil.example",
		strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, guard.StoreSelectionPath, rec.Header().Get("Location"))
}

func TestMeReturnsVerifiedUser(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer tok-good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var user backend.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "u1", user.ID)
}

func TestMeRejectsMissingToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookieAndRedirects(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: guard.AuthTokenCookie, Value: "tok-good"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, guard.SignInPath, rec.Header().Get("Location"))

	cookie := authCookie(t, rec.Result())
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestStoreSelectionRedirectsToChosenStore(t *testing.T) {
	router := newTestRouter(t)

	form := "store=acme"
	req := httptest.NewRequest(http.MethodPost, guard.StoreSelectionPath, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer tok-good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/acme/dashboard", rec.Header().Get("Location"))
}

func TestStoreSelectionRejectsUnknownStore(t *testing.T) {
	router := newTestRouter(t)

	form := "store=ghost"
	req := httptest.NewRequest(http.MethodPost, guard.StoreSelectionPath, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer tok-good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreSelectionPageListsStores(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, guard.StoreSelectionPath, nil)
	req.Header.Set("Authorization", "Bearer tok-good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme")
}

func TestCheckSlugTaken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/stores/check/acme", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["exists"])
}

func TestCheckSlugAvailable(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/stores/check/ma-boutique", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["exists"])
}

func TestCheckSlugRejectsReserved(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/stores/check/admin", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "reserved", body["reason"])
}

func TestCheckSlugRejectsTooShort(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/stores/check/ab", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "too_short", body["reason"])
}

func TestProtectedRouteRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	// Unauthenticated hit on a tenant path lands on sign-in.
	req := httptest.NewRequest(http.MethodGet, "/acme/dashboard", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), guard.SignInPath)

	// Authenticated hit is allowed and reaches the landing handler.
	req = httptest.NewRequest(http.MethodGet, "/acme/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: guard.AuthTokenCookie, Value: "tok-good"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "st1", body["store_id"])
	assert.Equal(t, "u1", body["user_id"])
}

func TestSubdomainHostIsRewritten(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Host = "acme.wozif.store"
	req.AddCookie(&http.Cookie{Name: guard.AuthTokenCookie, Value: "tok-good"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/acme/dashboard", body["path"])
}
