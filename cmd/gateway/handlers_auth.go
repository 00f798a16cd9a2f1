package main

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/nocodeci/wozif-gateway/internal/backend"
	"github.com/nocodeci/wozif-gateway/internal/cache"
	"github.com/nocodeci/wozif-gateway/internal/config"
	"github.com/nocodeci/wozif-gateway/internal/errors"
	"github.com/nocodeci/wozif-gateway/internal/guard"
	"github.com/nocodeci/wozif-gateway/internal/logging"
	"github.com/nocodeci/wozif-gateway/internal/session"
	"github.com/nocodeci/wozif-gateway/internal/store"
	"github.com/nocodeci/wozif-gateway/internal/tenant"
)

// handlers bundles the gateway's own HTTP endpoints.
type handlers struct {
	cfg      config.Config
	log      *logging.Logger
	sessions *session.Manager
	stores   *store.Registry
	checker  *tenant.Checker
	users    *cache.Cache[backend.User]
	lists    *cache.Cache[[]store.Store]
}

// =============================================================================
// Sign-in
// =============================================================================

func (h *handlers) signInPage(w http.ResponseWriter, r *http.Request) {
	redirect := sanitizeRedirect(r.URL.Query().Get("redirect"))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html><head><title>Sign in</title></head><body>
<h1>Sign in</h1>
<form method="post" action="%s?redirect=%s">
  <label>Email <input type="email" name="email" required></label>
  <label>Password <input type="password" name="password" required></label>
  <button type="submit">Sign in</button>
</form>
</body></html>`, guard.SignInPath, url.QueryEscape(redirect))
}

// signInSubmit handles the browser form flow: set the auth cookie and send
// the user back where they were headed.
func (h *handlers) signInSubmit(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Login(r.Context(), creds)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Info("login rejected")
		h.renderSignInError(w, err)
		return
	}

	h.setAuthCookie(w, sess.Token)

	redirect := sanitizeRedirect(r.URL.Query().Get("redirect"))
	if redirect == "" {
		redirect = guard.StoreSelectionPath
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// login is the JSON flow used by the storefront SPA: same semantics as
// signInSubmit but the token travels in the response body.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.sessions.Login(r.Context(), creds)
	if err != nil {
		se := errors.GetServiceError(err)
		if se == nil {
			se = errors.Internal("login failed", err)
		}
		jsonError(w, se.Message, se.HTTPStatus)
		return
	}

	h.setAuthCookie(w, sess.Token)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": sess.Token,
		"user":  sess.User,
	})
}

// me reports the verified session, verifying on demand.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	token := guard.TokenFromRequest(r)
	if token == "" {
		jsonError(w, "missing authentication token", http.StatusUnauthorized)
		return
	}

	sess, err := h.sessions.Verify(r.Context(), token)
	if err != nil {
		jsonError(w, "verification interrupted", http.StatusServiceUnavailable)
		return
	}
	if sess.State != session.Authenticated {
		jsonError(w, "invalid or expired authentication token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, sess.User)
}

// logout clears the session: one sweep over storage, caches and cookie.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	token := guard.TokenFromRequest(r)
	if token != "" {
		if err := h.sessions.Logout(r.Context(), token); err != nil {
			h.log.WithContext(r.Context()).WithError(err).Warn("logout sweep failed")
		}
	}

	h.clearAuthCookie(w)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
		return
	}
	http.Redirect(w, r, guard.SignInPath, http.StatusFound)
}

func (h *handlers) renderSignInError(w http.ResponseWriter, err error) {
	message := "invalid credentials"
	if se := errors.GetServiceError(err); se != nil && se.HTTPStatus < 500 {
		message = se.Message
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `<!doctype html>
<html><head><title>Sign in</title></head><body>
<h1>Sign in</h1>
<p>%s</p>
<p><a href="%s">Try again</a></p>
</body></html>`, html.EscapeString(message), guard.SignInPath)
}

// =============================================================================
// Cookie and request helpers
// =============================================================================

func (h *handlers) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     guard.AuthTokenCookie,
		Value:    token,
		Path:     "/",
		Domain:   cookieDomain(h.cfg),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handlers) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     guard.AuthTokenCookie,
		Value:    "",
		Path:     "/",
		Domain:   cookieDomain(h.cfg),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

// cookieDomain scopes the auth cookie to the apex so it travels across
// tenant subdomains.
func cookieDomain(cfg config.Config) string {
	if cfg.IsProduction() {
		return "." + cfg.RootDomain
	}
	return ""
}

func readCredentials(r *http.Request) (backend.Credentials, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var creds backend.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			return backend.Credentials{}, fmt.Errorf("invalid request body")
		}
		if creds.Email == "" || creds.Password == "" {
			return backend.Credentials{}, fmt.Errorf("email and password are required")
		}
		return creds, nil
	}

	if err := r.ParseForm(); err != nil {
		return backend.Credentials{}, fmt.Errorf("invalid form data")
	}
	creds := backend.Credentials{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if creds.Email == "" || creds.Password == "" {
		return backend.Credentials{}, fmt.Errorf("email and password are required")
	}
	return creds, nil
}

// sanitizeRedirect keeps post-login redirects on-site.
func sanitizeRedirect(redirect string) string {
	if redirect == "" || !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") {
		return ""
	}
	return redirect
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
