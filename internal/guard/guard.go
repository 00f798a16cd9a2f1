// Package guard implements the ordered access-guard chain that gates every
// protected route: exemption check, then authentication, then store
// selection. Guards only decide once loading has settled; they never
// redirect around an in-flight verification or store fetch.
package guard

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/nocodeci/wozif-gateway/internal/logging"
	"github.com/nocodeci/wozif-gateway/internal/metrics"
	"github.com/nocodeci/wozif-gateway/internal/session"
	"github.com/nocodeci/wozif-gateway/internal/store"
	"github.com/nocodeci/wozif-gateway/internal/tenant"
)

// AuthTokenCookie is the single canonical session-token key. Every guard,
// handler and storage template uses this one name.
const AuthTokenCookie = "auth_token"

const (
	SignInPath         = "/sign-in"
	StoreSelectionPath = "/store-selection"
	CreateStorePath    = "/create-store"
)

// Headers stamped on allowed requests before they reach the upstream.
const (
	UserIDHeader  = "X-User-ID"
	StoreIDHeader = "X-Store-ID"
)

// DefaultExemptPrefixes are the routes the chain never gates.
var DefaultExemptPrefixes = []string{
	SignInPath,
	"/sign-up",
	StoreSelectionPath,
	CreateStorePath,
	"/auth/",
	"/stores/check/",
	"/health",
	"/status",
	"/metrics",
	"/favicon.ico",
	"/static/",
}

// Action is the chain's decision for a request.
type Action int

const (
	// Allow renders the protected view.
	Allow Action = iota
	// Exempt skips all checks for ignore-listed routes.
	Exempt
	// Redirect sends the caller to Decision.Location.
	Redirect
	// NotFound renders the recoverable store-not-found page.
	NotFound
	// Unavailable means verification could not settle for this request.
	// The chain fails closed: the protected view never renders unverified.
	Unavailable
)

// Decision is the settled outcome of one evaluation.
type Decision struct {
	Action   Action
	Location string
	Session  session.Session
	Store    store.Store
	StoreID  string
}

// Chain evaluates the ordered guards. Construct once and mount Middleware
// ahead of the protected subtree.
type Chain struct {
	sessions *session.Manager
	stores   *store.Registry
	log      *logging.Logger
	exempt   []string

	// redirected tracks, per session, the location a store-selection
	// redirect was already issued for. One-shot: the same location never
	// redirects twice; the flag resets when the URL's store segment again
	// matches the current store.
	mu         sync.Mutex
	redirected map[string]string
}

// New builds a Chain. exempt of nil falls back to the defaults.
func New(sessions *session.Manager, stores *store.Registry, exempt []string, log *logging.Logger) *Chain {
	if log == nil {
		log = logging.NewNop()
	}
	if exempt == nil {
		exempt = DefaultExemptPrefixes
	}
	c := &Chain{
		sessions:   sessions,
		stores:     stores,
		log:        log,
		exempt:     exempt,
		redirected: make(map[string]string),
	}
	sessions.OnDrop(c.forget)
	return c
}

// TokenFromRequest extracts the bearer token from the Authorization header
// or the auth_token cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(AuthTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// Evaluate runs the chain for one request and returns a settled decision.
// It blocks on (deduplicated) verification and store loading, so a returned
// redirect is never issued while a load is in flight.
func (c *Chain) Evaluate(ctx context.Context, r *http.Request) Decision {
	path := r.URL.Path

	// 1. Route exemption: ignore-listed paths render unconditionally.
	if c.isExempt(path) {
		return Decision{Action: Exempt}
	}

	// 2. Authentication guard.
	token := TokenFromRequest(r)
	if token == "" {
		return Decision{Action: Redirect, Location: signInLocation(path)}
	}

	sess := c.sessions.Restore(ctx, token)
	if !sess.Checked() {
		settled, err := c.sessions.Verify(ctx, token)
		if err != nil {
			// Verification did not settle for this request. Fail closed: an
			// unverified caller never sees a protected view.
			return Decision{Action: Unavailable, Session: sess}
		}
		sess = settled
	}
	if sess.State != session.Authenticated {
		metrics.AuthVerifications.WithLabelValues("rejected").Inc()
		return Decision{Action: Redirect, Location: signInLocation(path), Session: sess}
	}
	metrics.AuthVerifications.WithLabelValues("accepted").Inc()

	// 3. Store guard. Runs only after verification settled: store fetches
	// are themselves gated on a valid token.
	hash := session.HashToken(token)
	sc := c.stores.For(ctx, token, hash)
	if err := c.ensureStores(ctx, sc); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("store list unavailable")
	}

	if candidate := firstSegment(path); candidate != "" {
		if _, rerr := tenant.Resolve(candidate); rerr == nil {
			if sc.Has(candidate) {
				selected, serr := sc.SetCurrent(ctx, candidate)
				if serr == nil {
					c.reset(hash)
					return Decision{Action: Allow, Session: sess, Store: selected, StoreID: selected.ID}
				}
			}
			// A user with no stores at all goes to selection, not to a
			// not-found page for a store they never had.
			if len(sc.Available()) > 0 {
				return Decision{Action: NotFound, Session: sess, StoreID: candidate}
			}
		}
	}

	if current, ok := sc.Current(); ok {
		return Decision{Action: Allow, Session: sess, Store: current, StoreID: current.ID}
	}

	if !c.redirectOnce(hash, path) {
		// Already redirected for this exact location; let it render rather
		// than loop.
		return Decision{Action: Allow, Session: sess}
	}
	return Decision{Action: Redirect, Location: StoreSelectionPath, Session: sess}
}

// Middleware applies Evaluate and either forwards, redirects or renders the
// store-not-found page.
func (c *Chain) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := c.Evaluate(r.Context(), r)
		switch d.Action {
		case Exempt:
			metrics.GuardOutcomes.WithLabelValues("exempt").Inc()
			next.ServeHTTP(w, r)

		case Redirect:
			if strings.HasPrefix(d.Location, SignInPath) {
				metrics.GuardOutcomes.WithLabelValues("redirect_signin").Inc()
			} else {
				metrics.GuardOutcomes.WithLabelValues("redirect_selection").Inc()
			}
			http.Redirect(w, r, d.Location, http.StatusFound)

		case NotFound:
			metrics.GuardOutcomes.WithLabelValues("store_not_found").Inc()
			renderStoreNotFound(w, d.StoreID)

		case Unavailable:
			metrics.GuardOutcomes.WithLabelValues("unavailable").Inc()
			http.Error(w, "verification unavailable", http.StatusServiceUnavailable)

		default:
			metrics.GuardOutcomes.WithLabelValues("allowed").Inc()
			ctx := r.Context()
			if d.Session.User.ID != "" {
				ctx = logging.WithUserID(ctx, d.Session.User.ID)
				r.Header.Set(UserIDHeader, d.Session.User.ID)
			}
			if d.StoreID != "" {
				ctx = logging.WithStoreID(ctx, d.StoreID)
				r.Header.Set(StoreIDHeader, d.StoreID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	})
}

// ensureStores loads the store list, tolerating transient failures when
// stale data is already present.
func (c *Chain) ensureStores(ctx context.Context, sc *store.Context) error {
	if err := sc.Ensure(ctx); err != nil {
		if _, ok := sc.Current(); ok {
			// Stale-but-available wins over a hard failure.
			return nil
		}
		return err
	}
	return nil
}

func (c *Chain) isExempt(path string) bool {
	for _, p := range c.exempt {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// redirectOnce reports whether a store-selection redirect may be issued
// for this location, arming the one-shot flag.
func (c *Chain) redirectOnce(hash, location string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.redirected[hash] == location {
		return false
	}
	c.redirected[hash] = location
	return true
}

// reset clears the one-shot flag once the URL's store segment matches the
// current store again.
func (c *Chain) reset(hash string) {
	c.mu.Lock()
	delete(c.redirected, hash)
	c.mu.Unlock()
}

// forget drops per-session guard state on logout.
func (c *Chain) forget(hash string) {
	c.reset(hash)
}

// signInLocation captures the originally requested path for post-login
// return.
func signInLocation(path string) string {
	return SignInPath + "?redirect=" + url.QueryEscape(path)
}

// firstSegment returns the first path segment, or "".
func firstSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.Index(trimmed, "/"); i != -1 {
		return trimmed[:i]
	}
	return trimmed
}

func renderStoreNotFound(w http.ResponseWriter, storeID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`<!doctype html>
<html><head><title>Store not found</title></head><body>
<h1>Store not found</h1>
<p>The store &ldquo;` + htmlEscape(storeID) + `&rdquo; is not part of your account.</p>
<p><a href="` + StoreSelectionPath + `">Choose another store</a></p>
</body></html>`))
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
