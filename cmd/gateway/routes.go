package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nocodeci/wozif-gateway/internal/backend"
	"github.com/nocodeci/wozif-gateway/internal/cache"
	"github.com/nocodeci/wozif-gateway/internal/config"
	"github.com/nocodeci/wozif-gateway/internal/guard"
	"github.com/nocodeci/wozif-gateway/internal/logging"
	"github.com/nocodeci/wozif-gateway/internal/rewrite"
	"github.com/nocodeci/wozif-gateway/internal/session"
	"github.com/nocodeci/wozif-gateway/internal/store"
	"github.com/nocodeci/wozif-gateway/internal/tenant"
)

// newRouter wires the full handler stack. The rewrite middleware sits
// outermost so every other component sees path-addressed requests only.
func newRouter(
	cfg config.Config,
	log *logging.Logger,
	sessions *session.Manager,
	stores *store.Registry,
	checker *tenant.Checker,
	chain *guard.Chain,
	rewriter *rewrite.Rewriter,
	users *cache.Cache[backend.User],
	lists *cache.Cache[[]store.Store],
) http.Handler {
	h := &handlers{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		stores:   stores,
		checker:  checker,
		users:    users,
		lists:    lists,
	}

	limiter := newIPLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(log))
	r.Use(corsMiddleware(cfg))

	// Ops surface.
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public auth surface; sign-in submissions are rate limited per IP.
	r.HandleFunc(guard.SignInPath, h.signInPage).Methods(http.MethodGet)
	r.Handle(guard.SignInPath, limiter.middleware(http.HandlerFunc(h.signInSubmit))).Methods(http.MethodPost)
	r.Handle("/auth/login", limiter.middleware(http.HandlerFunc(h.login))).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodGet, http.MethodPost)

	// Store selection and creation.
	r.HandleFunc(guard.StoreSelectionPath, h.storeSelectionPage).Methods(http.MethodGet)
	r.HandleFunc(guard.StoreSelectionPath, h.storeSelect).Methods(http.MethodPost)
	r.HandleFunc("/stores/check/{slug}", h.checkSlug).Methods(http.MethodGet)

	// Everything else is the protected subtree behind the guard chain.
	r.PathPrefix("/").Handler(chain.Middleware(h.proxy()))

	return rewriter.Middleware(r)
}
