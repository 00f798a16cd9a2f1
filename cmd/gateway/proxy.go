package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/nocodeci/wozif-gateway/internal/guard"
)

// proxy forwards guarded traffic to the storefront upstream. Requests reach
// it already path-addressed and stamped with X-User-ID / X-Store-ID by the
// guard chain. Without an upstream the gateway answers with a plain landing
// page so local development works out of the box.
func (h *handlers) proxy() http.Handler {
	if h.cfg.UpstreamURL == "" {
		return http.HandlerFunc(h.landing)
	}

	target, err := url.Parse(h.cfg.UpstreamURL)
	if err != nil {
		h.log.WithError(err).WithField("upstream_url", h.cfg.UpstreamURL).Error("invalid upstream url")
		return http.HandlerFunc(h.landing)
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.log.WithContext(r.Context()).WithError(err).Error("upstream request failed")
		jsonError(w, "upstream unavailable", http.StatusBadGateway)
	}
	return rp
}

func (h *handlers) landing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":  "wozif-gateway",
		"version":  version,
		"path":     r.URL.Path,
		"store_id": r.Header.Get(guard.StoreIDHeader),
		"user_id":  r.Header.Get(guard.UserIDHeader),
	})
}
