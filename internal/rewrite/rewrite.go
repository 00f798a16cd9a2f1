// Package rewrite turns subdomain-addressed requests into path-addressed
// ones before any authentication or store logic runs.
package rewrite

import (
	"net/http"
	"strings"

	"github.com/nocodeci/wozif-gateway/internal/metrics"
)

// DefaultRootDomain is the apex all storefront subdomains hang off.
const DefaultRootDomain = "wozif.store"

// DefaultAliases maps legacy subdomain labels onto their canonical slugs.
var DefaultAliases = map[string]string{
	"test": "test-store",
}

// Rewriter derives path rewrites from the request host. It is a pure
// function of (host, path): it consults no backend state and is safe to
// run on every request.
type Rewriter struct {
	rootDomain string
	aliases    map[string]string
}

// New builds a Rewriter for rootDomain. A nil alias map falls back to the
// defaults.
func New(rootDomain string, aliases map[string]string) *Rewriter {
	if rootDomain == "" {
		rootDomain = DefaultRootDomain
	}
	if aliases == nil {
		aliases = DefaultAliases
	}
	return &Rewriter{rootDomain: strings.ToLower(rootDomain), aliases: aliases}
}

// Rewrite returns the path the rest of the system should see for a request
// with the given Host header and path. Hosts that are not a direct tenant
// subdomain of the root domain pass through unchanged.
func (rw *Rewriter) Rewrite(host, path string) string {
	label, ok := rw.label(host)
	if !ok {
		return path
	}

	if alias, aliased := rw.aliases[label]; aliased {
		label = alias
	}

	if path == "/" || path == "" {
		return "/" + label
	}
	return "/" + label + path
}

// label extracts the tenant label from host, or reports false for the
// apex, www, multi-level subdomains and foreign hosts.
func (rw *Rewriter) label(host string) (string, bool) {
	h := strings.ToLower(host)
	if i := strings.LastIndex(h, ":"); i != -1 {
		h = h[:i]
	}

	suffix := "." + rw.rootDomain
	if !strings.HasSuffix(h, suffix) {
		return "", false
	}

	label := strings.TrimSuffix(h, suffix)
	if label == "" || label == "www" || strings.Contains(label, ".") {
		return "", false
	}
	return label, true
}

// Middleware applies the rewrite to the request URL before handing off to
// next. It must be mounted ahead of every guard and handler.
func (rw *Rewriter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rewritten := rw.Rewrite(r.Host, r.URL.Path)
		if rewritten != r.URL.Path {
			metrics.Rewrites.Inc()
			r.URL.Path = rewritten
			if r.URL.RawPath != "" {
				r.URL.RawPath = ""
			}
		}
		next.ServeHTTP(w, r)
	})
}
