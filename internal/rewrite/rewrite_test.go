package rewrite

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRewriteSubdomainHosts(t *testing.T) {
	rw := New("wozif.store", nil)

	tests := []struct {
		host string
		path string
		want string
	}{
		{"acme.wozif.store", "/", "/acme"},
		{"acme.wozif.store", "", "/acme"},
		{"acme.wozif.store", "/dashboard", "/acme/dashboard"},
		{"acme.wozif.store", "/products/42", "/acme/products/42"},
		{"ACME.wozif.store", "/", "/acme"},
		{"acme.wozif.store:443", "/orders", "/acme/orders"},
		// Legacy alias applied before prefixing.
		{"test.wozif.store", "/", "/test-store"},
		{"test.wozif.store", "/dashboard", "/test-store/dashboard"},
	}

	for _, tt := range tests {
		if got := rw.Rewrite(tt.host, tt.path); got != tt.want {
			t.Errorf("Rewrite(%q, %q) = %q, want %q", tt.host, tt.path, got, tt.want)
		}
	}
}

func TestRewritePassthrough(t *testing.T) {
	rw := New("wozif.store", nil)

	tests := []struct {
		host string
		path string
	}{
		{"wozif.store", "/"},
		{"wozif.store", "/sign-in"},
		{"www.wozif.store", "/"},
		{"www.wozif.store", "/dashboard"},
		{"localhost", "/"},
		{"localhost:8080", "/acme/dashboard"},
		{"deep.acme.wozif.store", "/"},
		{"wozifstore.com", "/"},
	}

	for _, tt := range tests {
		if got := rw.Rewrite(tt.host, tt.path); got != tt.path {
			t.Errorf("Rewrite(%q, %q) = %q, want passthrough", tt.host, tt.path, got)
		}
	}
}

func TestRewriteIsDeterministic(t *testing.T) {
	rw := New("wozif.store", nil)
	first := rw.Rewrite("acme.wozif.store", "/dashboard")
	for i := 0; i < 10; i++ {
		if got := rw.Rewrite("acme.wozif.store", "/dashboard"); got != first {
			t.Fatalf("rewrite not deterministic: %q vs %q", got, first)
		}
	}
}

func TestMiddlewareRewritesRequestPath(t *testing.T) {
	rw := New("wozif.store", nil)

	var seenPath string
	h := rw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
	}))

	req := httptest.NewRequest(http.MethodGet, "http://acme.wozif.store/dashboard", nil)
	req.Host = "acme.wozif.store"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seenPath != "/acme/dashboard" {
		t.Fatalf("downstream saw path %q, want /acme/dashboard", seenPath)
	}
}

func TestMiddlewareNoRedirectIssued(t *testing.T) {
	rw := New("wozif.store", nil)

	h := rw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://acme.wozif.store/", nil)
	req.Host = "acme.wozif.store"
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	// Internal rewrite only, never a client-visible redirect.
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "" {
		t.Fatalf("unexpected Location header %q", loc)
	}
}

func TestCustomRootDomainAndAliases(t *testing.T) {
	rw := New("example.dev", map[string]string{"demo": "demo-shop"})

	if got := rw.Rewrite("demo.example.dev", "/"); got != "/demo-shop" {
		t.Fatalf("aliased rewrite = %q, want /demo-shop", got)
	}
	if got := rw.Rewrite("acme.wozif.store", "/"); got != "/" {
		t.Fatalf("foreign host should pass through, got %q", got)
	}
}
