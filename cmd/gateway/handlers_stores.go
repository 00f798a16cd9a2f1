package main

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nocodeci/wozif-gateway/internal/errors"
	"github.com/nocodeci/wozif-gateway/internal/guard"
	"github.com/nocodeci/wozif-gateway/internal/session"
	"github.com/nocodeci/wozif-gateway/internal/store"
)

// =============================================================================
// Store selection
// =============================================================================

func (h *handlers) storeSelectionPage(w http.ResponseWriter, r *http.Request) {
	sc, sess, ok := h.storeContext(w, r)
	if !ok {
		return
	}

	available := sc.Available()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html><head><title>Select a store</title></head><body>\n")
	fmt.Fprintf(&b, "<h1>Welcome, %s</h1>\n", html.EscapeString(sess.User.Name))
	if len(available) == 0 {
		b.WriteString("<p>You have no stores yet.</p>\n")
		fmt.Fprintf(&b, "<p><a href=%q>Create your first store</a></p>\n", guard.CreateStorePath)
	} else {
		b.WriteString("<ul>\n")
		for _, s := range available {
			fmt.Fprintf(&b, `<li><form method="post" action="%s"><input type="hidden" name="store" value="%s"><button type="submit">%s (%s)</button></form></li>`+"\n",
				guard.StoreSelectionPath, html.EscapeString(s.ID), html.EscapeString(s.Name), html.EscapeString(string(s.Status)))
		}
		b.WriteString("</ul>\n")
	}
	b.WriteString("</body></html>\n")
	fmt.Fprint(w, b.String())
}

// storeSelect pins the chosen store on the session and sends the user into it.
func (h *handlers) storeSelect(w http.ResponseWriter, r *http.Request) {
	sc, _, ok := h.storeContext(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		jsonError(w, "invalid form data", http.StatusBadRequest)
		return
	}
	choice := r.PostFormValue("store")
	if choice == "" {
		jsonError(w, "store is required", http.StatusBadRequest)
		return
	}

	selected, err := sc.SetCurrent(r.Context(), choice)
	if err != nil {
		if errors.Is(err, errors.CodeStoreNotFound) {
			jsonError(w, "store not found", http.StatusNotFound)
			return
		}
		jsonError(w, "could not select store", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/"+selected.Slug+"/dashboard", http.StatusFound)
}

// storeContext verifies the caller and loads their store context. A false
// return means the response has already been written.
func (h *handlers) storeContext(w http.ResponseWriter, r *http.Request) (*store.Context, session.Session, bool) {
	token := guard.TokenFromRequest(r)
	if token == "" {
		http.Redirect(w, r, guard.SignInPath, http.StatusFound)
		return nil, session.Session{}, false
	}

	sess, err := h.sessions.Verify(r.Context(), token)
	if err != nil {
		jsonError(w, "verification interrupted", http.StatusServiceUnavailable)
		return nil, session.Session{}, false
	}
	if sess.State != session.Authenticated {
		http.Redirect(w, r, guard.SignInPath, http.StatusFound)
		return nil, session.Session{}, false
	}

	sc := h.stores.For(r.Context(), token, session.HashToken(token))
	if err := sc.Ensure(r.Context()); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("store list load failed")
	}
	return sc, sess, true
}

// =============================================================================
// Slug availability
// =============================================================================

// checkSlug answers availability lookups from the store-creation form.
func (h *handlers) checkSlug(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	_, avail, err := h.checker.Check(r.Context(), slug)
	if err != nil {
		if se := errors.GetServiceError(err); se != nil {
			writeJSON(w, se.HTTPStatus, map[string]interface{}{
				"message": se.Message,
				"reason":  se.Reason(),
			})
			return
		}
		jsonError(w, "availability check failed", http.StatusBadGateway)
		return
	}

	body := map[string]interface{}{"exists": avail.Exists}
	if avail.Reason != "" {
		body["reason"] = avail.Reason
	}
	if avail.Message != "" {
		body["message"] = avail.Message
	}
	writeJSON(w, http.StatusOK, body)
}
