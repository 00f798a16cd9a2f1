// Package tenant resolves and validates store identifiers from request
// hosts, paths and user input.
package tenant

import (
	"regexp"
	"strings"

	"github.com/nocodeci/wozif-gateway/internal/errors"
)

// ID is a validated store slug. The zero value None means "no tenant".
// An ID is only ever produced by Resolve; raw host fragments never cross
// component boundaries as IDs.
type ID string

// None is the sentinel for the absence of a tenant.
const None ID = ""

func (id ID) String() string { return string(id) }

// IsNone reports whether the ID is the no-tenant sentinel.
func (id ID) IsNone() bool { return id == None }

const (
	minLength = 3
	maxLength = 63
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// reserved is the fixed reserved-word set: generic infrastructure labels
// plus brand names that must never become store slugs.
var reserved = map[string]struct{}{
	"www":     {},
	"api":     {},
	"admin":   {},
	"mail":    {},
	"ftp":     {},
	"blog":    {},
	"shop":    {},
	"store":   {},
	"app":     {},
	"dev":     {},
	"test":    {},
	"staging": {},
	"prod":    {},
	"cdn":     {},
	"static":  {},
	"wozif":   {},
	"coovia":  {},
}

// IsReserved reports case-insensitive membership in the reserved set.
func IsReserved(candidate string) bool {
	_, ok := reserved[strings.ToLower(candidate)]
	return ok
}

// Resolve validates candidate and returns it as an ID. Rules run in order
// and the first failure wins: format, length, reserved word. Existence is
// not decided here; see Checker.
func Resolve(candidate string) (ID, error) {
	if !slugPattern.MatchString(candidate) {
		return None, errors.InvalidTenantFormat(candidate)
	}
	if len(candidate) < minLength {
		return None, errors.TenantTooShort(candidate)
	}
	if len(candidate) > maxLength {
		return None, errors.TenantTooLong(candidate)
	}
	if IsReserved(candidate) {
		return None, errors.TenantReserved(candidate)
	}
	return ID(candidate), nil
}

// infraLabels are host labels the in-app sniffer never treats as tenants,
// beyond the full reserved set used for slug registration.
var infraLabels = map[string]struct{}{
	"www":   {},
	"api":   {},
	"admin": {},
	"app":   {},
}

// FromHost extracts a candidate tenant label from host when host is a
// direct subdomain of rootDomain. Infrastructure labels and the apex are
// skipped. The returned label is raw: callers still pass it through
// Resolve before trusting it.
func FromHost(host, rootDomain string) (string, bool) {
	h := strings.ToLower(host)
	if i := strings.LastIndex(h, ":"); i != -1 {
		h = h[:i]
	}

	suffix := "." + strings.ToLower(rootDomain)
	if !strings.HasSuffix(h, suffix) {
		return "", false
	}

	label := strings.TrimSuffix(h, suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	if _, infra := infraLabels[label]; infra {
		return "", false
	}
	return label, true
}
