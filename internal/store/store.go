// Package store holds the merchant store domain model and the per-session
// store context.
package store

import "time"

// Status is the lifecycle state of a store, owned by the backend.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// Store is the client-side read-through copy of a backend store record.
type Store struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// IsActive reports whether the store is serving customers.
func (s Store) IsActive() bool { return s.Status == StatusActive }

// pickDefault applies the auto-selection invariant: the first active store,
// else the first store, else none.
func pickDefault(stores []Store) (Store, bool) {
	if len(stores) == 0 {
		return Store{}, false
	}
	for _, s := range stores {
		if s.IsActive() {
			return s, true
		}
	}
	return stores[0], true
}

// findByID returns the store with the given id, matching by ID or slug so
// path segments can address stores either way.
func findByID(stores []Store, id string) (Store, bool) {
	for _, s := range stores {
		if s.ID == id || s.Slug == id {
			return s, true
		}
	}
	return Store{}, false
}
