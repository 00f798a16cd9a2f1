// Package storage defines the durable persistence port behind session and
// store-selection state. All logical keys live here so the forced-logout
// sweep is a single enumerated clear, not an ad hoc key list.
package storage

import (
	"context"
	"fmt"
)

// Port is the single read/write/clear surface for durable gateway state.
// Implementations must be safe for concurrent use.
type Port interface {
	// Read returns the value for key and whether it was present.
	Read(ctx context.Context, key string) (string, bool, error)
	// Write stores value under key, overwriting any previous value.
	Write(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Clear removes every key with the given prefix.
	Clear(ctx context.Context, prefix string) error
	// Close releases any underlying resources.
	Close() error
}

// namespace prefixes every gateway key so shared backends (one Redis, one
// database) can host other applications without collisions.
const namespace = "wozif"

// SessionPrefix scopes all durable state for one session (token hash).
func SessionPrefix(tokenHash string) string {
	return fmt.Sprintf("%s:session:%s:", namespace, tokenHash)
}

// TokenKey holds the bearer token for a session, written on login and
// removed by the logout sweep.
func TokenKey(tokenHash string) string {
	return SessionPrefix(tokenHash) + "auth_token"
}

// UserKey holds the serialized verified profile for a session.
func UserKey(tokenHash string) string {
	return SessionPrefix(tokenHash) + "user"
}

// SelectedStoreKey holds the persisted store selection for a session.
func SelectedStoreKey(tokenHash string) string {
	return SessionPrefix(tokenHash) + "selected_store"
}

// StoreListKey holds the serialized available-store list for a session.
func StoreListKey(tokenHash string) string {
	return SessionPrefix(tokenHash) + "stores"
}
