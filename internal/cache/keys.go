package cache

import "fmt"

// Key templates are centralised so tenant-targeted invalidation can address
// exactly the entries it owns without scanning values.

// UserKey caches the verified profile for a token hash.
func UserKey(tokenHash string) string {
	return fmt.Sprintf("user_%s", tokenHash)
}

// StoresKey caches the available-store list for a token hash.
func StoresKey(tokenHash string) string {
	return fmt.Sprintf("stores_%s", tokenHash)
}

// StoreStatsKey caches per-store dashboard statistics.
func StoreStatsKey(storeID string) string {
	return fmt.Sprintf("store_stats_%s", storeID)
}

// SlugCheckKey caches a slug-availability lookup.
func SlugCheckKey(slug string) string {
	return fmt.Sprintf("slug_check_%s", slug)
}
