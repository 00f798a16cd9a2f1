package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nocodeci/wozif-gateway/internal/cache"
	"github.com/nocodeci/wozif-gateway/internal/errors"
	"github.com/nocodeci/wozif-gateway/internal/logging"
	"github.com/nocodeci/wozif-gateway/internal/storage"
)

// Lister is the external collaborator returning the ordered store list for
// an authenticated user.
type Lister interface {
	ListStores(ctx context.Context, token string) ([]Store, error)
}

// Context tracks the available stores and current selection for one
// session. Mutation is serialized behind a mutex; list fetches run outside
// it and reconcile through a generation counter so a superseded refresh can
// never interleave a partial list.
type Context struct {
	mu        sync.Mutex
	token     string
	tokenHash string

	lister Lister
	port   storage.Port
	lists  *cache.Cache[[]Store]
	log    *logging.Logger

	available  []Store
	current    *Store
	selectedID string // persisted explicit selection, applied when the list arrives
	loaded     bool
	gen        uint64
}

func newContext(ctx context.Context, token, tokenHash string, lister Lister, port storage.Port, lists *cache.Cache[[]Store], log *logging.Logger) *Context {
	c := &Context{
		token:     token,
		tokenHash: tokenHash,
		lister:    lister,
		port:      port,
		lists:     lists,
		log:       log,
	}
	if port != nil {
		if id, ok, err := port.Read(ctx, storage.SelectedStoreKey(tokenHash)); err == nil && ok {
			c.selectedID = id
		}
	}
	return c
}

// Ensure makes the store list available, serving the TTL cache while its
// entry is live and refreshing once it expires. Guards call this on every
// navigation; a cache hit costs no network round trip.
func (c *Context) Ensure(ctx context.Context) error {
	if c.lists != nil {
		if stores, ok := c.lists.Get(cache.StoresKey(c.tokenHash)); ok {
			c.mu.Lock()
			if !c.loaded {
				c.applyLocked(stores)
			}
			c.mu.Unlock()
			return nil
		}
		// Cache miss or expiry: refetch.
		return c.refreshOrRestore(ctx)
	}

	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.refreshOrRestore(ctx)
}

// refreshOrRestore fetches the list, falling back to the persisted copy when
// the backend is unreachable and nothing is loaded yet. The fallback serves
// stale-but-available data; the next navigation retries the backend.
func (c *Context) refreshOrRestore(ctx context.Context) error {
	err := c.Refresh(ctx)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	loaded := c.loaded
	c.mu.Unlock()
	if loaded || c.port == nil {
		return err
	}

	data, ok, rerr := c.port.Read(ctx, storage.StoreListKey(c.tokenHash))
	if rerr != nil || !ok {
		return err
	}
	var stores []Store
	if json.Unmarshal([]byte(data), &stores) != nil {
		return err
	}

	c.log.WithContext(ctx).WithError(err).Warn("store list fetch failed; serving persisted copy")
	c.mu.Lock()
	c.applyLocked(stores)
	c.mu.Unlock()
	return nil
}

// Refresh fetches the store list, replacing the available set. Safe to call
// concurrently with itself: last writer wins on the resulting list, and a
// fetch superseded by a newer one is discarded wholesale.
func (c *Context) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	token := c.token
	c.mu.Unlock()

	stores, err := c.lister.ListStores(ctx, token)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// A newer refresh started while this one was in flight.
		c.mu.Unlock()
		return nil
	}
	c.applyLocked(stores)
	if c.lists != nil {
		c.lists.Set(cache.StoresKey(c.tokenHash), stores)
	}
	c.mu.Unlock()

	// Persist the list so a stale copy survives backend outages and process
	// restarts. Cleared with the rest of the session namespace on logout.
	if c.port != nil {
		if data, merr := json.Marshal(stores); merr == nil {
			if werr := c.port.Write(ctx, storage.StoreListKey(c.tokenHash), string(data)); werr != nil {
				c.log.WithContext(ctx).WithError(werr).Warn("persist store list failed")
			}
		}
	}
	return nil
}

// applyLocked installs a freshly fetched list and reconciles the current
// selection with it. Caller holds c.mu.
func (c *Context) applyLocked(stores []Store) {
	c.available = stores
	c.loaded = true

	// A persisted or in-memory selection survives only while the list still
	// contains it.
	if c.current != nil {
		if s, ok := findByID(stores, c.current.ID); ok {
			c.current = &s
			return
		}
		c.current = nil
	}
	if c.selectedID != "" {
		if s, ok := findByID(stores, c.selectedID); ok {
			c.current = &s
			return
		}
	}
	if s, ok := pickDefault(stores); ok {
		c.current = &s
	}
}

// SetCurrent selects a store by id or slug and persists the selection so a
// reload restores it without re-prompting.
func (c *Context) SetCurrent(ctx context.Context, id string) (Store, error) {
	c.mu.Lock()
	s, ok := findByID(c.available, id)
	if !ok {
		c.mu.Unlock()
		return Store{}, errors.StoreNotFound(id)
	}
	c.current = &s
	c.selectedID = s.ID
	c.mu.Unlock()

	if c.port != nil {
		if err := c.port.Write(ctx, storage.SelectedStoreKey(c.tokenHash), s.ID); err != nil {
			c.log.WithContext(ctx).WithError(err).Warn("persist store selection failed")
		}
	}
	return s, nil
}

// Current returns the selected store, if any.
func (c *Context) Current() (Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Store{}, false
	}
	return *c.current, true
}

// Available returns a copy of the store list.
func (c *Context) Available() []Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Store, len(c.available))
	copy(out, c.available)
	return out
}

// Has reports whether id names a store in the available list.
func (c *Context) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := findByID(c.available, id)
	return ok
}

// Registry hands out one Context per session and drops them on logout.
type Registry struct {
	mu       sync.Mutex
	contexts map[string]*Context

	lister Lister
	port   storage.Port
	lists  *cache.Cache[[]Store]
	log    *logging.Logger
}

// NewRegistry builds a Registry. lists may be nil to disable caching.
func NewRegistry(lister Lister, port storage.Port, lists *cache.Cache[[]Store], log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		contexts: make(map[string]*Context),
		lister:   lister,
		port:     port,
		lists:    lists,
		log:      log,
	}
}

// For returns the store context for a token, creating it on first sight.
func (r *Registry) For(ctx context.Context, token, tokenHash string) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contexts[tokenHash]; ok {
		return c
	}
	c := newContext(ctx, token, tokenHash, r.lister, r.port, r.lists, r.log)
	r.contexts[tokenHash] = c
	return c
}

// Drop forgets a session's context and cache entry. Wired as a session
// drop hook, so logout and the idle sweep both clear it.
func (r *Registry) Drop(tokenHash string) {
	r.mu.Lock()
	delete(r.contexts, tokenHash)
	r.mu.Unlock()
	if r.lists != nil {
		r.lists.Delete(cache.StoresKey(tokenHash))
	}
}
