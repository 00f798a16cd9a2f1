// Package session tracks per-token authentication state. Each bearer token
// moves through a small state machine: Unchecked until a verification round
// trip settles, then Authenticated or Unauthenticated. There is no way back
// to Unchecked short of building a new Manager.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nocodeci/wozif-gateway/internal/backend"
	"github.com/nocodeci/wozif-gateway/internal/cache"
	"github.com/nocodeci/wozif-gateway/internal/errors"
	"github.com/nocodeci/wozif-gateway/internal/logging"
	"github.com/nocodeci/wozif-gateway/internal/storage"
)

// State is the authentication-check status of a token.
type State int

const (
	// Unchecked means no verification round trip has settled yet. Callers
	// must not assume unauthenticated state while Unchecked.
	Unchecked State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unchecked"
	}
}

// Session is an immutable snapshot of one token's state.
type Session struct {
	Token string
	User  backend.User
	State State
}

// Checked reports whether verification has settled, either way.
func (s Session) Checked() bool { return s.State != Unchecked }

// AuthAPI is the external auth collaborator.
type AuthAPI interface {
	Me(ctx context.Context, token string) (backend.User, error)
	Login(ctx context.Context, creds backend.Credentials) (backend.LoginResult, error)
}

// record is the mutable per-token state, guarded by Manager.mu.
type record struct {
	state    State
	user     backend.User
	gen      uint64
	inflight chan struct{}
	lastSeen time.Time
}

// Manager owns all session state. Mutation is serialized behind one mutex;
// verification round trips run outside it and are reconciled with a
// generation counter so late-arriving responses never clobber newer state.
type Manager struct {
	mu      sync.Mutex
	records map[string]*record

	api    AuthAPI
	port   storage.Port
	users  *cache.Cache[backend.User]
	log    *logging.Logger
	now    func() time.Time
	onDrop []func(tokenHash string)
}

// NewManager builds a Manager. users may be nil to disable profile caching.
func NewManager(api AuthAPI, port storage.Port, users *cache.Cache[backend.User], log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{
		records: make(map[string]*record),
		api:     api,
		port:    port,
		users:   users,
		log:     log,
		now:     time.Now,
	}
}

// OnDrop registers a hook invoked (outside the lock) whenever a session's
// in-memory state is discarded, by logout or by the idle sweep. Store
// contexts and guards use it to drop their own per-session entries.
func (m *Manager) OnDrop(fn func(tokenHash string)) {
	m.mu.Lock()
	m.onDrop = append(m.onDrop, fn)
	m.mu.Unlock()
}

// HashToken derives the storage/cache key for a bearer token. Raw tokens
// never appear in keys or logs.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Restore loads any persisted state for token and marks it pending
// verification. Calling it repeatedly without an intervening login or
// logout is a no-op after the first call.
func (m *Manager) Restore(ctx context.Context, token string) Session {
	if token == "" {
		return Session{State: Unauthenticated}
	}

	hash := HashToken(token)

	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.ensureLocked(ctx, hash)
	return snapshot(token, rec)
}

// Verify settles the token's state with a round trip to the auth backend.
// Concurrent calls for one token share a single round trip; every caller
// returns only once verification has settled. The returned session is
// always Checked unless ctx is cancelled first.
func (m *Manager) Verify(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{State: Unauthenticated}, nil
	}

	hash := HashToken(token)

	m.mu.Lock()
	rec := m.ensureLocked(ctx, hash)

	if rec.state != Unchecked {
		s := snapshot(token, rec)
		m.mu.Unlock()
		return s, nil
	}

	if rec.inflight != nil {
		// Another request is already verifying this token: wait for it.
		ch := rec.inflight
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return Session{Token: token, State: Unchecked}, ctx.Err()
		}
		m.mu.Lock()
		if cur, ok := m.records[hash]; ok {
			rec = cur
		}
		s := snapshot(token, rec)
		m.mu.Unlock()
		return s, nil
	}

	ch := make(chan struct{})
	rec.inflight = ch
	gen := rec.gen
	m.mu.Unlock()

	user, verr := m.check(ctx, token, hash)

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.inflight == ch {
		rec.inflight = nil
	}
	defer close(ch)

	// Re-look-up the record: a login replaces the map entry wholesale and a
	// logout or idle sweep removes it, so the captured pointer alone cannot
	// tell a current record from a superseded one.
	if cur, ok := m.records[hash]; !ok || cur != rec || rec.gen != gen || rec.state != Unchecked {
		if ok {
			return snapshot(token, cur), nil
		}
		return snapshot(token, rec), nil
	}

	if verr != nil {
		m.log.WithContext(ctx).WithError(verr).Info("session verification failed")
		m.purgeLocked(ctx, hash)
		rec.state = Unauthenticated
		rec.user = backend.User{}
		return snapshot(token, rec), nil
	}

	// Persist before the in-memory transition so a crash can never leave
	// memory claiming a user that storage has not seen.
	if m.port != nil {
		if data, err := json.Marshal(user); err == nil {
			if werr := m.port.Write(ctx, storage.UserKey(hash), string(data)); werr != nil {
				m.log.WithContext(ctx).WithError(werr).Warn("persist verified user failed")
			}
		}
	}
	if m.users != nil {
		m.users.Set(cache.UserKey(hash), user)
	}

	rec.user = user
	rec.state = Authenticated
	return snapshot(token, rec), nil
}

// Login exchanges credentials for a fresh authenticated session.
func (m *Manager) Login(ctx context.Context, creds backend.Credentials) (Session, error) {
	result, err := m.api.Login(ctx, creds)
	if err != nil {
		return Session{State: Unauthenticated}, err
	}

	hash := HashToken(result.Token)
	userJSON, merr := json.Marshal(result.User)
	if merr != nil {
		return Session{State: Unauthenticated}, errors.Internal("encode user", merr)
	}

	if m.port != nil {
		if err := m.port.Write(ctx, storage.TokenKey(hash), result.Token); err != nil {
			return Session{State: Unauthenticated}, errors.Internal("persist token", err)
		}
		if err := m.port.Write(ctx, storage.UserKey(hash), string(userJSON)); err != nil {
			return Session{State: Unauthenticated}, errors.Internal("persist user", err)
		}
	}

	m.mu.Lock()
	rec := &record{state: Authenticated, user: result.User, lastSeen: m.now()}
	if old, ok := m.records[hash]; ok {
		rec.gen = old.gen + 1
	}
	m.records[hash] = rec
	m.mu.Unlock()

	if m.users != nil {
		m.users.Set(cache.UserKey(hash), result.User)
	}

	return Session{Token: result.Token, User: result.User, State: Authenticated}, nil
}

// Logout is the single clearing path: durable keys, cache entries and
// in-memory state go together. Any "force logout" affordance must call
// exactly this, never a partial clear.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := HashToken(token)

	m.mu.Lock()
	if rec, ok := m.records[hash]; ok {
		// Settle the record in place for anyone still holding it, then drop
		// it from the map so logged-out tokens hold no memory.
		rec.gen++
		rec.state = Unauthenticated
		rec.user = backend.User{}
		delete(m.records, hash)
	}
	m.purgeLocked(ctx, hash)
	hooks := append([]func(string){}, m.onDrop...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(hash)
	}
	return nil
}

// Sweep drops records that have not been touched within maxIdle and invokes
// the drop hooks for each, so the guard and store-context maps shrink with
// it. Durable storage is untouched: an evicted session restores on its next
// request. Scheduled on the same cron as the cache sweeps.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var dropped []string
	for hash, rec := range m.records {
		if rec.inflight == nil && rec.lastSeen.Before(cutoff) {
			delete(m.records, hash)
			dropped = append(dropped, hash)
		}
	}
	hooks := append([]func(string){}, m.onDrop...)
	m.mu.Unlock()

	for _, hash := range dropped {
		for _, fn := range hooks {
			fn(hash)
		}
	}
	return len(dropped)
}

// IsAuthenticated reports whether token is currently verified. False for
// unknown, unchecked, or logged-out tokens.
func (m *Manager) IsAuthenticated(token string) bool {
	if token == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[HashToken(token)]
	return ok && rec.state == Authenticated
}

// Get returns a snapshot without triggering any I/O.
func (m *Manager) Get(token string) Session {
	if token == "" {
		return Session{State: Unauthenticated}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[HashToken(token)]
	if !ok {
		return Session{Token: token, State: Unchecked}
	}
	return snapshot(token, rec)
}

// ensureLocked returns the record for hash, creating it from durable
// storage on first sight. Caller holds m.mu.
func (m *Manager) ensureLocked(ctx context.Context, hash string) *record {
	if rec, ok := m.records[hash]; ok {
		rec.lastSeen = m.now()
		return rec
	}

	rec := &record{state: Unchecked, lastSeen: m.now()}
	if m.port != nil {
		if data, ok, err := m.port.Read(ctx, storage.UserKey(hash)); err == nil && ok {
			var user backend.User
			if json.Unmarshal([]byte(data), &user) == nil {
				rec.user = user
			}
		}
	}
	m.records[hash] = rec
	return rec
}

// purgeLocked sweeps every durable and cached trace of a session. Caller
// holds m.mu.
func (m *Manager) purgeLocked(ctx context.Context, hash string) {
	if m.port != nil {
		if err := m.port.Clear(ctx, storage.SessionPrefix(hash)); err != nil {
			m.log.WithContext(ctx).WithError(err).Warn("session storage sweep failed")
		}
	}
	if m.users != nil {
		m.users.Delete(cache.UserKey(hash))
	}
}

// check performs the actual verification. An obviously expired JWT is
// rejected without a round trip, and a profile still live in the user cache
// settles the token without one either; the observable outcome is identical.
func (m *Manager) check(ctx context.Context, token, hash string) (backend.User, error) {
	if exp, ok := jwtExpiry(token); ok && exp.Before(m.now()) {
		return backend.User{}, errors.AuthTokenInvalid(fmt.Errorf("token expired at %s", exp.Format(time.RFC3339)))
	}
	if m.users != nil {
		if user, ok := m.users.Get(cache.UserKey(hash)); ok {
			return user, nil
		}
	}
	return m.api.Me(ctx, token)
}

// jwtExpiry extracts the exp claim without verifying the signature. Opaque
// tokens report false and always go to the backend.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func snapshot(token string, rec *record) Session {
	return Session{Token: token, User: rec.user, State: rec.state}
}
