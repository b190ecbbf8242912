package medinventory

import (
	"context"
	"sync"
	"time"

	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/logger"
	"github.com/medkit/medinventory/pkg/models"
)

// SessionStatus is the cached view of the remote session.
type SessionStatus struct {
	Authenticated bool            `json:"authenticated"`
	Identity      models.Identity `json:"identity,omitempty"`
	Email         string          `json:"email,omitempty"`
}

// SessionCache remembers the session of a connection. It is filled on first
// use and re-read only on Refresh. When concurrent refreshes race, the one that
// completes last decides the cached value.
//
// A failed remote check leaves the cache unauthenticated. It is not an error:
// the next Refresh may succeed. The check is bounded by the query timeout of
// the handle.
type SessionCache struct {
	conn    connection.Connection
	logger  logger.Logger
	timeout time.Duration

	mu     sync.RWMutex
	loaded bool
	status SessionStatus
}

func newSessionCache(conn connection.Connection, l logger.Logger, timeout time.Duration) *SessionCache {
	return &SessionCache{conn: conn, logger: l, timeout: timeout}
}

// Valid reports whether a user is signed in, checking remotely on first use.
func (s *SessionCache) Valid(ctx context.Context) bool {
	return s.Status(ctx).Authenticated
}

// CurrentIdentity returns the identity of the signed in user. The second
// result is false when there is none.
func (s *SessionCache) CurrentIdentity(ctx context.Context) (models.Identity, bool) {
	st := s.Status(ctx)
	return st.Identity, !st.Identity.IsZero()
}

// Status returns the cached status, checking remotely on first use.
func (s *SessionCache) Status(ctx context.Context) SessionStatus {
	s.mu.RLock()
	loaded, st := s.loaded, s.status
	s.mu.RUnlock()

	if loaded {
		return st
	}
	return s.Refresh(ctx)
}

// Refresh re-reads the remote session and caches the result.
func (s *SessionCache) Refresh(ctx context.Context) SessionStatus {
	var st SessionStatus

	ctx, cancel := boundContext(ctx, s.timeout)
	defer cancel()

	sess, err := s.conn.Session(ctx)
	switch {
	case err != nil:
		s.logger.Warn("session check failed", "error", err)
	case sess != nil && !sess.Identity.IsZero():
		st = SessionStatus{Authenticated: true, Identity: sess.Identity, Email: sess.Email}
	}

	s.store(st)
	return st
}

// requireIdentity returns the cached identity, re-reading the session when
// none is cached.
func (s *SessionCache) requireIdentity(ctx context.Context) (models.Identity, bool) {
	s.mu.RLock()
	loaded, st := s.loaded, s.status
	s.mu.RUnlock()

	if !loaded || st.Identity.IsZero() {
		st = s.Refresh(ctx)
	}
	return st.Identity, !st.Identity.IsZero()
}

// Invalidate forgets the cached status so the next use checks remotely.
func (s *SessionCache) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.status = SessionStatus{}
}

func (s *SessionCache) store(st SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.status = st
}
